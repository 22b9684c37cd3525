// Package registry owns the spawned vehicles and runs the simulation tick:
// host messages are drained first, then every physics step runs the local,
// inter-vehicle and post phases of all vehicles in parallel with a barrier
// between them. The vehicle set only changes between ticks.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/softbody/internal/queue"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vehicle"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// FXWater is the Scene.SpawnFX kind for water splash and wake hints; the
// payload is a []marine.Hint.
const FXWater = "water"

// Scene receives visual updates. Calls are one-way and happen after the
// tick, outside the registry lock.
type Scene interface {
	EnqueueVisualUpdate(id core.VehicleID, s core.Snapshot)
	SpawnFX(kind string, payload any)
}

// Net sends the state of locally simulated vehicles to remote peers.
// RequestResend asks the peer simulating id for a state newer than tick
// after; it is called when a pushed remote snapshot was stale.
type Net interface {
	Tx(id core.VehicleID, s core.Snapshot)
	RequestResend(id core.VehicleID, after uint64)
}

// EventSink receives the events of a tick in emission order.
type EventSink interface {
	HandleEvents(events []core.Event)
}

// Config wires a registry to its collaborators. Nil collaborators are
// skipped.
type Config struct {
	Ground soft.GroundProbe
	// Workers is the number of phase workers, GOMAXPROCS when zero.
	Workers int
	// SubSteps fixes the physics steps per tick. When zero the largest
	// SubSteps among the live vehicle definitions is used, and the host dt
	// decides when none sets one.
	SubSteps    int
	MaxSubsteps int
	Vehicle     vehicle.Options

	Scene  Scene
	Net    Net
	Events EventSink
	Logger *slog.Logger
}

// Info describes a registered vehicle.
type Info struct {
	ID    core.VehicleID    `json:"id"`
	Name  string            `json:"name"`
	State core.VehicleState `json:"state"`
	Nodes int               `json:"nodes"`
	Beams int               `json:"beams"`
}

// TickStats summarises one call to Tick.
type TickStats struct {
	Tick     uint64
	Steps    int
	Vehicles int
	Events   int
	Duration time.Duration
}

type msgKind int

const (
	msgInputs msgKind = iota
	msgRemove
	msgState
)

type message struct {
	kind   msgKind
	id     core.VehicleID
	inputs core.Inputs
	state  core.VehicleState
}

type entry struct {
	v        *vehicle.Vehicle
	deleting bool
	noTruck  bool
	subSteps int
	// state mirrors v.State() for readers outside the tick; guarded by
	// Registry.mu.
	state core.VehicleState
	// pairs indexes the live slice of the current tick.
	pairs          []int
	trailerParking bool
}

// Registry holds every vehicle of a simulation.
type Registry struct {
	cfg Config
	log *slog.Logger

	// tickMu serialises ticks and registry mutations.
	tickMu sync.Mutex
	// mu guards entries and byID for readers that do not hold tickMu.
	mu      sync.RWMutex
	entries []*entry
	byID    map[core.VehicleID]*entry
	nextID  core.VehicleID

	inbox   *queue.Queue[message]
	stepper *vehicle.Stepper
	pool    *pool
	metrics *metrics

	tick  atomic.Uint64
	count atomic.Int64
	last  atomic.Pointer[TickStats]
}

// New creates an empty registry and starts its workers.
func New(cfg Config) (*Registry, error) {
	r := &Registry{
		cfg:     cfg,
		log:     cfg.Logger,
		byID:    make(map[core.VehicleID]*entry),
		inbox:   queue.New[message](),
		stepper: vehicle.NewStepper(cfg.SubSteps),
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if cfg.MaxSubsteps > 0 {
		r.stepper.Max = cfg.MaxSubsteps
	}
	m, err := newMetrics(r.count.Load)
	if err != nil {
		return nil, err
	}
	r.metrics = m
	r.pool = newPool(cfg.Workers)
	return r, nil
}

// Close stops the workers. The registry must not be ticked afterwards.
func (r *Registry) Close() {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	r.pool.close()
}

// Spawn builds a vehicle from def, moved by offset, and registers it. A
// definition that fails validation returns a DefinitionInvalid error and
// registers nothing.
func (r *Registry) Spawn(def *core.Definition, offset vmath.Vec3) (core.VehicleID, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	id := r.nextID
	v, err := vehicle.Spawn(id, def, offset, r.cfg.Vehicle)
	if err != nil {
		r.log.Warn("spawn refused", "error", err)
		return core.NoVehicle, err
	}
	r.nextID++
	e := &entry{v: v, noTruck: def.DisableTruckTruckCollisions, subSteps: def.SubSteps, state: v.State()}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.byID[id] = e
	r.count.Store(int64(len(r.entries)))
	r.mu.Unlock()

	r.log.Info("vehicle spawned", "vehicle", id, "name", v.Name,
		"nodes", len(v.Body.Nodes), "beams", len(v.Body.Beams))
	return id, nil
}

func (r *Registry) lookup(id core.VehicleID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.InteractionInvalid, id, core.CodeUnknownVehicle, "no such vehicle")
	}
	return e, nil
}

// SubmitInputs queues controls for vehicle id. They take effect at the
// start of the next tick.
func (r *Registry) SubmitInputs(id core.VehicleID, in core.Inputs) error {
	if _, err := r.lookup(id); err != nil {
		return err
	}
	r.inbox.Push(message{kind: msgInputs, id: id, inputs: in})
	return nil
}

// Remove queues vehicle id for removal. It leaves the simulation at the
// start of the next tick and is unregistered at that tick's end.
func (r *Registry) Remove(id core.VehicleID) error {
	if _, err := r.lookup(id); err != nil {
		return err
	}
	r.inbox.Push(message{kind: msgRemove, id: id})
	return nil
}

// SetState queues a lifecycle change, for example handing a vehicle over to
// the network.
func (r *Registry) SetState(id core.VehicleID, s core.VehicleState) error {
	if _, err := r.lookup(id); err != nil {
		return err
	}
	r.inbox.Push(message{kind: msgState, id: id, state: s})
	return nil
}

// PushRemote hands in a snapshot received from the network for vehicle id.
// A stale snapshot is rejected and a newer one requested from the peer.
func (r *Registry) PushRemote(id core.VehicleID, s core.Snapshot) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	err = e.v.PushRemote(s)
	if errors.Is(err, core.ErrSnapshotStale) && r.cfg.Net != nil {
		after := e.v.RemoteTick()
		r.log.Debug("stale remote snapshot", "vehicle", id, "tick", s.Tick, "have", after)
		r.cfg.Net.RequestResend(id, after)
	}
	return err
}

// Snapshot returns the newest published snapshot of vehicle id; ok is false
// for unknown vehicles and before the first tick.
func (r *Registry) Snapshot(id core.VehicleID) (core.Snapshot, bool) {
	e, err := r.lookup(id)
	if err != nil {
		return core.Snapshot{}, false
	}
	return e.v.Snapshot()
}

// Save serialises the state of vehicle id. It waits for a running tick.
func (r *Registry) Save(id core.VehicleID) (core.SaveState, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return core.SaveState{}, err
	}
	return e.v.Save(), nil
}

// Restore loads st into vehicle id. It waits for a running tick.
func (r *Registry) Restore(id core.VehicleID, st core.SaveState) error {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	if err := e.v.Restore(st); err != nil {
		return fmt.Errorf("restore vehicle %d: %w", id, err)
	}
	r.mu.Lock()
	e.state = e.v.State()
	r.mu.Unlock()
	return nil
}

// Vehicles lists the registered vehicles in id order.
func (r *Registry) Vehicles() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Info{
			ID:    e.v.ID,
			Name:  e.v.Name,
			State: e.state,
			Nodes: len(e.v.Body.Nodes),
			Beams: len(e.v.Def.Beams),
		})
	}
	return out
}

// Len returns the number of registered vehicles.
func (r *Registry) Len() int { return int(r.count.Load()) }

// LastStats returns the summary of the last completed tick.
func (r *Registry) LastStats() TickStats {
	if st := r.last.Load(); st != nil {
		return *st
	}
	return TickStats{}
}

// CurrentTick returns the number of the last tick started.
func (r *Registry) CurrentTick() uint64 { return r.tick.Load() }

// LogAttrs returns the attributes a logging context handler adds to every
// record.
func (r *Registry) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Uint64("tick", r.tick.Load()),
		slog.Int64("vehicles", r.count.Load()),
	}
}

// Run ticks the registry every interval until ctx is done, passing the
// measured wall time as host dt.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			r.Tick(ctx, now.Sub(last).Seconds())
			last = now
		}
	}
}
