// Package vehicle composes the subsystems of one simulated vehicle and runs
// its share of a physics step in three phases: Local computes forces from
// the vehicle's own state, Inter adds the forces that involve other
// vehicles, and Post integrates. The registry runs the phases of all
// vehicles in parallel with a barrier between them.
package vehicle

import (
	"errors"
	"sync"

	"github.com/OCAP2/softbody/internal/actuate"
	"github.com/OCAP2/softbody/internal/aero"
	"github.com/OCAP2/softbody/internal/collision"
	"github.com/OCAP2/softbody/internal/drivetrain"
	"github.com/OCAP2/softbody/internal/engine"
	"github.com/OCAP2/softbody/internal/lock"
	"github.com/OCAP2/softbody/internal/marine"
	"github.com/OCAP2/softbody/internal/replay"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// Defaults applied when Options leave a value at zero.
const (
	DefaultReplayLength   = 10000
	DefaultReplayStepping = 1000
	DefaultSleepTimeout   = 10.0
	// DefaultMinimumMass is the node mass floor of definitions that give none.
	DefaultMinimumMass = 50.0
)

const (
	// sleepVelocitySq is the mean squared node speed below which the sleep
	// timer runs.
	sleepVelocitySq = 0.01
	// boundsHorizon is how far ahead the predicted box looks, in seconds.
	boundsHorizon = 0.05
	boundsPad     = 0.1
	// flapRate moves wing surfaces toward their target, degrees per second.
	flapRate = 60.0
)

// Options tune a spawned vehicle.
type Options struct {
	ReplayLength   int
	ReplayStepping int
	// Arcade swaps the pedals of automatic vehicles when reversing.
	Arcade       bool
	SleepTimeout float64
	Gravity      float64
}

func (o Options) withDefaults() Options {
	if o.ReplayLength <= 0 {
		o.ReplayLength = DefaultReplayLength
	}
	if o.ReplayStepping == 0 {
		o.ReplayStepping = DefaultReplayStepping
	}
	if o.SleepTimeout <= 0 {
		o.SleepTimeout = DefaultSleepTimeout
	}
	if o.Gravity == 0 {
		o.Gravity = soft.DefaultGravity
	}
	return o
}

type buoyCab struct {
	nodes [3]int
	mode  marine.Mode
}

type nodeForce struct {
	node int
	f    vmath.Vec3
}

// inbox collects forces other vehicles put on this one during the inter
// phase.
type inbox struct {
	mu     sync.Mutex
	forces []nodeForce
}

func (b *inbox) add(node int, f vmath.Vec3) {
	b.mu.Lock()
	b.forces = append(b.forces, nodeForce{node: node, f: f})
	b.mu.Unlock()
}

func (b *inbox) drain(fn func(nodeForce)) {
	b.mu.Lock()
	for _, nf := range b.forces {
		fn(nf)
	}
	b.forces = b.forces[:0]
	b.mu.Unlock()
}

type lockKind int

const (
	lockHooks lockKind = iota
	lockTies
	lockRopes
	lockSlides
)

type lockRequest struct {
	kind  lockKind
	group int
	mode  lock.HookMode
}

// Vehicle is one spawned vehicle. Its fields are owned by the worker that
// steps it; other goroutines only use Deliver, PushRemote and the snapshot
// readers.
type Vehicle struct {
	ID   core.VehicleID
	Name string
	Def  *core.Definition

	Body       *soft.Body
	Bounds     soft.Bounds
	Drivetrain *drivetrain.Drivetrain
	// Engine is nil for vehicles without one.
	Engine     *engine.Engine
	Cruise     engine.Cruise
	Commands   *actuate.Commands
	Hydros     *actuate.Hydros
	Triggers   *actuate.Triggers
	Wings      []*aero.Wing
	Engines    []aero.Engine
	Screwprops []*marine.Screwprop
	Buoyancy   *marine.Buoyancy
	Collider   *collision.Collider
	Locks      *lock.Locks
	Replay     *replay.Buffer

	opts     Options
	state    core.VehicleState
	tick     uint64
	simTime  float64
	dryMass  float64
	buoyCabs []buoyCab
	hasCabs  bool
	cameras  []core.CameraDef
	camera   int

	env      soft.Env
	inputs   core.Inputs
	pending  core.Inputs
	throttle float64
	brake    float64
	// trigger beam overrides for the current step, -1 when unset
	trigThrottle float64
	trigBrake    float64
	lastRefVel   vmath.Vec3
	running      bool
	aeroReverse  bool
	autoLock     bool

	parking        bool
	trailerParking bool
	lights         uint32
	debug          bool

	sleepTimer float64
	neighbours [][]int
	beamCount  int
	beamsDirty bool
	netTick    uint64
	netTime    float64
	netSeen    bool

	absActive bool
	tcActive  bool

	in       inbox
	events   []core.Event
	lockReqs []lockRequest
	hookReqs []lockRequest
	hints    []marine.Hint

	out triple
	net triple
}

// State returns the lifecycle state.
func (v *Vehicle) State() core.VehicleState { return v.state }

// SetState moves the vehicle to s. Leaving the replay state resumes
// recording at the playback position.
func (v *Vehicle) SetState(s core.VehicleState) error {
	if v.state == core.StateReplay && s != core.StateReplay {
		if err := v.Replay.Resume(v.Body, v.ID); err != nil {
			v.state = s
			return err
		}
		v.Collider.Reset()
	}
	v.state = s
	return nil
}

// Simulated reports whether the vehicle takes part in the physics phases.
func (v *Vehicle) Simulated() bool { return v.state == core.StateSimulated }

// SimTime returns the simulated seconds the vehicle has been stepped.
func (v *Vehicle) SimTime() float64 { return v.simTime }

// HasCabs reports whether the vehicle has collision triangles.
func (v *Vehicle) HasCabs() bool { return v.hasCabs }

// Neighbours lists, per node, the nodes it shares a beam with.
func (v *Vehicle) Neighbours() [][]int { return v.neighbours }

// Mass returns the total node mass.
func (v *Vehicle) Mass() float64 { return v.Body.TotalMass() }

// Parking reports whether the parking brake is set.
func (v *Vehicle) Parking() bool { return v.parking }

// Lights returns the light flags.
func (v *Vehicle) Lights() uint32 { return v.lights }

// Camera returns the active camera, false when the vehicle has none.
func (v *Vehicle) Camera() (core.CameraDef, bool) {
	if len(v.cameras) == 0 {
		return core.CameraDef{}, false
	}
	return v.cameras[v.camera], true
}

// Position returns the centre of the exact bounding box.
func (v *Vehicle) Position() vmath.Vec3 { return v.Bounds.Exact.Center() }

// Deliver queues f on node for the next integration. It is safe to call
// from any worker during the inter phase.
func (v *Vehicle) Deliver(node int, f vmath.Vec3) {
	if node < 0 || node >= len(v.Body.Nodes) {
		return
	}
	v.in.add(node, f)
}

// Peer returns the view lock scans have of the vehicle.
func (v *Vehicle) Peer() lock.Peer {
	return lock.Peer{ID: v.ID, Body: v.Body, Locks: v.Locks, Sleeping: v.state == core.StateSleeping}
}

// Partner returns the view collision detection has of the vehicle.
func (v *Vehicle) Partner() collision.Partner {
	return collision.Partner{ID: v.ID, Body: v.Body, Neighbours: v.neighbours, HasCabs: v.hasCabs}
}

// DrainEvents returns and clears the events raised since the last call.
func (v *Vehicle) DrainEvents() []core.Event {
	ev := v.events
	v.events = nil
	return ev
}

// DrainHints returns and clears the water effect hints.
func (v *Vehicle) DrainHints() []marine.Hint {
	h := v.hints
	v.hints = nil
	return h
}

func (v *Vehicle) emit(ev core.Event) {
	ev.Vehicle = v.ID
	ev.Tick = v.tick
	ev.SimTime = v.simTime
	v.events = append(v.events, ev)
}

func (v *Vehicle) emitKind(kind core.EventKind) {
	v.emit(core.NewEvent(kind, v.ID))
}

func (v *Vehicle) notice(err *core.SimError) {
	v.emit(core.NoticeFrom(err))
}

// noticeErr reports err as a notice, wrapping errors that are not SimErrors.
func (v *Vehicle) noticeErr(err error) {
	var se *core.SimError
	if !errors.As(err, &se) {
		se = core.NewError(core.InteractionInvalid, v.ID, "", "%v", err)
		se.Err = err
	}
	v.notice(se)
}
