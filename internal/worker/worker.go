// Package worker connects host commands and registry output to storage:
// command handlers drive the registry, and the registry's scene and event
// callbacks are recorded into the storage backend and telemetry.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/OCAP2/softbody/internal/cache"
	"github.com/OCAP2/softbody/internal/influx"
	"github.com/OCAP2/softbody/internal/registry"
	"github.com/OCAP2/softbody/internal/session"
	"github.com/OCAP2/softbody/internal/storage"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// ErrNoSession is returned by commands that need a running session.
var ErrNoSession = errors.New("no session started")

// Simulation is the part of the registry the worker drives.
type Simulation interface {
	Spawn(def *core.Definition, offset vmath.Vec3) (core.VehicleID, error)
	SubmitInputs(id core.VehicleID, in core.Inputs) error
	Remove(id core.VehicleID) error
	SetState(id core.VehicleID, s core.VehicleState) error
	PushRemote(id core.VehicleID, s core.Snapshot) error
	Save(id core.VehicleID) (core.SaveState, error)
	Restore(id core.VehicleID, st core.SaveState) error
	Vehicles() []registry.Info
	CurrentTick() uint64
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Definitions *cache.DefinitionCache
	Saves       *cache.SaveCache
	Session     *session.Context
	Logger      *slog.Logger
	// Influx is optional; disabled managers are skipped.
	Influx *influx.Manager
	// Scene, when set, receives every call after recording.
	Scene registry.Scene
	// SnapshotEvery records one snapshot per vehicle every n ticks; values
	// below 2 record every tick.
	SnapshotEvery int
	TickHz        int
	// OnSessionEnd runs after a session ended and the backend flushed.
	OnSessionEnd func(SessionEndResult)
}

// Manager handles commands and records simulation output.
type Manager struct {
	deps    Dependencies
	backend storage.Backend
	sim     Simulation

	recorded cache.SafeCounter
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Definitions == nil {
		deps.Definitions = cache.NewDefinitionCache()
	}
	if deps.Saves == nil {
		deps.Saves = cache.NewSaveCache()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// SetSimulation attaches the registry. The registry is built with the
// manager as its scene and event sink, so it is attached afterwards.
func (m *Manager) SetSimulation(sim Simulation) {
	m.sim = sim
}

// Recorded returns the number of snapshots handed to storage.
func (m *Manager) Recorded() int {
	return m.recorded.Value()
}

// Backend returns the storage backend.
func (m *Manager) Backend() storage.Backend {
	return m.backend
}

func (m *Manager) recording() bool {
	return m.backend != nil && m.deps.Session.Active()
}

// EnqueueVisualUpdate records every SnapshotEvery-th snapshot and forwards
// the update to the downstream scene.
func (m *Manager) EnqueueVisualUpdate(id core.VehicleID, s core.Snapshot) {
	if m.recording() && m.sampled(s.Tick) {
		if err := m.backend.RecordSnapshot(&s); err != nil {
			m.deps.Logger.Error("Failed to record snapshot", "vehicle", id, "error", err)
		} else {
			m.recorded.Inc()
		}
		if m.deps.Influx != nil && m.deps.Influx.Enabled() {
			p := influx.SnapshotPoint(m.deps.Session.Get().ID, &s)
			if err := m.deps.Influx.WritePoint(context.Background(), influx.BucketTelemetry, p); err != nil {
				m.deps.Logger.Debug("Failed to write telemetry point", "vehicle", id, "error", err)
			}
		}
	}
	if m.deps.Scene != nil {
		m.deps.Scene.EnqueueVisualUpdate(id, s)
	}
}

func (m *Manager) sampled(tick uint64) bool {
	n := m.deps.SnapshotEvery
	return n < 2 || tick%uint64(n) == 0
}

// SpawnFX forwards effect hints to the downstream scene.
func (m *Manager) SpawnFX(kind string, payload any) {
	if m.deps.Scene != nil {
		m.deps.Scene.SpawnFX(kind, payload)
	}
}

// HandleEvents records the events of a tick. A removal event also closes
// the vehicle's storage record and drops its cached save.
func (m *Manager) HandleEvents(events []core.Event) {
	for i := range events {
		ev := &events[i]
		if ev.Kind == core.EventRemove {
			m.deps.Saves.Delete(ev.Vehicle)
		}
		if !m.recording() {
			continue
		}
		if err := m.backend.RecordEvent(ev); err != nil {
			m.deps.Logger.Error("Failed to record event", "kind", ev.Kind, "vehicle", ev.Vehicle, "error", err)
		}
		if ev.Kind == core.EventRemove {
			if err := m.backend.RemoveVehicle(ev.Vehicle, ev.Tick); err != nil {
				m.deps.Logger.Error("Failed to record removal", "vehicle", ev.Vehicle, "error", err)
			}
		}
	}
}

// vehicleRecord describes vehicle id for storage.
func (m *Manager) vehicleRecord(id core.VehicleID) *core.VehicleRecord {
	rec := &core.VehicleRecord{
		ID:        id,
		SpawnTick: m.sim.CurrentTick(),
		SpawnedAt: time.Now().UTC(),
	}
	for _, info := range m.sim.Vehicles() {
		if info.ID == id {
			rec.Name = info.Name
			rec.Nodes = info.Nodes
			rec.Beams = info.Beams
			break
		}
	}
	return rec
}
