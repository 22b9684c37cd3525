// Package memory records a session in memory and exports it as JSON when
// the session ends.
package memory

import (
	"slices"
	"sync"

	"github.com/OCAP2/softbody/internal/config"
	"github.com/OCAP2/softbody/internal/geo"
	v1 "github.com/OCAP2/softbody/internal/storage/memory/export/v1"
	"github.com/OCAP2/softbody/pkg/core"
)

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg       config.MemoryConfig
	session   *core.Session
	projector *geo.Projector

	vehicles map[core.VehicleID]*v1.VehicleRecord
	events   []core.Event

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		vehicles: make(map[core.VehicleID]*v1.VehicleRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops anything recorded
// before.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.projector = nil
	if p, err := geo.NewProjector(s.Origin); err == nil {
		b.projector = p
	}
	b.vehicles = make(map[core.VehicleID]*v1.VehicleRecord)
	b.events = nil
	b.lastExportPath = ""
	return nil
}

// EndSession writes the export file. It is a no-op without a started
// session.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// AddVehicle registers a spawned vehicle. Registering an id again replaces
// the previous record.
func (b *Backend) AddVehicle(v *core.VehicleRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.vehicles[v.ID] = &v1.VehicleRecord{Vehicle: *v}
	return nil
}

// RemoveVehicle marks vehicle id as removed at tick.
func (b *Backend) RemoveVehicle(id core.VehicleID, tick uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.vehicles[id]; ok {
		rec.RemovedTick = &tick
	}
	return nil
}

// GetVehicle returns the registration of vehicle id.
func (b *Backend) GetVehicle(id core.VehicleID) (*core.VehicleRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if rec, ok := b.vehicles[id]; ok {
		v := rec.Vehicle
		return &v, true
	}
	return nil, false
}

// RecordSnapshot appends a copy of s to its vehicle. Snapshots of unknown
// vehicles are dropped.
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.vehicles[s.Vehicle]
	if !ok {
		return nil
	}
	cp := *s
	cp.Nodes = slices.Clone(s.Nodes)
	cp.Broken = slices.Clone(s.Broken)
	cp.Wheels = slices.Clone(s.Wheels)
	rec.Snapshots = append(rec.Snapshots, cp)
	return nil
}

// RecordEvent appends an event.
func (b *Backend) RecordEvent(e *core.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, *e)
	return nil
}

// SaveState keeps a save of its vehicle.
func (b *Backend) SaveState(tick uint64, st *core.SaveState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.vehicles[st.Vehicle]
	if !ok {
		return nil
	}
	rec.Saves = append(rec.Saves, v1.Save{Tick: tick, State: *st})
	return nil
}

// LoadState returns the latest save of vehicle id.
func (b *Backend) LoadState(id core.VehicleID) (core.SaveState, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.vehicles[id]
	if !ok || len(rec.Saves) == 0 {
		return core.SaveState{}, false, nil
	}
	return rec.Saves[len(rec.Saves)-1].State, true, nil
}

// Counts returns the number of vehicles, snapshots and events held.
func (b *Backend) Counts() (vehicles, snapshots, events int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, rec := range b.vehicles {
		snapshots += len(rec.Snapshots)
	}
	return len(b.vehicles), snapshots, len(b.events)
}
