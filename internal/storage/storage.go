// Package storage defines the recording backends a simulation session is
// written to.
package storage

import "github.com/OCAP2/softbody/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Vehicle registration
	AddVehicle(v *core.VehicleRecord) error
	RemoveVehicle(id core.VehicleID, tick uint64) error

	// Recording
	RecordSnapshot(s *core.Snapshot) error
	RecordEvent(e *core.Event) error
}

// Saver is an optional interface for backends that keep vehicle saves and
// can hand them back for a restore.
type Saver interface {
	SaveState(tick uint64, st *core.SaveState) error
	// LoadState returns the latest save of vehicle id, ok false when none
	// was recorded.
	LoadState(id core.VehicleID) (core.SaveState, bool, error)
}

// Uploadable is an optional interface for storage backends that produce
// a file once the session ends.
type Uploadable interface {
	GetExportedFilePath() string
}
