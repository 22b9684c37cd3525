// pkg/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies simulation errors by how the host must react.
type ErrorKind int

const (
	// DefinitionInvalid refuses a spawn; the vehicle is never registered.
	DefinitionInvalid ErrorKind = iota + 1
	// NumericalDivergent marks a vehicle Invalid and freezes it until the host
	// removes it or resumes from replay.
	NumericalDivergent
	// InteractionInvalid is ignored with a notice event.
	InteractionInvalid
	// SnapshotStale rejects a network snapshot and keeps local state.
	SnapshotStale
)

func (k ErrorKind) String() string {
	switch k {
	case DefinitionInvalid:
		return "definition-invalid"
	case NumericalDivergent:
		return "numerical-divergent"
	case InteractionInvalid:
		return "interaction-invalid"
	case SnapshotStale:
		return "snapshot-stale"
	default:
		return fmt.Sprintf("error-kind(%d)", int(k))
	}
}

// Stable event codes carried by SimError and Event.
const (
	CodeNoNodes           = "E100"
	CodeBadNodeRef        = "E101"
	CodeBadBeam           = "E102"
	CodeBadWheel          = "E103"
	CodeBadEngine         = "E104"
	CodeBadCommand        = "E105"
	CodeBadMass           = "E106"
	CodeBadShape          = "E107"
	CodeNaN               = "E200"
	CodeOverspeed         = "E201"
	CodeHookOutOfRange    = "E300"
	CodeUnknownLockGroup  = "E301"
	CodeCommandOutOfRange = "E302"
	CodeUnknownVehicle    = "E303"
	CodeNoEngine          = "E304"
	CodeReplayEmpty       = "E305"
	CodeNoSave            = "E306"
	CodeUnknownDefinition = "E307"
	CodeStaleSnapshot     = "E400"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrDefinitionInvalid  = &SimError{Kind: DefinitionInvalid, Vehicle: NoVehicle}
	ErrNumericalDivergent = &SimError{Kind: NumericalDivergent, Vehicle: NoVehicle}
	ErrInteractionInvalid = &SimError{Kind: InteractionInvalid, Vehicle: NoVehicle}
	ErrSnapshotStale      = &SimError{Kind: SnapshotStale, Vehicle: NoVehicle}
)

// SimError is the single error type surfaced by the simulation core.
type SimError struct {
	Kind    ErrorKind
	Vehicle VehicleID
	Code    string
	Msg     string
	Err     error
}

// NewError builds a SimError with a formatted message.
func NewError(kind ErrorKind, vehicle VehicleID, code, format string, args ...any) *SimError {
	return &SimError{Kind: kind, Vehicle: vehicle, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func (e *SimError) Error() string {
	msg := fmt.Sprintf("%s [%s] vehicle %d: %s", e.Kind, e.Code, e.Vehicle, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SimError) Unwrap() error { return e.Err }

// Is matches any SimError of the same kind, so the package sentinels work
// with errors.Is regardless of vehicle or code.
func (e *SimError) Is(target error) bool {
	var t *SimError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// KindOf extracts the kind from err, or 0 when err is not a SimError.
func KindOf(err error) ErrorKind {
	var se *SimError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
