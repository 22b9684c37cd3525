// pkg/core/events.go
package core

// EventKind names an outbound simulation event.
type EventKind string

const (
	EventBeamBroken   EventKind = "beam_broken"
	EventHookLock     EventKind = "hook_lock"
	EventHookUnlock   EventKind = "hook_unlock"
	EventTieLock      EventKind = "tie_lock"
	EventTieUnlock    EventKind = "tie_unlock"
	EventRopeLock     EventKind = "rope_lock"
	EventRopeUnlock   EventKind = "rope_unlock"
	EventSlideAttach  EventKind = "slide_attach"
	EventSlideDetach  EventKind = "slide_detach"
	EventExplode      EventKind = "explode"
	EventSleep        EventKind = "sleep"
	EventWake         EventKind = "wake"
	EventCruiseEngage EventKind = "cruise_engage"
	EventCruiseOff    EventKind = "cruise_disengage"
	EventABSActive    EventKind = "abs_active"
	EventTCActive     EventKind = "tc_active"
	EventEngineStart  EventKind = "engine_start"
	EventEngineStall  EventKind = "engine_stall"
	EventWheelDetach  EventKind = "wheel_detach"
	EventSpawn        EventKind = "spawn"
	EventRemove       EventKind = "remove"
	EventNotice       EventKind = "notice"
)

// Event is emitted by a vehicle during the post-step phase and delivered to
// the host after the tick.
type Event struct {
	Kind    EventKind `json:"kind"`
	Vehicle VehicleID `json:"vehicle"`
	Tick    uint64    `json:"tick"`
	SimTime float64   `json:"simTime"`
	// Code is set on notices derived from a SimError.
	Code string `json:"code,omitempty"`
	// Beam, Node, Hook are indices into the emitting vehicle; -1 when unused.
	Beam  int     `json:"beam"`
	Node  int     `json:"node"`
	Other NodeRef `json:"other"`
	Value float64 `json:"value,omitempty"`
	Msg   string  `json:"msg,omitempty"`
}

// NewEvent returns an event with all indices unset.
func NewEvent(kind EventKind, vehicle VehicleID) Event {
	return Event{Kind: kind, Vehicle: vehicle, Beam: -1, Node: -1, Other: NoNode}
}

// NoticeFrom wraps a SimError as a notice event.
func NoticeFrom(err *SimError) Event {
	ev := NewEvent(EventNotice, err.Vehicle)
	ev.Code = err.Code
	ev.Msg = err.Error()
	return ev
}
