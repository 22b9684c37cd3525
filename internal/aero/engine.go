package aero

import (
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

// Kind tags a propulsion unit.
type Kind int

const (
	KindTurboprop Kind = iota
	KindTurbojet
	KindScrewprop
)

func (k Kind) String() string {
	return [...]string{"turboprop", "turbojet", "screwprop"}[k]
}

// State is the sampled state of a propulsion unit.
type State struct {
	Kind        Kind    `json:"kind"`
	RPM         float64 `json:"rpm"`
	Throttle    float64 `json:"throttle"`
	Thrust      float64 `json:"thrust"`
	Propwash    float64 `json:"propwash"`
	Pitch       float64 `json:"pitch,omitempty"`
	Ignition    bool    `json:"ignition"`
	Warmup      bool    `json:"warmup"`
	Failed      bool    `json:"failed"`
	Reverse     bool    `json:"reverse"`
	Afterburner bool    `json:"afterburner,omitempty"`
}

// Engine is the contract shared by every propulsion unit.
type Engine interface {
	ApplyForces(dt float64, nodes []soft.Node)
	Sample() State
	SetThrottle(v float64)
	ToggleReverse()
	FlipStart()
	Reset()
	// Propwash is the slipstream speed behind the unit in m/s.
	Propwash() float64
	// Axis is the unit thrust direction.
	Axis() vmath.Vec3
}

const flipDebounce = 0.3

// ignition carries the start and warmup logic shared by the aero engines.
type ignition struct {
	timer       float64
	lastFlip    float64
	flipped     bool
	warmupStart float64
	warmupTime  float64
	warmup      bool
	on          bool
	failed      bool
	throttle    float64
	reverse     bool
}

func (ig *ignition) flip() {
	if ig.flipped && ig.timer-ig.lastFlip < flipDebounce {
		return
	}
	ig.on = !ig.on
	if ig.on && !ig.failed {
		ig.warmup = true
		ig.warmupStart = ig.timer
	}
	ig.lastFlip = ig.timer
	ig.flipped = true
}

func (ig *ignition) warmupFactor() float64 {
	if !ig.warmup {
		return 1
	}
	f := (ig.timer - ig.warmupStart) / ig.warmupTime
	if f >= 1 {
		ig.warmup = false
		return 1
	}
	return f
}

func (ig *ignition) setThrottle(v float64) {
	ig.throttle = vmath.Clamp(v, 0, 1)
}
