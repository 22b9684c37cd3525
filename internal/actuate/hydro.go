package actuate

import (
	"fmt"
	"math"

	"github.com/OCAP2/softbody/internal/soft"
)

// HydroFlag names an input that drives a hydro.
type HydroFlag uint8

const (
	HydroDir HydroFlag = 1 << iota
	HydroSpeed
	HydroAileron
	HydroRudder
	HydroElevator
	HydroRevAileron
	HydroRevRudder
	HydroRevElevator
)

var hydroFlagNames = map[string]HydroFlag{
	"dir":          HydroDir,
	"speed":        HydroSpeed,
	"aileron":      HydroAileron,
	"rudder":       HydroRudder,
	"elevator":     HydroElevator,
	"rev_aileron":  HydroRevAileron,
	"rev_rudder":   HydroRevRudder,
	"rev_elevator": HydroRevElevator,
}

// ParseHydroFlags combines flag names; no names means HydroDir.
func ParseHydroFlags(names []string) (HydroFlag, error) {
	if len(names) == 0 {
		return HydroDir, nil
	}
	var f HydroFlag
	for _, n := range names {
		v, ok := hydroFlagNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown hydro flag %q", n)
		}
		f |= v
	}
	return f, nil
}

const (
	// speedHydroCutoff is the wheel speed above which speed hydros no longer steer.
	speedHydroCutoff = 12.0
	surfaceRate      = 4.0
	analogMaxStep    = 0.02
)

// Hydro is a beam whose rest length follows a steering or control input.
type Hydro struct {
	Beam  int
	Ratio float64
	Flags HydroFlag
	// BaseL is the rest length at zero input.
	BaseL float64

	inertia *Inertia
}

// NewHydro builds a hydro over beam with rest length baseL.
func NewHydro(beam int, ratio float64, flags HydroFlag, baseL float64, inertia *Inertia) Hydro {
	return Hydro{Beam: beam, Ratio: ratio, Flags: flags, BaseL: baseL, inertia: inertia}
}

// Hydros holds the smoothed steering states and the hydros they drive.
type Hydros struct {
	List []Hydro
	// SpeedCoupling slows steering with speed and self-centres it.
	SpeedCoupling bool

	DirCommand      float64
	AileronCommand  float64
	RudderCommand   float64
	ElevatorCommand float64

	dir, aileron, rudder, elevator float64
	display                        float64
}

// DirState returns the smoothed steering state in [-1, 1].
func (h *Hydros) DirState() float64 { return h.dir }

// Display returns the last direction hydro value, for the steering wheel.
func (h *Hydros) Display() float64 { return h.display }

// States returns the smoothed aileron, rudder and elevator states.
func (h *Hydros) States() (aileron, rudder, elevator float64) {
	return h.aileron, h.rudder, h.elevator
}

func toward(state, command, rate, dt float64) float64 {
	if state == 0 && command == 0 {
		return 0
	}
	if command != 0 {
		if state > command {
			state -= dt * rate
		} else {
			state += dt * rate
		}
	}
	switch {
	case state > dt:
		return state - dt
	case state < -dt:
		return state + dt
	}
	return 0
}

func (h *Hydros) updateStates(dt, wheelSpeed float64) {
	if h.dir != 0 || h.DirCommand != 0 {
		if h.SpeedCoupling {
			rate := math.Max(30/(10+math.Abs(wheelSpeed/2)), 1.2)
			h.dir = toward(h.dir, h.DirCommand, rate, dt)
		} else {
			old := h.dir
			h.dir = h.DirCommand
			if math.Abs(h.dir-old) > analogMaxStep {
				h.dir = (h.dir-old)*analogMaxStep + old
			}
		}
	}
	h.aileron = toward(h.aileron, h.AileronCommand, surfaceRate, dt)
	h.rudder = toward(h.rudder, h.RudderCommand, surfaceRate, dt)
	h.elevator = toward(h.elevator, h.ElevatorCommand, surfaceRate, dt)
}

// Update advances the steering states and sets the rest length of every
// hydro. wheelSpeed is in m/s.
func (h *Hydros) Update(dt, wheelSpeed float64, beams []soft.Beam) {
	h.updateStates(dt, wheelSpeed)
	for i := range h.List {
		hy := &h.List[i]
		var cstate float64
		div := 0
		add := func(flag HydroFlag, v float64) {
			if hy.Flags&flag != 0 {
				cstate += v
				div++
			}
		}
		if hy.Flags&HydroSpeed != 0 {
			if wheelSpeed < speedHydroCutoff {
				cstate += h.dir * (speedHydroCutoff - wheelSpeed) / speedHydroCutoff
			}
			div++
		}
		add(HydroDir, h.dir)
		add(HydroAileron, h.aileron)
		add(HydroRudder, h.rudder)
		add(HydroElevator, h.elevator)
		add(HydroRevAileron, -h.aileron)
		add(HydroRevRudder, -h.rudder)
		add(HydroRevElevator, -h.elevator)
		if div == 0 {
			continue
		}
		cstate = math.Max(-1, math.Min(cstate, 1)) / float64(div)
		cstate = hy.inertia.Calc(cstate, dt)
		if hy.Flags&HydroSpeed == 0 {
			h.display = cstate
		}
		bm := &beams[hy.Beam]
		if bm.Broken {
			continue
		}
		bm.L = hy.BaseL * (1 - cstate*hy.Ratio)
	}
}

// Reset centres every state.
func (h *Hydros) Reset() {
	h.dir, h.aileron, h.rudder, h.elevator, h.display = 0, 0, 0, 0, 0
	h.DirCommand, h.AileronCommand, h.RudderCommand, h.ElevatorCommand = 0, 0, 0, 0
	for i := range h.List {
		h.List[i].inertia.Reset()
	}
}
