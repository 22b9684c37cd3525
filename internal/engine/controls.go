package engine

import (
	"math"

	"github.com/OCAP2/softbody/pkg/core"
)

const arcadeSwitchSpeed = 1.0

// ApplyActions executes the edge-triggered engine actions of in.
func (e *Engine) ApplyActions(in *core.Inputs) {
	for _, a := range in.Actions {
		switch a {
		case core.ActionToggleContact:
			e.ToggleContact()
		case core.ActionStartEngine:
			e.StartEngine()
		case core.ActionStopEngine:
			e.StopEngine()
		case core.ActionShiftUp:
			e.Shift(1)
		case core.ActionShiftDown:
			e.Shift(-1)
		case core.ActionShiftNeutral:
			e.ShiftTo(0)
		case core.ActionAutoShiftUp:
			e.AutoShiftUp()
		case core.ActionAutoShiftDown:
			e.AutoShiftDown()
		case core.ActionToggleShiftMode:
			e.ToggleAutoShiftMode()
		}
	}
	if in.ShiftTo != nil {
		if e.mode == Automatic {
			switch g := *in.ShiftTo; {
			case g < 0:
				e.AutoShiftSet(Rear)
			case g == 0:
				e.AutoShiftSet(Neutral)
			default:
				e.AutoShiftSet(Drive)
			}
		} else {
			e.ShiftTo(*in.ShiftTo)
		}
	}
}

// ApplyInputs maps the analog controls onto the engine and returns the
// throttle and brake pedal values the vehicle should use. With arcade set,
// an automatic gearbox swaps the pedals in reverse and selects R or D when
// the vehicle is stopped.
func (e *Engine) ApplyInputs(in *core.Inputs, arcade bool, wheelSpeed float64) (throttle, brake float64) {
	if in.Contact != nil {
		e.SetContact(*in.Contact)
	}
	e.SetStarter(in.Starter)
	e.SetManualClutch(in.Clutch)

	throttle, brake = in.EffectiveThrottle(), in.EffectiveBrake()
	if !arcade || e.mode != Automatic {
		return throttle, brake
	}
	stopped := math.Abs(wheelSpeed) < arcadeSwitchSpeed
	switch {
	case stopped && e.autoselect == Drive && brake > 0.5 && throttle < 0.1:
		e.AutoShiftSet(Rear)
	case stopped && e.autoselect == Rear && throttle > 0.5 && brake < 0.1:
		e.AutoShiftSet(Drive)
	}
	if e.autoselect == Rear {
		throttle, brake = brake, throttle
	}
	return throttle, brake
}
