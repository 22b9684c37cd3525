package engine

import (
	"fmt"
	"math"
)

// AutoMode is the gearbox operating mode.
type AutoMode int

const (
	Automatic AutoMode = iota
	SemiAuto
	Manual
	ManualStick
	ManualRanges
)

var autoModeNames = [...]string{"automatic", "semiauto", "manual", "manual_stick", "manual_ranges"}

func (m AutoMode) String() string {
	if m < 0 || int(m) >= len(autoModeNames) {
		return "invalid"
	}
	return autoModeNames[m]
}

// ParseAutoMode maps a mode name to an AutoMode.
func ParseAutoMode(s string) (AutoMode, error) {
	for i, n := range autoModeNames {
		if n == s {
			return AutoMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown gearbox mode %q", s)
}

// AutoSelect is the selector lever position in automatic mode.
type AutoSelect int

const (
	Rear AutoSelect = iota
	Neutral
	Drive
	Two
	One
	ManualSelect
)

func (a AutoSelect) String() string {
	return [...]string{"R", "N", "D", "2", "1", "M"}[a]
}

// window keeps the most recent samples, newest first.
type window struct {
	buf  []float64
	size int
}

func newWindow(size int) window { return window{size: size} }

func (w *window) push(v float64) {
	w.buf = append([]float64{v}, w.buf...)
	if len(w.buf) > w.size {
		w.buf = w.buf[:w.size]
	}
}

// avg returns the mean of the newest n samples.
func (w *window) avg(n int) float64 {
	n = min(n, len(w.buf))
	if n == 0 {
		return 0
	}
	s := 0.0
	for _, v := range w.buf[:n] {
		s += v
	}
	return s / float64(n)
}

// Shift requests a relative gear change. In the automatic modes the shift
// runs through declutch, engage and release; in manual modes it needs the
// clutch pressed.
func (e *Engine) Shift(val int) {
	if val == 0 || e.gear+val < -1 || e.gear+val > e.numGears {
		return
	}
	if e.mode < Manual {
		e.shiftVal = val
		e.shifting = true
		e.shiftClock = 0
		return
	}
	if e.clutch > 0.25 {
		return
	}
	e.gear += val
}

// ShiftTo requests an absolute gear.
func (e *Engine) ShiftTo(g int) { e.Shift(g - e.gear) }

// Shifting reports whether a shift sequence is in progress.
func (e *Engine) Shifting() bool { return e.shifting }

// SetManualClutch maps a clutch pedal value in manual modes.
func (e *Engine) SetManualClutch(v float64) {
	if e.mode >= Manual {
		e.clutch = 1 - math.Max(0, v)
	}
}

// ToggleAutoShiftMode cycles through the gearbox modes.
func (e *Engine) ToggleAutoShiftMode() AutoMode {
	e.mode = (e.mode + 1) % (ManualRanges + 1)
	if e.mode == Automatic {
		switch {
		case e.gear > 0:
			e.autoselect = Drive
		case e.gear < 0:
			e.autoselect = Rear
		default:
			e.autoselect = Neutral
		}
	} else {
		e.autoselect = ManualSelect
	}
	if e.mode == ManualRanges {
		e.gearRange = 0
	}
	return e.mode
}

// SetAutoMode sets the gearbox mode.
func (e *Engine) SetAutoMode(m AutoMode) { e.mode = m }

// GearRange returns the selected range in ManualRanges mode.
func (e *Engine) GearRange() int { return e.gearRange }

// SetGearRange selects a range.
func (e *Engine) SetGearRange(r int) { e.gearRange = r }

// AutoShiftSet moves the selector lever.
func (e *Engine) AutoShiftSet(a AutoSelect) {
	e.autoselect = a
	if e.typ == Electric && e.autoselect > Drive {
		e.autoselect = Drive
	}
	e.updateShifts()
}

// AutoShiftUp moves the lever towards R.
func (e *Engine) AutoShiftUp() {
	if e.autoselect != Rear {
		e.autoselect--
		e.updateShifts()
	}
}

// AutoShiftDown moves the lever towards 1.
func (e *Engine) AutoShiftDown() {
	if (e.typ == Electric && e.autoselect != Drive) || (e.typ != Electric && e.autoselect != One) {
		e.autoselect++
		e.updateShifts()
	}
}

func (e *Engine) updateShifts() {
	switch e.autoselect {
	case ManualSelect:
		return
	case Rear:
		e.gear = -1
	case Neutral:
		e.gear = 0
	case One:
		e.gear = 1
	default:
		g := 1
		for g < e.numGears && e.wheelRPM > 0 && e.wheelRPM*e.gearRatio(g) > e.maxRPM-100 {
			g++
		}
		e.gear = g
		if e.autoselect == Two {
			e.gear = min(e.gear, 2)
		}
	}
}

// updateAutoShift runs the shift sequence and the automatic clutch.
func (e *Engine) updateAutoShift(dt, acc float64) {
	if e.shifting {
		e.shiftClock += dt
		if e.shiftVal != 0 {
			declutch := math.Min(e.shiftTime-e.clutchTime, e.clutchTime)
			if e.shiftClock <= declutch {
				r := math.Pow(1-e.shiftClock/declutch, 2)
				e.clutch = math.Min(r, e.clutch)
				e.acc = math.Min(r, e.autoAcc)
			} else {
				if e.autoselect != Neutral {
					e.gear = min(max(e.gear+e.shiftVal, -1), e.numGears)
				}
				e.shiftVal = 0
			}
		}
		if e.shiftClock > e.shiftTime {
			e.acc = e.autoAcc
			e.shifting = false
			e.postShifting = true
			e.postShiftClock = 0
		} else if e.shiftVal == 0 && e.gear != 0 && e.shiftClock >= e.shiftTime-e.clutchTime {
			timer := e.shiftClock - (e.shiftTime - e.clutchTime)
			e.acc = e.autoAcc / 2 * math.Sqrt(timer/e.clutchTime)
		}
	}

	if e.postShifting {
		e.postShiftClock += dt
		switch {
		case e.postShiftClock > e.postShiftTime:
			e.postShifting = false
		case e.autoAcc > 0:
			r := e.postShiftClock / e.postShiftTime
			e.acc = e.autoAcc/2 + e.autoAcc/2*r
		case e.gear != 0:
			if e.wheelRPM > e.rpm/e.gearRatio(e.gear) {
				e.clutch = math.Max(e.clutch, math.Sqrt(e.postShiftClock/e.postShiftTime))
			}
		}
	}

	declutchRPM := e.minRPM*0.75 + e.stallRPM*0.25
	switch {
	case e.gear == 0 || e.rpm < declutchRPM:
		e.clutch = 0
	case e.rpm < e.minRPM && e.minRPM > declutchRPM:
		c := (e.rpm - declutchRPM) / (e.minRPM - declutchRPM)
		e.clutch = math.Min(c*c, e.clutch)
	case e.shiftVal == 0 && e.rpm > e.minRPM && e.clutch < 1:
		ratio := e.gearRatio(e.gear)
		threshold := 1.5 * e.power(e.rpm) * math.Abs(e.ratios[2])
		ct := (e.rpm/ratio - e.wheelRPM) * e.clutchForce
		re := math.Min(math.Max(ct, -threshold), threshold) / ratio
		rng := (e.maxRPM - e.minRPM) * 0.4 * math.Sqrt(math.Max(0.2, acc))
		powerRatio := math.Min((e.rpm-e.minRPM)/rng, 1)
		et := e.power(e.rpm) * math.Min(e.acc, 0.9) * powerRatio
		if re != 0 {
			e.clutch = math.Max(e.clutch, math.Min(et, math.Abs(re))/re)
		}
	}
	e.clutch = math.Min(math.Max(e.clutch, 0), 1)
}

// autoGearChoice picks gears in Drive and Two from rpm, throttle and brake
// history, and keeps the clutch from over-revving the engine.
func (e *Engine) autoGearChoice(acc, brake, vertG float64) {
	if e.typ == Electric || e.mode != Automatic || (e.autoselect != Drive && e.autoselect != Two) || e.gear <= 0 {
		return
	}
	r := e.ratios
	g := e.gear
	top := e.numGears
	if e.autoselect == Two {
		top = min(2, e.numGears)
	}

	if (e.rpm > e.maxRPM-100 && g > 1) || e.wheelRPM*r[g+1] > e.maxRPM-100 {
		if (e.autoselect == Drive && g < e.numGears && e.clutch > 0.99) || (e.autoselect == Two && g < top) {
			e.kickdownDelay = 100
			e.Shift(1)
		}
	} else if g > 1 && e.refWheelRPM*r[g] < e.maxRPM &&
		(e.rpm < e.minRPM || (e.rpm < e.minRPM+e.shiftBehaviour*e.halfRange/2 &&
			e.power(e.wheelRPM*r[g]) > e.power(e.wheelRPM*r[g+1]))) {
		e.Shift(-1)
	}

	newGear := e.gear
	e.rpms.push(e.rpm)
	e.accs.push(acc)
	e.brakes.push(brake)
	rpm200 := e.rpms.avg(200)
	acc50, acc200 := e.accs.avg(50), e.accs.avg(200)
	brake50, brake200 := e.brakes.avg(50), e.brakes.avg(200)

	if acc50 > 0.8 || acc200 > 0.8 || brake50 > 0.8 || brake200 > 0.8 {
		e.shiftBehaviour = math.Min(e.shiftBehaviour+0.01, 1)
	} else if acc < 0.5 && acc50 < 0.5 && acc200 < 0.5 && brake < 0.5 && brake50 < 0.5 && brake200 < 0.5 {
		e.shiftBehaviour /= 1.01
	}

	better := func(n int) bool {
		return e.power(e.wheelRPM*r[n])*r[n] > e.power(e.wheelRPM*r[n+1])*r[n+1]
	}
	switch {
	case acc50 > 0.8 && e.rpm < e.maxRPM-e.thirdRange:
		for newGear > 1 && e.wheelRPM*r[newGear] < e.maxRPM-e.thirdRange && better(newGear) {
			newGear--
		}
	case acc50 > 0.6 && acc < 0.8 && acc > acc50+0.1 && e.rpm < e.minRPM+e.halfRange:
		if newGear > 1 && e.wheelRPM*r[newGear] < e.minRPM+e.halfRange && better(newGear) {
			newGear--
		}
	case acc50 > 0.4 && acc < 0.8 && acc > acc50+0.1 && e.rpm < e.minRPM+e.halfRange:
		if newGear > 1 && e.wheelRPM*r[newGear] < e.minRPM+e.thirdRange && better(newGear) {
			newGear--
		}
	case e.gear < top && brake200 < 0.2 && acc < math.Min(acc200+0.1, 1) && e.rpm > rpm200-e.fullRange/20:
		up := func(limit float64) {
			if e.wheelRPM*r[newGear+2] > limit {
				newGear++
			}
		}
		switch {
		case acc200 < 0.6 && acc200 > 0.4 && e.rpm > e.minRPM+e.thirdRange && e.rpm < e.maxRPM-e.thirdRange:
			up(e.minRPM + e.thirdRange)
		case acc200 < 0.4 && acc200 > 0.2 && e.rpm > e.minRPM+e.thirdRange:
			up(e.minRPM + e.thirdRange/2)
		case acc200 < 0.2 && e.rpm > e.minRPM+e.thirdRange/2 && e.rpm < e.minRPM+e.halfRange:
			up(e.minRPM + e.thirdRange/2)
		}
		if newGear > e.gear {
			e.upshiftDelay++
			if float64(e.upshiftDelay) <= 100*e.shiftBehaviour {
				newGear = e.gear
			}
		} else {
			e.upshiftDelay = 0
		}
	}

	if newGear < e.gear && e.kickdownDelay > 0 {
		newGear = e.gear
	}
	e.kickdownDelay = max(0, e.kickdownDelay-1)

	step := math.Abs(e.wheelRPM * (r[newGear+1] - r[e.gear+1]))
	if (newGear < e.gear && step > e.thirdRange/6) || (newGear > e.gear && step > e.thirdRange/3) {
		if math.Abs(vertG) < 0.25 {
			e.ShiftTo(newGear)
		}
	}

	if e.mode <= SemiAuto && e.gear != 0 {
		over := math.Abs(e.wheelRPM * r[e.gear+1])
		if over > e.maxRPM*1.25 {
			e.clutch = math.Min(1/(1+math.Abs(over-e.maxRPM*1.25)/2), e.clutch)
		}
		if float64(e.gear)*e.wheelRPM < -10 {
			e.clutch = math.Min(1/(1+math.Abs(-10-float64(e.gear)*e.wheelRPM)/2), e.clutch)
		}
	}
}
