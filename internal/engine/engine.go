// Package engine simulates a combustion or electric engine coupled through a
// clutch to a gearbox, with automatic shifting, a turbo and cruise control.
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/softbody/pkg/core"
)

// Type is the engine family.
type Type byte

const (
	Truck    Type = 't'
	Car      Type = 'c'
	Electric Type = 'e'
)

// ParseType maps a definition string to a Type; unknown values are trucks.
func ParseType(s string) Type {
	switch s {
	case "c", "car":
		return Car
	case "e", "electric":
		return Electric
	}
	return Truck
}

// State is the coarse engine state.
type State int

const (
	Off State = iota
	Cranking
	Running
	Stalling
)

func (s State) String() string {
	return [...]string{"off", "cranking", "running", "stalling"}[s]
}

// Change reports a start or stall that happened during Update.
type Change int

const (
	NoChange Change = iota
	Started
	Stalled
)

// Defaults applied when a definition leaves a value at zero.
const (
	DefaultInertia        = 10.0
	DefaultClutchForce    = 10000.0
	DefaultCarClutchForce = 5000.0
	DefaultClutchTime     = 0.2
	DefaultShiftTime      = 0.5
	DefaultPostShiftTime  = 0.2
	DefaultIdleRPM        = 800.0
	DefaultStallRPM       = 300.0
	DefaultMaxIdleMixture = 0.1

	// oldTurboMax is the turbo speed limit; psi is speed/10000.
	oldTurboMax     = 200000.0
	oldTurboInertia = 0.000003
	airPurge        = 50000.0
)

// ErrNoGears is returned for a gearbox without reverse, neutral and a gear.
var ErrNoGears = errors.New("engine needs reverse, neutral and at least one forward ratio")

// Engine is the engine and gearbox of a vehicle. Ratios already include the
// differential and transfer case ratios; index 0 is reverse, 1 neutral.
type Engine struct {
	typ Type

	torque    float64
	braking   float64
	inertia   float64
	minRPM    float64
	maxRPM    float64
	idleRPM   float64
	stallRPM  float64
	maxIdle   float64
	minIdle   float64
	curve     *TorqueCurve
	diffRatio float64
	tcase     float64
	ratios    []float64
	numGears  int

	clutchForce   float64
	clutchTime    float64
	shiftTime     float64
	postShiftTime float64

	fullRange, halfRange, thirdRange float64

	rpm          float64
	acc          float64
	autoAcc      float64
	clutch       float64
	clutchTorque float64
	engineTorque float64
	gear         int
	gearRange    int
	wheelRPM     float64
	refWheelRPM  float64
	hydroPump    float64
	airPressure  float64
	turboRPM     float64

	contact  bool
	starter  bool
	running  bool
	priming  bool
	hasAir   bool
	hasTurbo bool

	mode       AutoMode
	autoselect AutoSelect

	shifting       bool
	shiftVal       int
	shiftClock     float64
	postShifting   bool
	postShiftClock float64
	shiftBehaviour float64
	kickdownDelay  int
	upshiftDelay   int

	rpms, accs, brakes window
}

// New builds an engine from its definition.
func New(def *core.EngineDef) (*Engine, error) {
	if def == nil {
		return nil, errors.New("engine definition is nil")
	}
	if len(def.GearRatios) < 3 {
		return nil, ErrNoGears
	}
	if def.Torque <= 0 || def.ShiftUpRPM <= 0 {
		return nil, fmt.Errorf("engine torque %.0f and max rpm %.0f must be positive", def.Torque, def.ShiftUpRPM)
	}
	diff := def.DiffRatio
	if diff == 0 {
		diff = 1
	}
	e := &Engine{
		typ:           ParseType(def.Type),
		torque:        def.Torque,
		braking:       -def.Torque / 5,
		inertia:       DefaultInertia,
		minRPM:        math.Abs(def.ShiftDownRPM),
		maxRPM:        math.Abs(def.ShiftUpRPM),
		idleRPM:       math.Min(math.Abs(def.ShiftDownRPM), DefaultIdleRPM),
		stallRPM:      DefaultStallRPM,
		maxIdle:       DefaultMaxIdleMixture,
		diffRatio:     diff,
		tcase:         1,
		numGears:      len(def.GearRatios) - 2,
		clutchForce:   DefaultClutchForce,
		clutchTime:    DefaultClutchTime,
		shiftTime:     DefaultShiftTime,
		postShiftTime: DefaultPostShiftTime,
		hasAir:        true,
		hasTurbo:      true,
		mode:          Automatic,
		autoselect:    Drive,
		rpms:          newWindow(200),
		accs:          newWindow(200),
		brakes:        newWindow(200),
	}
	e.ratios = make([]float64, len(def.GearRatios))
	for i, r := range def.GearRatios {
		if i == 0 {
			r = -r
		}
		e.ratios[i] = r * diff
	}
	if e.idleRPM == 0 {
		e.idleRPM = DefaultIdleRPM
	}

	if def.Inertia > 0 {
		e.inertia = def.Inertia
	}
	if def.ClutchForce > 0 {
		e.clutchForce = def.ClutchForce
	} else if e.typ != Truck {
		e.clutchForce = DefaultCarClutchForce
	}
	if def.ClutchTime > 0 {
		e.clutchTime = def.ClutchTime
	}
	if def.ShiftTime > 0 {
		e.shiftTime = def.ShiftTime
	}
	if def.PostShiftTime > 0 {
		e.postShiftTime = def.PostShiftTime
	}
	if def.IdleRPM > 0 {
		e.idleRPM = def.IdleRPM
	}
	if def.StallRPM > 0 {
		e.stallRPM = def.StallRPM
	}
	if def.MaxIdleMixture > 0 {
		e.maxIdle = def.MaxIdleMixture
	}
	if def.MinIdleMixture > 0 {
		e.minIdle = def.MinIdleMixture
	}
	e.clutchTime = math.Min(math.Max(e.clutchTime, 0), 0.9*e.shiftTime)
	e.stallRPM = math.Min(math.Max(e.stallRPM, 0), 0.9*e.idleRPM)

	if e.typ != Truck {
		e.hasAir = false
		e.hasTurbo = false
	}

	var err error
	if len(def.TorqueSamples) > 0 {
		e.curve, err = CustomTorqueCurve(def.TorqueSamples)
	} else {
		e.curve, err = NewTorqueCurve(def.TorqueCurve, e.maxRPM)
	}
	if err != nil {
		return nil, err
	}
	if def.AutoMode != "" {
		m, err := ParseAutoMode(def.AutoMode)
		if err != nil {
			return nil, err
		}
		e.mode = m
	}

	e.fullRange = e.maxRPM - e.minRPM
	e.thirdRange = e.fullRange / 3
	e.halfRange = e.fullRange / 2
	return e, nil
}

// Getters.
func (e *Engine) RPM() float64          { return e.rpm }
func (e *Engine) Gear() int             { return e.gear }
func (e *Engine) NumGears() int         { return e.numGears }
func (e *Engine) Clutch() float64       { return e.clutch }
func (e *Engine) ClutchForce() float64  { return e.clutchForce }
func (e *Engine) Acceleration() float64 { return e.acc }
func (e *Engine) Running() bool         { return e.running }
func (e *Engine) Contact() bool         { return e.contact }
func (e *Engine) Starter() bool         { return e.starter }
func (e *Engine) Type() Type            { return e.typ }
func (e *Engine) MaxRPM() float64       { return e.maxRPM }
func (e *Engine) MinRPM() float64       { return e.minRPM }
func (e *Engine) IdleRPM() float64      { return e.idleRPM }
func (e *Engine) StallRPM() float64     { return e.stallRPM }
func (e *Engine) TCaseRatio() float64   { return e.tcase }
func (e *Engine) AutoMode() AutoMode    { return e.mode }
func (e *Engine) AutoSelect() AutoSelect {
	return e.autoselect
}

// Torque is the torque the clutch transmits to the driveline.
func (e *Engine) Torque() float64 { return e.clutchTorque }

// State classifies the engine for events and snapshots.
func (e *Engine) State() State {
	switch {
	case e.running:
		return Running
	case e.contact && e.starter:
		return Cranking
	case e.rpm > 0:
		return Stalling
	}
	return Off
}

// SetAcceleration sets the throttle directly.
func (e *Engine) SetAcceleration(v float64) { e.acc = v }

// AutoSetAcc sets the driver throttle; during a shift the gearbox keeps
// control of the effective value.
func (e *Engine) AutoSetAcc(v float64) {
	e.autoAcc = v
	if !e.shifting {
		e.acc = v
	}
}

// SetClutch sets the clutch engagement directly.
func (e *Engine) SetClutch(v float64) { e.clutch = v }

// SetGear forces a gear without the shift sequence.
func (e *Engine) SetGear(g int) { e.gear = g }

// SetRPM overrides the engine speed.
func (e *Engine) SetRPM(rpm float64) { e.rpm = rpm }

// SetStarter holds the starter. It only engages with contact on and the
// engine stopped.
func (e *Engine) SetStarter(on bool) { e.starter = on && e.contact && !e.running }

// SetPriming enables the prime mixture.
func (e *Engine) SetPriming(on bool) { e.priming = on }

// SetHydroPumpWork loads the engine with the work of hydraulic commands.
func (e *Engine) SetHydroPumpWork(w float64) { e.hydroPump = w }

// SetWheelSpin sets the driveshaft speed in rpm.
func (e *Engine) SetWheelSpin(rpm float64) { e.wheelRPM = rpm }

// SetRefWheelSpin sets the reference wheel speed in rpm used by the
// automatic gear choice.
func (e *Engine) SetRefWheelSpin(rpm float64) { e.refWheelRPM = rpm }

// SetTCaseRatio applies a transfer case ratio to every gear. Ratios below
// one are ignored.
func (e *Engine) SetTCaseRatio(r float64) {
	if r < 1 {
		return
	}
	for i := range e.ratios {
		e.ratios[i] = e.ratios[i] / e.tcase * r
	}
	e.tcase = r
}

// ToggleContact flips the ignition.
func (e *Engine) ToggleContact() { e.contact = !e.contact }

// SetContact sets the ignition.
func (e *Engine) SetContact(on bool) { e.contact = on }

// StartEngine puts the engine straight into running at idle.
func (e *Engine) StartEngine() {
	e.OffStart()
	e.contact = true
	e.rpm = e.idleRPM
	e.running = true
	if e.mode <= SemiAuto {
		e.gear = 1
	}
	if e.mode == Automatic {
		e.autoselect = Drive
	}
}

// OffStart resets the engine to a cold, stopped state.
func (e *Engine) OffStart() {
	e.airPressure = 0
	e.autoselect = ManualSelect
	e.contact = false
	e.starter = false
	e.acc = 0
	e.clutch = 0
	e.clutchTorque = 0
	e.rpm = 0
	e.gear = 0
	e.postShifting = false
	e.running = false
	e.shifting = false
	e.shiftVal = 0
	if e.mode == Automatic {
		e.autoselect = Neutral
	}
	e.turboRPM = 0
}

// StopEngine stops a running engine. It reports whether it was running.
func (e *Engine) StopEngine() bool {
	if !e.running {
		return false
	}
	e.running = false
	return true
}

// CrankFactor scales hydraulic speed with engine rpm, in [0, 5].
func (e *Engine) CrankFactor() float64 {
	minWorking := e.idleRPM * 1.1
	ratio := (e.rpm - minWorking) / (e.maxRPM - minWorking)
	return 5 * math.Min(math.Max(ratio, 0), 1)
}

// AccToHoldRPM is the throttle balancing engine braking at the current rpm.
func (e *Engine) AccToHoldRPM() float64 {
	return -e.braking * math.Pow(e.rpm/e.maxRPM, 2) / e.power(e.rpm)
}

// TurboPSI is the boost pressure.
func (e *Engine) TurboPSI() float64 { return e.turboRPM / 10000 }

// Smoke is the exhaust density, or -1 when stopped.
func (e *Engine) Smoke() float64 {
	if !e.running {
		return -1
	}
	return e.acc * (1 - e.turboRPM/oldTurboMax)
}

func (e *Engine) power(rpm float64) float64 {
	return e.torque * e.curve.At(rpm)
}

func (e *Engine) idleMixture() float64 {
	if e.rpm <= e.idleRPM {
		return e.maxIdle
	}
	return e.minIdle
}

func (e *Engine) primeMixture() float64 {
	if !e.priming {
		return 0
	}
	cf := e.CrankFactor()
	switch {
	case cf < 0.9:
		return 1
	case cf < 1:
		return 10 * (1 - cf)
	}
	return 0
}

// gearRatio returns the ratio of the current gear.
func (e *Engine) gearRatio(g int) float64 { return e.ratios[g+1] }

// Update advances the engine by dt. brake is the service brake pedal, used
// by the automatic gear choice; vertG the vertical acceleration in g.
func (e *Engine) Update(dt, brake, vertG float64) Change {
	change := NoChange
	acc := math.Max(e.acc, e.idleMixture())
	acc = math.Max(acc, e.primeMixture())

	if e.hasAir {
		e.airPressure += dt * e.rpm
		if e.airPressure > airPurge {
			e.airPressure = 0
		}
	}
	if e.hasTurbo {
		tt := -e.turboRPM / oldTurboMax
		if e.turboRPM < oldTurboMax && e.running && e.acc > 0.06 {
			tt += 1.5 * e.acc * (e.rpm / e.maxRPM)
		} else {
			tt += 0.1 * (e.rpm / e.maxRPM)
		}
		e.turboRPM += dt * tt / oldTurboInertia
	}

	total := 0.0
	if e.running && e.contact {
		total += e.braking * e.rpm / e.maxRPM * (1 - e.acc)
	} else if !e.contact || !e.starter {
		total += e.braking
	}
	if e.rpm > 100 {
		total -= 8 * e.hydroPump / (e.rpm * 0.105 * dt)
	}
	if e.running && e.contact && e.rpm < e.maxRPM*1.25 {
		e.engineTorque = e.power(e.rpm) * acc
		total += e.engineTorque
	}

	if e.typ != Electric && e.running && e.rpm < e.stallRPM {
		e.StopEngine()
		change = Stalled
	}

	if e.contact && !e.running {
		if e.typ == Electric {
			if e.starter {
				e.running = true
				change = Started
			}
		} else if e.rpm < e.idleRPM {
			if e.starter {
				total += e.torque*math.Exp(-2.7*e.rpm/e.idleRPM) - e.braking
			}
		} else {
			e.running = true
			change = Started
		}
	}
	if e.running {
		e.starter = false
	}

	if e.gear != 0 {
		total -= e.clutchTorque / e.gearRatio(e.gear)
	}

	e.rpm += dt * total / e.inertia

	if e.gear != 0 {
		threshold := 1.5 * math.Max(e.torque, e.power(e.rpm)) * math.Abs(e.ratios[2])
		spinner := e.rpm / e.gearRatio(e.gear)
		slip := spinner - e.wheelRPM
		ct := slip * e.clutch * e.clutchForce
		ct = math.Min(math.Max(ct, -threshold), threshold)
		e.clutchTorque = ct * (1 - math.Exp(-math.Abs(slip)))
	} else {
		e.clutchTorque = 0
	}
	e.rpm = math.Max(0, e.rpm)

	if e.mode < Manual {
		e.updateAutoShift(dt, acc)
	}
	if !e.shifting && !e.postShifting {
		e.autoGearChoice(acc, brake, vertG)
	}
	return change
}
