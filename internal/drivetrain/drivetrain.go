package drivetrain

import (
	"math"
	"strconv"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

// Brake defaults in N·m.
const (
	DefaultBrakeForce    = 30000.0
	HandbrakeForceFactor = 2.0
)

// Wheel slip above which ABS and TC intervene when no threshold is given.
const defaultAssistSlip = 0.25

// Assist is the state of ABS or traction control. The pulse flips every
// 1/Pulse seconds; the coefficient is only resampled while the pulse is on.
type Assist struct {
	Enabled  bool
	Ratio    float64
	Pulse    float64
	MinSpeed float64
	Slip     float64
	Fade     float64

	Active bool

	timer float64
	state bool
}

// NewAssist returns an assist from its definition values. A zero pulse
// samples every step.
func NewAssist(enabled bool, ratio, pulseHz, minSpeed, slip, fade float64) Assist {
	if slip <= 0 {
		slip = defaultAssistSlip
	}
	return Assist{Enabled: enabled, Ratio: ratio, Pulse: pulseHz, MinSpeed: minSpeed, Slip: slip, Fade: fade, state: true}
}

func (a *Assist) tick(dt float64) {
	a.Active = false
	if a.Pulse <= 0 {
		a.state = true
		return
	}
	a.timer += dt
	if a.timer >= 1/a.Pulse {
		a.timer = 0
		a.state = !a.state
	}
}

// Toggle flips Enabled.
func (a *Assist) Toggle() { a.Enabled = !a.Enabled }

// TransferCase routes drive to a second axle and offers alternate ratios.
type TransferCase struct {
	AxleA, AxleB int
	Has2WD       bool
	Has2WDLo     bool
	FourWD       bool
	Ratios       []float64
}

// Ratio returns the active gear ratio.
func (t *TransferCase) Ratio() float64 {
	if len(t.Ratios) == 0 {
		return 1
	}
	return t.Ratios[0]
}

// Name describes the mode, for example "4WD Lo (2.5:1)".
func (t *TransferCase) Name() string {
	name := "2WD "
	if t.FourWD {
		name = "4WD "
	}
	if r := t.Ratio(); r > 1 {
		return name + "Lo (" + strconv.FormatFloat(r, 'g', -1, 64) + ":1)"
	}
	return name + "Hi"
}

// Inputs are the driver controls read by the drivetrain in one step.
type Inputs struct {
	// EngineTorque is the torque at the driveshaft after gearing.
	EngineTorque float64
	HasEngine    bool
	Brake        float64
	ParkingBrake bool
	// Steer is the hydro direction state in [-1, 1], used by skid brakes.
	Steer float64
	// Direction is the vehicle forward axis; RefVel the velocity of the
	// reference node.
	Direction vmath.Vec3
	RefVel    vmath.Vec3
}

// Drivetrain owns the wheels of one vehicle and the differentials between
// them. InterAxles holds the inter-axle differentials; when a transfer case
// is present its differential is stored last and only acts in 4WD.
type Drivetrain struct {
	Wheels       []Wheel
	Axles        []*Differential
	InterAxles   []*Differential
	TransferCase *TransferCase

	ABS Assist
	TC  Assist

	BrakeForce     float64
	HandbrakeForce float64

	// WheelSpeed is the mean speed of forward-propelled wheels in m/s and
	// WheelSpin their mean angular speed in rad/s.
	WheelSpeed    float64
	WheelSpin     float64
	AvgWheelSpeed float64
	Odometer      float64

	hasTCDiff bool
}

// New returns an empty drivetrain with default brakes.
func New() *Drivetrain {
	return &Drivetrain{
		BrakeForce:     DefaultBrakeForce,
		HandbrakeForce: HandbrakeForceFactor * DefaultBrakeForce,
	}
}

// SetTransferCase installs tc and appends its inter-axle differential.
func (d *Drivetrain) SetTransferCase(tc *TransferCase, modes []DiffMode) {
	d.TransferCase = tc
	if tc.AxleB >= 0 {
		d.InterAxles = append(d.InterAxles, NewDifferential(tc.AxleA, tc.AxleB, modes))
		d.hasTCDiff = true
	}
}

// PropelledWheels counts the wheels receiving drive torque.
func (d *Drivetrain) PropelledWheels() int {
	n := 0
	for i := range d.Wheels {
		if d.Wheels[i].Propelled() {
			n++
		}
	}
	return n
}

// activeInterAxles returns the inter-axle differentials currently engaged.
func (d *Drivetrain) activeInterAxles() []*Differential {
	if d.hasTCDiff && !d.TransferCase.FourWD {
		return d.InterAxles[:len(d.InterAxles)-1]
	}
	return d.InterAxles
}

// ToggleAxleDiffMode cycles every wheel differential.
func (d *Drivetrain) ToggleAxleDiffMode() bool {
	for _, a := range d.Axles {
		a.ToggleMode()
	}
	return len(d.Axles) > 0
}

// ToggleInterAxleDiffMode cycles every inter-axle differential.
func (d *Drivetrain) ToggleInterAxleDiffMode() bool {
	for _, a := range d.InterAxles {
		a.ToggleMode()
	}
	return len(d.InterAxles) > 0
}

// ToggleTransferCaseMode switches between 2WD and 4WD. Leaving 4WD without
// a low 2WD range first returns the gearing to 1:1. It reports the new tcase
// ratio and whether anything changed.
func (d *Drivetrain) ToggleTransferCaseMode() (float64, bool) {
	tc := d.TransferCase
	if tc == nil || tc.AxleB < 0 || tc.AxleB >= len(d.Axles) || !tc.Has2WD {
		return 1, false
	}
	if tc.FourWD && !tc.Has2WDLo {
		for range tc.Ratios {
			d.ToggleTransferCaseGearRatio()
			if tc.Ratio() == 1 {
				break
			}
		}
	}
	tc.FourWD = !tc.FourWD
	ax := d.Axles[tc.AxleB]
	for _, wi := range []int{ax.A, ax.B} {
		if tc.FourWD {
			d.Wheels[wi].Propulsion = PropForward
		} else {
			d.Wheels[wi].Propulsion = PropNone
		}
	}
	return tc.Ratio(), true
}

// ToggleTransferCaseGearRatio rotates the ratio list. Only allowed in 4WD
// or when the case offers a low 2WD range.
func (d *Drivetrain) ToggleTransferCaseGearRatio() (float64, bool) {
	tc := d.TransferCase
	if tc == nil || len(tc.Ratios) < 2 {
		return 1, false
	}
	if !tc.FourWD && !tc.Has2WDLo {
		return tc.Ratio(), false
	}
	tc.Ratios = append(tc.Ratios[1:], tc.Ratios[0])
	return tc.Ratio(), true
}

// axleSpeed is the mean speed of the two wheels of axle i.
func (d *Drivetrain) axleSpeed(i int) float64 {
	ax := d.Axles[i]
	return (d.Wheels[ax.A].Speed + d.Wheels[ax.B].Speed) * 0.5
}

func (d *Drivetrain) axleTorque(i int) float64 {
	ax := d.Axles[i]
	return d.Wheels[ax.A].Torque + d.Wheels[ax.B].Torque
}

// CalcDifferentials distributes the engine torque over the propelled wheels
// and lets the inter-axle and wheel differentials redistribute it.
func (d *Drivetrain) CalcDifferentials(in Inputs, dt float64) {
	if n := d.PropelledWheels(); in.HasEngine && n > 0 {
		per := in.EngineTorque / float64(n)
		for i := range d.Wheels {
			if d.Wheels[i].Propelled() {
				d.Wheels[i].Torque += per
			}
		}
	}

	inter := d.activeInterAxles()
	// A fully detached axle follows its partner so the shaft stays aligned.
	for _, ia := range inter {
		a1, a2 := d.Axles[ia.A], d.Axles[ia.B]
		w := d.Wheels
		if w[a1.A].Detached && w[a1.B].Detached {
			w[a1.A].Speed, w[a1.B].Speed = w[a2.A].Speed, w[a2.B].Speed
		}
		if w[a2.A].Detached && w[a2.B].Detached {
			w[a2.A].Speed, w[a2.B].Speed = w[a1.A].Speed, w[a1.B].Speed
		}
	}
	for _, ax := range d.Axles {
		wa, wb := &d.Wheels[ax.A], &d.Wheels[ax.B]
		if wa.Detached {
			wa.Speed = wb.Speed
		}
		if wb.Detached {
			wb.Speed = wa.Speed
		}
	}

	for _, ia := range inter {
		total := d.axleTorque(ia.A) + d.axleTorque(ia.B)
		outA, outB := ia.Split(d.axleSpeed(ia.A), d.axleSpeed(ia.B), total, dt)
		a1, a2 := d.Axles[ia.A], d.Axles[ia.B]
		d.Wheels[a1.A].Torque, d.Wheels[a1.B].Torque = outA*0.5, outA*0.5
		d.Wheels[a2.A].Torque, d.Wheels[a2.B].Torque = outB*0.5, outB*0.5
	}

	for _, ax := range d.Axles {
		wa, wb := &d.Wheels[ax.A], &d.Wheels[ax.B]
		wa.Torque, wb.Torque = ax.Split(wa.Speed, wb.Speed, wa.Torque+wb.Torque, dt)
	}
}

// CalcWheels applies traction control, brakes and the resulting wheel
// torque to the rim nodes. It returns whether ABS or TC intervened.
func (d *Drivetrain) CalcWheels(nodes []soft.Node, in Inputs, dt float64) (absActive, tcActive bool) {
	d.TC.tick(dt)
	d.ABS.tick(dt)

	relspeed := in.RefVel.Dot(in.Direction)
	curspeed := math.Abs(relspeed)
	propelled := d.PropelledWheels()
	d.WheelSpeed, d.WheelSpin = 0, 0

	for i := range d.Wheels {
		w := &d.Wheels[i]
		if w.Detached || len(w.Nodes) == 0 {
			continue
		}
		slip := math.Abs(w.Speed-relspeed) / math.Max(1, curspeed)

		d.tractionControl(w, curspeed, slip)
		d.brake(w, in, curspeed, slip, dt)

		axis := w.Axis(nodes)
		expected := w.Speed
		w.Speed = w.apply(nodes, axis)
		w.Rotation += w.Speed / w.Radius * dt
		// The average is overestimated on purpose; it feeds the brake
		// force estimate.
		w.AvgSpeed = w.AvgSpeed*0.99 + w.Speed*0.1
		if w.Propulsion == PropForward && propelled > 0 {
			acc := w.Speed / float64(propelled)
			d.WheelSpeed += acc
			d.WheelSpin += acc / w.Radius
		}
		expected += w.lastTorque / w.Radius / w.Mass * dt
		w.lastRetorque = w.Mass * (w.Speed - expected) / dt

		w.react(nodes, axis)

		w.lastTorque = w.Torque
		w.Torque = 0
	}

	d.AvgWheelSpeed = d.AvgWheelSpeed*0.995 + d.WheelSpeed*0.005
	d.Odometer += math.Abs(d.WheelSpeed * dt)
	return d.ABS.Active, d.TC.Active
}

func (d *Drivetrain) tractionControl(w *Wheel, curspeed, slip float64) {
	tc := &d.TC
	if !tc.Enabled || w.Torque == 0 || math.Abs(w.Speed) <= curspeed || slip <= tc.Slip {
		w.tcCoef = 1
		return
	}
	if tc.state {
		w.tcCoef = math.Pow(curspeed/math.Abs(w.Speed), tc.Ratio)
	}
	fade := math.Min(math.Abs(w.Speed)/5, 1)
	if tc.Fade > 0 {
		fade = math.Min(math.Abs(w.Speed)/tc.Fade, 1)
	}
	w.Torque *= math.Pow(w.tcCoef, fade)
	tc.Active = true
}

func (d *Drivetrain) brake(w *Wheel, in Inputs, curspeed, slip, dt float64) {
	if w.Braking == BrakeNone {
		return
	}
	foot := d.BrakeForce * in.Brake
	hand := 0.0
	if in.ParkingBrake && w.Braking != BrakeFootOnly {
		hand = d.HandbrakeForce
	}
	dir := 0.0
	if w.Speed < skidBrakeSpeed &&
		((w.Braking == BrakeFootHandSkidLeft && in.Steer > 0) ||
			(w.Braking == BrakeFootHandSkidRight && in.Steer < 0)) {
		dir = d.BrakeForce * math.Abs(in.Steer)
	}
	if foot == 0 && dir == 0 && hand == 0 {
		w.absCoef = 1
		return
	}
	service := foot + dir
	ab := &d.ABS
	if ab.Enabled && curspeed > ab.MinSpeed && curspeed > math.Abs(w.Speed) && service > 0 && slip > ab.Slip {
		if ab.state {
			w.absCoef = math.Pow(math.Abs(w.Speed)/curspeed, ab.Ratio)
		}
		service *= w.absCoef
		ab.Active = true
	}
	limit := service + hand
	force := -w.AvgSpeed*w.Radius*w.Mass/dt - w.lastRetorque
	if w.Speed > 0 {
		w.Torque += vmath.Clamp(force, -limit, 0)
	} else {
		w.Torque += vmath.Clamp(force, 0, limit)
	}
}
