// Package drivetrain models wheels, the differentials joining them into
// axles, the inter-axle chain and the transfer case, plus the braking and
// traction aids acting on the wheels.
package drivetrain

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

// BrakeCombo selects which brakes act on a wheel.
type BrakeCombo int

const (
	BrakeNone BrakeCombo = iota
	BrakeFootHand
	BrakeFootHandSkidLeft
	BrakeFootHandSkidRight
	BrakeFootOnly
)

// ParseBrakeCombo maps definition letters to a BrakeCombo.
func ParseBrakeCombo(s string) BrakeCombo {
	switch s {
	case "n", "none", "":
		return BrakeNone
	case "l", "left", "dir_left":
		return BrakeFootHandSkidLeft
	case "r", "right", "dir_right":
		return BrakeFootHandSkidRight
	case "f", "foot", "foot_only":
		return BrakeFootOnly
	default:
		return BrakeFootHand
	}
}

// Propulsion is the drive direction of a wheel.
type Propulsion int

const (
	PropNone Propulsion = iota
	PropForward
	PropBackward
)

// ParsePropulsion maps definition letters to a Propulsion.
func ParsePropulsion(s string) Propulsion {
	switch s {
	case "f", "forward", "1":
		return PropForward
	case "b", "backward", "2":
		return PropBackward
	default:
		return PropNone
	}
}

// skidBrakeSpeed is the wheel speed below which directional brakes act.
const skidBrakeSpeed = 20.0

// Wheel is a ring of rim nodes around two axis nodes. Rim node j is paired
// with Axis1 when j is odd and Axis0 otherwise.
type Wheel struct {
	Nodes      []int
	Axis0      int
	Axis1      int
	Arm        int
	NearAttach int

	Radius float64
	Width  float64
	Mass   float64

	Braking    BrakeCombo
	Propulsion Propulsion

	DetacherGroup int
	Detached      bool

	// Speed is the rim surface speed in m/s.
	Speed    float64
	AvgSpeed float64
	// Rotation accumulates the rim angle in radians.
	Rotation float64
	Torque   float64
	Slip     float64
	Ground   string

	lastTorque   float64
	lastRetorque float64
	tcCoef       float64
	absCoef      float64
}

// NewWheel returns a wheel over the given rim nodes.
func NewWheel(nodes []int, axis0, axis1 int, radius, width, mass float64) Wheel {
	return Wheel{
		Nodes:      nodes,
		Axis0:      axis0,
		Axis1:      axis1,
		Arm:        axis0,
		NearAttach: axis1,
		Radius:     radius,
		Width:      width,
		Mass:       mass,
		tcCoef:     1,
		absCoef:    1,
	}
}

// Propelled reports whether the wheel receives drive torque.
func (w *Wheel) Propelled() bool { return w.Propulsion != PropNone && !w.Detached }

// Axis returns the unit rotation axis from Axis0 to Axis1.
func (w *Wheel) Axis(nodes []soft.Node) vmath.Vec3 {
	return nodes[w.Axis1].Pos.Sub(nodes[w.Axis0].Pos).Normalize()
}

// Reset stops the wheel.
func (w *Wheel) Reset() {
	w.Speed, w.AvgSpeed, w.Torque = 0, 0, 0
	w.lastTorque, w.lastRetorque = 0, 0
	w.tcCoef, w.absCoef = 1, 1
	w.Detached = false
}

// apply distributes the wheel torque over its rim and measures the rim
// speed, returning it.
func (w *Wheel) apply(nodes []soft.Node, axis vmath.Vec3) float64 {
	perNode := w.Torque / float64(len(w.Nodes))
	speed := 0.0
	slip := 0.0
	contacts := 0
	w.Ground = ""
	for j, ni := range w.Nodes {
		outer := &nodes[ni]
		inner := &nodes[w.Axis0]
		if j%2 == 1 {
			inner = &nodes[w.Axis1]
		}
		radius := outer.Pos.Sub(inner.Pos)
		rl := radius.Len()
		if rl < 1e-9 {
			continue
		}
		inv := 1 / rl
		if w.Propulsion == PropBackward {
			radius = radius.Neg()
		}
		dir := axis.Cross(radius).Scale(inv)
		outer.Force = outer.Force.Add(dir.Scale(perNode * inv))
		speed += outer.Vel.Sub(inner.Vel).Dot(dir)
		if outer.Contacted {
			contacts++
			slip += outer.Slip
			if outer.Ground != nil {
				w.Ground = outer.Ground.Name
			}
		}
	}
	if contacts > 0 {
		w.Slip = slip / float64(contacts)
	} else {
		w.Slip = 0
	}
	return speed / float64(len(w.Nodes))
}

// react applies the counter torque of the wheel to the arm and near-attach
// nodes so that drive and brake torque act on the chassis.
func (w *Wheel) react(nodes []soft.Node, axis vmath.Vec3) {
	if w.Arm == w.NearAttach {
		return
	}
	rr := nodes[w.Arm].Pos.Sub(nodes[w.NearAttach].Pos)
	radius := rr.ProjectOnPlane(axis)
	offset := rr.Sub(radius).Len()
	radius, rlen := radius.NormLen()
	if rlen <= 0.01 || offset*2 >= rlen || math.Abs(w.Torque) <= 0.01 {
		return
	}
	cforce := axis.Cross(radius).Scale((0.5 * w.Torque / rlen) * (1 - offset*2/rlen))
	nodes[w.Arm].Force = nodes[w.Arm].Force.Sub(cforce)
	nodes[w.NearAttach].Force = nodes[w.NearAttach].Force.Add(cforce)
}
