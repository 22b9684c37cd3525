package aero

import (
	"fmt"
	"math"

	"github.com/OCAP2/softbody/internal/soft"
)

// Control is the role of a wing section's control surface.
type Control int

const (
	ControlNone Control = iota
	ControlAileron
	ControlRevAileron
	ControlElevator
	ControlRevElevator
	ControlRudder
	ControlRevRudder
	ControlFlap
	ControlAirbrake
	ControlStabilator
	ControlRevStabilator
)

var controlNames = map[string]Control{
	"":               ControlNone,
	"none":           ControlNone,
	"aileron":        ControlAileron,
	"rev_aileron":    ControlRevAileron,
	"elevator":       ControlElevator,
	"rev_elevator":   ControlRevElevator,
	"rudder":         ControlRudder,
	"rev_rudder":     ControlRevRudder,
	"flap":           ControlFlap,
	"airbrake":       ControlAirbrake,
	"stabilator":     ControlStabilator,
	"rev_stabilator": ControlRevStabilator,
}

// ParseControl maps a definition name to a Control.
func ParseControl(s string) (Control, error) {
	c, ok := controlNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown wing control %q", s)
	}
	return c, nil
}

// FlapAngles are the deflections of the flap notches.
var FlapAngles = [...]float64{0, -5, -10, -15, -20, -30}

// MaxFlap is the highest flap notch.
const MaxFlap = len(FlapAngles) - 1

// Wing node slots, in definition order.
const (
	FrontLeftDown = iota
	FrontRightDown
	FrontLeftUp
	FrontRightUp
	BackLeftDown
	BackRightDown
	BackLeftUp
	BackRightUp
)

// Wash couples a wing to the slipstream of an engine.
type Wash struct {
	Engine int
	Ratio  float64
}

// Controls are the pilot inputs wings respond to.
type Controls struct {
	Aileron  float64
	Elevator float64
	Rudder   float64
	Flaps    int
	Airbrake int
}

// Wing is one flexible airfoil section spanning eight nodes.
type Wing struct {
	Nodes   [8]int
	Airfoil Airfoil
	Control Control

	MinDeflection float64
	MaxDeflection float64
	ChordRatio    float64
	LiftCoef      float64

	// Deflection is the current control surface angle in degrees.
	Deflection float64
	Washes     []Wash

	InducedDrag bool
	IDSpan      float64
	IDArea      float64
	IDLeft      bool

	Broken bool
	// AoA is the angle of attack of the last update, in degrees.
	AoA float64
}

// NewWing builds a wing section. A wing without a control surface uses the
// whole chord.
func NewWing(nodes [8]int, airfoil, control string, minDef, maxDef, liftCoef float64) (*Wing, error) {
	af, err := LookupAirfoil(airfoil)
	if err != nil {
		return nil, err
	}
	c, err := ParseControl(control)
	if err != nil {
		return nil, err
	}
	if liftCoef == 0 {
		liftCoef = 1
	}
	ratio := 0.25
	if c == ControlNone {
		ratio = 1
	}
	return &Wing{
		Nodes:         nodes,
		Airfoil:       af,
		Control:       c,
		MinDeflection: minDef,
		MaxDeflection: maxDef,
		ChordRatio:    ratio,
		LiftCoef:      liftCoef,
	}, nil
}

// Target returns the deflection the pilot inputs ask for.
func (w *Wing) Target(in Controls) float64 {
	surface := func(v float64) float64 {
		if v < 0 {
			return -v * w.MinDeflection
		}
		return v * w.MaxDeflection
	}
	switch w.Control {
	case ControlAileron:
		return surface(in.Aileron)
	case ControlRevAileron:
		return surface(-in.Aileron)
	case ControlElevator, ControlStabilator:
		return surface(in.Elevator)
	case ControlRevElevator, ControlRevStabilator:
		return surface(-in.Elevator)
	case ControlRudder:
		return surface(in.Rudder)
	case ControlRevRudder:
		return surface(-in.Rudder)
	case ControlFlap:
		return FlapAngles[min(max(in.Flaps, 0), MaxFlap)]
	case ControlAirbrake:
		return float64(min(max(in.Airbrake, 0), 5)) / 5 * w.MaxDeflection
	}
	return 0
}

// ApplyForces adds lift, drag and pitching moment to the wing nodes.
// engines supply the propwash named by Washes.
func (w *Wing) ApplyForces(nodes []soft.Node, engines []Engine) {
	if w.Broken {
		return
	}
	n := func(slot int) *soft.Node { return &nodes[w.Nodes[slot]] }
	fld, frd := n(FrontLeftDown), n(FrontRightDown)
	bld, brd := n(BackLeftDown), n(BackRightDown)

	wind := fld.Vel.Add(frd.Vel).Scale(-0.5)
	for _, wash := range w.Washes {
		if wash.Engine < 0 || wash.Engine >= len(engines) {
			continue
		}
		e := engines[wash.Engine]
		wind = wind.Sub(e.Axis().Scale(0.5 * wash.Ratio * e.Propwash()))
	}
	wspeed := wind.Len()
	if wspeed == 0 {
		w.AoA = 0
		return
	}

	chordv := bld.Pos.Sub(fld.Pos).Add(brd.Pos.Sub(frd.Pos)).Scale(0.5)
	chord := chordv.Len()
	spanv := frd.Pos.Sub(fld.Pos).Add(brd.Pos.Sub(bld.Pos)).Scale(0.5)
	span := spanv.Len()
	if chord == 0 || span == 0 {
		return
	}
	liftv := spanv.Cross(wind.Neg())
	area := span * chord
	normv := chordv.Cross(spanv).Normalize()

	pwind := wind.ProjectOnPlane(spanv.Scale(1 / span))
	aoa := math.Atan2(chordv.Cross(pwind).Len(), chordv.Dot(pwind)) * 180 / math.Pi
	if chordv.Cross(pwind).Dot(spanv) > 0 {
		aoa = -aoa
	}
	w.AoA = aoa

	var cl, cd, cm float64
	if w.Control == ControlStabilator || w.Control == ControlRevStabilator {
		cl, cd, cm = w.Airfoil.Params(aoa-w.Deflection, w.ChordRatio, 0)
	} else {
		cl, cd, cm = w.Airfoil.Params(aoa, w.ChordRatio, w.Deflection)
	}

	rho := AirDensity(fld.Pos.Y)
	force := wind.Scale(cd * 0.5 * rho * wspeed * area)

	if w.InducedDrag && w.IDSpan > 0 {
		idf := wind.Scale(cd * cd * 0.25 * rho * wspeed * w.IDArea * w.IDArea / (math.Pi * w.IDSpan * w.IDSpan))
		if w.IDLeft {
			n(BackLeftUp).Force = n(BackLeftUp).Force.Add(idf)
			bld.Force = bld.Force.Add(idf)
		} else {
			n(BackRightUp).Force = n(BackRightUp).Force.Add(idf)
			brd.Force = brd.Force.Add(idf)
		}
	}

	force = force.Add(liftv.Scale(cl * 0.5 * rho * wspeed * chord))
	moment := -cm * 0.5 * rho * wspeed * wspeed * area

	// Focal point at a quarter chord.
	f1 := force.Scale(w.LiftCoef * 0.75 / 4).Add(normv.Scale(w.LiftCoef * moment / (4 * 0.25)))
	f2 := force.Scale(w.LiftCoef * 0.25 / 4).Sub(normv.Scale(w.LiftCoef * moment / (4 * 0.75)))
	for _, slot := range []int{FrontLeftDown, FrontLeftUp, FrontRightDown, FrontRightUp} {
		n(slot).Force = n(slot).Force.Add(f1)
	}
	for _, slot := range []int{BackLeftDown, BackLeftUp, BackRightDown, BackRightUp} {
		n(slot).Force = n(slot).Force.Add(f2)
	}
}

// SpanArea returns the span and planform area of the section.
func (w *Wing) SpanArea(nodes []soft.Node) (span, area float64) {
	fl, fr := nodes[w.Nodes[FrontLeftDown]].Pos, nodes[w.Nodes[FrontRightDown]].Pos
	bl := nodes[w.Nodes[BackLeftDown]].Pos
	span = fr.Sub(fl).Len()
	return span, span * bl.Sub(fl).Len()
}
