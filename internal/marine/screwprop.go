package marine

import (
	"errors"
	"math"

	"github.com/OCAP2/softbody/internal/aero"
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

// MaxRudder is the rudder angle at full deflection, in radians.
const MaxRudder = math.Pi / 6

const rippleSpeed = 0.5

// Screwprop is a submerged propeller pushing along Back→Ref. Up points to
// the node the rudder pivots around. Power is the full-throttle thrust in N.
type Screwprop struct {
	Ref, Back, Up int
	Power         float64
	Water         WaterProbe

	throttle float64
	rudder   float64
	reverse  bool
	axis     vmath.Vec3
	thrust   float64
	hints    []Hint
}

// NewScrewprop builds a screwprop from the current node positions.
func NewScrewprop(nodes []soft.Node, ref, back, up int, power float64, water WaterProbe) (*Screwprop, error) {
	axis, l := nodes[ref].Pos.Sub(nodes[back].Pos).NormLen()
	if l == 0 {
		return nil, errors.New("screwprop ref and back nodes coincide")
	}
	if nodes[up].Pos.Sub(nodes[ref].Pos).IsZero() {
		return nil, errors.New("screwprop up node sits on the ref node")
	}
	return &Screwprop{Ref: ref, Back: back, Up: up, Power: power, Water: water, axis: axis}, nil
}

// SetRudder sets the rudder in [-1, 1].
func (s *Screwprop) SetRudder(v float64) { s.rudder = vmath.Clamp(v, -1, 1) }

func (s *Screwprop) ApplyForces(dt float64, nodes []soft.Node) {
	ref := &nodes[s.Ref]
	axis := ref.Pos.Sub(nodes[s.Back].Pos).Normalize()
	if axis.IsZero() {
		return
	}
	up := nodes[s.Up].Pos.Sub(ref.Pos).Normalize()
	s.axis = axis.RotateAround(up, s.rudder*MaxRudder)

	s.thrust = 0
	if s.Water == nil {
		return
	}
	depth := s.Water.WaterLevelAt(ref.Pos.X, ref.Pos.Z) - ref.Pos.Y
	if depth < 0 {
		return
	}
	s.thrust = s.throttle * s.Power
	if s.reverse {
		s.thrust = -s.thrust
	}
	ref.Force = ref.Force.Add(s.axis.Scale(s.thrust))

	if math.Abs(s.throttle) > 0 && ref.Vel.Len() > rippleSpeed {
		s.hints = append(s.hints, Hint{Kind: Ripple, Pos: ref.Pos, Dir: s.axis.Scale(-s.thrust / math.Max(s.Power, 1))})
	}
}

func (s *Screwprop) Sample() aero.State {
	return aero.State{
		Kind:     aero.KindScrewprop,
		Throttle: s.throttle,
		Thrust:   s.thrust,
		Ignition: true,
		Reverse:  s.reverse,
	}
}

func (s *Screwprop) SetThrottle(v float64) { s.throttle = vmath.Clamp(v, 0, 1) }

func (s *Screwprop) ToggleReverse() {
	s.throttle = 0
	s.reverse = !s.reverse
}

// FlipStart is a no-op; screwprops have no ignition.
func (s *Screwprop) FlipStart() {}

func (s *Screwprop) Reset() {
	s.throttle = 0
	s.rudder = 0
	s.reverse = false
	s.thrust = 0
}

func (s *Screwprop) Propwash() float64 { return 0 }

func (s *Screwprop) Axis() vmath.Vec3 { return s.axis }

// DrainHints returns and clears the collected ripple hints.
func (s *Screwprop) DrainHints() []Hint {
	h := s.hints
	s.hints = nil
	return h
}

var _ aero.Engine = (*Screwprop)(nil)
