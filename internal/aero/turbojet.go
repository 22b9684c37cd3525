package aero

import (
	"errors"
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

const (
	jetWarmupTime   = 15.0
	jetMaxRPM       = 100.0
	jetFailStretch  = 0.1
	jetReverseRatio = 0.5
)

// Turbojet is a jet engine between a front and a back node. Thrusts are in
// kilonewtons; WetThrust 0 means no afterburner.
type Turbojet struct {
	ignition

	Front, Back, Ref int
	DryThrust        float64
	WetThrust        float64
	Reversable       bool
	Radius           float64

	refLen      float64
	area        float64
	axis        vmath.Vec3
	rpm         float64
	thrust      float64
	afterburner bool
	exhaust     float64
}

// NewTurbojet builds a turbojet from the current node positions.
func NewTurbojet(nodes []soft.Node, front, back, ref int, dry, wet float64, reversable bool, diameter float64) (*Turbojet, error) {
	axis, l := nodes[front].Pos.Sub(nodes[back].Pos).NormLen()
	if l == 0 {
		return nil, errors.New("turbojet front and back nodes coincide")
	}
	if diameter <= 0 {
		diameter = 1
	}
	r := diameter / 2
	return &Turbojet{
		ignition:   ignition{warmupTime: jetWarmupTime},
		Front:      front,
		Back:       back,
		Ref:        ref,
		DryThrust:  dry,
		WetThrust:  wet,
		Reversable: reversable,
		Radius:     r,
		refLen:     l,
		area:       2 * math.Pi * r * 0.6 * r * 0.6,
		axis:       axis,
	}, nil
}

func (j *Turbojet) ApplyForces(dt float64, nodes []soft.Node) {
	j.timer += dt
	axis, l := nodes[j.Front].Pos.Sub(nodes[j.Back].Pos).NormLen()
	if l > 0 {
		j.axis = axis
	}
	if math.Abs(j.refLen-l) > jetFailStretch {
		j.rpm = 0
		j.failed = true
	}

	warm := j.warmupFactor()
	j.rpm = math.Max(j.rpm, 0)
	torque := -j.rpm / 100
	if j.rpm < jetMaxRPM && !j.failed && j.on {
		torque += (0.2 + j.throttle*0.8) * warm
	}
	j.rpm += dt * torque * 30

	j.thrust = 0
	j.afterburner = false
	if !j.failed && j.on {
		j.thrust = j.DryThrust * j.rpm / jetMaxRPM
		j.afterburner = j.WetThrust > 0 && j.throttle > 0.95 && j.rpm > 80
		if j.afterburner {
			j.thrust += j.WetThrust - j.DryThrust
		}
		if j.reverse {
			j.thrust = -j.thrust * jetReverseRatio
		}
	}
	b := &nodes[j.Back]
	b.Force = b.Force.Add(j.axis.Scale(j.thrust * 1000))
	j.exhaust = math.Abs(j.thrust) * 5.6 / j.area
}

func (j *Turbojet) Sample() State {
	return State{
		Kind:        KindTurbojet,
		RPM:         j.rpm,
		Throttle:    j.throttle,
		Thrust:      j.thrust * 1000,
		Propwash:    j.Propwash(),
		Ignition:    j.on,
		Warmup:      j.warmup,
		Failed:      j.failed,
		Reverse:     j.reverse,
		Afterburner: j.afterburner,
	}
}

func (j *Turbojet) SetThrottle(v float64) { j.setThrottle(v) }

func (j *Turbojet) ToggleReverse() {
	if !j.Reversable {
		return
	}
	j.throttle = 0
	j.reverse = !j.reverse
}

func (j *Turbojet) FlipStart() { j.flip() }

func (j *Turbojet) Reset() {
	j.rpm = 0
	j.throttle = 0
	j.failed = false
	j.on = false
	j.reverse = false
	j.warmup = false
}

// Propwash of a jet is its exhaust velocity.
func (j *Turbojet) Propwash() float64 { return j.exhaust }

func (j *Turbojet) Axis() vmath.Vec3 { return j.axis }

// ExhaustVelocity returns the jet exhaust speed in m/s.
func (j *Turbojet) ExhaustVelocity() float64 { return j.exhaust }
