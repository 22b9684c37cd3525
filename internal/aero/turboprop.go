package aero

import (
	"errors"
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

const (
	propWarmupTime  = 14.0
	propRegSpeed    = 1010.0
	propPitchSpeed  = 5.0
	propMaxPitch    = 45.0
	propFailOffset  = 0.4
	propIdlePower   = 0.0575
	propReverseCut  = 0.5
	propEfficiency  = 0.85
	propFullPitch   = 25.0
	kwToTorque      = 9549.3
	propMinRPM      = 10.0
	propFrictionRPM = 10.0
)

// Turboprop is a propeller engine. Blades are rim nodes spinning around the
// Ref-Back axis; Power is the shaft power in kW.
type Turboprop struct {
	ignition

	Ref, Back  int
	Blades     []int
	TorqueNode int
	Power      float64
	// FixedPitch, when positive, disables the governor.
	FixedPitch float64

	radius     float64
	area       float64
	torqueDist float64
	axis       vmath.Vec3
	rpm        float64
	pitch      float64
	thrust     float64
	propwash   float64
	torque     float64
}

// NewTurboprop builds a turboprop from the current node positions. A
// negative torqueNode disables the torque reaction.
func NewTurboprop(nodes []soft.Node, ref, back int, blades []int, torqueNode int, powerKW, fixedPitch float64) (*Turboprop, error) {
	if len(blades) < 2 {
		return nil, errors.New("turboprop needs at least two blades")
	}
	axis, l := nodes[ref].Pos.Sub(nodes[back].Pos).NormLen()
	if l == 0 {
		return nil, errors.New("turboprop ref and back nodes coincide")
	}
	r := nodes[ref].Pos.Dist(nodes[blades[0]].Pos)
	if r == 0 {
		return nil, errors.New("turboprop blade sits on the hub")
	}
	tp := &Turboprop{
		ignition:   ignition{warmupTime: propWarmupTime},
		Ref:        ref,
		Back:       back,
		Blades:     blades,
		TorqueNode: torqueNode,
		Power:      powerKW,
		FixedPitch: fixedPitch,
		radius:     r,
		area:       math.Pi * r * r,
		torqueDist: 1,
		axis:       axis,
	}
	if torqueNode >= 0 {
		a := nodes[ref].Pos.ProjectOnPlane(axis)
		t := nodes[torqueNode].Pos.ProjectOnPlane(axis)
		if d := a.Dist(t); d > 0 {
			tp.torqueDist = d
		}
	}
	return tp, nil
}

// pitchEfficiency is the share of shaft power turned into thrust.
func pitchEfficiency(pitch float64) float64 {
	return propEfficiency * vmath.Clamp(math.Abs(pitch)/propFullPitch, 0, 1)
}

// diskThrust solves the actuator disk relation P = T·(v/2 + sqrt(v²/4 + T/(2ρA)))
// for the thrust T.
func diskThrust(power, v, rho, area float64) float64 {
	if power <= 0 {
		return 0
	}
	v = math.Max(v, 0)
	f := func(t float64) float64 {
		return t*(v/2+math.Sqrt(v*v/4+t/(2*rho*area))) - power
	}
	lo, hi := 0.0, math.Cbrt(power*power*2*rho*area)
	for i := 0; i < 50; i++ {
		mid := (lo + hi) / 2
		if f(mid) > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return (lo + hi) / 2
}

func (p *Turboprop) ApplyForces(dt float64, nodes []soft.Node) {
	p.timer += dt
	ref := &nodes[p.Ref]
	rho := AirDensity(ref.Pos.Y)

	n := float64(len(p.Blades))
	var velacc float64
	avg := vmath.Zero
	for _, b := range p.Blades {
		velacc += nodes[b].Vel.Sub(ref.Vel).Len()
		avg = avg.Add(nodes[b].Pos)
	}
	p.rpm = velacc / n * soft.RadPerSecToRPM / p.radius
	if avg.Scale(1/n).Dist(ref.Pos) > propFailOffset {
		p.failed = true
	}

	warm := p.warmupFactor()
	revPenalty := 1.0
	if p.reverse {
		revPenalty = propReverseCut
	}
	power := 0.0
	if !p.failed && p.on {
		power = (propIdlePower + p.throttle*revPenalty*(1-propIdlePower)) * p.Power * warm
	}
	p.torque = kwToTorque * power / math.Max(p.rpm, propMinRPM)

	if p.TorqueNode >= 0 {
		along := ref.Pos.Sub(nodes[p.Back].Pos)
		an := along.Normalize()
		orth := ref.Pos.ProjectOnPlane(an).Sub(nodes[p.TorqueNode].Pos.ProjectOnPlane(an))
		cdir := orth.Cross(along).Normalize()
		tn := &nodes[p.TorqueNode]
		tn.Force = tn.Force.Add(cdir.Scale(p.torque / p.torqueDist))
	}

	p.governor(dt)
	if !p.failed {
		if a := ref.Pos.Sub(nodes[p.Back].Pos).Normalize(); !a.IsZero() {
			p.axis = a
		}
	}

	eta := pitchEfficiency(p.pitch)
	speed := ref.Vel.Len()
	p.thrust = 0
	if !p.failed && p.on {
		tipForce := p.torque * (1 - eta) / p.radius / n
		for _, b := range p.Blades {
			bn := &nodes[b]
			span := bn.Pos.Sub(ref.Pos).Normalize()
			tip := p.axis.Cross(span)
			bn.Force = bn.Force.Add(tip.Scale(tipForce - p.rpm/propFrictionRPM))
		}
		p.thrust = diskThrust(power*1000*eta, ref.Vel.Dot(p.axis), rho, p.area)
		if p.pitch < 0 {
			p.thrust = -p.thrust
		}
		ref.Force = ref.Force.Add(p.axis.Scale(p.thrust))
	} else if !ref.Vel.IsZero() {
		// Windmilling blades.
		for _, b := range p.Blades {
			bn := &nodes[b]
			wind := bn.Vel.Neg()
			ws := (wind.Len() / 15) / (speed / 2)
			bn.Force = bn.Force.Add(wind.Scale(rho * ws))
		}
	}

	if p.failed {
		p.propwash = 0
		return
	}
	t, sign := p.thrust, 1.0
	if t < 0 {
		t, sign = -t, -0.1
	}
	p.propwash = math.Max(sign*math.Sqrt(t/(0.5*rho*p.area)+speed*speed)-speed, 0)
}

// governor regulates blade pitch towards the regulated rpm.
func (p *Turboprop) governor(dt float64) {
	if p.FixedPitch > 0 {
		p.pitch = p.FixedPitch
		return
	}
	if !p.reverse {
		if p.throttle < 0.01 {
			if p.pitch > 0 && p.rpm < propRegSpeed*1.4 {
				p.pitch -= propPitchSpeed * dt
			}
			if p.rpm > propRegSpeed*1.4 {
				p.pitch += propPitchSpeed * dt
			}
			return
		}
		d := vmath.Clamp(p.rpm-propRegSpeed, -propPitchSpeed, propPitchSpeed)
		if !(d < 0 && p.pitch < 0) && !(d > 0 && p.pitch > propMaxPitch) {
			p.pitch += d * dt
		}
		return
	}
	if p.rpm < propRegSpeed*1.1 {
		if p.pitch < -4 {
			p.pitch += propPitchSpeed * dt
		} else {
			p.pitch -= propPitchSpeed * dt
		}
	}
	if p.rpm > propRegSpeed*1.11 {
		p.pitch -= propPitchSpeed * dt
	}
}

func (p *Turboprop) Sample() State {
	return State{
		Kind:     KindTurboprop,
		RPM:      p.rpm,
		Throttle: p.throttle,
		Thrust:   p.thrust,
		Propwash: p.propwash,
		Pitch:    p.pitch,
		Ignition: p.on,
		Warmup:   p.warmup,
		Failed:   p.failed,
		Reverse:  p.reverse,
	}
}

func (p *Turboprop) SetThrottle(v float64) { p.setThrottle(v) }

func (p *Turboprop) ToggleReverse() {
	p.throttle = 0
	p.reverse = !p.reverse
	p.pitch = 0
}

func (p *Turboprop) FlipStart() { p.flip() }

func (p *Turboprop) Reset() {
	p.rpm = 0
	p.throttle = 0
	p.failed = false
	p.on = false
	p.reverse = false
	p.pitch = 0
	p.warmup = false
}

func (p *Turboprop) Propwash() float64 { return p.propwash }

func (p *Turboprop) Axis() vmath.Vec3 { return p.axis }

// Torque is the indicated shaft torque in N·m.
func (p *Turboprop) Torque() float64 { return p.torque }
