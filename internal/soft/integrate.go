package soft

import (
	"fmt"
	"math"

	"github.com/OCAP2/softbody/internal/vmath"
)

// Env is the per-vehicle environment of one step.
type Env struct {
	Gravity     float64
	Ground      GroundProbe
	DisableDrag bool
	// NodeBuoyancy applies per-node water drag and buoyancy; vehicles with
	// buoyant cab triangles leave it off.
	NodeBuoyancy bool
}

// DivergenceError reports a node whose state left the representable range.
type DivergenceError struct {
	Node      int
	Overspeed bool
}

func (e *DivergenceError) Error() string {
	if e.Overspeed {
		return fmt.Sprintf("node %d exceeded %.0f m/s", e.Node, MaxNodeSpeed)
	}
	return fmt.Sprintf("node %d has non-finite state", e.Node)
}

// ResetForces starts a step: each force accumulator is set to gravity plus
// air drag and, below the water plane, water drag and buoyancy.
func (b *Body) ResetForces(env *Env, dt float64) {
	g := vmath.V(0, env.Gravity, 0)
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Has(FlagImmovable) {
			n.Force = vmath.Zero
			continue
		}
		n.Force = g.Scale(n.Mass)
		speed := n.Vel.Len()
		if !env.DisableDrag {
			n.Force = n.Force.Sub(n.Vel.Scale(DefaultDrag * speed))
		}
		b.applyWater(n, env, speed, dt)
	}
}

func (b *Body) applyWater(n *Node, env *Env, speed, dt float64) {
	if env.Ground == nil {
		return
	}
	w := env.Ground.WaterLevelAt(n.Pos.X, n.Pos.Z)
	if n.Pos.Y < w {
		n.Wet = Wet
		n.WetTime = 0
		if env.NodeBuoyancy {
			n.Force = n.Force.Sub(n.Vel.Scale(DefaultWaterDrag * speed))
			n.Force.Y += n.Buoyancy
		}
		return
	}
	switch n.Wet {
	case Wet:
		n.Wet = Dripping
		n.WetTime = 0
	case Dripping:
		n.WetTime += dt
		if n.WetTime > dripTime {
			n.Wet = Dry
		}
	}
}

// GroundContact resolves terrain contact against the accumulated forces.
func (b *Body) GroundContact(probe GroundProbe, dt float64) {
	if probe == nil {
		return
	}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Has(FlagContactless) || n.Has(FlagImmovable) {
			continue
		}
		h, normal, material := probe.HeightAt(n.Pos.X, n.Pos.Z)
		if h <= n.Pos.Y {
			n.Contacted = false
			n.Ground = nil
			continue
		}
		gm := LookupGroundModel(material)
		pen := (h - n.Pos.Y) * math.Max(normal.Y, 0)
		n.Force = PrimitiveCollision(n, n.Force, n.Vel, normal, dt, gm, pen, -1)
		n.Contacted = true
		n.Ground = gm
	}
}

// Integrate advances all movable nodes by one semi-implicit Euler step.
func (b *Body) Integrate(dt float64) error {
	const maxSpeedSq = MaxNodeSpeed * MaxNodeSpeed
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.InvMass == 0 {
			continue
		}
		n.Vel = n.Vel.Add(n.Force.Scale(n.InvMass * dt))
		n.Pos = n.Pos.Add(n.Vel.Scale(dt))
		if !n.Pos.IsFinite() || !n.Vel.IsFinite() {
			return &DivergenceError{Node: i}
		}
		if n.Vel.LenSq() > maxSpeedSq {
			return &DivergenceError{Node: i, Overspeed: true}
		}
	}
	return nil
}

// ZeroVelocities stops every node and clears the accumulators.
func (b *Body) ZeroVelocities() {
	for i := range b.Nodes {
		b.Nodes[i].Vel = vmath.Zero
		b.Nodes[i].Force = vmath.Zero
	}
}

// AtRest reports whether every node moves slower than eps.
func (b *Body) AtRest(eps float64) bool {
	e2 := eps * eps
	for i := range b.Nodes {
		if b.Nodes[i].Vel.LenSq() > e2 {
			return false
		}
	}
	return true
}
