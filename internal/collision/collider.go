package collision

import (
	"math"
	"slices"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// ForceSink receives contact forces for nodes of other vehicles; they are
// applied before the owner integrates.
type ForceSink interface {
	AddForce(ref core.NodeRef, f vmath.Vec3)
}

// Collider holds the collision triangles of one vehicle and the per
// triangle rate limiters for self and inter-vehicle tests.
type Collider struct {
	Range  float64
	Ground *soft.GroundModel

	DisableInter bool
	DisableSelf  bool

	// Cabs lists triangles as (no, na, nb) node triples.
	Cabs [][3]int

	interRate []RateLimiter
	intraRate []RateLimiter
	intra     PointDetector
	inter     PointDetector
	partners  []core.VehicleID
}

// NewCollider returns a collider for the given triangles.
func NewCollider(cabs [][3]int, collRange float64) *Collider {
	if collRange <= 0 {
		collRange = soft.DefaultCollisionRange
	}
	return &Collider{
		Range:     collRange,
		Ground:    soft.DefaultGround,
		Cabs:      cabs,
		interRate: make([]RateLimiter, len(cabs)),
		intraRate: make([]RateLimiter, len(cabs)),
	}
}

// Reset puts every triangle back on the every-tick schedule.
func (c *Collider) Reset() {
	clear(c.interRate)
	clear(c.intraRate)
}

func (c *Collider) ground() *soft.GroundModel {
	if c.Ground == nil {
		return soft.DefaultGround
	}
	return c.Ground
}

type triangle struct {
	no, na, nb *soft.Node
	box        vmath.AABB
}

func (c *Collider) triangle(body *soft.Body, i int) triangle {
	cab := c.Cabs[i]
	t := triangle{no: &body.Nodes[cab[0]], na: &body.Nodes[cab[1]], nb: &body.Nodes[cab[2]]}
	t.box = vmath.EmptyAABB().Extend(t.no.Pos).Extend(t.na.Pos).Extend(t.nb.Pos)
	return t
}

// push applies the reaction of f on the triangle nodes.
func (t triangle) push(f vmath.Vec3, at TriangleCoord) {
	t.na.Force = t.na.Force.Sub(f.Scale(at.Alpha))
	t.nb.Force = t.nb.Force.Sub(f.Scale(at.Beta))
	t.no.Force = t.no.Force.Sub(f.Scale(at.Gamma))
}

// cabSpeed is the fastest triangle node relative to ref.
func (c *Collider) cabSpeed(body *soft.Body, ref vmath.Vec3) float64 {
	s := 0.0
	for _, cab := range c.Cabs {
		for _, n := range cab {
			s = math.Max(s, body.Nodes[n].Vel.Sub(ref).Len())
		}
	}
	return s
}

// reach is how far the query boxes are widened so that a quiet triangle
// cannot be closed on while it is skipped.
func (c *Collider) reach(speed, dt float64) float64 {
	return c.Range + speed*dt*(MaxSkip+1)
}

// Intra resolves contacts between the triangles of body and its own
// contacter nodes. Tyre nodes and nodes sharing a beam with the triangle
// are skipped. It returns the number of contacts.
func (c *Collider) Intra(body *soft.Body, dt float64) int {
	if c.DisableSelf || len(c.Cabs) == 0 {
		return 0
	}
	ref := meanVelocity(body)
	c.intra.Update([]Partner{{Body: body, Internal: true}}, ref)
	if c.intra.Len() == 0 {
		return 0
	}
	wide := c.reach(c.cabSpeed(body, ref)+c.intra.Speed(), dt)

	contacts := 0
	for i, cab := range c.Cabs {
		lim := &c.intraRate[i]
		if !lim.Due() {
			continue
		}
		t := c.triangle(body, i)
		hits := c.intra.Query(t.box.Pad(wide))
		if len(hits) == 0 {
			lim.Quiet()
			continue
		}
		lim.Active()
		tr, ok := NewTransform(t.na.Pos, t.nb.Pos, t.no.Pos)
		if !ok {
			continue
		}
		tight := t.box.Pad(c.Range)
		for _, h := range hits {
			hit := &body.Nodes[h.Node]
			if hit.Has(soft.FlagTyre) || slices.Contains(cab[:], h.Node) {
				continue
			}
			if body.Adjacent(h.Node, cab[0]) || body.Adjacent(h.Node, cab[1]) || body.Adjacent(h.Node, cab[2]) {
				continue
			}
			if !tight.ContainsPoint(hit.Pos) {
				continue
			}
			at := tr.Apply(hit.Pos)
			if !at.Inside(c.Range) {
				continue
			}
			normal, dist := tr.Normal(), at.Distance
			if dist < 0 {
				normal, dist = normal.Neg(), -dist
			}
			f := contactForce(hit, t, at, normal, c.Range-dist, dt, c.ground())
			hit.Force = hit.Force.Add(f)
			t.push(f, at)
			contacts++
		}
	}
	return contacts
}

// Inter resolves contacts between the triangles of body and the nodes of
// partners. Partner nodes are only read; their share of each contact force
// goes to sink. It returns the number of contacts.
func (c *Collider) Inter(body *soft.Body, partners []Partner, dt float64, sink ForceSink) int {
	if c.DisableInter || len(c.Cabs) == 0 || len(partners) == 0 {
		c.partners = c.partners[:0]
		return 0
	}
	if !samePartners(c.partners, partners) {
		clear(c.interRate)
		c.partners = c.partners[:0]
		for _, p := range partners {
			c.partners = append(c.partners, p.ID)
		}
	}
	ref := meanVelocity(body)
	c.inter.Update(partners, ref)
	if c.inter.Len() == 0 {
		return 0
	}
	wide := c.reach(c.cabSpeed(body, ref)+c.inter.Speed(), dt)

	contacts := 0
	for i := range c.Cabs {
		lim := &c.interRate[i]
		if !lim.Due() {
			continue
		}
		t := c.triangle(body, i)
		hits := c.inter.Query(t.box.Pad(wide))
		if len(hits) == 0 {
			lim.Quiet()
			continue
		}
		lim.Active()
		tr, ok := NewTransform(t.na.Pos, t.nb.Pos, t.no.Pos)
		if !ok {
			continue
		}
		tight := t.box.Pad(c.Range)
		for _, h := range hits {
			p := &partners[h.Partner]
			src := &p.Body.Nodes[h.Node]
			if !tight.ContainsPoint(src.Pos) {
				continue
			}
			at := tr.Apply(src.Pos)
			if !at.Inside(c.Range) {
				continue
			}
			normal, dist := tr.Normal(), at.Distance
			var nb []int
			if h.Node < len(p.Neighbours) {
				nb = p.Neighbours[h.Node]
			}
			if backface(dist, normal, t.no.Pos, nb, p.Body.Nodes) {
				normal, dist = normal.Neg(), -dist
			}
			// the partner owns its force accumulator during this phase
			hit := soft.Node{
				Pos: src.Pos, Vel: src.Vel, Mass: src.Mass, InvMass: src.InvMass,
				Surface: src.Surface, Volume: src.Volume, Friction: src.Friction,
			}
			f := contactForce(&hit, t, at, normal, c.Range-dist, dt, c.ground())
			sink.AddForce(core.NodeRef{Vehicle: p.ID, Node: h.Node}, f)
			t.push(f, at)
			contacts++
		}
	}
	return contacts
}

// contactForce is the force on hit from a triangle contact. The impact
// reaction removes most of the approach speed of the reduced mass of the
// node and the triangle point within one step, plus a penetration term;
// friction follows the ground model.
func contactForce(hit *soft.Node, t triangle, at TriangleCoord, normal vmath.Vec3, penetration, dt float64, gm *soft.GroundModel) vmath.Vec3 {
	surfVel := t.na.Vel.Scale(at.Alpha).Add(t.nb.Vel.Scale(at.Beta)).Add(t.no.Vel.Scale(at.Gamma))
	vel := hit.Vel.Sub(surfVel)
	triMass := t.na.Mass*at.Alpha + t.nb.Mass*at.Beta + t.no.Mass*at.Gamma
	mass := hit.Mass * triMass / (hit.Mass + triMass)

	reaction := 0.0
	if vn := vel.Dot(normal); vn < 0 {
		reaction = math.Max(0, -(0.8*vn-0.2*penetration/dt)*mass/dt)
	}
	return soft.PrimitiveCollision(hit, vmath.Zero, vel, normal, dt, gm, penetration, reaction)
}

func meanVelocity(b *soft.Body) vmath.Vec3 {
	if len(b.Nodes) == 0 {
		return vmath.Zero
	}
	var v vmath.Vec3
	for i := range b.Nodes {
		v = v.Add(b.Nodes[i].Vel)
	}
	return v.Scale(1 / float64(len(b.Nodes)))
}

func samePartners(ids []core.VehicleID, partners []Partner) bool {
	if len(ids) != len(partners) {
		return false
	}
	for i := range partners {
		if ids[i] != partners[i].ID {
			return false
		}
	}
	return true
}
