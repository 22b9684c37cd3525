package collision

import (
	"math"
	"testing"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = soft.PhysicsDT

// forces collects forces per node reference.
type forces map[core.NodeRef]vmath.Vec3

func (s forces) AddForce(ref core.NodeRef, f vmath.Vec3) {
	s[ref] = s[ref].Add(f)
}

// plate is a right triangle in the z=0 plane with its normal along +z,
// listed as (no, na, nb).
func plate() (*soft.Body, [][3]int) {
	b := &soft.Body{}
	b.AddNode(soft.NewNode(vmath.V(0, 0, 0), 10))
	b.AddNode(soft.NewNode(vmath.V(1, 0, 0), 10))
	b.AddNode(soft.NewNode(vmath.V(0, 1, 0), 10))
	for i := range b.Nodes {
		b.Nodes[i].Flags |= soft.FlagCab
	}
	return b, [][3]int{{0, 1, 2}}
}

func totalForce(b *soft.Body) vmath.Vec3 {
	var f vmath.Vec3
	for i := range b.Nodes {
		f = f.Add(b.Nodes[i].Force)
	}
	return f
}

func TestTransform_Coordinates(t *testing.T) {
	tr, ok := NewTransform(vmath.V(1, 0, 0), vmath.V(0, 1, 0), vmath.V(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, vmath.V(0, 0, 1), tr.Normal())

	at := tr.Apply(vmath.V(0.25, 0.25, 0.5))
	assert.InDelta(t, 0.25, at.Alpha, 1e-12)
	assert.InDelta(t, 0.25, at.Beta, 1e-12)
	assert.InDelta(t, 0.5, at.Gamma, 1e-12)
	assert.InDelta(t, 0.5, at.Distance, 1e-12)
	assert.False(t, at.Inside(0.02))
	assert.True(t, at.Inside(0.6))

	out := tr.Apply(vmath.V(0.9, 0.9, 0))
	assert.Less(t, out.Gamma, 0.0)
	assert.False(t, out.Inside(1))

	corner := tr.Apply(vmath.V(1, 0, 0))
	assert.InDelta(t, 1, corner.Alpha, 1e-12)
	assert.True(t, corner.Inside(0.02))
}

func TestTransform_Degenerate(t *testing.T) {
	tr, ok := NewTransform(vmath.V(1, 0, 0), vmath.V(2, 0, 0), vmath.V(0, 0, 0))
	assert.False(t, ok)
	at := tr.Apply(vmath.V(0.5, 0, 0))
	assert.False(t, at.Inside(1))
	assert.True(t, math.IsInf(at.Distance, 1))
}

func TestBackface(t *testing.T) {
	nodes := []soft.Node{
		soft.NewNode(vmath.V(0, 0, -1), 1),
		soft.NewNode(vmath.V(1, 0, -1), 1),
		soft.NewNode(vmath.V(0, 1, -1), 1),
		soft.NewNode(vmath.V(1, 1, -1), 1),
	}
	up := vmath.V(0, 0, 1)

	assert.False(t, backface(0.01, up, vmath.Zero, nil, nodes))
	assert.True(t, backface(-0.01, up, vmath.Zero, nil, nodes))
	// three neighbours cannot outvote the node
	assert.False(t, backface(0.01, up, vmath.Zero, []int{0, 1, 2}, nodes))
	assert.True(t, backface(0.01, up, vmath.Zero, []int{0, 1, 2, 3}, nodes))
}

func TestRateLimiter_BackoffAndReset(t *testing.T) {
	var r RateLimiter
	assert.True(t, r.Due())

	r.Quiet()
	assert.Equal(t, 1, r.Skipping())
	assert.False(t, r.Due())
	assert.True(t, r.Due())

	r.Quiet()
	assert.Equal(t, 2, r.Skipping())

	for range 3 * MaxSkip {
		r.Quiet()
	}
	assert.Equal(t, MaxSkip, r.Skipping())

	r.Active()
	assert.Equal(t, 0, r.Skipping())
	assert.True(t, r.Due())
	r.Quiet()
	assert.Equal(t, 1, r.Skipping())
}

func TestContactable(t *testing.T) {
	n := soft.NewNode(vmath.Zero, 1)
	assert.True(t, Contactable(&n, false))
	assert.False(t, Contactable(&n, true))

	n.Flags = soft.FlagCab
	assert.True(t, Contactable(&n, true))
	n.Flags = soft.FlagWheel
	assert.True(t, Contactable(&n, true))

	n.Flags = soft.FlagContactless | soft.FlagCab
	assert.False(t, Contactable(&n, false))
	n.Flags = soft.FlagContactless | soft.FlagContacter
	assert.True(t, Contactable(&n, true))
}

func TestPointDetector_Query(t *testing.T) {
	a := &soft.Body{}
	a.AddNode(soft.NewNode(vmath.V(0, 0, 0), 1))
	a.AddNode(soft.NewNode(vmath.V(5, 0, 0), 1))
	b := &soft.Body{}
	b.AddNode(soft.NewNode(vmath.V(0.5, 0, 0), 1))
	b.Nodes[0].Vel = vmath.V(3, 4, 0)

	var d PointDetector
	d.Update([]Partner{{ID: 1, Body: a}, {ID: 2, Body: b}}, vmath.Zero)
	assert.Equal(t, 3, d.Len())
	assert.InDelta(t, 5, d.Speed(), 1e-12)

	box := vmath.AABB{Min: vmath.V(-0.1, -0.1, -0.1), Max: vmath.V(1, 0.1, 0.1)}
	hits := d.Query(box)
	assert.ElementsMatch(t, []Hit{{Partner: 0, Node: 0}, {Partner: 1, Node: 0}}, hits)

	assert.Empty(t, d.Query(vmath.AABB{Min: vmath.V(10, 10, 10), Max: vmath.V(11, 11, 11)}))
	assert.Empty(t, d.Query(vmath.EmptyAABB()))

	a.Nodes[0].Flags = soft.FlagContacter
	d.Update([]Partner{{ID: 1, Body: a, Internal: true}}, vmath.Zero)
	assert.Equal(t, 1, d.Len())
}

func TestNeighbours(t *testing.T) {
	b := &soft.Body{}
	for i := range 4 {
		b.AddNode(soft.NewNode(vmath.V(float64(i), 0, 0), 1))
	}
	b.AddBeam(soft.NewBeam(0, 1, 1))
	b.AddBeam(soft.NewBeam(1, 2, 1))
	inter := soft.NewBeam(3, -1, 1)
	inter.Inter = true
	b.AddBeam(inter)

	nb := Neighbours(b)
	require.Len(t, nb, 4)
	assert.Equal(t, []int{1}, nb[0])
	assert.ElementsMatch(t, []int{0, 2}, nb[1])
	assert.Empty(t, nb[3])
}

func TestIntra_PushesNodeOffTriangle(t *testing.T) {
	b, cabs := plate()
	hit := b.AddNode(soft.NewNode(vmath.V(0.25, 0.25, 0.01), 10))
	b.Nodes[hit].Flags = soft.FlagContacter
	b.Nodes[hit].Vel = vmath.V(0, 0, -1)

	c := NewCollider(cabs, 0)
	assert.Equal(t, soft.DefaultCollisionRange, c.Range)
	require.Equal(t, 1, c.Intra(b, dt))

	// reduced mass 5, approach 1 m/s, penetration 0.01
	want := (0.8 + 0.2*0.01/dt) * 5 / dt
	f := b.Nodes[hit].Force
	assert.InDelta(t, want, f.Z, 1e-6)
	assert.InDelta(t, 0, f.X, 1e-9)
	assert.InDelta(t, 0, f.Y, 1e-9)
	assert.InDelta(t, 0, totalForce(b).Len(), 1e-6)
	assert.InDelta(t, -want*0.5, b.Nodes[0].Force.Z, 1e-6)
}

func TestIntra_FromBehind(t *testing.T) {
	b, cabs := plate()
	hit := b.AddNode(soft.NewNode(vmath.V(0.25, 0.25, -0.01), 10))
	b.Nodes[hit].Flags = soft.FlagContacter
	b.Nodes[hit].Vel = vmath.V(0, 0, 1)

	c := NewCollider(cabs, 0)
	require.Equal(t, 1, c.Intra(b, dt))
	assert.Less(t, b.Nodes[hit].Force.Z, 0.0)
	assert.Greater(t, b.Nodes[0].Force.Z, 0.0)
}

func TestIntra_Skips(t *testing.T) {
	setup := func() (*soft.Body, *Collider, int) {
		b, cabs := plate()
		hit := b.AddNode(soft.NewNode(vmath.V(0.25, 0.25, 0.01), 10))
		b.Nodes[hit].Flags = soft.FlagContacter
		return b, NewCollider(cabs, 0), hit
	}

	t.Run("tyre", func(t *testing.T) {
		b, c, hit := setup()
		b.Nodes[hit].Flags |= soft.FlagTyre
		assert.Equal(t, 0, c.Intra(b, dt))
	})
	t.Run("adjacent", func(t *testing.T) {
		b, c, hit := setup()
		b.AddBeam(soft.NewBeam(1, hit, 1))
		assert.Equal(t, 0, c.Intra(b, dt))
	})
	t.Run("not a contacter", func(t *testing.T) {
		b, c, hit := setup()
		b.Nodes[hit].Flags = 0
		assert.Equal(t, 0, c.Intra(b, dt))
	})
	t.Run("disabled", func(t *testing.T) {
		b, c, _ := setup()
		c.DisableSelf = true
		assert.Equal(t, 0, c.Intra(b, dt))
	})
	t.Run("triangle nodes", func(t *testing.T) {
		b, c, hit := setup()
		b.Nodes[hit].Pos = vmath.V(5, 5, 5)
		for i := 0; i < 3; i++ {
			b.Nodes[i].Flags |= soft.FlagContacter
		}
		assert.Equal(t, 0, c.Intra(b, dt))
	})
}

func TestInter_ForceThroughSink(t *testing.T) {
	a, cabs := plate()
	b := &soft.Body{}
	b.AddNode(soft.NewNode(vmath.V(0.25, 0.25, 0.01), 10))
	b.Nodes[0].Vel = vmath.V(0, 0, -1)

	c := NewCollider(cabs, 0)
	s := forces{}
	partners := []Partner{{ID: 7, Body: b, Neighbours: Neighbours(b)}}
	require.Equal(t, 1, c.Inter(a, partners, dt, s))

	f := s[core.NodeRef{Vehicle: 7, Node: 0}]
	assert.Greater(t, f.Z, 0.0)
	assert.Equal(t, vmath.Zero, b.Nodes[0].Force)
	assert.InDelta(t, 0, totalForce(a).Add(f).Len(), 1e-6)

	c.DisableInter = true
	assert.Equal(t, 0, c.Inter(a, partners, dt, forces{}))
}

func TestInter_QuietTriangleBacksOff(t *testing.T) {
	a, cabs := plate()
	b := &soft.Body{}
	b.AddNode(soft.NewNode(vmath.V(50, 0, 0), 10))
	partners := []Partner{{ID: 2, Body: b}}

	c := NewCollider(cabs, 0)
	assert.Equal(t, 0, c.Inter(a, partners, dt, forces{}))
	assert.Equal(t, 1, c.interRate[0].Skipping())

	// a new partner set puts every triangle back on every tick
	partners = append(partners, Partner{ID: 3, Body: b})
	c.Inter(a, partners, dt, forces{})
	assert.Equal(t, 1, c.interRate[0].Skipping())

	c.Reset()
	assert.Equal(t, 0, c.interRate[0].Skipping())
}

// cube builds a unit cube of eight corners and two face centres with beams
// between every pair, and its twelve face triangles.
func cube(off vmath.Vec3, mass float64) (*soft.Body, [][3]int) {
	b := &soft.Body{}
	idx := func(x, y, z int) int { return y*4 + x*2 + z }
	for y := range 2 {
		for x := range 2 {
			for z := range 2 {
				b.AddNode(soft.NewNode(off.Add(vmath.V(float64(x), float64(y), float64(z))), mass))
			}
		}
	}
	b.AddNode(soft.NewNode(off.Add(vmath.V(0.5, 0, 0.5)), mass))
	b.AddNode(soft.NewNode(off.Add(vmath.V(0.5, 1, 0.5)), mass))
	for i := range b.Nodes {
		for j := i + 1; j < len(b.Nodes); j++ {
			bm := soft.NewBeam(i, j, b.Nodes[i].Pos.Dist(b.Nodes[j].Pos))
			bm.K, bm.D = 9e6, 12000
			bm.SetThresholds(1e12, 1e12)
			b.AddBeam(bm)
		}
	}
	var cabs [][3]int
	quad := func(n0, n1, n2, n3 int) { cabs = append(cabs, [3]int{n0, n1, n2}, [3]int{n0, n2, n3}) }
	for _, s := range []int{0, 1} {
		quad(idx(s, 0, 0), idx(s, 0, 1), idx(s, 1, 1), idx(s, 1, 0))
		quad(idx(0, 0, s), idx(1, 0, s), idx(1, 1, s), idx(0, 1, s))
		quad(idx(0, s, 0), idx(1, s, 0), idx(1, s, 1), idx(0, s, 1))
	}
	for _, cab := range cabs {
		for _, n := range cab {
			b.Nodes[n].Flags |= soft.FlagCab
		}
	}
	return b, cabs
}

func centroidX(b *soft.Body) float64 {
	x := 0.0
	for i := range b.Nodes {
		x += b.Nodes[i].Pos.X
	}
	return x / float64(len(b.Nodes))
}

func TestInter_HeadOn(t *testing.T) {
	a, cabsA := cube(vmath.Zero, 100)
	b, cabsB := cube(vmath.V(1.1, 0.1, 0.25), 100)
	for i := range a.Nodes {
		a.Nodes[i].Vel = vmath.V(10, 0, 0)
		b.Nodes[i].Vel = vmath.V(-10, 0, 0)
	}
	ca, cb := NewCollider(cabsA, 0), NewCollider(cabsB, 0)
	env := &soft.Env{DisableDrag: true}
	pa := []Partner{{ID: 2, Body: b, Neighbours: Neighbours(b), HasCabs: true}}
	pb := []Partner{{ID: 1, Body: a, Neighbours: Neighbours(a), HasCabs: true}}

	contacts := 0
	for range 600 {
		a.ResetForces(env, dt)
		b.ResetForces(env, dt)
		a.CalcBeams(dt)
		b.CalcBeams(dt)

		s := forces{}
		contacts += ca.Inter(a, pa, dt, s)
		contacts += cb.Inter(b, pb, dt, s)
		for ref, f := range s {
			body := a
			if ref.Vehicle == 2 {
				body = b
			}
			body.Nodes[ref.Node].Force = body.Nodes[ref.Node].Force.Add(f)
		}
		require.NoError(t, a.Integrate(dt))
		require.NoError(t, b.Integrate(dt))
	}

	assert.Positive(t, contacts)
	p := a.Momentum().Add(b.Momentum())
	assert.InDelta(t, 0, p.Len(), 1e-3)

	// the boxes bounced off each other and never passed through
	va := a.Momentum().Scale(1 / a.TotalMass())
	vb := b.Momentum().Scale(1 / b.TotalMass())
	assert.Less(t, va.X-vb.X, 0.0)
	assert.Less(t, centroidX(a)+1, centroidX(b))
}
