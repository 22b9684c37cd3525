package soft

import "github.com/OCAP2/softbody/internal/vmath"

func step(b *Body, env *Env, dt float64) error {
	b.ResetForces(env, dt)
	b.CalcBeams(dt)
	b.GroundContact(env.Ground, dt)
	return b.Integrate(dt)
}

// cube builds the 10-node test cube: eight corners of a unit cube with its
// lowest face at y0, plus the centres of the bottom and top faces, joined
// by beams between every pair of nodes.
func cube(y0, k, d, mass float64) *Body {
	b := &Body{}
	for _, y := range []float64{0, 1} {
		for _, x := range []float64{0, 1} {
			for _, z := range []float64{0, 1} {
				b.AddNode(NewNode(vmath.V(x, y0+y, z), mass))
			}
		}
	}
	b.AddNode(NewNode(vmath.V(0.5, y0, 0.5), mass))
	b.AddNode(NewNode(vmath.V(0.5, y0+1, 0.5), mass))
	for i := 0; i < len(b.Nodes); i++ {
		for j := i + 1; j < len(b.Nodes); j++ {
			bm := NewBeam(i, j, b.Nodes[i].Pos.Dist(b.Nodes[j].Pos))
			bm.K, bm.D = k, d
			bm.SetThresholds(1e12, 1e12)
			b.AddBeam(bm)
		}
	}
	return b
}
