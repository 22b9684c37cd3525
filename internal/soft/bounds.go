package soft

import "github.com/OCAP2/softbody/internal/vmath"

// Bounds holds the exact box of a body, the box predicted one horizon
// ahead, and the lowest node.
type Bounds struct {
	Exact     vmath.AABB
	Predicted vmath.AABB
	Lowest    int
}

// UpdateBounds recomputes bb. The predicted box is the exact box merged with
// every node advanced by its velocity over horizon, padded by pad.
func (b *Body) UpdateBounds(bb *Bounds, horizon, pad float64) {
	exact := vmath.EmptyAABB()
	ahead := vmath.EmptyAABB()
	lowest := -1
	for i := range b.Nodes {
		n := &b.Nodes[i]
		exact = exact.Extend(n.Pos)
		ahead = ahead.Extend(n.Pos.Add(n.Vel.Scale(horizon)))
		if lowest < 0 || n.Pos.Y < b.Nodes[lowest].Pos.Y {
			lowest = i
		}
	}
	bb.Exact = exact
	bb.Predicted = exact.Merge(ahead).Pad(pad)
	bb.Lowest = lowest
}
