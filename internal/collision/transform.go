// Package collision resolves contacts between the collision triangles of a
// vehicle and nodes, its own (intra) or those of other vehicles (inter).
package collision

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

// TriangleCoord is a point in the frame of a triangle: barycentric weights
// of its projection onto the plane and its signed distance from the plane.
type TriangleCoord struct {
	Alpha, Beta, Gamma float64
	Distance           float64
}

// Inside reports whether the projection lies in the triangle and the point
// is within margin of the plane.
func (c TriangleCoord) Inside(margin float64) bool {
	return c.Alpha >= 0 && c.Beta >= 0 && c.Gamma >= 0 && math.Abs(c.Distance) <= margin
}

// Transform maps cartesian points into the frame of triangle (a, b, c).
// Alpha weighs a, Beta weighs b and Gamma weighs c.
type Transform struct {
	c, u, v, n  vmath.Vec3
	uu, uv, vv  float64
	invDet      float64
	degenerated bool
}

// NewTransform builds the transform of triangle (a, b, c). The normal is
// (a-c)×(b-c). ok is false for a degenerate triangle.
func NewTransform(a, b, c vmath.Vec3) (Transform, bool) {
	t := Transform{c: c, u: a.Sub(c), v: b.Sub(c)}
	t.uu, t.uv, t.vv = t.u.Dot(t.u), t.u.Dot(t.v), t.v.Dot(t.v)
	det := t.uu*t.vv - t.uv*t.uv
	if det <= 1e-12*t.uu*t.vv || det == 0 {
		t.degenerated = true
		return t, false
	}
	t.invDet = 1 / det
	t.n = t.u.Cross(t.v).Normalize()
	return t, true
}

// Normal returns the unit normal of the triangle.
func (t Transform) Normal() vmath.Vec3 { return t.n }

// Apply transforms p.
func (t Transform) Apply(p vmath.Vec3) TriangleCoord {
	if t.degenerated {
		return TriangleCoord{Alpha: -1, Beta: -1, Gamma: -1, Distance: math.Inf(1)}
	}
	w := p.Sub(t.c)
	wu, wv := w.Dot(t.u), w.Dot(t.v)
	alpha := (t.vv*wu - t.uv*wv) * t.invDet
	beta := (t.uu*wv - t.uv*wu) * t.invDet
	return TriangleCoord{
		Alpha:    alpha,
		Beta:     beta,
		Gamma:    1 - alpha - beta,
		Distance: t.n.Dot(w),
	}
}

// backface guesses whether a hit node approaches the triangle from behind.
// The node votes three times with the side it is on; its neighbours vote
// once each when there are enough of them to outvote it.
func backface(distance float64, normal, surface vmath.Vec3, neighbours []int, nodes []soft.Node) bool {
	const weight = 3
	side := func(x float64) int {
		if x >= 0 {
			return 1
		}
		return -1
	}
	face := weight * side(distance)
	if len(neighbours) > weight {
		for _, id := range neighbours {
			face += side(normal.Dot(nodes[id].Pos.Sub(surface)))
		}
	}
	return face < 0
}
