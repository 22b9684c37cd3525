package actuate

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

// DefaultRotatorForce is the rigidity used when a definition sets none.
const DefaultRotatorForce = 10000000.0

// Rotator turns the Rot plate against the Base plate about the Axis1-Axis2
// line. Plates are node quadruples whose opposite corners (k, k+2) move in
// opposite directions. Angle is in radians, Rate in radians per second.
type Rotator struct {
	Axis1, Axis2 int
	Base         [4]int
	Rot          [4]int

	Angle          float64
	Rate           float64
	Force          float64
	Tolerance      float64
	EngineCoupling float64
	NeedsEngine    bool
}

// ApplyForces pulls the plates toward the commanded angle.
func (r *Rotator) ApplyForces(nodes []soft.Node) {
	axis := nodes[r.Axis1].Pos.Sub(nodes[r.Axis2].Pos).Normalize()
	if axis.IsZero() {
		return
	}
	center := nodes[r.Axis2].Pos
	for k := 0; k < 2; k++ {
		ref1 := center.Sub(nodes[r.Base[k]].Pos).ProjectOnPlane(axis)
		ref2 := center.Sub(nodes[r.Rot[k]].Pos).ProjectOnPlane(axis)
		th1 := ref1.RotateAround(axis, r.Angle+math.Pi/2)

		aerror := math.Asin(vmath.Clamp(th1.Normalize().Dot(ref2.Normalize()), -1, 1))
		dir1 := ref1.Cross(axis).Normalize()
		dir2 := ref2.Cross(axis).Normalize()

		len1, len2 := ref1.Len(), ref2.Len()
		if len1 <= r.Tolerance {
			len1 = 0
		}
		if len2 <= r.Tolerance {
			len2 = 0
		}
		f1 := dir1.Scale(aerror * len1 * r.Force)
		f2 := dir2.Scale(aerror * len2 * r.Force)

		b0, b2 := &nodes[r.Base[k]], &nodes[r.Base[k+2]]
		r0, r2 := &nodes[r.Rot[k]], &nodes[r.Rot[k+2]]
		b0.Force = b0.Force.Add(f1)
		r0.Force = r0.Force.Sub(f2)
		b2.Force = b2.Force.Sub(f1)
		r2.Force = r2.Force.Add(f2)
	}
}
