package soft

import (
	"math"

	"github.com/OCAP2/softbody/internal/vmath"
)

// CalcBeams applies the forces of all active local beams. Beams are visited
// in stored order; forces on a shared node accumulate additively.
func (b *Body) CalcBeams(dt float64) {
	for i := range b.Beams {
		bm := &b.Beams[i]
		if !bm.Active() || bm.Inter {
			continue
		}
		p1, p2 := &b.Nodes[bm.P1], &b.Nodes[bm.P2]
		f := b.beamForce(i, p1.Pos, p2.Pos, p1.Vel, p2.Vel, dt, p2.Has(FlagCab))
		p1.Force = p1.Force.Add(f)
		p2.Force = p2.Force.Sub(f)
	}
}

// CalcInterBeam computes beam i whose far end lives on another vehicle at
// position rp with velocity rv. The force on the local node is applied; the
// reaction for the remote node is returned.
func (b *Body) CalcInterBeam(i int, rp, rv vmath.Vec3, dt float64) vmath.Vec3 {
	bm := &b.Beams[i]
	if !bm.Active() || !bm.Inter {
		return vmath.Zero
	}
	p1 := &b.Nodes[bm.P1]
	f := b.beamForce(i, p1.Pos, rp, p1.Vel, rv, dt, false)
	p1.Force = p1.Force.Add(f)
	return f.Neg()
}

// beamForce returns the force on P1 of beam i; P2 receives the opposite.
func (b *Body) beamForce(i int, x1, x2, v1, v2 vmath.Vec3, dt float64, p2Cab bool) vmath.Vec3 {
	bm := &b.Beams[i]
	dis := x1.Sub(x2)
	length := dis.Len()
	if length < 1e-9 {
		bm.Len = length
		bm.Stress = 0
		return vmath.Zero
	}
	inv := 1 / length
	bm.Len = length

	diff := length - bm.L
	k, d := bm.K, bm.D
	v := v1.Sub(v2).Dot(dis) * inv

	switch bm.Bounded {
	case Shock1:
		interp := 0.0
		if diff > bm.LongBound*bm.L {
			interp = diff - bm.LongBound*bm.L
		} else if diff < -bm.ShortBound*bm.L {
			interp = -diff - bm.ShortBound*bm.L
		}
		if interp != 0 {
			ts, td := DefaultSpring, DefaultDamp
			if bm.Type == BeamHydro && bm.Shock >= 0 {
				ts, td = b.Shocks[bm.Shock].SbdSpring, b.Shocks[bm.Shock].SbdDamp
			}
			k += (ts - k) * interp
			d += (td - d) * interp
		}
	case Trigger:
		if b.Triggers != nil {
			b.Triggers.Trigger(b, i, diff, dt)
		}
	case Shock2:
		k, d = b.shocks2(bm, diff, v)
	case Shock3:
		k, d = b.shocks3(bm, diff, k, d, v)
	case SupportBeam:
		if diff > 0 {
			k = 0
			d *= 0.1
			limit := SupportBeamLimit
			if bm.LongBound > 0 {
				limit = bm.LongBound
			}
			if diff > bm.L*limit {
				bm.Broken = true
				bm.Disabled = true
				b.Breaks = append(b.Breaks, Break{Beam: i})
				bm.Stress = 0
				return vmath.Zero
			}
		}
	case Rope:
		if diff < 0 {
			k = 0
			d *= 0.1
		}
	}

	slen := -k*diff - d*v
	bm.Stress = slen

	mag := math.Abs(slen)
	if mag > bm.MinMaxPosNegStress {
		if bm.Type.Deformable() && bm.Bounded != Shock1 && k != 0 {
			mag, slen = bm.deform(diff, k, slen)
		}
		if mag > bm.Strength {
			if b.breakAllowed(bm, p2Cab) {
				slen = 0
				b.breakBeam(i, mag)
			} else {
				bm.Strength = 2 * bm.MinMaxPosNegStress
			}
		}
	}
	return dis.Scale(slen * inv)
}

// deform applies plastic deformation and returns the adjusted stress
// magnitude and signed stress.
func (bm *Beam) deform(diff, k, slen float64) (float64, float64) {
	mag := math.Abs(slen)
	switch {
	case slen > bm.MaxPosStress && diff < 0:
		yield := bm.MaxPosStress / k
		deform := diff + yield*(1-bm.Plastic)
		old := bm.L
		bm.L = math.Max(MinBeamLength, bm.L+deform)
		slen -= (slen - bm.MaxPosStress) * 0.5
		mag = slen
		if bm.L > 0 && old > bm.L {
			bm.MaxPosStress *= old / bm.L
			bm.updateMinMax()
		}
	case slen < bm.MaxNegStress && diff > 0:
		yield := bm.MaxNegStress / k
		deform := diff + yield*(1-bm.Plastic)
		old := bm.L
		bm.L += deform
		slen -= (slen - bm.MaxNegStress) * 0.5
		mag = -slen
		if old > 0 && bm.L > old {
			bm.MaxNegStress *= bm.L / old
			bm.updateMinMax()
		}
		bm.Strength -= deform * k
	}
	return mag, slen
}

// breakAllowed protects cab triangles: a beam at a cab node with fewer than
// three live beams holds.
func (b *Body) breakAllowed(bm *Beam, p2Cab bool) bool {
	if b.Nodes[bm.P1].Has(FlagCab) && b.ActiveConnectedBeams(bm.P1) < 3 {
		return false
	}
	if !bm.Inter && p2Cab && b.ActiveConnectedBeams(bm.P2) < 3 {
		return false
	}
	return true
}

// breakBeam breaks beam i and, for a master detacher beam, its whole group.
func (b *Body) breakBeam(i int, force float64) {
	bm := &b.Beams[i]
	bm.Broken = true
	bm.Disabled = true
	b.Breaks = append(b.Breaks, Break{Beam: i, Force: force})
	g := bm.DetacherGroup
	if g <= 0 {
		return
	}
	for j := range b.Beams {
		o := &b.Beams[j]
		if j == i || o.Broken {
			continue
		}
		if o.DetacherGroup == g || o.DetacherGroup == -g {
			o.Broken = true
			o.Disabled = true
			b.Breaks = append(b.Breaks, Break{Beam: j})
		}
	}
	b.Detached = append(b.Detached, g)
}
