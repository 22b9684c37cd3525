package soft

import "github.com/OCAP2/softbody/internal/vmath"

func progression(diff, bound, l float64) float64 {
	if bound == 0 {
		return 1
	}
	f := diff / (bound * l)
	return min(f*f, 1)
}

// shocks2 computes the progressive in/out spring and damping.
func (b *Body) shocks2(bm *Beam, diff, v float64) (float64, float64) {
	s := &b.Shocks[bm.Shock]
	var k, d float64
	if v > 0 {
		k, d = s.SpringOut, s.DampOut
		f := progression(diff, bm.LongBound, bm.L)
		k += s.ProgSpringOut * k * f
		d += s.ProgDampOut * d * f
	} else {
		k, d = s.SpringIn, s.DampIn
		f := progression(diff, bm.ShortBound, bm.L)
		k += s.ProgSpringIn * k * f
		d += s.ProgDampIn * d * f
	}

	outside := diff > bm.LongBound*bm.L || diff < -bm.ShortBound*bm.L
	if !s.SoftBump {
		if outside {
			k, d = s.SbdSpring, s.SbdDamp
		}
		return k, d
	}

	pre := bm.L * 0.8
	longPre := bm.LongBound * pre
	shortPre := -bm.ShortBound * pre
	switch {
	case diff > longPre:
		k, d = s.SpringOut, s.DampOut
		f := progression(diff, bm.LongBound, bm.L)
		k += s.ProgSpringOut * k * f
		d += s.ProgDampOut * d * f
		f = 1.0
		if bm.LongBound != 0 {
			f = (diff - longPre) * 5 / (bm.LongBound * bm.L)
			f = min(f*f, 1)
		}
		k += (k + 100) * s.ProgSpringOut * f
		d += (d + 100) * s.ProgDampOut * f
		if v < 0 {
			k, d = s.SpringIn, s.DampIn
		}
	case diff < shortPre:
		k, d = s.SpringIn, s.DampIn
		f := progression(diff, bm.ShortBound, bm.L)
		k += s.ProgSpringIn * k * f
		d += s.ProgDampIn * d * f
		f = 1.0
		if bm.ShortBound != 0 {
			f = (diff - shortPre) * 5 / (bm.ShortBound * bm.L)
			f = min(f*f, 1)
		}
		k += (k + 100) * s.ProgSpringOut * f
		d += (d + 100) * s.ProgDampOut * f
		if v > 0 {
			k, d = s.SpringOut, s.DampOut
		}
	}
	if outside {
		k = max(k, s.SbdSpring)
		d = max(d, s.SbdDamp)
	}
	return k, d
}

// shocks3 computes the split slow/fast damping variant.
func (b *Body) shocks3(bm *Beam, diff, k, d, v float64) (float64, float64) {
	s := &b.Shocks[bm.Shock]
	switch {
	case diff > bm.LongBound*bm.L:
		r := diff - bm.LongBound*bm.L
		k += (s.SbdSpring - k) * r
		d += (s.SbdDamp - d) * r
	case diff < -bm.ShortBound*bm.L:
		r := -diff - bm.ShortBound*bm.L
		k += (s.SbdSpring - k) * r
		d += (s.SbdDamp - d) * r
	case v > 0:
		av := vmath.Clamp(v, 0.15, 20)
		k = s.SpringOut
		d = (s.DampOut*s.DampOutSlow*min(av, s.SplitOut) + s.DampOut*s.DampOutFast*max(0, av-s.SplitOut)) / av
	case v < 0:
		av := vmath.Clamp(-v, 0.15, 20)
		k = s.SpringIn
		d = (s.DampIn*s.DampInSlow*min(av, s.SplitIn) + s.DampIn*s.DampInFast*max(0, av-s.SplitIn)) / av
	}
	return k, d
}
