// Package marine applies water forces: pressure-prism buoyancy on cabin
// triangles and screw propellers.
package marine

import (
	"fmt"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
)

// Mode selects which water forces a buoyant triangle receives.
type Mode int

const (
	Normal Mode = iota
	DragOnly
	Dragless
)

// ParseMode maps a cab definition mode to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "normal":
		return Normal, nil
	case "drag_only":
		return DragOnly, nil
	case "dragless":
		return Dragless, nil
	}
	return 0, fmt.Errorf("unknown buoyancy mode %q", s)
}

const (
	// waterPressure is rho·g of water; prism heights are scaled by it so the
	// prism volume reads directly as a force.
	waterPressure = 9810.0
	waterDrag     = 500.0
	splashMin     = 1.5
	splashDepth   = 0.1
)

// HintKind tags an effect hint for the scene sink.
type HintKind int

const (
	Splash HintKind = iota
	Ripple
)

// Hint asks the host to spawn a water effect.
type Hint struct {
	Kind HintKind
	Pos  vmath.Vec3
	Dir  vmath.Vec3
}

// WaterProbe reports the water surface height.
type WaterProbe interface {
	WaterLevelAt(x, z float64) float64
}

// Buoyancy integrates water pressure and drag over triangles.
type Buoyancy struct {
	Water WaterProbe
	// Sink disables the pressure force, keeping drag.
	Sink bool
	// CollectHints enables splash hints for this step.
	CollectHints bool
	Hints        []Hint
}

func (b *Buoyancy) level(p vmath.Vec3) float64 { return b.Water.WaterLevelAt(p.X, p.Z) }

func tetraVolume(o, a, bb, c vmath.Vec3) float64 {
	return a.Sub(o).Dot(bb.Sub(o).Cross(c.Sub(o))) / 6
}

// pressureSub returns the force on a fully submerged triangle.
func (b *Buoyancy) pressureSub(a, bb, c, vel vmath.Vec3, mode Mode) vmath.Vec3 {
	normal, surf := bb.Sub(a).Cross(c.Sub(a)).NormLen()
	if surf < 0.00001 {
		return vmath.Zero
	}
	surf /= 2

	var vol float64
	if mode != DragOnly {
		ap := a.Add(normal.Scale((b.level(a) - a.Y) * waterPressure))
		bp := bb.Add(normal.Scale((b.level(bb) - bb.Y) * waterPressure))
		cp := c.Add(normal.Scale((b.level(c) - c.Y) * waterPressure))
		ctd := a.Add(bb).Add(c).Add(ap).Add(bp).Add(cp).Scale(1.0 / 6)
		vol += tetraVolume(ctd, a, bb, c)
		vol += tetraVolume(ctd, a, ap, bp)
		vol += tetraVolume(ctd, a, bp, bb)
		vol += tetraVolume(ctd, bb, bp, cp)
		vol += tetraVolume(ctd, bb, cp, c)
		vol += tetraVolume(ctd, c, cp, ap)
		vol += tetraVolume(ctd, c, ap, a)
		vol += tetraVolume(ctd, ap, cp, bp)
	}

	drag := vmath.Zero
	if mode != Dragless {
		if vn, vl := vel.NormLen(); vl > 0.01 {
			d := normal.Dot(vn)
			cos := d
			if cos < 0 {
				cos = -cos
			}
			drag = normal.Scale(-waterDrag * surf * vl * vl * cos)
			if d < 0 {
				drag = drag.Neg()
			}
			if b.CollectHints {
				b.splash(a, bb, c, normal, vl*cos*surf)
			}
		}
	}
	if b.Sink {
		return drag
	}
	return normal.Scale(vol).Add(drag)
}

func (b *Buoyancy) splash(a, bb, c, normal vmath.Vec3, push float64) {
	if push <= splashMin {
		return
	}
	dir := normal.Scale(push)
	if dir.Y < 0 {
		dir.Y = -dir.Y
	}
	for _, p := range []vmath.Vec3{a, bb, c} {
		if b.level(p)-p.Y < splashDepth {
			b.Hints = append(b.Hints, Hint{Kind: Splash, Pos: p, Dir: dir})
			return
		}
	}
}

// pressure clips the triangle at the water line and returns the force on
// its submerged part.
func (b *Buoyancy) pressure(a, bb, c, vel vmath.Vec3, mode Mode) vmath.Vec3 {
	wh := b.level(a.Add(bb).Add(c).Scale(1.0 / 3))
	au, bu, cu := a.Y > wh, bb.Y > wh, c.Y > wh
	if au && bu && cu {
		return vmath.Zero
	}
	if !au && !bu && !cu {
		return b.pressureSub(a, bb, c, vel, mode)
	}
	cut := func(p, q vmath.Vec3) vmath.Vec3 {
		return p.Add(q.Sub(p).Scale((wh - p.Y) / (q.Y - p.Y)))
	}
	switch {
	// One vertex under.
	case !au && bu && cu:
		return b.pressureSub(a, cut(a, bb), cut(a, c), vel, mode)
	case !bu && cu && au:
		return b.pressureSub(bb, cut(bb, c), cut(bb, a), vel, mode)
	case !cu && au && bu:
		return b.pressureSub(c, cut(c, a), cut(c, bb), vel, mode)
	// Two vertices under.
	case au && !bu && !cu:
		tb, tc := cut(a, bb), cut(a, c)
		return b.pressureSub(tb, bb, tc, vel, mode).Add(b.pressureSub(tc, bb, c, vel, mode))
	case bu && !cu && !au:
		tc, ta := cut(bb, c), cut(bb, a)
		return b.pressureSub(tc, c, ta, vel, mode).Add(b.pressureSub(ta, c, a, vel, mode))
	case cu && !au && !bu:
		ta, tb := cut(c, a), cut(c, bb)
		return b.pressureSub(ta, a, tb, vel, mode).Add(b.pressureSub(tb, a, bb, vel, mode))
	}
	return vmath.Zero
}

// ApplyTriangle adds water forces for the cab triangle (ia, ib, ic). The
// triangle is split at its centroid and edge midpoints so each node
// receives the forces of the area around it. Triangles must wind
// counter-clockwise seen from outside the hull.
func (b *Buoyancy) ApplyTriangle(nodes []soft.Node, ia, ib, ic int, mode Mode) {
	na, nb, nc := &nodes[ia], &nodes[ib], &nodes[ic]
	a, bb, c := na.Pos, nb.Pos, nc.Pos
	if a.Y > b.level(a) && bb.Y > b.level(bb) && c.Y > b.level(c) {
		return
	}
	m := a.Add(bb).Add(c).Scale(1.0 / 3)
	mab, mbc, mca := a.Mid(bb), bb.Mid(c), c.Mid(a)
	vel := na.Vel.Add(nb.Vel).Add(nc.Vel).Scale(1.0 / 3)

	na.Force = na.Force.Add(b.pressure(a, mab, m, vel, mode)).Add(b.pressure(a, m, mca, vel, mode))
	nb.Force = nb.Force.Add(b.pressure(bb, mbc, m, vel, mode)).Add(b.pressure(bb, m, mab, vel, mode))
	nc.Force = nc.Force.Add(b.pressure(c, mca, m, vel, mode)).Add(b.pressure(c, m, mbc, vel, mode))
}

// DrainHints returns and clears the collected hints.
func (b *Buoyancy) DrainHints() []Hint {
	h := b.Hints
	b.Hints = nil
	return h
}
