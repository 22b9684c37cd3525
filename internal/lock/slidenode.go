package lock

import (
	"fmt"
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// Slide node defaults.
const (
	SlideSpringDefault     = 9000000.0
	SlideAttachRateDefault = 1.0
	SlideAttachDistDefault = 0.1
)

// RailGroup is a chain of beams a slide node can travel along.
type RailGroup struct {
	ID int
	// Segments holds the node pair of each rail beam, in chain order.
	Segments [][2]int
	Beams    []int
	Loop     bool
}

// AddRail builds a rail through nodes; consecutive nodes must share a beam.
// A rail whose last node is its first loops.
func (l *Locks) AddRail(body *soft.Body, def core.RailDef) (int, error) {
	rg, err := l.buildRail(body, def.ID, def.Nodes)
	if err != nil {
		return 0, err
	}
	l.Rails = append(l.Rails, rg)
	return len(l.Rails) - 1, nil
}

func (l *Locks) buildRail(body *soft.Body, id int, nodes []int) (RailGroup, error) {
	if len(nodes) < 2 {
		return RailGroup{}, core.NewError(core.DefinitionInvalid, l.Vehicle, core.CodeBadBeam, "rail %d needs at least two nodes", id)
	}
	rg := RailGroup{ID: id, Loop: len(nodes) > 2 && nodes[0] == nodes[len(nodes)-1]}
	for i := 0; i+1 < len(nodes); i++ {
		a, b := nodes[i], nodes[i+1]
		for _, n := range []int{a, b} {
			if n < 0 || n >= len(body.Nodes) {
				return RailGroup{}, l.nodeError("rail", n, len(body.Nodes))
			}
		}
		beam := -1
		for _, bi := range body.NodeBeams(a) {
			bm := &body.Beams[bi]
			if !bm.Inter && ((bm.P1 == a && bm.P2 == b) || (bm.P1 == b && bm.P2 == a)) {
				beam = bi
				break
			}
		}
		if beam < 0 {
			return RailGroup{}, core.NewError(core.DefinitionInvalid, l.Vehicle, core.CodeBadBeam, "rail %d: no beam between nodes %d and %d", id, a, b)
		}
		rg.Segments = append(rg.Segments, [2]int{a, b})
		rg.Beams = append(rg.Beams, beam)
	}
	return rg, nil
}

// SlideConstraint selects which rails a slide node may attach to.
type SlideConstraint uint8

const (
	AttachSelf SlideConstraint = 1 << iota
	AttachForeign
)

const (
	AttachNone SlideConstraint = 0
	AttachAll  SlideConstraint = AttachSelf | AttachForeign
)

// ParseSlideConstraint resolves all, self, foreign or none; "" is none.
func ParseSlideConstraint(s string) (SlideConstraint, error) {
	switch s {
	case "", "none":
		return AttachNone, nil
	case "self":
		return AttachSelf, nil
	case "foreign":
		return AttachForeign, nil
	case "all":
		return AttachAll, nil
	}
	return 0, fmt.Errorf("unknown slide node constraint %q", s)
}

// railRef is the rail a slide node is bound to, copied from its owner so
// the step never touches another vehicle's joint state.
type railRef struct {
	Vehicle core.VehicleID
	ID      int
	segs    [][2]int
	beams   []int
	loop    bool
}

func newRailRef(vehicle core.VehicleID, rg *RailGroup) *railRef {
	return &railRef{Vehicle: vehicle, ID: rg.ID, segs: rg.Segments, beams: rg.Beams, loop: rg.Loop}
}

// SlideNode holds a node onto a rail with a spring toward the nearest point
// on the current rail segment.
type SlideNode struct {
	Node           int
	Spring         float64
	BreakForce     float64
	Tolerance      float64
	AttachRate     float64
	AttachDistance float64
	Constraint     SlideConstraint

	origin    *railRef
	rail      *railRef
	seg       int
	ratio     float64
	ideal     vmath.Vec3
	threshold float64
	attaching bool
	broken    bool
}

// Attached reports whether the node is bound to a rail and not broken off.
func (s *SlideNode) Attached() bool { return s.rail != nil && !s.broken }

// Rail returns the vehicle and id of the current rail.
func (s *SlideNode) Rail() (core.VehicleID, int, bool) {
	if s.rail == nil {
		return core.NoVehicle, 0, false
	}
	return s.rail.Vehicle, s.rail.ID, true
}

// Ideal returns the last projection of the node onto its rail.
func (s *SlideNode) Ideal() vmath.Vec3 { return s.ideal }

func (s *SlideNode) attachTo(r *railRef) {
	s.rail = r
	s.seg = -1
	s.attaching = r != nil
}

// AddSlideNode binds a node to its rail group, or to a rail built from
// def.Rails when no group is named.
func (l *Locks) AddSlideNode(body *soft.Body, def core.SlideNodeDef) (int, error) {
	if def.Node < 0 || def.Node >= len(body.Nodes) {
		return 0, l.nodeError("slide", def.Node, len(body.Nodes))
	}
	c, err := ParseSlideConstraint(def.Constraint)
	if err != nil {
		return 0, core.NewError(core.DefinitionInvalid, l.Vehicle, core.CodeBadBeam, "slide node %d: %v", def.Node, err)
	}
	s := SlideNode{
		Node:           def.Node,
		Spring:         orDefault(def.Spring, SlideSpringDefault),
		BreakForce:     orDefault(def.BreakForce, math.Inf(1)),
		Tolerance:      math.Abs(def.Tolerance),
		AttachRate:     SlideAttachRateDefault,
		AttachDistance: orDefault(def.AttachDistance, SlideAttachDistDefault),
		Constraint:     c,
		seg:            -1,
	}
	switch {
	case def.RailGroup != 0:
		for i := range l.Rails {
			if l.Rails[i].ID == def.RailGroup {
				s.origin = newRailRef(l.Vehicle, &l.Rails[i])
				break
			}
		}
		if s.origin == nil {
			return 0, core.NewError(core.DefinitionInvalid, l.Vehicle, core.CodeBadBeam, "slide node %d: unknown rail group %d", def.Node, def.RailGroup)
		}
	case len(def.Rails) > 0:
		rg, err := l.buildRail(body, 0, def.Rails)
		if err != nil {
			return 0, err
		}
		l.Rails = append(l.Rails, rg)
		s.origin = newRailRef(l.Vehicle, &l.Rails[len(l.Rails)-1])
	}
	s.attachTo(s.origin)
	l.SlideNodes = append(l.SlideNodes, s)
	return len(l.SlideNodes) - 1, nil
}

// nearestOnSegment projects p onto segment a-b and returns the point and
// its ratio along the segment.
func nearestOnSegment(a, b, p vmath.Vec3) (vmath.Vec3, float64) {
	dir, length := b.Sub(a).NormLen()
	if length == 0 {
		return a, 0
	}
	along := vmath.Clamp(p.Sub(a).Dot(dir), 0, length)
	return a.Add(dir.Scale(along)), along / length
}

// railDistance is the distance from p to the nearest segment of rg.
func railDistance(nodes []soft.Node, rg *RailGroup, p vmath.Vec3) float64 {
	best := inf
	for _, sg := range rg.Segments {
		q, _ := nearestOnSegment(nodes[sg[0]].Pos, nodes[sg[1]].Pos, p)
		best = math.Min(best, q.Dist(p))
	}
	return best
}

// ToggleSlideNodes detaches every slide node when they are locked, and
// otherwise attaches each to the nearest permitted rail within its attach
// distance.
func (l *Locks) ToggleSlideNodes(body *soft.Body, peers []Peer) {
	for i := range l.SlideNodes {
		s := &l.SlideNodes[i]
		if s.Constraint == AttachNone {
			continue
		}
		if l.SlidesLocked {
			l.detachSlide(s)
			continue
		}
		p := body.Nodes[s.Node].Pos
		best := s.AttachDistance
		var found *railRef
		for _, peer := range peers {
			if peer.Locks == nil || peer.Body == nil {
				continue
			}
			self := peer.ID == l.Vehicle
			if (self && s.Constraint&AttachSelf == 0) || (!self && s.Constraint&AttachForeign == 0) {
				continue
			}
			for gi := range peer.Locks.Rails {
				rg := &peer.Locks.Rails[gi]
				if d := railDistance(peer.Body.Nodes, rg, p); d < best {
					best = d
					found = newRailRef(peer.ID, rg)
				}
			}
		}
		if found == nil {
			l.detachSlide(s)
			continue
		}
		s.broken = false
		s.attachTo(found)
		l.emit(core.EventSlideAttach, s.Node, core.NodeRef{Vehicle: found.Vehicle, Node: found.segs[0][0]})
	}
	l.SlidesLocked = !l.SlidesLocked
}

func (l *Locks) detachSlide(s *SlideNode) {
	if s.rail == nil {
		return
	}
	other := core.NodeRef{Vehicle: s.rail.Vehicle, Node: s.rail.segs[0][0]}
	s.attachTo(nil)
	l.emit(core.EventSlideDetach, s.Node, other)
}

func (l *Locks) updateSlideNodes(dt float64, body *soft.Body, space Space) {
	for i := range l.SlideNodes {
		s := &l.SlideNodes[i]
		if s.rail == nil || s.broken {
			continue
		}
		if !l.slide(s, dt, body, space) {
			l.detachSlide(s)
		}
	}
}

// slide applies one step of the rail spring; false when the rail is gone.
func (l *Locks) slide(s *SlideNode, dt float64, body *soft.Body, space Space) bool {
	r := s.rail
	node := &body.Nodes[s.Node]
	ends := func(k int) (core.NodeRef, core.NodeRef, vmath.Vec3, vmath.Vec3, bool) {
		a := core.NodeRef{Vehicle: r.Vehicle, Node: r.segs[k][0]}
		b := core.NodeRef{Vehicle: r.Vehicle, Node: r.segs[k][1]}
		pa, _, okA := l.position(body, space, a)
		pb, _, okB := l.position(body, space, b)
		return a, b, pa, pb, okA && okB
	}
	dist := func(k int) float64 {
		_, _, pa, pb, ok := ends(k)
		if !ok {
			return inf
		}
		q, _ := nearestOnSegment(pa, pb, node.Pos)
		return q.Dist(node.Pos)
	}

	n := len(r.segs)
	if s.seg < 0 {
		best := inf
		for k := 0; k < n; k++ {
			if d := dist(k); d < best {
				best, s.seg = d, k
			}
		}
		if s.seg < 0 {
			return false
		}
		if s.attaching {
			s.threshold = math.Max(s.Tolerance, best)
			s.attaching = false
		}
	} else {
		s.seg = closestSegment(s.seg, n, r.loop, dist)
	}

	if r.Vehicle == l.Vehicle && body.Beams[r.beams[s.seg]].Broken {
		return true
	}
	a, b, pa, pb, ok := ends(s.seg)
	if !ok {
		return false
	}
	s.ideal, s.ratio = nearestOnSegment(pa, pb, node.Pos)

	if s.threshold > s.Tolerance {
		s.threshold = math.Max(s.Tolerance, s.threshold-s.AttachRate*dt)
	}
	dir, gap := s.ideal.Sub(node.Pos).NormLen()
	stretch := math.Max(0, gap-s.threshold)
	f := dir.Scale(s.Spring * stretch)
	if f.Len() > s.BreakForce {
		s.broken = true
		l.emit(core.EventSlideDetach, s.Node, a)
		return true
	}
	node.Force = node.Force.Add(f)
	l.push(body, space, a, f.Scale(-(1 - s.ratio)))
	l.push(body, space, b, f.Scale(-s.ratio))
	return true
}

// closestSegment moves from seg to a neighbour when the neighbour is nearer.
func closestSegment(seg, n int, loop bool, dist func(int) float64) int {
	neighbour := func(k int) int {
		if k < 0 || k >= n {
			if !loop {
				return -1
			}
			return (k + n) % n
		}
		return k
	}
	cur := dist(seg)
	prev, next := neighbour(seg-1), neighbour(seg+1)
	dPrev, dNext := inf, inf
	if prev >= 0 {
		dPrev = dist(prev)
	}
	if next >= 0 {
		dNext = dist(next)
	}
	if cur > dPrev || cur > dNext {
		if dPrev < dNext {
			return prev
		}
		return next
	}
	return seg
}
