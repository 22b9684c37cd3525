// Package lock implements the joints a vehicle makes at run time: hooks,
// ties, ropes and slide nodes. Each joint owns a beam of the vehicle body;
// locking points that beam at a node of another vehicle (or the same one).
//
// Toggles run between ticks and may scan every vehicle. Per-step updates run
// in the inter-vehicle phase: they read peer positions, which are stable
// there, and route forces on peer nodes through Space.
package lock

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// Peer is a vehicle visible to lock scans.
type Peer struct {
	ID       core.VehicleID
	Body     *soft.Body
	Locks    *Locks
	Sleeping bool
}

// Space reads and pushes nodes of other vehicles during the inter phase.
type Space interface {
	// Node returns the position and velocity of ref, ok false when the
	// vehicle is gone.
	Node(ref core.NodeRef) (pos, vel vmath.Vec3, ok bool)
	// AddForce queues f on ref; it is applied before the owner integrates.
	AddForce(ref core.NodeRef, f vmath.Vec3)
}

// Locks holds the joints of one vehicle.
type Locks struct {
	Vehicle core.VehicleID

	Hooks      []Hook
	Ties       []Tie
	Ropes      []Rope
	Ropables   []Ropable
	Rails      []RailGroup
	SlideNodes []SlideNode
	// SlidesLocked is flipped by ToggleSlideNodes.
	SlidesLocked bool

	events []core.Event
}

// NewLocks returns an empty joint set for vehicle id.
func NewLocks(id core.VehicleID) *Locks {
	return &Locks{Vehicle: id}
}

// DrainEvents returns and clears the lock events raised since the last call.
func (l *Locks) DrainEvents() []core.Event {
	ev := l.events
	l.events = nil
	return ev
}

func (l *Locks) emit(kind core.EventKind, node int, other core.NodeRef) {
	ev := core.NewEvent(kind, l.Vehicle)
	ev.Node = node
	ev.Other = other
	l.events = append(l.events, ev)
}

func (l *Locks) nodeError(what string, n, count int) error {
	return core.NewError(core.DefinitionInvalid, l.Vehicle, core.CodeBadNodeRef, "%s node %d out of range [0, %d)", what, n, count)
}

// parkBeam points a joint beam back at the vehicle's own anchor node and
// disables it.
func parkBeam(body *soft.Body, i int) {
	bm := &body.Beams[i]
	local := !bm.Inter && bm.P2 != anchorFor(bm.P1)
	bm.Inter = false
	bm.Remote = core.NoNode
	bm.P2 = anchorFor(bm.P1)
	bm.L = body.Nodes[bm.P1].Pos.Dist(body.Nodes[bm.P2].Pos)
	bm.Disabled = true
	bm.Stress = 0
	if local {
		body.Reindex()
	}
}

// attachBeam points joint beam i at ref. Beams to the own vehicle become
// local beams.
func (l *Locks) attachBeam(body *soft.Body, i int, ref core.NodeRef) {
	bm := &body.Beams[i]
	bm.Restore()
	if ref.Vehicle == l.Vehicle {
		bm.Inter = false
		bm.Remote = core.NoNode
		bm.P2 = ref.Node
		body.Reindex()
		return
	}
	bm.Inter = true
	bm.Remote = ref
}

func anchorFor(n int) int {
	if n == 0 {
		return 1
	}
	return 0
}

// newJointBeam appends a disabled joint beam rooted at node.
func newJointBeam(body *soft.Body, node int, typ soft.BeamType, length float64) int {
	bm := soft.NewBeam(node, anchorFor(node), length)
	bm.Type = typ
	bm.Bounded = soft.Rope
	bm.Disabled = true
	return body.AddBeam(bm)
}

// position resolves ref against the own body or through space.
func (l *Locks) position(body *soft.Body, space Space, ref core.NodeRef) (vmath.Vec3, vmath.Vec3, bool) {
	if ref.Vehicle == l.Vehicle {
		if ref.Node < 0 || ref.Node >= len(body.Nodes) {
			return vmath.Zero, vmath.Zero, false
		}
		n := &body.Nodes[ref.Node]
		return n.Pos, n.Vel, true
	}
	if space == nil {
		return vmath.Zero, vmath.Zero, false
	}
	return space.Node(ref)
}

func (l *Locks) push(body *soft.Body, space Space, ref core.NodeRef, f vmath.Vec3) {
	if ref.Vehicle == l.Vehicle {
		n := &body.Nodes[ref.Node]
		n.Force = n.Force.Add(f)
		return
	}
	if space != nil {
		space.AddForce(ref, f)
	}
}

// Update runs one step of every joint. It belongs to the inter phase.
func (l *Locks) Update(dt float64, body *soft.Body, space Space) {
	l.updateHooks(dt, body, space)
	l.updateTies(dt, body)
	l.updateRopes(body, space)
	l.updateSlideNodes(dt, body, space)
}

// Release drops every joint that points at vehicle id. The registry calls
// it on all remaining vehicles when id is removed.
func (l *Locks) Release(id core.VehicleID, body *soft.Body) {
	for i := range l.Hooks {
		h := &l.Hooks[i]
		if h.State != HookUnlocked && h.Target.Vehicle == id {
			l.unlockHook(h, body, true)
		}
	}
	for i := range l.Ties {
		t := &l.Ties[i]
		if t.Tied && t.Target.Vehicle == id {
			l.untie(t, body, nil)
		}
	}
	for i := range l.Ropes {
		r := &l.Ropes[i]
		if r.State == RopeLocked && r.Target.Vehicle == id {
			l.unlockRope(r, nil)
		}
	}
	for i := range l.SlideNodes {
		s := &l.SlideNodes[i]
		if s.rail != nil && s.rail.Vehicle == id {
			l.detachSlide(s)
		}
	}
}

// Towed lists the other vehicles held by a locked hook or a tied tie, each
// once.
func (l *Locks) Towed() []core.VehicleID {
	var out []core.VehicleID
	add := func(id core.VehicleID) {
		if id == l.Vehicle || id == core.NoVehicle {
			return
		}
		for _, o := range out {
			if o == id {
				return
			}
		}
		out = append(out, id)
	}
	for i := range l.Hooks {
		if h := &l.Hooks[i]; h.State == HookLocked {
			add(h.Target.Vehicle)
		}
	}
	for i := range l.Ties {
		if t := &l.Ties[i]; t.Tied {
			add(t.Target.Vehicle)
		}
	}
	return out
}

// Reset unlocks everything and parks every joint beam.
func (l *Locks) Reset(body *soft.Body, peers []Peer) {
	for i := range l.Hooks {
		h := &l.Hooks[i]
		if h.State != HookUnlocked {
			l.unlockHook(h, body, false)
		}
		h.State = HookUnlocked
		h.Timer = 0
	}
	for i := range l.Ties {
		if l.Ties[i].Tied {
			l.untie(&l.Ties[i], body, peers)
		}
	}
	for i := range l.Ropes {
		if l.Ropes[i].State == RopeLocked {
			l.unlockRope(&l.Ropes[i], peers)
		}
	}
	for i := range l.SlideNodes {
		s := &l.SlideNodes[i]
		s.broken = false
		s.attachTo(s.origin)
	}
	l.SlidesLocked = false
}

// ropable resolves a ropable reference among peers.
func ropable(peers []Peer, ref RopableRef) *Ropable {
	for _, p := range peers {
		if p.ID == ref.Vehicle && p.Locks != nil && ref.Index >= 0 && ref.Index < len(p.Locks.Ropables) {
			return &p.Locks.Ropables[ref.Index]
		}
	}
	return nil
}

// groupMatches applies the tie and rope selection rule: -1 on either side
// matches everything.
func groupMatches(group, own int) bool {
	return group == -1 || own == -1 || own == group
}

var inf = math.Inf(1)
