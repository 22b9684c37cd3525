package lock

import (
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// RopeState is the lock state of a rope.
type RopeState int

const (
	RopeUnlocked RopeState = iota
	RopeLocked
)

// Rope is a fixed-length beam from Root to End. Locking glues End to a
// ropable: End follows the ropable node and hands its load over to it.
type Rope struct {
	Root  int
	End   int
	Beam  int
	Group int

	State  RopeState
	Target core.NodeRef

	ropable RopableRef
	snap    bool
	snapPos vmath.Vec3
	snapVel vmath.Vec3
}

// AddRope creates a rope beam between def.Root and def.End.
func (l *Locks) AddRope(body *soft.Body, def core.RopeDef) (int, error) {
	for _, n := range []int{def.Root, def.End} {
		if n < 0 || n >= len(body.Nodes) {
			return 0, l.nodeError("rope", n, len(body.Nodes))
		}
	}
	if def.Root == def.End {
		return 0, core.NewError(core.DefinitionInvalid, l.Vehicle, core.CodeBadBeam, "rope root and end are both node %d", def.Root)
	}
	bm := soft.NewBeam(def.Root, def.End, body.Nodes[def.Root].Pos.Dist(body.Nodes[def.End].Pos))
	bm.Type = soft.BeamRope
	bm.Bounded = soft.Rope
	r := Rope{
		Root:    def.Root,
		End:     def.End,
		Beam:    body.AddBeam(bm),
		Group:   orDefaultGroup(def.Group),
		Target:  core.NoNode,
		ropable: noRopable,
	}
	l.Ropes = append(l.Ropes, r)
	return len(l.Ropes) - 1, nil
}

// ToggleRopes unlocks locked ropes of group and locks free ones to the
// nearest ropable within rope length of the root.
func (l *Locks) ToggleRopes(body *soft.Body, peers []Peer, group int) {
	for i := range l.Ropes {
		r := &l.Ropes[i]
		if !groupMatches(group, r.Group) {
			continue
		}
		if r.State == RopeLocked {
			l.unlockRope(r, peers)
			continue
		}
		ref, target := l.nearestRopable(body, r.Root, body.Beams[r.Beam].L, peers, false, func(rp *Ropable) int { return rp.AttachedRopes })
		if !target.Valid() {
			continue
		}
		r.State = RopeLocked
		r.Target, r.ropable = target, ref
		if rp := ropable(peers, ref); rp != nil {
			rp.AttachedRopes++
		}
		l.emit(core.EventRopeLock, r.End, target)
	}
}

func (l *Locks) unlockRope(r *Rope, peers []Peer) {
	if rp := ropable(peers, r.ropable); rp != nil && rp.AttachedRopes > 0 {
		rp.AttachedRopes--
	}
	other := r.Target
	r.State = RopeUnlocked
	r.Target, r.ropable = core.NoNode, noRopable
	r.snap = false
	l.emit(core.EventRopeUnlock, r.End, other)
}

// updateRopes hands the load of every glued end node to its ropable and
// records where the end node must be placed before integration.
func (l *Locks) updateRopes(body *soft.Body, space Space) {
	for i := range l.Ropes {
		r := &l.Ropes[i]
		if r.State != RopeLocked {
			continue
		}
		pos, vel, ok := l.position(body, space, r.Target)
		if !ok {
			l.unlockRope(r, nil)
			continue
		}
		end := &body.Nodes[r.End]
		l.push(body, space, r.Target, end.Force)
		end.Force = vmath.Zero
		r.snap, r.snapPos, r.snapVel = true, pos, vel
	}
}

// SnapRopes moves glued end nodes onto their ropables. It runs in the post
// phase before integration.
func (l *Locks) SnapRopes(body *soft.Body) {
	for i := range l.Ropes {
		r := &l.Ropes[i]
		if !r.snap {
			continue
		}
		end := &body.Nodes[r.End]
		end.Pos, end.Vel = r.snapPos, r.snapVel
		r.snap = false
	}
}
