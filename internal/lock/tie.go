package lock

import (
	"math"

	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/pkg/core"
)

// Ropable is a passive attachment point for ties and ropes.
type Ropable struct {
	Node      int
	Group     int
	Multilock bool

	AttachedTies  int
	AttachedRopes int
}

// RopableRef addresses a ropable across vehicles.
type RopableRef struct {
	Vehicle core.VehicleID
	Index   int
}

var noRopable = RopableRef{Vehicle: core.NoVehicle, Index: -1}

// AddRopable marks a node as an attachment point.
func (l *Locks) AddRopable(body *soft.Body, def core.RopableDef) (int, error) {
	if def.Node < 0 || def.Node >= len(body.Nodes) {
		return 0, l.nodeError("ropable", def.Node, len(body.Nodes))
	}
	l.Ropables = append(l.Ropables, Ropable{Node: def.Node, Group: orDefaultGroup(def.Group), Multilock: def.Multilock})
	return len(l.Ropables) - 1, nil
}

// nearestRopable finds the closest free ropable to node within reach.
func (l *Locks) nearestRopable(body *soft.Body, node int, reach float64, peers []Peer, skipSelf bool, used func(*Ropable) int) (RopableRef, core.NodeRef) {
	origin := body.Nodes[node].Pos
	best := reach
	ref, target := noRopable, core.NoNode
	for _, p := range peers {
		if p.Sleeping || p.Locks == nil || p.Body == nil {
			continue
		}
		self := p.ID == l.Vehicle
		if self && skipSelf {
			continue
		}
		for i := range p.Locks.Ropables {
			r := &p.Locks.Ropables[i]
			if !r.Multilock && used(r) > 0 {
				continue
			}
			if self && r.Node == node {
				continue
			}
			if d := origin.Dist(p.Body.Nodes[r.Node].Pos); d < best {
				best = d
				ref = RopableRef{Vehicle: p.ID, Index: i}
				target = core.NodeRef{Vehicle: p.ID, Node: r.Node}
			}
		}
	}
	return ref, target
}

// Tie is a beam that reaches out to the nearest ropable and contracts
// toward MinLength once tied.
type Tie struct {
	Node  int
	Beam  int
	Group int

	// Rate is the contraction speed in m/s.
	Rate float64
	// MinLength is the contraction limit as a ratio of the reach.
	MinLength  float64
	MaxStress  float64
	NoSelfLock bool

	Tied   bool
	Tying  bool
	Target core.NodeRef

	ropable RopableRef
}

// AddTie creates a tie and its parked beam on body.
func (l *Locks) AddTie(body *soft.Body, def core.TieDef) (int, error) {
	if def.Node < 0 || def.Node >= len(body.Nodes) || len(body.Nodes) < 2 {
		return 0, l.nodeError("tie", def.Node, len(body.Nodes))
	}
	if def.MaxReach <= 0 {
		return 0, core.NewError(core.DefinitionInvalid, l.Vehicle, core.CodeBadBeam, "tie at node %d needs a positive reach", def.Node)
	}
	t := Tie{
		Node:       def.Node,
		Group:      orDefaultGroup(def.Group),
		Rate:       def.Rate,
		MinLength:  def.ShortBound,
		MaxStress:  def.MaxStress,
		NoSelfLock: def.NoSelfLock,
		Target:     core.NoNode,
		ropable:    noRopable,
	}
	if t.MaxStress == 0 {
		t.MaxStress = math.Inf(1)
	}
	t.Beam = newJointBeam(body, def.Node, soft.BeamTie, def.MaxReach)
	l.Ties = append(l.Ties, t)
	return len(l.Ties) - 1, nil
}

// ToggleTies unties every tied tie of group; when none was tied it ties
// each free one to the nearest ropable within reach. group -1 selects all.
func (l *Locks) ToggleTies(body *soft.Body, peers []Peer, group int) {
	wasTied := false
	for i := range l.Ties {
		t := &l.Ties[i]
		if !groupMatches(group, t.Group) || !t.Tied {
			continue
		}
		wasTied = !body.Beams[t.Beam].Disabled
		l.untie(t, body, peers)
	}
	if wasTied {
		return
	}
	for i := range l.Ties {
		t := &l.Ties[i]
		if !groupMatches(group, t.Group) || t.Tied {
			continue
		}
		bm := &body.Beams[t.Beam]
		ref, target := l.nearestRopable(body, t.Node, bm.RefL, peers, t.NoSelfLock, func(r *Ropable) int { return r.AttachedTies })
		if !target.Valid() {
			continue
		}
		l.attachBeam(body, t.Beam, target)
		bm.L = bm.RefL
		t.Tied, t.Tying = true, true
		t.Target, t.ropable = target, ref
		if r := ropable(peers, ref); r != nil {
			r.AttachedTies++
		}
		l.emit(core.EventTieLock, t.Node, target)
	}
}

func (l *Locks) untie(t *Tie, body *soft.Body, peers []Peer) {
	if r := ropable(peers, t.ropable); r != nil && r.AttachedTies > 0 {
		r.AttachedTies--
	}
	other := t.Target
	t.Tied, t.Tying = false, false
	t.Target, t.ropable = core.NoNode, noRopable
	parkBeam(body, t.Beam)
	body.Beams[t.Beam].L = body.Beams[t.Beam].RefL
	l.emit(core.EventTieUnlock, t.Node, other)
}

func (l *Locks) updateTies(dt float64, body *soft.Body) {
	for i := range l.Ties {
		t := &l.Ties[i]
		if !t.Tying {
			continue
		}
		bm := &body.Beams[t.Beam]
		if bm.RefL == 0 || bm.L == 0 {
			continue
		}
		if bm.L/bm.RefL > t.MinLength {
			bm.L = math.Max(bm.L-t.Rate*dt, t.MinLength*bm.RefL)
		} else {
			t.Tying = false
		}
		if math.Abs(bm.Stress) > t.MaxStress {
			t.Tying = false
		}
	}
}
