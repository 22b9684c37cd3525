package registry

import (
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"
)

// space gives the inter phase access to the nodes of every vehicle. Reads
// see positions that no worker writes until the post phase; forces go to
// the owner's inbox. Vehicles that diverged earlier in the tick are out of
// reach.
type space struct {
	byID map[core.VehicleID]*entry
}

func (s *space) lookup(id core.VehicleID) (*entry, bool) {
	e, ok := s.byID[id]
	if !ok || e.deleting || e.v.State() == core.StateInvalid {
		return nil, false
	}
	return e, true
}

func (s *space) Node(ref core.NodeRef) (vmath.Vec3, vmath.Vec3, bool) {
	e, ok := s.lookup(ref.Vehicle)
	if !ok {
		return vmath.Zero, vmath.Zero, false
	}
	nodes := e.v.Body.Nodes
	if ref.Node < 0 || ref.Node >= len(nodes) {
		return vmath.Zero, vmath.Zero, false
	}
	n := &nodes[ref.Node]
	return n.Pos, n.Vel, true
}

func (s *space) AddForce(ref core.NodeRef, f vmath.Vec3) {
	if e, ok := s.lookup(ref.Vehicle); ok {
		e.v.Deliver(ref.Node, f)
	}
}
