package soft

import "github.com/OCAP2/softbody/internal/vmath"

// TriggerHandler reacts to trigger beams. It is called from CalcBeams with
// the signed deviation of the beam from its rest length.
type TriggerHandler interface {
	Trigger(b *Body, beam int, diff, dt float64)
}

// Break records a beam that broke during a step.
type Break struct {
	Beam  int
	Force float64
}

// Body is the node and beam store of one vehicle. Indices are stable for
// the lifetime of the vehicle; dynamic beams are appended, never removed.
type Body struct {
	Nodes  []Node
	Beams  []Beam
	Shocks []Shock

	Triggers TriggerHandler

	// Breaks collects beams broken since the last DrainBreaks.
	Breaks []Break
	// Detached collects detacher groups released since the last DrainBreaks.
	Detached []int

	nodeBeams [][]int
}

// AddNode appends a node and returns its index.
func (b *Body) AddNode(n Node) int {
	b.Nodes = append(b.Nodes, n)
	b.nodeBeams = append(b.nodeBeams, nil)
	return len(b.Nodes) - 1
}

// AddBeam appends a beam and returns its index.
func (b *Body) AddBeam(bm Beam) int {
	b.Beams = append(b.Beams, bm)
	i := len(b.Beams) - 1
	b.link(i)
	return i
}

// AddShock appends a shock record and returns its index.
func (b *Body) AddShock(s Shock) int {
	b.Shocks = append(b.Shocks, s)
	return len(b.Shocks) - 1
}

// Reindex rebuilds the node to beam adjacency.
func (b *Body) Reindex() {
	b.nodeBeams = make([][]int, len(b.Nodes))
	for i := range b.Beams {
		b.link(i)
	}
}

func (b *Body) link(i int) {
	for len(b.nodeBeams) < len(b.Nodes) {
		b.nodeBeams = append(b.nodeBeams, nil)
	}
	bm := &b.Beams[i]
	if bm.P1 >= 0 && bm.P1 < len(b.Nodes) {
		b.nodeBeams[bm.P1] = append(b.nodeBeams[bm.P1], i)
	}
	if !bm.Inter && bm.P2 >= 0 && bm.P2 < len(b.Nodes) && bm.P2 != bm.P1 {
		b.nodeBeams[bm.P2] = append(b.nodeBeams[bm.P2], i)
	}
}

// NodeBeams returns the beams attached to node n.
func (b *Body) NodeBeams(n int) []int { return b.nodeBeams[n] }

// ActiveConnectedBeams counts live, unbounded beams at node n.
func (b *Body) ActiveConnectedBeams(n int) int {
	count := 0
	for _, i := range b.nodeBeams[n] {
		bm := &b.Beams[i]
		if bm.Active() && bm.Bounded == Regular {
			count++
		}
	}
	return count
}

// Adjacent reports whether a live beam joins nodes a and c.
func (b *Body) Adjacent(a, c int) bool {
	for _, i := range b.nodeBeams[a] {
		bm := &b.Beams[i]
		if !bm.Inter && (bm.P1 == c || bm.P2 == c) {
			return true
		}
	}
	return false
}

// TotalMass sums the mass of movable nodes.
func (b *Body) TotalMass() float64 {
	m := 0.0
	for i := range b.Nodes {
		if !b.Nodes[i].Has(FlagImmovable) {
			m += b.Nodes[i].Mass
		}
	}
	return m
}

// Momentum sums mass times velocity over movable nodes.
func (b *Body) Momentum() vmath.Vec3 {
	var p vmath.Vec3
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if !n.Has(FlagImmovable) {
			p = p.Add(n.Vel.Scale(n.Mass))
		}
	}
	return p
}

// Translate moves every node by d.
func (b *Body) Translate(d vmath.Vec3) {
	for i := range b.Nodes {
		b.Nodes[i].Pos = b.Nodes[i].Pos.Add(d)
	}
}

// DrainBreaks returns and clears the breaks and detached groups.
func (b *Body) DrainBreaks() ([]Break, []int) {
	br, dt := b.Breaks, b.Detached
	b.Breaks, b.Detached = nil, nil
	return br, dt
}
