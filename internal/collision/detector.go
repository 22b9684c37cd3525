package collision

import (
	"github.com/OCAP2/softbody/internal/soft"
	"github.com/OCAP2/softbody/internal/vmath"
	"github.com/OCAP2/softbody/pkg/core"

	"github.com/dhconnelly/rtreego"
)

const (
	treeMinChildren = 25
	treeMaxChildren = 50
	// pointTol is the half size of the box a node occupies in the index.
	pointTol = 1e-6
)

// Partner is a vehicle whose nodes a detector indexes.
type Partner struct {
	ID   core.VehicleID
	Body *soft.Body
	// Neighbours lists the nodes joined to each node by a beam.
	Neighbours [][]int
	// HasCabs is set when the vehicle has collision triangles; it decides
	// which nodes are contactable.
	HasCabs bool
	// Internal indexes contacter nodes only, for self-collision.
	Internal bool
}

// Hit is a node found by a query.
type Hit struct {
	Partner int
	Node    int
}

type indexed struct {
	hit Hit
	pos vmath.Vec3
}

func (p *indexed) Bounds() rtreego.Rect {
	return rtreego.Point{p.pos.X, p.pos.Y, p.pos.Z}.ToRect(pointTol)
}

// PointDetector is an r-tree over the contactable nodes of a set of
// partners. It is rebuilt every tick from current positions.
type PointDetector struct {
	Partners []Partner

	tree     *rtreego.Rtree
	points   []indexed
	spatials []rtreego.Spatial
	speed    float64
}

// Contactable reports whether n takes part in collisions. Contacters always
// do; other nodes do when they sit on a collision triangle or a rim, or
// when the vehicle has no collision triangles at all.
func Contactable(n *soft.Node, hasCabs bool) bool {
	if n.Has(soft.FlagContacter) {
		return true
	}
	if n.Has(soft.FlagContactless) {
		return false
	}
	return n.Has(soft.FlagCab) || n.Has(soft.FlagWheel) || !hasCabs
}

// Update reindexes partners. ref is the velocity the detector measures node
// speeds against.
func (d *PointDetector) Update(partners []Partner, ref vmath.Vec3) {
	d.Partners = partners
	d.points = d.points[:0]
	d.speed = 0
	for pi := range partners {
		p := &partners[pi]
		for ni := range p.Body.Nodes {
			n := &p.Body.Nodes[ni]
			if p.Internal && !n.Has(soft.FlagContacter) {
				continue
			}
			if !p.Internal && !Contactable(n, p.HasCabs) {
				continue
			}
			d.points = append(d.points, indexed{hit: Hit{Partner: pi, Node: ni}, pos: n.Pos})
			d.speed = max(d.speed, n.Vel.Sub(ref).Len())
		}
	}
	d.spatials = d.spatials[:0]
	for i := range d.points {
		d.spatials = append(d.spatials, &d.points[i])
	}
	d.tree = rtreego.NewTree(3, treeMinChildren, treeMaxChildren, d.spatials...)
}

// Len returns the number of indexed nodes.
func (d *PointDetector) Len() int { return len(d.points) }

// Speed returns the fastest indexed node speed relative to the reference
// velocity of the last Update.
func (d *PointDetector) Speed() float64 { return d.speed }

// Query returns the indexed nodes inside box.
func (d *PointDetector) Query(box vmath.AABB) []Hit {
	if d.tree == nil || len(d.points) == 0 || box.IsEmpty() {
		return nil
	}
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{box.Min.X, box.Min.Y, box.Min.Z},
		rtreego.Point{box.Max.X, box.Max.Y, box.Max.Z},
	)
	if err != nil {
		return nil
	}
	found := d.tree.SearchIntersect(rect)
	hits := make([]Hit, 0, len(found))
	for _, s := range found {
		hits = append(hits, s.(*indexed).hit)
	}
	return hits
}

// Neighbours lists, for every node of b, the nodes it shares a local beam
// with.
func Neighbours(b *soft.Body) [][]int {
	out := make([][]int, len(b.Nodes))
	for i := range b.Beams {
		bm := &b.Beams[i]
		if bm.Inter || bm.P1 == bm.P2 {
			continue
		}
		if bm.P1 < 0 || bm.P1 >= len(b.Nodes) || bm.P2 < 0 || bm.P2 >= len(b.Nodes) {
			continue
		}
		out[bm.P1] = append(out[bm.P1], bm.P2)
		out[bm.P2] = append(out[bm.P2], bm.P1)
	}
	return out
}
