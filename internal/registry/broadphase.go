package registry

import (
	"slices"

	"github.com/OCAP2/softbody/internal/vmath"

	"github.com/dhconnelly/rtreego"
)

type boxItem struct {
	idx  int
	rect rtreego.Rect
}

func (b *boxItem) Bounds() rtreego.Rect { return b.rect }

// overlapping returns the index pairs i < j whose boxes intersect. Empty
// boxes take no part.
func overlapping(boxes []vmath.AABB) [][2]int {
	store := make([]boxItem, len(boxes))
	items := make([]rtreego.Spatial, 0, len(boxes))
	for i, b := range boxes {
		if b.IsEmpty() {
			continue
		}
		r, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min.X, b.Min.Y, b.Min.Z},
			rtreego.Point{b.Max.X, b.Max.Y, b.Max.Z},
		)
		if err != nil {
			continue
		}
		store[i] = boxItem{idx: i, rect: r}
		items = append(items, &store[i])
	}
	if len(items) < 2 {
		return nil
	}
	tree := rtreego.NewTree(3, 2, 8, items...)
	var pairs [][2]int
	for _, it := range items {
		a := it.(*boxItem)
		for _, hit := range tree.SearchIntersect(a.rect) {
			b := hit.(*boxItem)
			if b.idx <= a.idx || !boxes[a.idx].Intersects(boxes[b.idx]) {
				continue
			}
			pairs = append(pairs, [2]int{a.idx, b.idx})
		}
	}
	slices.SortFunc(pairs, func(x, y [2]int) int {
		if x[0] != y[0] {
			return x[0] - y[0]
		}
		return x[1] - y[1]
	})
	return pairs
}
