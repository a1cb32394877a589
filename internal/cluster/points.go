package cluster

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// point is an embedding row that remembers its index.
type point struct {
	idx int
	v   []float64
}

var _ kdtree.Comparable = point{}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.v[d] - c.(point).v[d]
}

func (p point) Dims() int { return len(p.v) }

// Distance returns the squared Euclidean distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point).v
	var s float64
	for i, x := range p.v {
		d := x - q[i]
		s += d * d
	}
	return s
}

type points []point

var _ kdtree.Interface = points(nil)

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{points: p, dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	points
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.points[i].v[p.dim] < p.points[j].v[p.dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], dim: p.dim}
}
func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// neighbour is a query hit.
type neighbour struct {
	idx  int
	dist float64 // squared
}

// index answers neighbour queries over a fixed point set.
type index struct {
	tree *kdtree.Tree
	pts  []point
}

func newIndex(rows [][]float64) *index {
	pts := make([]point, len(rows))
	for i, r := range rows {
		pts[i] = point{idx: i, v: r}
	}
	// The tree reorders its input, so it gets its own slice.
	work := make(points, len(pts))
	copy(work, pts)
	return &index{tree: kdtree.New(work, false), pts: pts}
}

// nearest returns the k nearest neighbours of point i, itself excluded, closest
// first. Equal distances are ordered by index.
func (x *index) nearest(i, k int) []neighbour {
	keep := kdtree.NewNKeeper(k + 1)
	x.tree.NearestSet(keep, x.pts[i])
	out := collect(keep.Heap, i)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// within returns every point whose squared distance to point i is at most r2,
// itself excluded, closest first.
func (x *index) within(i int, r2 float64) []neighbour {
	keep := kdtree.NewDistKeeper(r2)
	x.tree.NearestSet(keep, x.pts[i])
	return collect(keep.Heap, i)
}

func collect(h kdtree.Heap, self int) []neighbour {
	out := make([]neighbour, 0, len(h))
	for _, cd := range h {
		if cd.Comparable == nil {
			continue
		}
		p := cd.Comparable.(point)
		if p.idx == self {
			continue
		}
		out = append(out, neighbour{idx: p.idx, dist: cd.Dist})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].dist != out[b].dist {
			return out[a].dist < out[b].dist
		}
		return out[a].idx < out[b].idx
	})
	return out
}
