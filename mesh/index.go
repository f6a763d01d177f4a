package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultNeighbors is the number of nearest centroids an IndexedFinder
// evaluates per query.
const DefaultNeighbors = 8

// IndexOption configures an IndexedFinder.
type IndexOption func(*IndexedFinder)

// WithNeighbors sets how many nearest centroids are evaluated. One
// reproduces plain nearest-centroid lookup. Values below one are ignored.
func WithNeighbors(k int) IndexOption {
	return func(f *IndexedFinder) {
		if k > 0 {
			f.neighbors = k
		}
	}
}

// WithExactSearch makes every query return the same distance as a brute
// force search. After the k-nearest pass, all centroids within the best
// distance plus the largest centroid-to-vertex radius are evaluated too.
func WithExactSearch() IndexOption {
	return func(f *IndexedFinder) {
		f.exact = true
	}
}

// IndexedFinder looks up candidate triangles through a KD-tree over the
// triangle centroids. The tree is built once and only read afterwards.
type IndexedFinder struct {
	surface   *Surface
	tree      *kdtree.Tree
	radius    float64
	neighbors int
	exact     bool
}

// NewIndexedFinder fails with ErrInvalidMesh for a surface without triangles.
func NewIndexedFinder(surface *Surface, opts ...IndexOption) (*IndexedFinder, error) {
	if err := surface.requireTriangles(); err != nil {
		return nil, err
	}
	f := &IndexedFinder{surface: surface, neighbors: DefaultNeighbors}
	for _, opt := range opts {
		opt(f)
	}

	pts := make(centroids, surface.Len())
	for i := range pts {
		p, q, r := surface.Triangle(i)
		c := TriangleCentroid(p, q, r)
		pts[i] = centroid{Vec: c, triangle: i}
		f.radius = math.Max(f.radius, math.Max(Distance(c, p), math.Max(Distance(c, q), Distance(c, r))))
	}
	f.tree = kdtree.New(pts, false)
	return f, nil
}

// Neighbors returns the configured neighbourhood size.
func (f *IndexedFinder) Neighbors() int {
	return f.neighbors
}

// Exact reports whether the finder was built WithExactSearch.
func (f *IndexedFinder) Exact() bool {
	return f.exact
}

// Query implements Finder.
func (f *IndexedFinder) Query(point r3.Vec) (Match, error) {
	if err := f.surface.requireTriangles(); err != nil {
		return Match{}, err
	}
	q := centroid{Vec: point, triangle: -1}

	best := Match{Distance: math.Inf(1), Triangle: -1}
	nk := kdtree.NewNKeeper(f.neighbors)
	f.tree.NearestSet(nk, q)
	best = f.evaluate(nk.Heap, point, best)

	if f.exact {
		// Any triangle whose centroid lies further than best+radius cannot
		// hold a point closer than best.
		reach := best.Distance + f.radius
		dk := kdtree.NewDistKeeper(reach * reach)
		f.tree.NearestSet(dk, q)
		best = f.evaluate(dk.Heap, point, best)
	}
	return best, nil
}

func (f *IndexedFinder) evaluate(heap kdtree.Heap, point r3.Vec, best Match) Match {
	for _, cd := range heap {
		// keepers hold a sentinel entry with a nil Comparable
		c, ok := cd.Comparable.(centroid)
		if !ok {
			continue
		}
		best = closerIndexedMatch(f.surface, c.triangle, point, best)
	}
	return best
}

// closerIndexedMatch is closerMatch with ties broken towards the lower
// triangle index, so results do not depend on heap order.
func closerIndexedMatch(s *Surface, i int, point r3.Vec, best Match) Match {
	p, q, r := s.Triangle(i)
	d, c := ClosestPointOnTriangle(p, q, r, point)
	if d < best.Distance || (d == best.Distance && i < best.Triangle) {
		return Match{Distance: d, Point: c, Triangle: i}
	}
	return best
}

// centroid is a kdtree.Comparable carrying the owning triangle index.
type centroid struct {
	r3.Vec
	triangle int
}

func (c centroid) coord(d kdtree.Dim) float64 {
	switch d {
	case 0:
		return c.X
	case 1:
		return c.Y
	}
	return c.Z
}

// Compare implements kdtree.Comparable.
func (c centroid) Compare(other kdtree.Comparable, d kdtree.Dim) float64 {
	return c.coord(d) - other.(centroid).coord(d)
}

// Dims implements kdtree.Comparable.
func (c centroid) Dims() int { return 3 }

// Distance implements kdtree.Comparable. It is the squared distance.
func (c centroid) Distance(other kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(c.Vec, other.(centroid).Vec))
}

// centroids is a kdtree.Interface.
type centroids []centroid

func (c centroids) Index(i int) kdtree.Comparable { return c[i] }
func (c centroids) Len() int                      { return len(c) }
func (c centroids) Slice(start, end int) kdtree.Interface {
	return c[start:end]
}
func (c centroids) Pivot(d kdtree.Dim) int {
	return plane{centroids: c, Dim: d}.Pivot()
}

// plane sorts centroids along one dimension for kdtree partitioning.
type plane struct {
	kdtree.Dim
	centroids
}

func (p plane) Less(i, j int) bool {
	return p.centroids[i].coord(p.Dim) < p.centroids[j].coord(p.Dim)
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.centroids = p.centroids[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}
