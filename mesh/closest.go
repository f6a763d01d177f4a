package mesh

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Match is the result of a closest-point query.
type Match struct {
	Distance float64 `json:"distance"`
	Point    r3.Vec  `json:"point"`
	Triangle int     `json:"triangle"`
}

// Finder answers closest-point queries against one surface. Implementations
// are safe for concurrent use.
type Finder interface {
	Query(point r3.Vec) (Match, error)
}

// SearchStrategy names a Finder implementation.
type SearchStrategy string

const (
	// StrategyBrute checks every triangle.
	StrategyBrute SearchStrategy = "brute"
	// StrategyIndexed checks the triangles of the k nearest centroids. It is
	// an approximation: a larger triangle further away can own the true
	// closest point.
	StrategyIndexed SearchStrategy = "indexed"
	// StrategyExact uses the centroid index with a radius wide enough to be exact.
	StrategyExact SearchStrategy = "exact"
	// StrategyBoxed checks every triangle but skips those whose bounding box
	// is further than the best distance so far.
	StrategyBoxed SearchStrategy = "boxed"
)

// ParseSearchStrategy maps a config string onto a SearchStrategy.
// An empty string selects StrategyIndexed.
func ParseSearchStrategy(s string) (SearchStrategy, error) {
	switch st := SearchStrategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyIndexed, nil
	case StrategyBrute, StrategyIndexed, StrategyExact, StrategyBoxed:
		return st, nil
	}
	return "", fmt.Errorf("search strategy %q: %w", s, ErrUnknownStrategy)
}

// NewFinder builds the Finder for strategy. neighbors only applies to
// StrategyIndexed and falls back to DefaultNeighbors when not positive.
func NewFinder(strategy SearchStrategy, surface *Surface, neighbors int) (Finder, error) {
	switch strategy {
	case StrategyBrute:
		return NewBruteForceFinder(surface)
	case StrategyIndexed, "":
		return NewIndexedFinder(surface, WithNeighbors(neighbors))
	case StrategyExact:
		return NewIndexedFinder(surface, WithExactSearch())
	case StrategyBoxed:
		return NewBoxedFinder(surface)
	}
	return nil, fmt.Errorf("search strategy %q: %w", strategy, ErrUnknownStrategy)
}

// BruteForceFinder evaluates every triangle and keeps the running minimum.
type BruteForceFinder struct {
	surface *Surface
}

// NewBruteForceFinder fails with ErrInvalidMesh for a surface without triangles.
func NewBruteForceFinder(surface *Surface) (*BruteForceFinder, error) {
	if err := surface.requireTriangles(); err != nil {
		return nil, err
	}
	return &BruteForceFinder{surface: surface}, nil
}

// Query implements Finder.
func (f *BruteForceFinder) Query(point r3.Vec) (Match, error) {
	if err := f.surface.requireTriangles(); err != nil {
		return Match{}, err
	}
	best := Match{Distance: math.Inf(1), Triangle: -1}
	for i := 0; i < f.surface.Len(); i++ {
		best = closerMatch(f.surface, i, point, best)
	}
	return best, nil
}

// BoxedFinder is an exact linear search that prunes triangles with a
// precomputed bounding box per triangle.
type BoxedFinder struct {
	surface *Surface
	boxes   []BoundingBox
}

// NewBoxedFinder fails with ErrInvalidMesh for a surface without triangles.
func NewBoxedFinder(surface *Surface) (*BoxedFinder, error) {
	if err := surface.requireTriangles(); err != nil {
		return nil, err
	}
	boxes := make([]BoundingBox, surface.Len())
	for i := range boxes {
		p, q, r := surface.Triangle(i)
		boxes[i] = NewBoundingBox(p, q, r)
	}
	return &BoxedFinder{surface: surface, boxes: boxes}, nil
}

// Query implements Finder.
func (f *BoxedFinder) Query(point r3.Vec) (Match, error) {
	if err := f.surface.requireTriangles(); err != nil {
		return Match{}, err
	}
	best := Match{Distance: math.Inf(1), Triangle: -1}
	for i, box := range f.boxes {
		if box.Distance(point) > best.Distance {
			continue
		}
		best = closerMatch(f.surface, i, point, best)
	}
	return best, nil
}

// closerMatch evaluates triangle i and returns it if strictly closer than best.
func closerMatch(s *Surface, i int, point r3.Vec, best Match) Match {
	p, q, r := s.Triangle(i)
	d, c := ClosestPointOnTriangle(p, q, r, point)
	if d < best.Distance {
		return Match{Distance: d, Point: c, Triangle: i}
	}
	return best
}

// QueryAll runs finder over points in parallel. Results keep input order.
func QueryAll(ctx context.Context, finder Finder, points []r3.Vec) ([]Match, error) {
	out := make([]Match, len(points))
	err := forEach(ctx, len(points), func(i int) error {
		m, err := finder.Query(points[i])
		if err != nil {
			return fmt.Errorf("query point %d: %w", i, err)
		}
		out[i] = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompareFinders queries both finders at every point and returns the
// fraction of points whose distances agree within tol.
func CompareFinders(ctx context.Context, reference, candidate Finder, points []r3.Vec, tol float64) (float64, error) {
	if len(points) == 0 {
		return 0, fmt.Errorf("compare finders: %w", ErrEmptyCloud)
	}
	want, err := QueryAll(ctx, reference, points)
	if err != nil {
		return 0, fmt.Errorf("reference finder: %w", err)
	}
	got, err := QueryAll(ctx, candidate, points)
	if err != nil {
		return 0, fmt.Errorf("candidate finder: %w", err)
	}
	agree := 0
	for i := range want {
		if math.Abs(want[i].Distance-got[i].Distance) <= tol {
			agree++
		}
	}
	return float64(agree) / float64(len(points)), nil
}
