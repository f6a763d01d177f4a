package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Surface is a triangle mesh: a shared vertex array and index triples into
// it. It is read-only once built and safe for concurrent queries.
type Surface struct {
	vertices  []r3.Vec
	triangles [][3]int
}

// NewSurface copies the inputs and checks that every index is in range.
// A surface without triangles is accepted here; finders reject it.
func NewSurface(vertices []r3.Vec, triangles [][3]int) (*Surface, error) {
	for i, tri := range triangles {
		for _, idx := range tri {
			if idx < 0 || idx >= len(vertices) {
				return nil, fmt.Errorf("triangle %d references vertex %d of %d: %w", i, idx, len(vertices), ErrInvalidMesh)
			}
		}
	}
	s := &Surface{
		vertices:  make([]r3.Vec, len(vertices)),
		triangles: make([][3]int, len(triangles)),
	}
	copy(s.vertices, vertices)
	copy(s.triangles, triangles)
	return s, nil
}

// Len returns the number of triangles.
func (s *Surface) Len() int {
	if s == nil {
		return 0
	}
	return len(s.triangles)
}

// NumVertices returns the number of vertices.
func (s *Surface) NumVertices() int {
	if s == nil {
		return 0
	}
	return len(s.vertices)
}

// Triangle returns the corners of triangle i.
func (s *Surface) Triangle(i int) (p, q, r r3.Vec) {
	t := s.triangles[i]
	return s.vertices[t[0]], s.vertices[t[1]], s.vertices[t[2]]
}

// Indices returns the vertex indices of triangle i.
func (s *Surface) Indices(i int) [3]int {
	return s.triangles[i]
}

// Vertices returns a copy of the vertex array.
func (s *Surface) Vertices() []r3.Vec {
	out := make([]r3.Vec, len(s.vertices))
	copy(out, s.vertices)
	return out
}

// Bounds returns the bounding box of every vertex referenced by a triangle.
func (s *Surface) Bounds() BoundingBox {
	pts := make([]r3.Vec, 0, 3*s.Len())
	for i := 0; i < s.Len(); i++ {
		p, q, r := s.Triangle(i)
		pts = append(pts, p, q, r)
	}
	return NewBoundingBox(pts...)
}

func (s *Surface) requireTriangles() error {
	if s.Len() == 0 {
		return fmt.Errorf("surface has no triangles: %w", ErrInvalidMesh)
	}
	return nil
}
