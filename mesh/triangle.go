package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// degenerateTolerance is the relative size of the barycentric denominator,
// compared to ‖q−p‖²·‖r−p‖², below which a triangle is treated as having no area.
const degenerateTolerance = 1e-12

// ClosestPointOnTriangle returns the point of the closed triangle (p, q, r)
// nearest to a, and its distance.
//
// The projection of a onto the triangle plane is expressed with barycentric
// weights u (on q), v (on r) and w = 1−u−v (on p). When all three are
// non-negative the projection is the answer; otherwise the best clamped
// projection onto the three edges is. A zero-area triangle yields its
// nearest vertex.
func ClosestPointOnTriangle(p, q, r, a r3.Vec) (float64, r3.Vec) {
	pq := r3.Sub(q, p)
	pr := r3.Sub(r, p)
	pa := r3.Sub(a, p)

	d00 := r3.Dot(pq, pq)
	d01 := r3.Dot(pq, pr)
	d11 := r3.Dot(pr, pr)
	d20 := r3.Dot(pa, pq)
	d21 := r3.Dot(pa, pr)
	denom := d00*d11 - d01*d01

	if denom <= degenerateTolerance*d00*d11 {
		return nearestVertex(a, p, q, r)
	}

	u := (d11*d20 - d01*d21) / denom
	v := (d00*d21 - d01*d20) / denom
	w := 1 - u - v

	if u >= 0 && v >= 0 && w >= 0 {
		c := r3.Add(r3.Add(r3.Scale(u, q), r3.Scale(v, r)), r3.Scale(w, p))
		return Distance(a, c), c
	}

	best, closest := ClosestPointOnSegment(p, q, a)
	if d, c := ClosestPointOnSegment(q, r, a); d < best {
		best, closest = d, c
	}
	if d, c := ClosestPointOnSegment(r, p, a); d < best {
		best, closest = d, c
	}
	return best, closest
}

// ClosestPointOnSegment projects a onto the segment [s, e], clamping the
// parameter to [0, 1]. A zero-length segment returns s.
func ClosestPointOnSegment(s, e, a r3.Vec) (float64, r3.Vec) {
	se := r3.Sub(e, s)
	l2 := r3.Norm2(se)
	if l2 == 0 {
		return Distance(a, s), s
	}
	t := r3.Dot(r3.Sub(a, s), se) / l2
	t = math.Max(0, math.Min(1, t))
	c := r3.Add(s, r3.Scale(t, se))
	return Distance(a, c), c
}

func nearestVertex(a r3.Vec, vertices ...r3.Vec) (float64, r3.Vec) {
	best := math.Inf(1)
	var closest r3.Vec
	for _, v := range vertices {
		if d := Distance(a, v); d < best {
			best, closest = d, v
		}
	}
	return best, closest
}

// TriangleCentroid is the mean of the three vertices.
func TriangleCentroid(p, q, r r3.Vec) r3.Vec {
	return r3.Triangle{p, q, r}.Centroid()
}

// BoundingBox is an axis-aligned box. Unlike r3.Box it treats a flat box,
// such as the bounds of a planar surface, as a valid region.
type BoundingBox struct {
	r3.Box
}

// NewBoundingBox returns the smallest box containing all points.
func NewBoundingBox(points ...r3.Vec) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}
	b := r3.Box{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	}
	return BoundingBox{Box: b}
}

// Contains reports whether a lies inside or on the box.
func (b BoundingBox) Contains(a r3.Vec) bool {
	return a.X >= b.Min.X && a.X <= b.Max.X &&
		a.Y >= b.Min.Y && a.Y <= b.Max.Y &&
		a.Z >= b.Min.Z && a.Z <= b.Max.Z
}

// Distance is the distance from a to the nearest point of the box, zero
// inside. It is a lower bound on the distance to anything the box encloses.
func (b BoundingBox) Distance(a r3.Vec) float64 {
	dx := math.Max(0, math.Max(b.Min.X-a.X, a.X-b.Max.X))
	dy := math.Max(0, math.Max(b.Min.Y-a.Y, a.Y-b.Max.Y))
	dz := math.Max(0, math.Max(b.Min.Z-a.Z, a.Z-b.Max.Z))
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
