package mesh

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// PointCloud is an ordered, fixed-size collection of points that all live in
// one coordinate frame. Operations never mutate the receiver.
type PointCloud struct {
	points []r3.Vec
}

// NewPointCloud copies points into a new cloud.
func NewPointCloud(points []r3.Vec) PointCloud {
	cp := make([]r3.Vec, len(points))
	copy(cp, points)
	return PointCloud{points: cp}
}

// Len returns the number of points.
func (c PointCloud) Len() int {
	return len(c.points)
}

// At returns the i-th point.
func (c PointCloud) At(i int) r3.Vec {
	return c.points[i]
}

// Points returns a copy of the underlying points.
func (c PointCloud) Points() []r3.Vec {
	cp := make([]r3.Vec, len(c.points))
	copy(cp, c.points)
	return cp
}

// Centroid calculates the center of mass of the cloud
func (c PointCloud) Centroid() r3.Vec {
	return Centroid(c.points)
}

// Demean returns the cloud shifted so its centroid is at the origin.
func (c PointCloud) Demean() PointCloud {
	centroid := c.Centroid()
	out := make([]r3.Vec, len(c.points))
	for i, p := range c.points {
		out[i] = r3.Sub(p, centroid)
	}
	return PointCloud{points: out}
}

// Transform applies a frame to every point and returns the result as a new cloud.
func (c PointCloud) Transform(f Frame) PointCloud {
	out := make([]r3.Vec, len(c.points))
	for i, p := range c.points {
		out[i] = f.Apply(p)
	}
	return PointCloud{points: out}
}

// Add concatenates other after c and returns the merged cloud.
func (c PointCloud) Add(other PointCloud) PointCloud {
	out := make([]r3.Vec, 0, len(c.points)+len(other.points))
	out = append(out, c.points...)
	out = append(out, other.points...)
	return PointCloud{points: out}
}

// Dense returns the cloud as a 3xN matrix with one point per column.
func (c PointCloud) Dense() *mat.Dense {
	if len(c.points) == 0 {
		return nil
	}
	m := mat.NewDense(3, len(c.points), nil)
	for j, p := range c.points {
		m.Set(0, j, p.X)
		m.Set(1, j, p.Y)
		m.Set(2, j, p.Z)
	}
	return m
}

// Centroid calculates the center of mass of a set of points
func Centroid(points []r3.Vec) r3.Vec {
	if len(points) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for _, p := range points {
		sum = r3.Add(sum, p)
	}
	return r3.Scale(1/float64(len(points)), sum)
}
