package mesh

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Rotation is a 3x3 row-major rotation matrix. Frames built by this package
// always hold a proper rotation (orthonormal, determinant +1).
type Rotation [3][3]float64

// IdentityRotation returns the 3x3 identity.
func IdentityRotation() Rotation {
	return Rotation{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// RotationFromAxisAngle builds a rotation of angle radians about axis.
// A zero axis yields the identity.
func RotationFromAxisAngle(axis r3.Vec, angle float64) Rotation {
	if r3.Norm(axis) == 0 {
		return IdentityRotation()
	}
	return rotationFromMat(r3.NewRotation(angle, axis).Mat())
}

// rotationFromMat copies a 3x3 matrix into a Rotation.
func rotationFromMat(m mat.Matrix) Rotation {
	var r Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m.At(i, j)
		}
	}
	return r
}

// Mat returns r as an r3.Mat.
func (r Rotation) Mat() *r3.Mat {
	return r3.NewMat([]float64{
		r[0][0], r[0][1], r[0][2],
		r[1][0], r[1][1], r[1][2],
		r[2][0], r[2][1], r[2][2],
	})
}

// Apply returns R·v.
func (r Rotation) Apply(v r3.Vec) r3.Vec {
	return r.Mat().MulVec(v)
}

// Mul returns the matrix product r·o.
func (r Rotation) Mul(o Rotation) Rotation {
	var m r3.Mat
	m.Mul(r.Mat(), o.Mat())
	return rotationFromMat(&m)
}

// Transpose returns Rᵗ, which is the inverse of a proper rotation.
func (r Rotation) Transpose() Rotation {
	return rotationFromMat(r.Mat().T())
}

// Det returns the determinant.
func (r Rotation) Det() float64 {
	return r.Mat().Det()
}

// IsProper reports whether r is orthonormal with determinant +1 within tol.
func (r Rotation) IsProper(tol float64) bool {
	if math.Abs(r.Det()-1) > tol {
		return false
	}
	rrt := r.Mul(r.Transpose())
	id := IdentityRotation()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(rrt[i][j]-id[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// Frame is a rigid transform x ↦ R·x + T.
type Frame struct {
	R Rotation `json:"rotation"`
	T r3.Vec   `json:"translation"`
}

// Identity returns the identity frame (no transformation)
func Identity() Frame {
	return Frame{R: IdentityRotation()}
}

// NewFrame creates a frame from a rotation and translation.
// The caller guarantees r is a proper rotation.
func NewFrame(r Rotation, t r3.Vec) Frame {
	return Frame{R: r, T: t}
}

// Translation creates a translation-only frame
func Translation(t r3.Vec) Frame {
	return Frame{R: IdentityRotation(), T: t}
}

// Inverse returns (Rᵗ, −Rᵗ·t). Only valid for proper rotations.
func (f Frame) Inverse() Frame {
	rt := f.R.Transpose()
	return Frame{R: rt, T: r3.Scale(-1, rt.Apply(f.T))}
}

// Compose returns f∘other: applying the result is equivalent to applying
// other first, then f.
func (f Frame) Compose(other Frame) Frame {
	return Frame{
		R: f.R.Mul(other.R),
		T: r3.Add(f.R.Apply(other.T), f.T),
	}
}

// Apply maps a single point through the frame.
func (f Frame) Apply(p r3.Vec) r3.Vec {
	return r3.Add(f.R.Apply(p), f.T)
}

// ApplyCloud maps every point of c through the frame.
func (f Frame) ApplyCloud(c PointCloud) PointCloud {
	return c.Transform(f)
}

// AlmostEqual compares rotation and translation entries within tol.
func (f Frame) AlmostEqual(other Frame, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(f.R[i][j]-other.R[i][j]) > tol {
				return false
			}
		}
	}
	return r3.Norm(r3.Sub(f.T, other.T)) <= tol
}

// Distance calculates Euclidean distance between two points
func Distance(p1, p2 r3.Vec) float64 {
	return r3.Norm(r3.Sub(p2, p1))
}
