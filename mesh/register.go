package mesh

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RegistrationMethod selects how the optimal rotation is recovered.
type RegistrationMethod string

const (
	// MethodSVD recovers the rotation from the SVD of the cross-covariance matrix.
	MethodSVD RegistrationMethod = "svd"
	// MethodQuaternion recovers the rotation as the dominant eigenvector of Horn's 4x4 matrix.
	MethodQuaternion RegistrationMethod = "quaternion"
)

// ParseRegistrationMethod maps a config string onto a RegistrationMethod.
// An empty string selects MethodSVD.
func ParseRegistrationMethod(s string) (RegistrationMethod, error) {
	switch RegistrationMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodSVD:
		return MethodSVD, nil
	case MethodQuaternion:
		return MethodQuaternion, nil
	}
	return "", fmt.Errorf("registration method %q: %w", s, ErrUnknownStrategy)
}

// RegisterWith dispatches to Register or RegisterQuaternion.
func RegisterWith(method RegistrationMethod, source, target PointCloud) (Frame, error) {
	switch method {
	case "", MethodSVD:
		return Register(source, target)
	case MethodQuaternion:
		return RegisterQuaternion(source, target)
	}
	return Frame{}, fmt.Errorf("registration method %q: %w", method, ErrUnknownStrategy)
}

// Register finds the frame F minimising Σ‖F·sᵢ − tᵢ‖² over corresponding
// points using the SVD of the cross-covariance matrix. The returned rotation
// always has determinant +1, also for coplanar or collinear input.
func Register(source, target PointCloud) (Frame, error) {
	cs, ct, h, err := crossCovariance(source, target)
	if err != nil {
		return Frame{}, err
	}
	if isZero(h) {
		return Translation(r3.Sub(ct, cs)), nil
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return Frame{}, fmt.Errorf("svd of cross-covariance failed: %w", ErrIllConditioned)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Flip the axis of the smallest singular value when V·Uᵗ is a reflection.
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := mat.NewDiagDense(3, []float64{1, 1, 1})
	if mat.Det(&vut) < 0 {
		d.SetDiag(2, -1)
	}
	var vd, rm mat.Dense
	vd.Mul(&v, d)
	rm.Mul(&vd, u.T())

	r := rotationFromMat(&rm)
	return NewFrame(r, r3.Sub(ct, r.Apply(cs))), nil
}

// RegisterQuaternion solves the same problem as Register with Horn's closed
// form: the unit quaternion is the eigenvector of the largest eigenvalue of
// a symmetric 4x4 matrix built from the cross-covariance entries.
func RegisterQuaternion(source, target PointCloud) (Frame, error) {
	cs, ct, h, err := crossCovariance(source, target)
	if err != nil {
		return Frame{}, err
	}
	if isZero(h) {
		return Translation(r3.Sub(ct, cs)), nil
	}

	sxx, sxy, sxz := h.At(0, 0), h.At(0, 1), h.At(0, 2)
	syx, syy, syz := h.At(1, 0), h.At(1, 1), h.At(1, 2)
	szx, szy, szz := h.At(2, 0), h.At(2, 1), h.At(2, 2)
	n := mat.NewSymDense(4, []float64{
		sxx + syy + szz, syz - szy, szx - sxz, sxy - syx,
		syz - szy, sxx - syy - szz, sxy + syx, szx + sxz,
		szx - sxz, sxy + syx, -sxx + syy - szz, syz + szy,
		sxy - syx, szx + sxz, syz + szy, -sxx - syy + szz,
	})

	var eig mat.EigenSym
	if ok := eig.Factorize(n, true); !ok {
		return Frame{}, fmt.Errorf("eigen decomposition failed: %w", ErrIllConditioned)
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	q := quat.Number{Real: vecs.At(0, best), Imag: vecs.At(1, best), Jmag: vecs.At(2, best), Kmag: vecs.At(3, best)}
	r := rotationFromQuaternion(q)
	return NewFrame(r, r3.Sub(ct, r.Apply(cs))), nil
}

// RegistrationError returns the RMS residual ‖F·sᵢ − tᵢ‖ over all pairs.
func RegistrationError(source, target PointCloud, f Frame) (float64, error) {
	if source.Len() != target.Len() {
		return 0, fmt.Errorf("source has %d points, target has %d: %w", source.Len(), target.Len(), ErrSizeMismatch)
	}
	if source.Len() == 0 {
		return 0, ErrEmptyCloud
	}
	var sum float64
	for i := 0; i < source.Len(); i++ {
		sum += r3.Norm2(r3.Sub(f.Apply(source.At(i)), target.At(i)))
	}
	return math.Sqrt(sum / float64(source.Len())), nil
}

// crossCovariance returns both centroids and H = Σ (sᵢ − s̄)(tᵢ − t̄)ᵗ,
// computed as the product of the demeaned 3xN clouds.
func crossCovariance(source, target PointCloud) (r3.Vec, r3.Vec, *mat.Dense, error) {
	if source.Len() != target.Len() {
		return r3.Vec{}, r3.Vec{}, nil, fmt.Errorf("source has %d points, target has %d: %w", source.Len(), target.Len(), ErrSizeMismatch)
	}
	if source.Len() == 0 {
		return r3.Vec{}, r3.Vec{}, nil, ErrEmptyCloud
	}
	var h mat.Dense
	h.Mul(source.Demean().Dense(), target.Demean().Dense().T())
	return source.Centroid(), target.Centroid(), &h, nil
}

// rotationFromQuaternion normalises q and returns its rotation matrix.
func rotationFromQuaternion(q quat.Number) Rotation {
	norm := quat.Abs(q)
	if norm == 0 {
		return IdentityRotation()
	}
	return rotationFromMat(r3.Rotation(quat.Scale(1/norm, q)).Mat())
}

func isZero(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if m.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

func vecSlice(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
