package mesh

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMaxCondition is the largest condition number of the pivot system
// accepted as a trustworthy calibration.
const DefaultMaxCondition = 1e6

// pivotUnknowns is the column count of the pivot system: tip (3) and pivot (3).
const pivotUnknowns = 6

// PivotOptions tunes CalibrateWith.
type PivotOptions struct {
	// Method is the registration used for every observation.
	Method RegistrationMethod
	// MaxCondition flags solutions whose design matrix condition number is
	// larger. Zero disables the check; rank deficiency is always reported.
	MaxCondition float64
}

// DefaultPivotOptions returns SVD registration and DefaultMaxCondition.
func DefaultPivotOptions() PivotOptions {
	return PivotOptions{Method: MethodSVD, MaxCondition: DefaultMaxCondition}
}

// PivotResult is the least-squares solution of a pivot calibration.
type PivotResult struct {
	// Tip is the tool tip in the local marker geometry (demeaned first observation).
	Tip r3.Vec `json:"tip"`
	// Pivot is the fixed pivot point in the tracker frame.
	Pivot r3.Vec `json:"pivot"`
	// RMS of ‖Rᵢ·tip + tᵢ − pivot‖ over all frames.
	RMS float64 `json:"rms"`
	// Rank of the (3N)x6 design matrix.
	Rank int `json:"rank"`
	// Condition is σmax/σmin of the design matrix, +Inf when rank deficient.
	Condition float64 `json:"condition"`
	// Geometry is the demeaned first observation every frame was registered from.
	Geometry PointCloud `json:"-"`
	// Frames are the per-observation registrations, in input order.
	Frames []Frame `json:"-"`
}

// IllConditioned reports whether the solution is not unique.
func (r PivotResult) IllConditioned() bool {
	return r.Rank < pivotUnknowns
}

// Calibrate runs CalibrateWith using DefaultPivotOptions.
func Calibrate(observations []PointCloud) (PivotResult, error) {
	return CalibrateWith(context.Background(), observations, DefaultPivotOptions())
}

// CalibrateWith solves for the tip offset and the pivot point from one
// marker cloud per pose. Every observation is registered from the demeaned
// first observation, then the stacked system [Rᵢ | −I]·[tip; pivot] = −tᵢ
// is solved in the minimum-norm least-squares sense.
//
// A rank-deficient or badly conditioned system still yields the
// minimum-norm result, returned together with an error wrapping
// ErrIllConditioned.
func CalibrateWith(ctx context.Context, observations []PointCloud, opts PivotOptions) (PivotResult, error) {
	if len(observations) == 0 || observations[0].Len() == 0 {
		return PivotResult{}, fmt.Errorf("pivot calibration: %w", ErrEmptyCloud)
	}
	markers := observations[0].Len()
	for i, obs := range observations {
		if obs.Len() != markers {
			return PivotResult{}, fmt.Errorf("observation %d has %d markers, expected %d: %w", i, obs.Len(), markers, ErrSizeMismatch)
		}
	}

	geometry := observations[0].Demean()
	frames := make([]Frame, len(observations))
	err := forEach(ctx, len(observations), func(i int) error {
		f, err := RegisterWith(opts.Method, geometry, observations[i])
		if err != nil {
			return fmt.Errorf("register observation %d: %w", i, err)
		}
		frames[i] = f
		return nil
	})
	if err != nil {
		return PivotResult{}, err
	}

	a, b := pivotSystem(frames)
	x, rank, cond, err := leastSquares(a, b)
	if err != nil {
		return PivotResult{}, err
	}

	res := PivotResult{
		Tip:       r3.Vec{X: x[0], Y: x[1], Z: x[2]},
		Pivot:     r3.Vec{X: x[3], Y: x[4], Z: x[5]},
		Rank:      rank,
		Condition: cond,
		Geometry:  geometry,
		Frames:    frames,
	}
	res.RMS = pivotResidual(frames, res.Tip, res.Pivot)

	if res.IllConditioned() {
		return res, fmt.Errorf("pivot system has rank %d of %d with %d poses: %w", rank, pivotUnknowns, len(frames), ErrIllConditioned)
	}
	if opts.MaxCondition > 0 && cond > opts.MaxCondition {
		return res, fmt.Errorf("pivot condition number %.3g exceeds %.3g: %w", cond, opts.MaxCondition, ErrIllConditioned)
	}
	return res, nil
}

// pivotSystem stacks three rows per frame: [Rᵢ | −I] with right-hand side −tᵢ.
func pivotSystem(frames []Frame) (*mat.Dense, *mat.VecDense) {
	a := mat.NewDense(3*len(frames), pivotUnknowns, nil)
	b := mat.NewVecDense(3*len(frames), nil)
	for i, f := range frames {
		t := vecSlice(f.T)
		for r := 0; r < 3; r++ {
			row := 3*i + r
			for c := 0; c < 3; c++ {
				a.Set(row, c, f.R[r][c])
			}
			a.Set(row, 3+r, -1)
			b.SetVec(row, -t[r])
		}
	}
	return a, b
}

// leastSquares returns the minimum-norm solution of a·x ≈ b through the
// thin SVD, discarding singular values below ε·max(m,n)·σmax.
func leastSquares(a *mat.Dense, b *mat.VecDense) ([]float64, int, float64, error) {
	m, n := a.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, 0, math.Inf(1), fmt.Errorf("svd of pivot system failed: %w", ErrIllConditioned)
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	smax := 0.0
	if len(values) > 0 {
		smax = values[0]
	}
	cutoff := machineEpsilon * float64(max(m, n)) * smax

	x := make([]float64, n)
	rank := 0
	for k, s := range values {
		if s <= cutoff || s == 0 {
			continue
		}
		rank++
		coef := mat.Dot(u.ColView(k), b) / s
		for j := 0; j < n; j++ {
			x[j] += coef * v.At(j, k)
		}
	}

	cond := math.Inf(1)
	if len(values) == n && values[n-1] > 0 {
		cond = smax / values[n-1]
	}
	return x, rank, cond, nil
}

func pivotResidual(frames []Frame, tip, pivot r3.Vec) float64 {
	if len(frames) == 0 {
		return 0
	}
	var sum float64
	for _, f := range frames {
		sum += r3.Norm2(r3.Sub(f.Apply(tip), pivot))
	}
	return math.Sqrt(sum / float64(len(frames)))
}

// machineEpsilon is the float64 machine epsilon.
const machineEpsilon = 2.220446049250313e-16
