package mesh

import "errors"

var (
	// ErrSizeMismatch is returned when corresponding point clouds differ in length.
	ErrSizeMismatch = errors.New("point clouds must be of equal size")

	// ErrEmptyCloud is returned when an operation needs at least one point or observation.
	ErrEmptyCloud = errors.New("point cloud is empty")

	// ErrInvalidMesh is returned for surfaces with no triangles or out-of-range indices.
	ErrInvalidMesh = errors.New("invalid mesh")

	// ErrIllConditioned is returned alongside a least-squares solution whose design
	// matrix is rank deficient or whose condition number exceeds the configured limit.
	// The accompanying result is the minimum-norm solution and must not be trusted.
	ErrIllConditioned = errors.New("ill-conditioned system")

	// ErrUnknownStrategy is returned for unrecognised search strategy or registration method names.
	ErrUnknownStrategy = errors.New("unknown strategy")
)
