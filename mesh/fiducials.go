package mesh

import (
	"context"
	"fmt"
)

// minFiducials is the fewest touched points that fix a rotation.
const minFiducials = 3

// FiducialRegistration maps reference-body coordinates onto the surface.
// It is found by touching fiducials of known surface position with the pointer tip.
type FiducialRegistration struct {
	Frame Frame
	// Touched holds the tip positions in reference coordinates, one per fiducial.
	Touched PointCloud
	// RMS is the fiducial registration error.
	RMS float64
}

// RegisterFiducials tracks the pointer tip in reference coordinates over
// frames, where frame i touches fiducial i, and registers the touched
// points onto fiducials.
func RegisterFiducials(ctx context.Context, method RegistrationMethod, pointer RigidBody, reference PointCloud, frames []TrackerFrame, fiducials PointCloud) (FiducialRegistration, error) {
	if len(frames) != fiducials.Len() {
		return FiducialRegistration{}, fmt.Errorf("%d frames for %d fiducials: %w", len(frames), fiducials.Len(), ErrSizeMismatch)
	}
	if fiducials.Len() < minFiducials {
		return FiducialRegistration{}, fmt.Errorf("need at least %d fiducials, got %d: %w", minFiducials, fiducials.Len(), ErrIllConditioned)
	}

	clouds := make([]PointCloud, len(frames))
	for i, f := range frames {
		c, err := f.RoleInReference(RolePointer, reference)
		if err != nil {
			return FiducialRegistration{}, fmt.Errorf("fiducial %d: %w", i, err)
		}
		clouds[i] = c
	}
	touched, err := TrackTip(ctx, pointer.Markers, pointer.Tip, Identity(), clouds)
	if err != nil {
		return FiducialRegistration{}, err
	}

	reg, err := RegisterWith(method, touched, fiducials)
	if err != nil {
		return FiducialRegistration{}, err
	}
	rms, err := RegistrationError(touched, fiducials, reg)
	if err != nil {
		return FiducialRegistration{}, err
	}
	return FiducialRegistration{Frame: reg, Touched: touched, RMS: rms}, nil
}
