package mesh

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// fiducialScene touches every fiducial with the pointer tip while the
// reference body sits at a random pose. reg maps reference coordinates onto
// the surface.
func fiducialScene(rng *rand.Rand, reg Frame, fiducials PointCloud) []TrackerFrame {
	frames := make([]TrackerFrame, fiducials.Len())
	for i := range frames {
		d := reg.Inverse().Apply(fiducials.At(i))
		rot := randomRotation(rng)
		pointerInRef := NewFrame(rot, r3.Sub(d, rot.Apply(pointerTip)))
		fb := randomFrame(rng, 300)
		frames[i] = scene(i, fb.Compose(pointerInRef), fb)
	}
	return frames
}

func TestRegisterFiducials_RecoversFrame(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	pointer := RigidBody{Markers: pointerMarkers, Tip: pointerTip}

	for _, method := range registrationMethods {
		t.Run(string(method), func(t *testing.T) {
			want := randomFrame(rng, 200)
			fiducials := randomCloud(rng, 6, 80)
			frames := fiducialScene(rng, want, fiducials)

			got, err := RegisterFiducials(context.Background(), method, pointer, referenceMarkers, frames, fiducials)
			require.NoError(t, err)

			assert.True(t, got.Frame.AlmostEqual(want, 1e-6), "frame = %+v, want %+v", got.Frame, want)
			assert.Less(t, got.RMS, 1e-6)
			require.Equal(t, fiducials.Len(), got.Touched.Len())
			for i := 0; i < fiducials.Len(); i++ {
				wantTouched := want.Inverse().Apply(fiducials.At(i))
				assert.True(t, vecsEqual(got.Touched.At(i), wantTouched, 1e-6), "fiducial %d touched %v, want %v", i, got.Touched.At(i), wantTouched)
			}
		})
	}
}

func TestRegisterFiducials_ReportsResidual(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	pointer := RigidBody{Markers: pointerMarkers, Tip: pointerTip}
	reg := randomFrame(rng, 50)
	fiducials := randomCloud(rng, 5, 60)
	frames := fiducialScene(rng, reg, fiducials)

	// one target is 2 units off where it was touched
	pts := fiducials.Points()
	pts[3] = r3.Add(pts[3], r3.Vec{Z: 2})
	got, err := RegisterFiducials(context.Background(), MethodSVD, pointer, referenceMarkers, frames, NewPointCloud(pts))
	require.NoError(t, err)
	assert.Greater(t, got.RMS, 0.1)
	assert.True(t, got.Frame.R.IsProper(1e-9))
}

func TestRegisterFiducials_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	pointer := RigidBody{Markers: pointerMarkers, Tip: pointerTip}
	fiducials := randomCloud(rng, 4, 60)
	frames := fiducialScene(rng, Identity(), fiducials)
	ctx := context.Background()

	_, err := RegisterFiducials(ctx, MethodSVD, pointer, referenceMarkers, frames[:3], fiducials)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	two := NewPointCloud(fiducials.Points()[:2])
	_, err = RegisterFiducials(ctx, MethodSVD, pointer, referenceMarkers, frames[:2], two)
	assert.ErrorIs(t, err, ErrIllConditioned)

	delete(frames[1].Markers, RoleReference)
	_, err = RegisterFiducials(ctx, MethodSVD, pointer, referenceMarkers, frames, fiducials)
	assert.ErrorIs(t, err, ErrEmptyCloud)
	assert.Contains(t, err.Error(), "fiducial 1")
}

func TestTrackerFrame_RoleInReference(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	fa := randomFrame(rng, 400)
	fb := randomFrame(rng, 400)

	got, err := scene(0, fa, fb).RoleInReference(RolePointer, referenceMarkers)
	require.NoError(t, err)

	want := fb.Inverse().Compose(fa).ApplyCloud(pointerMarkers)
	for i := 0; i < want.Len(); i++ {
		assert.True(t, vecsEqual(got.At(i), want.At(i), 1e-6), "marker %d = %v, want %v", i, got.At(i), want.At(i))
	}

	_, err = TrackerFrame{Markers: map[MarkerRole]PointCloud{RoleReference: referenceMarkers}}.RoleInReference(RolePointer, referenceMarkers)
	assert.ErrorIs(t, err, ErrEmptyCloud)
}
