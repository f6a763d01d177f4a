package mesh

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	pointerMarkers   = NewPointCloud([]r3.Vec{{X: 20}, {Y: 30}, {Z: 25}, {X: -15, Y: -10}})
	referenceMarkers = NewPointCloud([]r3.Vec{{X: 50}, {Y: 50}, {X: -40, Y: 10, Z: 5}, {Z: 45}})
	pointerTip       = r3.Vec{X: 2, Y: 1, Z: 120}
)

// scene places the pointer and reference bodies with the given poses and
// returns the tracker frame that would observe them.
func scene(index int, pointerPose, referencePose Frame) TrackerFrame {
	return TrackerFrame{
		Index: index,
		Markers: map[MarkerRole]PointCloud{
			RolePointer:   pointerPose.ApplyCloud(pointerMarkers),
			RoleReference: referencePose.ApplyCloud(referenceMarkers),
		},
	}
}

func TestTipInReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1234))
	pointer := RigidBody{Markers: pointerMarkers, Tip: pointerTip}
	reference := RigidBody{Markers: referenceMarkers}

	for i := 0; i < 20; i++ {
		fa := randomFrame(rng, 500)
		fb := randomFrame(rng, 500)
		want := fb.Inverse().Apply(fa.Apply(pointerTip))

		got, err := TipInReference(pointer, reference, scene(i, fa, fb))
		require.NoError(t, err)
		if !vecsEqual(got, want, 1e-6) {
			t.Errorf("frame %d: tip = %v, want %v", i, got, want)
		}
	}
}

func TestTipInReference_MovingTogether(t *testing.T) {
	// moving both bodies rigidly together leaves the relative tip unchanged
	rng := rand.New(rand.NewSource(3))
	pointer := RigidBody{Markers: pointerMarkers, Tip: pointerTip}
	reference := RigidBody{Markers: referenceMarkers}

	fa := randomFrame(rng, 100)
	fb := randomFrame(rng, 100)
	base, err := TipInReference(pointer, reference, scene(0, fa, fb))
	require.NoError(t, err)

	for i := 1; i < 10; i++ {
		g := randomFrame(rng, 1000)
		got, err := TipInReference(pointer, reference, scene(i, g.Compose(fa), g.Compose(fb)))
		require.NoError(t, err)
		assert.True(t, vecsEqual(got, base, 1e-6), "frame %d: %v, want %v", i, got, base)
	}
}

func TestTipInReference_MissingRole(t *testing.T) {
	pointer := RigidBody{Markers: pointerMarkers, Tip: pointerTip}
	reference := RigidBody{Markers: referenceMarkers}

	frame := TrackerFrame{Index: 7, Markers: map[MarkerRole]PointCloud{RolePointer: pointerMarkers}}
	_, err := TipInReference(pointer, reference, frame)
	assert.ErrorIs(t, err, ErrEmptyCloud)
	assert.Contains(t, err.Error(), "reference")

	// a body that does not match the observed marker count
	frame.Markers[RoleReference] = NewPointCloud([]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}})
	_, err = TipInReference(pointer, reference, frame)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestExpectedMarkers(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	body := CalibrationBody{
		Base:    NewPointCloud([]r3.Vec{{X: 100}, {Y: 100}, {Z: 100}, {X: -50, Y: -50}}),
		Object:  NewPointCloud([]r3.Vec{{X: 10}, {Y: 12}, {Z: 8}}),
		Targets: NewPointCloud([]r3.Vec{{X: 1, Y: 1}, {X: -3, Z: 2}, {Y: 5, Z: 5}}),
	}

	fd := randomFrame(rng, 300)
	fa := randomFrame(rng, 300)
	frame := TrackerFrame{
		Index: 0,
		Markers: map[MarkerRole]PointCloud{
			RoleReference:   fd.ApplyCloud(body.Base),
			RoleCalibration: fa.ApplyCloud(body.Object),
		},
	}

	got, err := ExpectedMarkers(body, frame)
	require.NoError(t, err)
	require.Equal(t, body.Targets.Len(), got.Len())

	want := fd.Inverse().Compose(fa).ApplyCloud(body.Targets)
	for i := 0; i < want.Len(); i++ {
		if !vecsEqual(got.At(i), want.At(i), 1e-6) {
			t.Errorf("target %d = %v, want %v", i, got.At(i), want.At(i))
		}
	}

	// identical poses put the targets where the object frame places them
	frame.Markers[RoleReference] = fa.ApplyCloud(body.Base)
	got, err = ExpectedMarkers(body, frame)
	require.NoError(t, err)
	for i := 0; i < got.Len(); i++ {
		assert.True(t, vecsEqual(got.At(i), body.Targets.At(i), 1e-6))
	}

	delete(frame.Markers, RoleCalibration)
	_, err = ExpectedMarkers(body, frame)
	assert.ErrorIs(t, err, ErrEmptyCloud)
}

func TestTrackTip(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	geometry := pointerMarkers.Demean()
	tip := r3.Vec{Z: 100}
	reg := randomFrame(rng, 10)

	var frames []PointCloud
	var want []r3.Vec
	for i := 0; i < 15; i++ {
		pose := randomFrame(rng, 200)
		frames = append(frames, pose.ApplyCloud(geometry))
		want = append(want, reg.Apply(pose.Apply(tip)))
	}

	got, err := TrackTip(context.Background(), geometry, tip, reg, frames)
	require.NoError(t, err)
	require.Equal(t, len(want), got.Len())
	for i, w := range want {
		if !vecsEqual(got.At(i), w, 1e-6) {
			t.Errorf("frame %d tip = %v, want %v", i, got.At(i), w)
		}
	}

	frames = append(frames, NewPointCloud([]r3.Vec{{X: 1}}))
	_, err = TrackTip(context.Background(), geometry, tip, reg, frames)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestNavigator_Run(t *testing.T) {
	s, err := NewSurface([]r3.Vec{{X: -1000, Y: -1000}, {X: 1000, Y: -1000}, {Y: 1000}}, [][3]int{{0, 1, 2}})
	require.NoError(t, err)
	finder, err := NewBruteForceFinder(s)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(21))
	nav := &Navigator{
		Pointer:      RigidBody{Markers: pointerMarkers, Tip: pointerTip},
		Reference:    RigidBody{Markers: referenceMarkers},
		Registration: Translation(r3.Vec{Z: -10}),
		Finder:       finder,
	}

	var frames []TrackerFrame
	var wantSamples []r3.Vec
	for i := 0; i < 12; i++ {
		fb := randomFrame(rng, 100)
		// place the tip a known height above the plane in reference coordinates
		d := r3.Vec{X: rng.Float64() * 100, Y: rng.Float64() * 100, Z: 10 + float64(i)}
		rot := randomRotation(rng)
		pointerInRef := NewFrame(rot, r3.Sub(d, rot.Apply(pointerTip)))
		frames = append(frames, scene(100+i, fb.Compose(pointerInRef), fb))
		wantSamples = append(wantSamples, r3.Add(d, r3.Vec{Z: -10}))
	}

	results, err := nav.Run(WithParallelism(context.Background(), 2), frames)
	require.NoError(t, err)
	require.Len(t, results, len(frames))

	for i, res := range results {
		assert.Equal(t, 100+i, res.Frame)
		assert.Equal(t, 0, res.Triangle)
		assert.True(t, vecsEqual(res.Sample, wantSamples[i], 1e-6), "frame %d sample %v, want %v", i, res.Sample, wantSamples[i])
		assert.InDelta(t, float64(i), res.Distance, 1e-6)
		assert.InDelta(t, 0.0, res.Closest.Z, 1e-9)
	}
}

func TestNavigator_NoFinder(t *testing.T) {
	nav := &Navigator{}
	_, err := nav.Locate(TrackerFrame{})
	assert.ErrorIs(t, err, ErrInvalidMesh)
}

func TestParseMarkerRole(t *testing.T) {
	for role, name := range roleNames {
		got, err := ParseMarkerRole(name)
		require.NoError(t, err)
		assert.Equal(t, role, got)
		assert.Equal(t, name, role.String())
	}

	got, err := ParseMarkerRole(" Pointer ")
	require.NoError(t, err)
	assert.Equal(t, RolePointer, got)

	_, err = ParseMarkerRole("scalpel")
	assert.Error(t, err)
	assert.Equal(t, "MarkerRole(9)", MarkerRole(9).String())
}
