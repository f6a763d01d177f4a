package mesh

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// MarkerRole tags a group of tracked markers by the rigid body they belong to.
type MarkerRole int

const (
	// RolePointer is the probe whose tip is navigated.
	RolePointer MarkerRole = iota
	// RoleReference is the body fixed to the patient or base.
	RoleReference
	// RoleCalibration is the calibration object.
	RoleCalibration
	// RoleDummy markers are reported by the tracker but ignored.
	RoleDummy
)

var roleNames = map[MarkerRole]string{
	RolePointer:     "pointer",
	RoleReference:   "reference",
	RoleCalibration: "calibration",
	RoleDummy:       "dummy",
}

func (r MarkerRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("MarkerRole(%d)", int(r))
}

// ParseMarkerRole resolves the wire name of a role.
func ParseMarkerRole(s string) (MarkerRole, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown marker role %q", s)
}

// RigidBody is a marker geometry in its own frame plus an optional tip.
type RigidBody struct {
	Markers PointCloud
	Tip     r3.Vec
}

// CalibrationBody describes the calibration setup: markers on the base,
// markers on the calibration object, and the target markers whose tracked
// positions are predicted by ExpectedMarkers. All are in body coordinates.
type CalibrationBody struct {
	Base    PointCloud
	Object  PointCloud
	Targets PointCloud
}

// TrackerFrame is one sample of the tracker, markers grouped by role.
type TrackerFrame struct {
	Index   int
	Markers map[MarkerRole]PointCloud
}

// Role returns the markers for role, or ErrEmptyCloud if none were reported.
func (f TrackerFrame) Role(role MarkerRole) (PointCloud, error) {
	c, ok := f.Markers[role]
	if !ok || c.Len() == 0 {
		return PointCloud{}, fmt.Errorf("frame %d has no %s markers: %w", f.Index, role, ErrEmptyCloud)
	}
	return c, nil
}

// Pose registers body onto the markers of role in frame.
func (f TrackerFrame) Pose(role MarkerRole, body PointCloud) (Frame, error) {
	observed, err := f.Role(role)
	if err != nil {
		return Frame{}, err
	}
	pose, err := Register(body, observed)
	if err != nil {
		return Frame{}, fmt.Errorf("frame %d %s pose: %w", f.Index, role, err)
	}
	return pose, nil
}

// RoleInReference returns the markers of role expressed in the coordinates
// of the reference body, which removes any motion of the reference itself.
func (f TrackerFrame) RoleInReference(role MarkerRole, reference PointCloud) (PointCloud, error) {
	markers, err := f.Role(role)
	if err != nil {
		return PointCloud{}, err
	}
	fb, err := f.Pose(RoleReference, reference)
	if err != nil {
		return PointCloud{}, err
	}
	return fb.Inverse().ApplyCloud(markers), nil
}

// TipInReference returns the pointer tip in reference-body coordinates:
// F_ref⁻¹ · F_ptr · tip.
func TipInReference(pointer, reference RigidBody, frame TrackerFrame) (r3.Vec, error) {
	fa, err := frame.Pose(RolePointer, pointer.Markers)
	if err != nil {
		return r3.Vec{}, err
	}
	fb, err := frame.Pose(RoleReference, reference.Markers)
	if err != nil {
		return r3.Vec{}, err
	}
	return fb.Inverse().Compose(fa).Apply(pointer.Tip), nil
}

// ExpectedMarkers predicts where the tracker should report the target
// markers of body: F_base⁻¹ · F_object · targets.
func ExpectedMarkers(body CalibrationBody, frame TrackerFrame) (PointCloud, error) {
	fd, err := frame.Pose(RoleReference, body.Base)
	if err != nil {
		return PointCloud{}, err
	}
	fa, err := frame.Pose(RoleCalibration, body.Object)
	if err != nil {
		return PointCloud{}, err
	}
	return fd.Inverse().Compose(fa).ApplyCloud(body.Targets), nil
}

// TrackTip registers geometry onto every frame, maps tip through the
// resulting pose and then through reg.
func TrackTip(ctx context.Context, geometry PointCloud, tip r3.Vec, reg Frame, frames []PointCloud) (PointCloud, error) {
	out := make([]r3.Vec, len(frames))
	err := forEach(ctx, len(frames), func(i int) error {
		pose, err := Register(geometry, frames[i])
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		out[i] = reg.Apply(pose.Apply(tip))
		return nil
	})
	if err != nil {
		return PointCloud{}, err
	}
	return PointCloud{points: out}, nil
}

// NavResult is the outcome of navigating one tracker frame.
type NavResult struct {
	Frame    int     `json:"frame"`
	Sample   r3.Vec  `json:"sample"`
	Closest  r3.Vec  `json:"closest"`
	Distance float64 `json:"distance"`
	Triangle int     `json:"triangle"`
}

// Navigator maps the pointer tip into surface coordinates for each frame
// and finds the closest surface point.
type Navigator struct {
	Pointer   RigidBody
	Reference RigidBody
	// Registration maps reference-body coordinates onto the surface.
	Registration Frame
	Finder       Finder
}

// Locate navigates a single frame.
func (n *Navigator) Locate(frame TrackerFrame) (NavResult, error) {
	if n.Finder == nil {
		return NavResult{}, fmt.Errorf("navigator has no surface: %w", ErrInvalidMesh)
	}
	d, err := TipInReference(n.Pointer, n.Reference, frame)
	if err != nil {
		return NavResult{}, err
	}
	sample := n.Registration.Apply(d)
	m, err := n.Finder.Query(sample)
	if err != nil {
		return NavResult{}, fmt.Errorf("frame %d: %w", frame.Index, err)
	}
	return NavResult{
		Frame:    frame.Index,
		Sample:   sample,
		Closest:  m.Point,
		Distance: m.Distance,
		Triangle: m.Triangle,
	}, nil
}

// Run navigates all frames in parallel. Results keep input order.
func (n *Navigator) Run(ctx context.Context, frames []TrackerFrame) ([]NavResult, error) {
	out := make([]NavResult, len(frames))
	err := forEach(ctx, len(frames), func(i int) error {
		res, err := n.Locate(frames[i])
		if err != nil {
			return err
		}
		out[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
