package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a point as written in config files: [x, y, z].
type Vec3 [3]float64

// Vec converts to r3.Vec.
func (v Vec3) Vec() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// ToVec3 converts from r3.Vec.
func ToVec3(v r3.Vec) Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

// Markers is a list of marker positions in body coordinates.
type Markers []Vec3

// Cloud converts the markers to a PointCloud.
func (m Markers) Cloud() PointCloud {
	pts := make([]r3.Vec, len(m))
	for i, v := range m {
		pts[i] = v.Vec()
	}
	return PointCloud{points: pts}
}

// Config represents the full configuration file
type Config struct {
	MQTT         MQTTConfig         `yaml:"mqtt" json:"mqtt"`
	Surface      string             `yaml:"surface,omitempty" json:"surface,omitempty"`       // Path to surface JSON file
	SurfaceURL   string             `yaml:"surfaceUrl,omitempty" json:"surfaceUrl,omitempty"` // Optional API URL for fetching the surface
	Search       SearchConfig       `yaml:"search" json:"search"`
	Registration RegistrationConfig `yaml:"registration" json:"registration"`
	Reference    BodyConfig         `yaml:"reference" json:"reference"`
	Tools        []ToolConfig       `yaml:"tools" json:"tools"`

	// CalibrationObject describes the calibration setup used by --expected.
	CalibrationObject *CalibrationObjectConfig `yaml:"calibrationObject,omitempty" json:"calibrationObject,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// SearchConfig selects the closest-point strategy
type SearchConfig struct {
	Strategy    string `yaml:"strategy" json:"strategy"`                           // brute, indexed, exact, boxed
	Neighbors   int    `yaml:"neighbors" json:"neighbors"`                         // indexed only
	Parallelism int    `yaml:"parallelism,omitempty" json:"parallelism,omitempty"` // goroutines for batch work, 0 = GOMAXPROCS
}

// RegistrationConfig controls registration and pivot calibration
type RegistrationConfig struct {
	Method       string       `yaml:"method" json:"method"` // svd or quaternion
	MaxCondition float64      `yaml:"maxCondition" json:"maxCondition"`
	Transform    *FrameConfig `yaml:"transform,omitempty" json:"transform,omitempty"` // manual reference-to-surface frame, overrides --register
	// Fiducials are surface-coordinate points touched in order by --register.
	Fiducials Markers `yaml:"fiducials,omitempty" json:"fiducials,omitempty"`
}

// FrameConfig is a rigid transform as written in config files
type FrameConfig struct {
	Rotation    [3]Vec3 `yaml:"rotation" json:"rotation"`
	Translation Vec3    `yaml:"translation" json:"translation"`
}

// Frame converts to a Frame.
func (fc *FrameConfig) Frame() Frame {
	if fc == nil {
		return Identity()
	}
	var r Rotation
	for i := 0; i < 3; i++ {
		r[i] = fc.Rotation[i]
	}
	return NewFrame(r, fc.Translation.Vec())
}

// ToFrameConfig converts a Frame for writing to config or cache files.
func ToFrameConfig(f Frame) FrameConfig {
	var fc FrameConfig
	for i := 0; i < 3; i++ {
		fc.Rotation[i] = f.R[i]
	}
	fc.Translation = ToVec3(f.T)
	return fc
}

// CalibrationObjectConfig is the calibration setup in body coordinates:
// markers on the base, markers on the object and the object's target points.
type CalibrationObjectConfig struct {
	Base    Markers `yaml:"base" json:"base"`
	Object  Markers `yaml:"object" json:"object"`
	Targets Markers `yaml:"targets" json:"targets"`
}

// Body converts to a CalibrationBody.
func (c *CalibrationObjectConfig) Body() CalibrationBody {
	return CalibrationBody{Base: c.Base.Cloud(), Object: c.Object.Cloud(), Targets: c.Targets.Cloud()}
}

// BodyConfig is a marker geometry
type BodyConfig struct {
	Markers Markers `yaml:"markers" json:"markers"`
}

// ToolConfig defines a tracked tool from config file
type ToolConfig struct {
	ID      string  `yaml:"id" json:"id"`
	Topic   string  `yaml:"topic" json:"topic"`
	Markers Markers `yaml:"markers" json:"markers"`
	Tip     *Vec3   `yaml:"tip,omitempty" json:"tip,omitempty"` // Optional manual tip override
}

// GetToolByID returns the tool config for the given ID
func (c *Config) GetToolByID(id string) *ToolConfig {
	if c == nil {
		return nil
	}
	for i := range c.Tools {
		if c.Tools[i].ID == id {
			return &c.Tools[i]
		}
	}
	return nil
}

// ToolIDs returns the configured tool IDs in config order
func (c *Config) ToolIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Tools))
	for _, t := range c.Tools {
		ids = append(ids, t.ID)
	}
	return ids
}

// HasManualTip returns true if the tool tip is set in config
func (tc *ToolConfig) HasManualTip() bool {
	return tc.Tip != nil
}

// ToolCalibration stores the pivot calibration of one tool. Pivot is in
// reference-body coordinates when a reference body was tracked during the
// recording, tracker coordinates otherwise.
type ToolCalibration struct {
	Tip         Vec3    `json:"tip"`
	Pivot       Vec3    `json:"pivot"`
	RMS         float64 `json:"rms"`
	Condition   float64 `json:"condition"`
	Frames      int     `json:"frames"`
	LastUpdated int64   `json:"lastUpdated"`
}

// CalibrationData stores pivot calibrations for all tools.
// This is the auto-computed cache stored as JSON.
type CalibrationData struct {
	Tools        map[string]ToolCalibration `json:"tools"`
	Registration *RegistrationCalibration   `json:"registration,omitempty"`
	LastUpdated  int64                      `json:"lastUpdated"`
}

// RegistrationCalibration stores the result of a fiducial registration.
type RegistrationCalibration struct {
	Transform   FrameConfig `json:"transform"`
	RMS         float64     `json:"rms"`
	Fiducials   int         `json:"fiducials"`
	LastUpdated int64       `json:"lastUpdated"`
}

// ToolState tracks the latest navigation state of a tool
type ToolState struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"` // last state reported on the tool's state topic
	Result     *NavResult `json:"result,omitempty"`
	LastUpdate int64      `json:"lastUpdate"`
	IsOnline   bool       `json:"isOnline"`
}
