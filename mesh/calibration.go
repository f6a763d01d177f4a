package mesh

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultCalibrationCachePath is the default path for the pivot calibration cache
const DefaultCalibrationCachePath = ".pivot-cache.json"

// LoadCalibration loads pivot calibration data from a JSON cache file
func LoadCalibration(path string) (*CalibrationData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No calibration file yet
		}
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}

	var cal CalibrationData
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, fmt.Errorf("parsing calibration file: %w", err)
	}
	if cal.Tools == nil {
		cal.Tools = make(map[string]ToolCalibration)
	}

	return &cal, nil
}

// SaveCalibration saves pivot calibration data to a JSON cache file
func SaveCalibration(path string, cal *CalibrationData) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating calibration directory: %w", err)
	}

	// Update timestamp
	cal.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling calibration data: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing calibration file: %w", err)
	}

	return nil
}

// NewToolCalibration converts a pivot result into a cache entry. The tip is
// expressed in body coordinates: when markers are given, the calibration
// geometry is registered onto them and the tip is mapped through that pose.
func NewToolCalibration(res PivotResult, markers PointCloud) (ToolCalibration, error) {
	tip := res.Tip
	if markers.Len() > 0 {
		toBody, err := Register(res.Geometry, markers)
		if err != nil {
			return ToolCalibration{}, fmt.Errorf("aligning calibration geometry to tool markers: %w", err)
		}
		tip = toBody.Apply(tip)
	}
	return ToolCalibration{
		Tip:         ToVec3(tip),
		Pivot:       ToVec3(res.Pivot),
		RMS:         res.RMS,
		Condition:   res.Condition,
		Frames:      len(res.Frames),
		LastUpdated: time.Now().Unix(),
	}, nil
}

// NewRegistrationCalibration converts a fiducial registration into a cache entry.
func NewRegistrationCalibration(reg FiducialRegistration) RegistrationCalibration {
	return RegistrationCalibration{
		Transform:   ToFrameConfig(reg.Frame),
		RMS:         reg.RMS,
		Fiducials:   reg.Touched.Len(),
		LastUpdated: time.Now().Unix(),
	}
}

// RegistrationFrame returns the stored reference-to-surface frame.
func (c *CalibrationData) RegistrationFrame() (Frame, bool) {
	if c == nil || c.Registration == nil {
		return Frame{}, false
	}
	return c.Registration.Transform.Frame(), true
}

// SetTool stores the calibration of one tool
func (c *CalibrationData) SetTool(id string, tc ToolCalibration) {
	if c.Tools == nil {
		c.Tools = make(map[string]ToolCalibration)
	}
	c.Tools[id] = tc
}

// GetTip retrieves the calibrated tip of a tool
func (c *CalibrationData) GetTip(toolID string) (r3.Vec, bool) {
	if c == nil || c.Tools == nil {
		return r3.Vec{}, false
	}
	tc, ok := c.Tools[toolID]
	if !ok {
		return r3.Vec{}, false
	}
	return tc.Tip.Vec(), true
}

// CalibrationStatus provides status information about calibration
type CalibrationStatus struct {
	CalibratedTools []string           `json:"calibratedTools"`
	MissingTools    []string           `json:"missingTools"`
	RMS             map[string]float64 `json:"rms,omitempty"`
	LastUpdated     time.Time          `json:"lastUpdated"`
}

// GetStatus returns the current calibration status
func (c *CalibrationData) GetStatus(expectedTools []string) CalibrationStatus {
	status := CalibrationStatus{
		RMS: make(map[string]float64),
	}

	if c == nil {
		status.MissingTools = expectedTools
		return status
	}

	status.LastUpdated = time.Unix(c.LastUpdated, 0)

	calibrated := make(map[string]bool)
	for id, tc := range c.Tools {
		status.CalibratedTools = append(status.CalibratedTools, id)
		status.RMS[id] = tc.RMS
		calibrated[id] = true
	}
	sort.Strings(status.CalibratedTools)

	for _, id := range expectedTools {
		if !calibrated[id] {
			status.MissingTools = append(status.MissingTools, id)
		}
	}

	return status
}

// NeedsRecalibration checks if calibration should be refreshed
func (c *CalibrationData) NeedsRecalibration(maxAge time.Duration) bool {
	if c == nil || c.LastUpdated == 0 {
		return true
	}
	return time.Since(time.Unix(c.LastUpdated, 0)) > maxAge
}
