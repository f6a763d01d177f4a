package mesh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	// DefaultMinCalibrationInterval is the minimum time between calibrations
	// for the same tool (debounce).
	DefaultMinCalibrationInterval = 5 * time.Second

	// DefaultMinPivotFrames is the fewest pointer poses a recording needs.
	DefaultMinPivotFrames = 10

	// StatePivoting starts a pivot recording; any other state ends it.
	StatePivoting = "pivoting"
)

// CalibrationHandler is called after a tool's calibration has been stored
type CalibrationHandler func(toolID string, cal ToolCalibration)

// PivotCollector records pointer poses while a tool reports the pivoting
// state and runs a pivot calibration when the recording ends. Accepted
// results are stored in the calibration cache and persisted.
type PivotCollector struct {
	config      *Config
	cache       *CalibrationData
	cachePath   string
	opts        PivotOptions
	minFrames   int
	minInterval time.Duration
	onCalibrate CalibrationHandler

	mu             sync.Mutex
	recordings     map[string][]PointCloud
	lastCalibrated map[string]time.Time
}

// NewPivotCollector creates a PivotCollector ready to handle state and frame events.
func NewPivotCollector(config *Config, cache *CalibrationData, cachePath string) *PivotCollector {
	if cache == nil {
		cache = &CalibrationData{
			Tools: make(map[string]ToolCalibration),
		}
	}
	return &PivotCollector{
		config:         config,
		cache:          cache,
		cachePath:      cachePath,
		opts:           config.PivotOptions(),
		minFrames:      DefaultMinPivotFrames,
		minInterval:    DefaultMinCalibrationInterval,
		recordings:     make(map[string][]PointCloud),
		lastCalibrated: make(map[string]time.Time),
	}
}

// SetMinFrames overrides DefaultMinPivotFrames
func (pc *PivotCollector) SetMinFrames(n int) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if n > 0 {
		pc.minFrames = n
	}
}

// SetMinInterval overrides DefaultMinCalibrationInterval
func (pc *PivotCollector) SetMinInterval(d time.Duration) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.minInterval = d
}

// SetCalibrationHandler registers a callback run after every stored calibration
func (pc *PivotCollector) SetCalibrationHandler(h CalibrationHandler) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.onCalibrate = h
}

// IsRecording reports whether a pivot recording is in progress for the tool
func (pc *PivotCollector) IsRecording(toolID string) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, ok := pc.recordings[toolID]
	return ok
}

// OnFrame appends the pointer markers of frame while the tool is recording.
// With a configured reference body the markers are recorded in reference
// coordinates, so the reference may move during the recording. It reports
// whether the frame was consumed.
func (pc *PivotCollector) OnFrame(toolID string, frame TrackerFrame) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	rec, ok := pc.recordings[toolID]
	if !ok {
		return false
	}
	markers, err := pc.pointerMarkers(frame)
	if err != nil {
		log.Printf("[PIVOT] %s: dropping frame: %v", toolID, err)
		return false
	}
	pc.recordings[toolID] = append(rec, markers)
	return true
}

// pointerMarkers returns the pointer markers in the frame every pose of a
// recording shares: the reference body when one is configured.
func (pc *PivotCollector) pointerMarkers(frame TrackerFrame) (PointCloud, error) {
	if pc.config == nil || len(pc.config.Reference.Markers) == 0 {
		return frame.Role(RolePointer)
	}
	return frame.RoleInReference(RolePointer, pc.config.Reference.Markers.Cloud())
}

// OnStateChange is the StateHandler callback registered with the MQTT client.
// It is safe to call from any goroutine.
func (pc *PivotCollector) OnStateChange(toolID, state string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if state == StatePivoting {
		if _, ok := pc.recordings[toolID]; !ok {
			log.Printf("[PIVOT] %s: recording started", toolID)
			pc.recordings[toolID] = nil
		}
		return
	}

	rec, ok := pc.recordings[toolID]
	if !ok {
		return
	}
	delete(pc.recordings, toolID)
	log.Printf("[PIVOT] %s: recording stopped with %d poses", toolID, len(rec))

	// --- Step 1: Debounce ---
	if last, ok := pc.lastCalibrated[toolID]; ok && time.Since(last) < pc.minInterval {
		log.Printf("[PIVOT] %s: skipping, last calibrated %s ago (min interval %s)",
			toolID, time.Since(last).Round(time.Second), pc.minInterval)
		return
	}

	// --- Step 2: Enough poses ---
	if len(rec) < pc.minFrames {
		log.Printf("[PIVOT] %s: skipping, %d poses recorded, need %d", toolID, len(rec), pc.minFrames)
		return
	}

	// --- Step 3: Solve ---
	res, err := CalibrateWith(context.Background(), rec, pc.opts)
	if err != nil {
		if errors.Is(err, ErrIllConditioned) {
			log.Printf("[PIVOT] %s: rejected ill-conditioned calibration (rank=%d, rms=%.3f): %v (preserving existing calibration)",
				toolID, res.Rank, res.RMS, err)
		} else {
			log.Printf("[PIVOT] %s: calibration failed: %v (preserving existing calibration)", toolID, err)
		}
		return
	}
	log.Printf("[PIVOT] %s: tip=(%.3f, %.3f, %.3f) pivot=(%.3f, %.3f, %.3f) rms=%.4f cond=%.1f",
		toolID, res.Tip.X, res.Tip.Y, res.Tip.Z, res.Pivot.X, res.Pivot.Y, res.Pivot.Z, res.RMS, res.Condition)

	// --- Step 4: Express the tip in the configured body frame ---
	var markers PointCloud
	if tc := pc.config.GetToolByID(toolID); tc != nil && len(tc.Markers) == rec[0].Len() {
		markers = tc.Markers.Cloud()
	}
	cal, err := NewToolCalibration(res, markers)
	if err != nil {
		log.Printf("[PIVOT] %s: %v (preserving existing calibration)", toolID, err)
		return
	}

	// --- Step 5: Update cache ---
	pc.cache.SetTool(toolID, cal)
	pc.persistAndRecord(toolID)

	if pc.onCalibrate != nil {
		pc.onCalibrate(toolID, cal)
	}
}

// GetCache returns the current calibration data (for use by the app layer).
func (pc *PivotCollector) GetCache() *CalibrationData {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.cache
}

// ToolBody resolves the rigid body of a tool against the current cache.
func (pc *PivotCollector) ToolBody(toolID string) (RigidBody, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.config.ToolBody(toolID, pc.cache)
}

// Status reports which configured tools have a stored calibration.
func (pc *PivotCollector) Status() CalibrationStatus {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.cache.GetStatus(pc.config.ToolIDs())
}

// persistAndRecord saves the calibration cache to disk and updates the in-memory
// debounce timestamp.
func (pc *PivotCollector) persistAndRecord(toolID string) {
	if pc.cachePath != "" {
		if err := SaveCalibration(pc.cachePath, pc.cache); err != nil {
			log.Printf("[PIVOT] %s: failed to save calibration cache: %v", toolID, err)
		} else {
			log.Printf("[PIVOT] %s: calibration cache saved to %s", toolID, pc.cachePath)
		}
	}
	pc.lastCalibrated[toolID] = time.Now()
	log.Printf("[PIVOT] %s: calibration complete", toolID)
}

// String implements fmt.Stringer for debug logging.
func (pc *PivotCollector) String() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return fmt.Sprintf("PivotCollector{cachePath=%s, tools=%d, recording=%d, lastCalibrated=%d}",
		pc.cachePath, len(pc.cache.Tools), len(pc.recordings), len(pc.lastCalibrated))
}
