package mesh

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateTracker tracks live tool states and the active surface for HTTP endpoints
type StateTracker struct {
	mu        sync.RWMutex
	tools     map[string]*ToolState
	surface   *Surface
	finder    Finder
	cachePath string // path to a surface JSON cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		tools: make(map[string]*ToolState),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists the active
// surface to the given cache file path. If the file exists, the cached
// surface is loaded on creation; a finder still has to be attached with SetSurface.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath
	if cachePath != "" {
		if s, err := LoadSurfaceFile(cachePath); err == nil {
			st.surface = s
		}
	}
	return st
}

func (st *StateTracker) toolLocked(toolID string) *ToolState {
	ts, ok := st.tools[toolID]
	if !ok {
		ts = &ToolState{ID: toolID}
		st.tools[toolID] = ts
	}
	return ts
}

// UpdateResult stores the latest navigation result of a tool
func (st *StateTracker) UpdateResult(toolID string, res NavResult) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ts := st.toolLocked(toolID)
	r := res
	ts.Result = &r
	ts.LastUpdate = time.Now().Unix()
	ts.IsOnline = true
}

// SetMode records the last state reported by a tool
func (st *StateTracker) SetMode(toolID, mode string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ts := st.toolLocked(toolID)
	ts.Mode = mode
	ts.LastUpdate = time.Now().Unix()
}

// GetMode returns the last state reported by a tool, or empty string
func (st *StateTracker) GetMode(toolID string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if ts, ok := st.tools[toolID]; ok {
		return ts.Mode
	}
	return ""
}

// MarkOffline flags a tool as offline without dropping its last result
func (st *StateTracker) MarkOffline(toolID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if ts, ok := st.tools[toolID]; ok {
		ts.IsOnline = false
	}
}

// GetStates returns copies of all tool states
func (st *StateTracker) GetStates() map[string]*ToolState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*ToolState, len(st.tools))
	for k, v := range st.tools {
		c := *v
		if v.Result != nil {
			r := *v.Result
			c.Result = &r
		}
		result[k] = &c
	}
	return result
}

// SetSurface installs the surface and the finder built for it, persisting
// the surface when a cache path is configured
func (st *StateTracker) SetSurface(s *Surface, f Finder) {
	st.mu.Lock()
	st.surface = s
	st.finder = f
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" && s != nil {
		if err := SaveSurface(s, cachePath); err != nil {
			log.Printf("warning: failed to save surface cache: %v", err)
		}
	}
}

// GetSurface returns the active surface, or nil
func (st *StateTracker) GetSurface() *Surface {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.surface
}

// GetFinder returns the finder for the active surface, or nil
func (st *StateTracker) GetFinder() Finder {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.finder
}

// HasSurface returns true if a surface with at least one triangle is loaded
func (st *StateTracker) HasSurface() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.surface.Len() > 0
}

// SaveSurface writes a surface to disk in the JSON exchange shape.
func SaveSurface(s *Surface, path string) error {
	data, err := MarshalSurface(s)
	if err != nil {
		return fmt.Errorf("marshal surface: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write surface cache: %w", err)
	}
	return nil
}
