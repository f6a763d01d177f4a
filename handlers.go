package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kwv/stylus/mesh"
)

// newHTTPServer creates an HTTP server with all endpoints. calibration is
// called per request so the status follows live pivot calibrations.
func newHTTPServer(stateTracker *mesh.StateTracker, calibration func() mesh.CalibrationStatus) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasSurface bool      `json:"hasSurface"`
			Triangles  int       `json:"triangles"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasSurface: stateTracker.HasSurface(),
			Triangles:  stateTracker.GetSurface().Len(),
		}
		writeJSON(w, status)
	})

	// Latest navigation state of every tool
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, stateTracker.GetStates())
	})

	// Latest navigation state of one tool
	mux.HandleFunc("/results/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/results/"), "/")
		if id == "" {
			writeJSON(w, stateTracker.GetStates())
			return
		}
		ts, ok := stateTracker.GetStates()[id]
		if !ok {
			http.Error(w, "Unknown tool", http.StatusNotFound)
			return
		}
		writeJSON(w, ts)
	})

	// Pivot calibration status
	mux.HandleFunc("/calibration", func(w http.ResponseWriter, r *http.Request) {
		if calibration == nil {
			http.Error(w, "Calibration not available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, calibration())
	})

	// Active surface in the JSON exchange shape
	mux.HandleFunc("/surface.json", func(w http.ResponseWriter, r *http.Request) {
		surface := stateTracker.GetSurface()
		if surface == nil {
			http.Error(w, "No surface available", http.StatusServiceUnavailable)
			return
		}
		data, err := mesh.MarshalSurface(surface)
		if err != nil {
			log.Printf("Error encoding surface: %v", err)
			http.Error(w, "Failed to encode surface", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("Error writing surface: %v", err)
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
