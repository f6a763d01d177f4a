package mesh

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
)

// SurfaceFile is the JSON exchange shape of a triangle mesh
type SurfaceFile struct {
	Vertices  []Vec3   `json:"vertices"`
	Triangles [][3]int `json:"triangles"`
}

// LoadSurfaceFile reads and parses a surface JSON file
func LoadSurfaceFile(path string) (*Surface, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseSurfaceJSON(data)
}

// ParseSurfaceJSON parses surface JSON data and validates the indices
func ParseSurfaceJSON(data []byte) (*Surface, error) {
	var sf SurfaceFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	vertices := make([]r3.Vec, len(sf.Vertices))
	for i, v := range sf.Vertices {
		vertices[i] = v.Vec()
	}
	return NewSurface(vertices, sf.Triangles)
}

// MarshalSurface encodes a surface in the JSON exchange shape
func MarshalSurface(s *Surface) ([]byte, error) {
	sf := SurfaceFile{
		Vertices:  make([]Vec3, s.NumVertices()),
		Triangles: make([][3]int, s.Len()),
	}
	for i, v := range s.vertices {
		sf.Vertices[i] = ToVec3(v)
	}
	copy(sf.Triangles, s.triangles)
	return json.Marshal(sf)
}

// PivotRecording is a list of pointer marker clouds, one per pose
type PivotRecording struct {
	Frames []Markers `json:"frames"`
}

// LoadPivotRecording reads a pivot recording file
func LoadPivotRecording(path string) ([]PointCloud, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var rec PivotRecording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	clouds := make([]PointCloud, len(rec.Frames))
	for i, m := range rec.Frames {
		clouds[i] = m.Cloud()
	}
	return clouds, nil
}

// NavigationRecording is a list of tracker frames
type NavigationRecording struct {
	Frames []json.RawMessage `json:"frames"`
}

// LoadNavigationRecording reads a navigation recording file. Frames
// without an explicit index are numbered by position.
func LoadNavigationRecording(path string) ([]TrackerFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var rec NavigationRecording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	frames := make([]TrackerFrame, len(rec.Frames))
	for i, raw := range rec.Frames {
		f, err := parseTrackerFrame(raw)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if f.Index < 0 {
			f.Index = i
		}
		frames[i] = f
	}
	return frames, nil
}
