package mesh

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// trackerFramePayload is the wire shape of one tracker sample:
// {"frame": n, "markers": {"pointer": [[x,y,z], ...], "reference": [...]}}
type trackerFramePayload struct {
	Frame   *int               `json:"frame"`
	Markers map[string]Markers `json:"markers"`
}

// DecodeTrackerFrame decodes a tracker sample from various formats:
// - Raw JSON (primary format from MQTT)
// - Zlib-compressed JSON
func DecodeTrackerFrame(data []byte) (TrackerFrame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return TrackerFrame{}, fmt.Errorf("empty data")
	}

	jsonBytes := data
	if data[0] != '{' {
		var err error
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return TrackerFrame{}, fmt.Errorf("unknown format: not JSON or zlib-compressed")
		}
	}

	if len(jsonBytes) == 0 {
		return TrackerFrame{}, fmt.Errorf("decoded JSON payload is empty")
	}
	return parseTrackerFrame(jsonBytes)
}

// parseTrackerFrame resolves role names once. Index is -1 when the payload
// carries no frame number.
func parseTrackerFrame(data []byte) (TrackerFrame, error) {
	var p trackerFramePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return TrackerFrame{}, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(p.Markers) == 0 {
		return TrackerFrame{}, fmt.Errorf("tracker frame has no markers")
	}

	f := TrackerFrame{Index: -1, Markers: make(map[MarkerRole]PointCloud, len(p.Markers))}
	if p.Frame != nil {
		f.Index = *p.Frame
	}
	for name, m := range p.Markers {
		role, err := ParseMarkerRole(name)
		if err != nil {
			return TrackerFrame{}, err
		}
		if role == RoleDummy {
			continue
		}
		f.Markers[role] = m.Cloud()
	}
	return f, nil
}

// EncodeTrackerFrame is the inverse of DecodeTrackerFrame for raw JSON.
func EncodeTrackerFrame(f TrackerFrame) ([]byte, error) {
	idx := f.Index
	p := trackerFramePayload{Frame: &idx, Markers: make(map[string]Markers, len(f.Markers))}
	for role, c := range f.Markers {
		m := make(Markers, c.Len())
		for i := range m {
			m[i] = ToVec3(c.At(i))
		}
		p.Markers[role.String()] = m
	}
	return json.Marshal(p)
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}

	return decompressed, nil
}
