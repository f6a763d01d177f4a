package mesh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `mqtt:
  broker: tcp://localhost:1883
  publishPrefix: stylus
  clientId: stylus-test
surface: surface.json
reference:
  markers:
    - [50, 0, 0]
    - [0, 50, 0]
    - [-40, 10, 5]
    - [0, 0, 45]
tools:
  - id: probe
    topic: tracker/probe
    markers:
      - [20, 0, 0]
      - [0, 30, 0]
      - [0, 0, 25]
      - [-15, -10, 0]
  - id: needle
    topic: tracker/needle
    markers:
      - [10, 0, 0]
      - [0, 10, 0]
      - [0, 0, 10]
    tip: [0, 0, 150]
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func threeMarkers() Markers {
	return Markers{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validConfigYAML())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if len(cfg.Tools) != 2 {
		t.Fatalf("len(Tools) = %d, want 2", len(cfg.Tools))
	}
	if cfg.Tools[0].ID != "probe" {
		t.Errorf("Tools[0].ID = %q, want %q", cfg.Tools[0].ID, "probe")
	}
	if cfg.Tools[1].Topic != "tracker/needle" {
		t.Errorf("Tools[1].Topic = %q, want %q", cfg.Tools[1].Topic, "tracker/needle")
	}
	if cfg.Tools[0].HasManualTip() {
		t.Error("probe should have no manual tip")
	}
	if !cfg.Tools[1].HasManualTip() || *cfg.Tools[1].Tip != (Vec3{0, 0, 150}) {
		t.Errorf("needle tip = %v", cfg.Tools[1].Tip)
	}
	if len(cfg.Reference.Markers) != 4 {
		t.Errorf("len(Reference.Markers) = %d, want 4", len(cfg.Reference.Markers))
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfigYAML()))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Search.Strategy != string(StrategyIndexed) {
		t.Errorf("Search.Strategy = %q, want %q", cfg.Search.Strategy, StrategyIndexed)
	}
	if cfg.Search.Neighbors != DefaultNeighbors {
		t.Errorf("Search.Neighbors = %d, want %d", cfg.Search.Neighbors, DefaultNeighbors)
	}
	if cfg.Registration.Method != string(MethodSVD) {
		t.Errorf("Registration.Method = %q, want %q", cfg.Registration.Method, MethodSVD)
	}
	if cfg.Registration.MaxCondition != DefaultMaxCondition {
		t.Errorf("Registration.MaxCondition = %v, want %v", cfg.Registration.MaxCondition, DefaultMaxCondition)
	}
	if !cfg.Registration.Transform.Frame().AlmostEqual(Identity(), 0) {
		t.Error("unset transform should be identity")
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no tools",
			yaml:    "mqtt:\n  broker: tcp://localhost:1883\n",
			wantErr: "at least one tool",
		},
		{
			name: "missing id",
			yaml: `tools:
  - topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "tools[0].id is required",
		},
		{
			name: "missing topic",
			yaml: `tools:
  - id: a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "tools[0].topic is required for a",
		},
		{
			name: "duplicate id",
			yaml: `tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
  - id: a
    topic: tracker/b
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "duplicated",
		},
		{
			name: "too few markers",
			yaml: `tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0]]
`,
			wantErr: "needs at least 3 markers",
		},
		{
			name: "short reference",
			yaml: `reference:
  markers: [[1,0,0]]
tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "reference.markers",
		},
		{
			name: "unknown strategy",
			yaml: `search:
  strategy: octree
tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "search.strategy",
		},
		{
			name: "unknown method",
			yaml: `registration:
  method: icp
tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "registration.method",
		},
		{
			name: "reflection transform",
			yaml: `registration:
  transform:
    rotation: [[1,0,0],[0,1,0],[0,0,-1]]
    translation: [0,0,0]
tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "proper rotation",
		},
		{
			name: "too few fiducials",
			yaml: `registration:
  fiducials: [[0,0,0],[10,0,0]]
tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "registration.fiducials",
		},
		{
			name: "negative parallelism",
			yaml: `search:
  parallelism: -2
tools:
  - id: a
    topic: tracker/a
    markers: [[1,0,0],[0,1,0],[0,0,1]]
`,
			wantErr: "search.parallelism",
		},
		{
			name:    "malformed yaml",
			yaml:    "tools: [",
			wantErr: "parsing config YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// SaveConfig
// ---------------------------------------------------------------------------

func TestSaveConfig(t *testing.T) {
	tip := Vec3{1, 2, 3}
	cfg := &Config{
		MQTT: MQTTConfig{Broker: "tcp://broker:1883", ClientID: "stylus-save"},
		Registration: RegistrationConfig{
			Method:    "quaternion",
			Transform: &FrameConfig{Rotation: [3]Vec3{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}, Translation: Vec3{10, 0, 0}},
		},
		Tools: []ToolConfig{{ID: "probe", Topic: "tracker/probe", Markers: threeMarkers(), Tip: &tip}},
	}

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save: %v", err)
	}
	if got.MQTT.ClientID != "stylus-save" {
		t.Errorf("ClientID = %q", got.MQTT.ClientID)
	}
	if got.Registration.Method != "quaternion" {
		t.Errorf("Method = %q", got.Registration.Method)
	}
	if got.Tools[0].Tip == nil || *got.Tools[0].Tip != tip {
		t.Errorf("Tip = %v, want %v", got.Tools[0].Tip, tip)
	}
	p := got.Registration.Transform.Frame().Apply(r3.Vec{X: 1})
	if !vecsEqual(p, r3.Vec{X: 10, Y: 1}, tolerance) {
		t.Errorf("transform maps x axis to %v", p)
	}
}

// ---------------------------------------------------------------------------
// derived settings
// ---------------------------------------------------------------------------

func TestConfig_PivotOptions(t *testing.T) {
	cfg := &Config{Registration: RegistrationConfig{Method: "quaternion", MaxCondition: 500}}
	opts := cfg.PivotOptions()
	if opts.Method != MethodQuaternion || opts.MaxCondition != 500 {
		t.Errorf("PivotOptions() = %+v", opts)
	}

	var nilCfg *Config
	if got := nilCfg.PivotOptions(); got != DefaultPivotOptions() {
		t.Errorf("nil config PivotOptions() = %+v", got)
	}
}

func TestConfig_ToolBody(t *testing.T) {
	manual := Vec3{0, 0, 99}
	cfg := &Config{Tools: []ToolConfig{
		{ID: "manual", Topic: "t/manual", Markers: threeMarkers(), Tip: &manual},
		{ID: "cached", Topic: "t/cached", Markers: threeMarkers()},
		{ID: "uncalibrated", Topic: "t/uncal", Markers: threeMarkers()},
	}}
	cache := &CalibrationData{Tools: map[string]ToolCalibration{
		"manual": {Tip: Vec3{1, 1, 1}},
		"cached": {Tip: Vec3{0, 0, 120}},
	}}

	tests := []struct {
		id      string
		wantTip r3.Vec
		wantOK  bool
	}{
		{id: "manual", wantTip: r3.Vec{Z: 99}, wantOK: true},
		{id: "cached", wantTip: r3.Vec{Z: 120}, wantOK: true},
		{id: "uncalibrated", wantOK: false},
		{id: "unknown", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			body, ok := cfg.ToolBody(tt.id, cache)
			if ok != tt.wantOK {
				t.Fatalf("ToolBody(%q) ok = %v, want %v", tt.id, ok, tt.wantOK)
			}
			if ok && body.Tip != tt.wantTip {
				t.Errorf("ToolBody(%q) tip = %v, want %v", tt.id, body.Tip, tt.wantTip)
			}
		})
	}

	if body, _ := cfg.ToolBody("cached", nil); body.Markers.Len() != 3 {
		t.Errorf("markers = %d, want 3", body.Markers.Len())
	}
}

func TestConfig_RegistrationFrame(t *testing.T) {
	stored := NewFrame(RotationFromAxisAngle(r3.Vec{Z: 1}, 0.4), r3.Vec{X: 7})
	cache := &CalibrationData{Registration: &RegistrationCalibration{Transform: ToFrameConfig(stored)}}
	manual := &FrameConfig{Rotation: [3]Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, Translation: Vec3{0, 0, 5}}

	tests := []struct {
		name  string
		cfg   *Config
		cache *CalibrationData
		want  Frame
	}{
		{name: "nothing configured", cfg: &Config{}, want: Identity()},
		{name: "nil config", want: Identity()},
		{name: "stored registration", cfg: &Config{}, cache: cache, want: stored},
		{name: "manual transform wins", cfg: &Config{Registration: RegistrationConfig{Transform: manual}}, cache: cache, want: Translation(r3.Vec{Z: 5})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.RegistrationFrame(tt.cache); !got.AlmostEqual(tt.want, tolerance) {
				t.Errorf("RegistrationFrame() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadConfig_FiducialsAndCalibrationObject(t *testing.T) {
	body := validConfigYAML() + `registration:
  fiducials: [[0, 0, 0], [100, 0, 0], [0, 100, 0], [0, 0, 100]]
search:
  parallelism: 3
calibrationObject:
  base: [[0, 0, 0], [1, 0, 0], [0, 1, 0]]
  object: [[0, 0, 0], [2, 0, 0], [0, 2, 0]]
  targets: [[5, 5, 5]]
`
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if n := len(cfg.Registration.Fiducials); n != 4 {
		t.Errorf("fiducials = %d, want 4", n)
	}
	if cfg.Search.Parallelism != 3 {
		t.Errorf("parallelism = %d, want 3", cfg.Search.Parallelism)
	}
	if cfg.CalibrationObject == nil {
		t.Fatal("calibrationObject not loaded")
	}
	cb := cfg.CalibrationObject.Body()
	if cb.Base.Len() != 3 || cb.Object.Len() != 3 || cb.Targets.Len() != 1 {
		t.Errorf("calibration body = %d/%d/%d markers", cb.Base.Len(), cb.Object.Len(), cb.Targets.Len())
	}
}

func TestConfig_GetToolByID(t *testing.T) {
	cfg := &Config{Tools: []ToolConfig{{ID: "a"}, {ID: "b"}}}
	if tc := cfg.GetToolByID("b"); tc == nil || tc.ID != "b" {
		t.Errorf("GetToolByID(b) = %v", tc)
	}
	if tc := cfg.GetToolByID("c"); tc != nil {
		t.Errorf("GetToolByID(c) = %v, want nil", tc)
	}
	if ids := cfg.ToolIDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ToolIDs() = %v", ids)
	}

	var nilCfg *Config
	if nilCfg.GetToolByID("a") != nil {
		t.Error("nil config should return nil tool")
	}
}
