package mesh

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// minBodyMarkers is the fewest markers that define a rigid pose.
const minBodyMarkers = 3

// LoadConfig loads the unified configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills unset search and registration settings
func (c *Config) ApplyDefaults() {
	if c.Search.Strategy == "" {
		c.Search.Strategy = string(StrategyIndexed)
	}
	if c.Search.Neighbors <= 0 {
		c.Search.Neighbors = DefaultNeighbors
	}
	if c.Registration.Method == "" {
		c.Registration.Method = string(MethodSVD)
	}
	if c.Registration.MaxCondition <= 0 {
		c.Registration.MaxCondition = DefaultMaxCondition
	}
}

// Validate checks tools, bodies and enum settings. The MQTT broker is
// checked when connecting, since offline modes do not need it.
func (c *Config) Validate() error {
	if len(c.Tools) == 0 {
		return fmt.Errorf("at least one tool must be defined")
	}

	seen := make(map[string]bool)
	for i, tc := range c.Tools {
		if tc.ID == "" {
			return fmt.Errorf("tools[%d].id is required", i)
		}
		if tc.Topic == "" {
			return fmt.Errorf("tools[%d].topic is required for %s", i, tc.ID)
		}
		if seen[tc.ID] {
			return fmt.Errorf("tools[%d].id %s is duplicated", i, tc.ID)
		}
		seen[tc.ID] = true
		if len(tc.Markers) < minBodyMarkers {
			return fmt.Errorf("tools[%d].markers needs at least %d markers for %s", i, minBodyMarkers, tc.ID)
		}
	}

	if n := len(c.Reference.Markers); n > 0 && n < minBodyMarkers {
		return fmt.Errorf("reference.markers needs at least %d markers", minBodyMarkers)
	}
	if _, err := ParseSearchStrategy(c.Search.Strategy); err != nil {
		return fmt.Errorf("search.strategy: %w", err)
	}
	if _, err := ParseRegistrationMethod(c.Registration.Method); err != nil {
		return fmt.Errorf("registration.method: %w", err)
	}
	if tf := c.Registration.Transform; tf != nil && !tf.Frame().R.IsProper(1e-6) {
		return fmt.Errorf("registration.transform.rotation must be a proper rotation")
	}
	if n := len(c.Registration.Fiducials); n > 0 && n < minFiducials {
		return fmt.Errorf("registration.fiducials needs at least %d points", minFiducials)
	}
	if c.Search.Parallelism < 0 {
		return fmt.Errorf("search.parallelism must not be negative")
	}

	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// PivotOptions builds calibration options from the registration settings
func (c *Config) PivotOptions() PivotOptions {
	if c == nil {
		return DefaultPivotOptions()
	}
	method, err := ParseRegistrationMethod(c.Registration.Method)
	if err != nil {
		method = MethodSVD
	}
	return PivotOptions{Method: method, MaxCondition: c.Registration.MaxCondition}
}

// ToolBody builds the rigid body of a tool. A manual tip in config takes
// precedence over the cached pivot calibration. The boolean reports whether
// any tip was found.
func (c *Config) ToolBody(id string, cache *CalibrationData) (RigidBody, bool) {
	if c == nil {
		return RigidBody{}, false
	}
	tc := c.GetToolByID(id)
	if tc == nil {
		return RigidBody{}, false
	}
	body := RigidBody{Markers: tc.Markers.Cloud()}
	if tc.HasManualTip() {
		body.Tip = tc.Tip.Vec()
		return body, true
	}
	if tip, ok := cache.GetTip(id); ok {
		body.Tip = tip
		return body, true
	}
	return body, false
}

// RegistrationFrame returns the reference-to-surface frame. A manual
// registration.transform takes precedence over the cached fiducial
// registration; with neither the frame is the identity.
func (c *Config) RegistrationFrame(cache *CalibrationData) Frame {
	if c != nil && c.Registration.Transform != nil {
		return c.Registration.Transform.Frame()
	}
	if f, ok := cache.RegistrationFrame(); ok {
		return f
	}
	return Identity()
}

// ReferenceBody returns the reference rigid body from config
func (c *Config) ReferenceBody() RigidBody {
	return RigidBody{Markers: c.Reference.Markers.Cloud()}
}
