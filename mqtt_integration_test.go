package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const integrationConfigYAML = `mqtt:
  broker: "tcp://localhost:1883"
  publishPrefix: "stylus-test"
  clientId: "stylus-test"
tools:
  - id: probe
    topic: "test/tracker/probe/frames"
    markers: [[0, 0, 0], [10, 0, 0], [0, 10, 0], [0, 0, 10]]
    tip: [0, 0, -20]
reference:
  markers: [[0, 0, 0], [20, 0, 0], [0, 20, 0], [0, 0, 20]]
surface: surface.json
`

// buildService compiles the binary into dir.
func buildService(t *testing.T, dir string) string {
	t.Helper()
	binaryPath := filepath.Join(dir, "stylus-test")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, output)
	}
	return binaryPath
}

// TestMQTTServiceStartupShutdown runs the service binary against a local broker
func TestMQTTServiceStartupShutdown(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	writeTestFile(t, tmpDir, "config.yaml", integrationConfigYAML)
	writeTestFile(t, tmpDir, "surface.json", planeSurfaceJSON)
	binaryPath := buildService(t, tmpDir)

	tests := []struct {
		name           string
		args           []string
		expectInOutput []string
		expectFailure  bool
		timeout        time.Duration
	}{
		{
			name: "successful startup with config",
			args: []string{"--mqtt", "--data-dir=" + tmpDir},
			expectInOutput: []string{
				"Starting stylus service",
				"Loaded config from",
				"Surface ready: 1 triangles",
				"Service Running",
				"test/tracker/probe/frames",
				"Combined results: stylus-test/results",
				"Press Ctrl+C to stop",
			},
			timeout: 5 * time.Second,
		},
		{
			name: "missing config file",
			args: []string{"--mqtt", "--config=" + filepath.Join(tmpDir, "nonexistent.yaml")},
			expectInOutput: []string{
				"Starting stylus service",
				"failed to load config",
			},
			expectFailure: true,
			timeout:       2 * time.Second,
		},
		{
			name: "with calibration cache warning",
			args: []string{"--mqtt", "--data-dir=" + tmpDir, "--calibration-cache=" + filepath.Join(tmpDir, "nonexistent-cache.json")},
			expectInOutput: []string{
				"Warning: No calibration cache found",
			},
			timeout: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, binaryPath, tt.args...)
			output, err := cmd.CombinedOutput()
			outputStr := string(output)

			for _, expected := range tt.expectInOutput {
				if !strings.Contains(outputStr, expected) {
					t.Errorf("Expected output to contain '%s', but it didn't.\nFull output:\n%s",
						expected, outputStr)
				}
			}

			if tt.expectFailure && err == nil {
				t.Error("Expected command to fail, but it succeeded")
			}
		})
	}
}

// TestMQTTServiceSignalHandling tests SIGINT handling
func TestMQTTServiceSignalHandling(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	writeTestFile(t, tmpDir, "config.yaml", integrationConfigYAML)
	writeTestFile(t, tmpDir, "surface.json", planeSurfaceJSON)
	binaryPath := buildService(t, tmpDir)

	cmd := exec.Command(binaryPath, "--mqtt", "--http", "--http-port=18080", "--data-dir="+tmpDir)
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}

	// Give it time to start
	time.Sleep(2 * time.Second)

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Logf("Failed to send SIGINT (process may have already exited): %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Service exited with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Service did not shut down within timeout")
		if err := cmd.Process.Kill(); err != nil {
			t.Logf("Failed to kill process: %v", err)
		}
	}
}

// TestServiceHelpFlag checks the service flags are documented
func TestServiceHelpFlag(t *testing.T) {
	var out bytes.Buffer
	_ = run([]string{"--help"}, &out, newMockApp())

	outputStr := out.String()
	for _, want := range []string{"-mqtt", "MQTT service mode", "-http-port", "-calibrate", "-strategy"} {
		if !strings.Contains(outputStr, want) {
			t.Errorf("Expected --help output to contain %q", want)
		}
	}
}
