package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kwv/stylus/mesh"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	defaultConfigFile = "config.yaml"
	defaultDataDir    = "."
	defaultHTTPPort   = 8080
)

// Runner is the set of modes selectable from the command line
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunCalibration(path string) error
	RunRegistration(path string) error
	RunExpected(path string) error
	RunQuery(path string) error
	RunCompare(n int) error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}

// run parses args and dispatches to exactly one mode of app.
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("stylus", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", defaultConfigFile, "Path to configuration file")
	fs.StringVar(&opts.CalibrationCache, "calibration-cache", mesh.DefaultCalibrationCachePath, "Path to pivot calibration cache file")
	fs.StringVar(&opts.DataDir, "data-dir", defaultDataDir, "Directory for config, caches and surface files")
	fs.StringVar(&opts.SurfaceFile, "surface", "", "Surface JSON file (overrides config)")
	fs.StringVar(&opts.Tool, "tool", "", "Tool ID for --calibrate, --register and --query (default: first configured tool)")
	fs.StringVar(&opts.CalibrateFile, "calibrate", "", "Run pivot calibration on a recording and exit")
	fs.StringVar(&opts.RegisterFile, "register", "", "Register the reference body to the surface from a fiducial recording and exit")
	fs.StringVar(&opts.ExpectedFile, "expected", "", "Predict calibration object targets for a recording and exit")
	fs.StringVar(&opts.QueryFile, "query", "", "Navigate a recording against the surface and exit")
	fs.IntVar(&opts.CompareCount, "compare", 0, "Compare the search strategy with brute force on N random points and exit")
	fs.StringVar(&opts.Strategy, "strategy", "", "Closest-point strategy: brute, indexed, exact or boxed (overrides config)")
	fs.IntVar(&opts.Neighbors, "neighbors", 0, "Centroid neighbors checked by the indexed strategy (overrides config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode for live navigation")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for results and calibration status")
	fs.IntVar(&opts.HttpPort, "http-port", defaultHTTPPort, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "stylus version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.CalibrateFile != "":
		return app.RunCalibration(opts.CalibrateFile)
	case opts.RegisterFile != "":
		return app.RunRegistration(opts.RegisterFile)
	case opts.ExpectedFile != "":
		return app.RunExpected(opts.ExpectedFile)
	case opts.QueryFile != "":
		return app.RunQuery(opts.QueryFile)
	case opts.CompareCount > 0:
		return app.RunCompare(opts.CompareCount)
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "stylus service starting...")
	fmt.Fprintln(out, "Use --calibrate=FILE to solve a pivot calibration from a recording")
	fmt.Fprintln(out, "Use --register=FILE to register the reference body to the surface from touched fiducials")
	fmt.Fprintln(out, "Use --expected=FILE to predict calibration object targets")
	fmt.Fprintln(out, "Use --query=FILE to navigate a recording against the surface")
	fmt.Fprintln(out, "Use --compare=N to check the search strategy against brute force")
	fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
	fmt.Fprintln(out, "Use --http to run HTTP server mode")
	fmt.Fprintln(out, "Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - tools, reference body, surface and MQTT settings")
	fmt.Fprintf(out, "  %s - pivot calibrations and fiducial registration (cached)\n", mesh.DefaultCalibrationCachePath)
	return nil
}
