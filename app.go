package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kwv/stylus/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	surfaceCacheFile = ".surface-cache.json"

	// compareTolerance is the distance within which two finders agree.
	compareTolerance = 1e-9
	// compareMargin widens the surface bounds when sampling query points.
	compareMargin = 0.1
)

var errNoSurface = errors.New("no surface configured: set surface or surfaceUrl in config, or pass --surface")

// AppOptions holds the parsed command line flags
type AppOptions struct {
	ConfigFile       string
	CalibrationCache string
	DataDir          string
	SurfaceFile      string
	Tool             string
	CalibrateFile    string
	RegisterFile     string
	ExpectedFile     string
	QueryFile        string
	CompareCount     int
	Strategy         string
	Neighbors        int
	HttpPort         int
	MqttMode         bool
	HttpMode         bool
}

// App encapsulates the application state and dependencies
type App struct {
	Config       *mesh.Config
	Calibration  *mesh.CalibrationData
	StateTracker *mesh.StateTracker
	MQTTClient   *mesh.MQTTClient
	Publisher    *mesh.Publisher
	Collector    *mesh.PivotCollector

	// Out receives the reports of the offline modes
	Out io.Writer

	// CLI Flags (effectively dependencies)
	DataDir          string
	ConfigFile       string
	CalibrationCache string
	SurfaceFile      string
	Tool             string
	Strategy         string
	Neighbors        int
	HttpPort         int
	MqttMode         bool
	HttpMode         bool
}

// NewApp creates a new App instance writing reports to out
func NewApp(out io.Writer) *App {
	if out == nil {
		out = io.Discard
	}
	return &App{
		StateTracker:     mesh.NewStateTracker(),
		Out:              out,
		DataDir:          defaultDataDir,
		ConfigFile:       defaultConfigFile,
		CalibrationCache: mesh.DefaultCalibrationCachePath,
		HttpPort:         defaultHTTPPort,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.DataDir = opts.DataDir
	a.ConfigFile = opts.ConfigFile
	a.CalibrationCache = opts.CalibrationCache
	a.SurfaceFile = opts.SurfaceFile
	a.Tool = opts.Tool
	a.Strategy = opts.Strategy
	a.Neighbors = opts.Neighbors
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// resolvePath places a file that still has its default name inside the data
// directory. Explicitly chosen paths are used as given.
func (a *App) resolvePath(path, def string) string {
	if a.DataDir == "" || a.DataDir == defaultDataDir {
		return path
	}
	if path == def || (path != "" && !filepath.IsAbs(path) && def == "") {
		return filepath.Join(a.DataDir, path)
	}
	return path
}

func (a *App) loadConfig() (*mesh.Config, error) {
	path := a.resolvePath(a.ConfigFile, defaultConfigFile)
	config, err := mesh.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w (looked at %s)", err, path)
	}
	a.Config = config
	log.Printf("Loaded config from %s", path)
	return config, nil
}

func (a *App) calibrationPath() string {
	return a.resolvePath(a.CalibrationCache, mesh.DefaultCalibrationCachePath)
}

// loadCalibration loads the pivot cache. A missing cache is not an error.
func (a *App) loadCalibration() error {
	path := a.calibrationPath()
	cache, err := mesh.LoadCalibration(path)
	if err != nil {
		return fmt.Errorf("failed to load calibration cache %s: %w", path, err)
	}
	if cache == nil {
		log.Printf("Warning: No calibration cache found at %s. Tools need a manual tip or a pivot calibration.", path)
		return nil
	}
	a.Calibration = cache
	log.Printf("Loaded calibration cache from %s (%d tools)", path, len(cache.Tools))
	return nil
}

// context returns a background context carrying the configured parallelism.
func (a *App) context() context.Context {
	ctx := context.Background()
	if a.Config != nil && a.Config.Search.Parallelism > 0 {
		ctx = mesh.WithParallelism(ctx, a.Config.Search.Parallelism)
	}
	return ctx
}

// searchSettings merges the search flags over the config file.
func (a *App) searchSettings() (mesh.SearchStrategy, int, error) {
	name, neighbors := a.Strategy, a.Neighbors
	if a.Config != nil {
		if name == "" {
			name = a.Config.Search.Strategy
		}
		if neighbors <= 0 {
			neighbors = a.Config.Search.Neighbors
		}
	}
	strategy, err := mesh.ParseSearchStrategy(name)
	if err != nil {
		return "", 0, err
	}
	return strategy, neighbors, nil
}

// loadSurface picks the surface from --surface, the config file, the
// configured API or the state tracker's cache, in that order.
func (a *App) loadSurface(ctx context.Context) (*mesh.Surface, error) {
	if a.SurfaceFile != "" {
		return mesh.LoadSurfaceFile(a.SurfaceFile)
	}
	if a.Config != nil && a.Config.Surface != "" {
		return mesh.LoadSurfaceFile(a.resolvePath(a.Config.Surface, ""))
	}
	if a.Config != nil && a.Config.SurfaceURL != "" {
		s, err := mesh.FetchSurfaceFromAPIWithContext(ctx, a.Config.SurfaceURL)
		if err == nil {
			return s, nil
		}
		if cached := a.StateTracker.GetSurface(); cached != nil {
			log.Printf("Warning: %v; using cached surface", err)
			return cached, nil
		}
		return nil, err
	}
	if cached := a.StateTracker.GetSurface(); cached != nil {
		return cached, nil
	}
	return nil, errNoSurface
}

// installSurface builds the configured finder for s and hands both to the
// state tracker.
func (a *App) installSurface(s *mesh.Surface) error {
	strategy, neighbors, err := a.searchSettings()
	if err != nil {
		return err
	}
	start := time.Now()
	finder, err := mesh.NewFinder(strategy, s, neighbors)
	if err != nil {
		return fmt.Errorf("building %s finder: %w", strategy, err)
	}
	a.StateTracker.SetSurface(s, finder)
	log.Printf("Surface ready: %d triangles, %d vertices, strategy=%s (%s)",
		s.Len(), s.NumVertices(), strategy, time.Since(start).Round(time.Millisecond))
	return nil
}

// toolID returns --tool or the first configured tool.
func (a *App) toolID() (string, error) {
	if a.Tool != "" {
		return a.Tool, nil
	}
	if ids := a.Config.ToolIDs(); len(ids) > 0 {
		return ids[0], nil
	}
	return "", fmt.Errorf("no tool selected: pass --tool or configure tools")
}

// toolBody resolves the rigid body of a tool, preferring the live collector cache.
func (a *App) toolBody(toolID string) (mesh.RigidBody, bool) {
	if a.Collector != nil {
		return a.Collector.ToolBody(toolID)
	}
	return a.Config.ToolBody(toolID, a.Calibration)
}

// calibrationCache returns the live cache, preferring the collector's.
func (a *App) calibrationCache() *mesh.CalibrationData {
	if a.Collector != nil {
		return a.Collector.GetCache()
	}
	return a.Calibration
}

// navigator builds a Navigator for toolID against the current surface.
func (a *App) navigator(toolID string) (*mesh.Navigator, error) {
	finder := a.StateTracker.GetFinder()
	if finder == nil {
		return nil, errNoSurface
	}
	body, ok := a.toolBody(toolID)
	if !ok {
		if a.Config.GetToolByID(toolID) == nil {
			return nil, fmt.Errorf("tool %s is not configured", toolID)
		}
		return nil, fmt.Errorf("tool %s has no tip: set tools[].tip or run --calibrate", toolID)
	}
	return &mesh.Navigator{
		Pointer:      body,
		Reference:    a.Config.ReferenceBody(),
		Registration: a.Config.RegistrationFrame(a.calibrationCache()),
		Finder:       finder,
	}, nil
}

// RunCalibration solves a pivot calibration from a recording. With --tool
// the result is stored in the calibration cache.
func (a *App) RunCalibration(path string) error {
	clouds, err := mesh.LoadPivotRecording(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Loaded %d poses from %s\n", len(clouds), path)

	opts := mesh.DefaultPivotOptions()
	if config, err := a.loadConfig(); err == nil {
		opts = config.PivotOptions()
	} else if a.Tool != "" {
		return err
	} else {
		log.Printf("Warning: %v; using default pivot options", err)
	}

	start := time.Now()
	res, err := mesh.CalibrateWith(a.context(), clouds, opts)
	if err != nil && !errors.Is(err, mesh.ErrIllConditioned) {
		return fmt.Errorf("pivot calibration: %w", err)
	}

	fmt.Fprintf(a.Out, "\n=== Pivot calibration (%s) ===\n", opts.Method)
	fmt.Fprintf(a.Out, "Tip:       (%.4f, %.4f, %.4f)\n", res.Tip.X, res.Tip.Y, res.Tip.Z)
	fmt.Fprintf(a.Out, "Pivot:     (%.4f, %.4f, %.4f)\n", res.Pivot.X, res.Pivot.Y, res.Pivot.Z)
	fmt.Fprintf(a.Out, "RMS:       %.6f\n", res.RMS)
	fmt.Fprintf(a.Out, "Rank:      %d\n", res.Rank)
	fmt.Fprintf(a.Out, "Condition: %.3g\n", res.Condition)
	fmt.Fprintf(a.Out, "Elapsed:   %s\n", time.Since(start).Round(time.Microsecond))
	if err != nil {
		fmt.Fprintln(a.Out, "\nWARNING: the poses do not determine the tip; rotate the tool about more than one axis")
		return err
	}

	if a.Tool == "" {
		return nil
	}
	return a.storeCalibration(a.Tool, res, clouds[0].Len())
}

func (a *App) storeCalibration(toolID string, res mesh.PivotResult, markerCount int) error {
	tc := a.Config.GetToolByID(toolID)
	if tc == nil {
		return fmt.Errorf("tool %s is not configured", toolID)
	}
	var markers mesh.PointCloud
	if len(tc.Markers) == markerCount {
		markers = tc.Markers.Cloud()
	} else {
		log.Printf("Warning: %s has %d configured markers but the recording has %d; storing the tip in recording coordinates",
			toolID, len(tc.Markers), markerCount)
	}
	cal, err := mesh.NewToolCalibration(res, markers)
	if err != nil {
		return err
	}

	path, err := a.updateCalibration(func(cache *mesh.CalibrationData) {
		cache.SetTool(toolID, cal)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "\nSaved %s tip (%.4f, %.4f, %.4f) to %s\n", toolID, cal.Tip[0], cal.Tip[1], cal.Tip[2], path)
	return nil
}

// updateCalibration reloads the cache from disk, applies update and saves it.
func (a *App) updateCalibration(update func(*mesh.CalibrationData)) (string, error) {
	if err := a.loadCalibration(); err != nil {
		log.Printf("Warning: %v; starting a new cache", err)
	}
	if a.Calibration == nil {
		a.Calibration = &mesh.CalibrationData{Tools: make(map[string]mesh.ToolCalibration)}
	}
	update(a.Calibration)

	path := a.calibrationPath()
	if err := mesh.SaveCalibration(path, a.Calibration); err != nil {
		return "", err
	}
	return path, nil
}

// RunRegistration computes the reference-to-surface frame from a recording
// in which frame i touches registration.fiducials[i], and stores it in the
// calibration cache for navigation.
func (a *App) RunRegistration(path string) error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := a.loadCalibration(); err != nil {
		log.Printf("Warning: %v", err)
	}
	fiducials := config.Registration.Fiducials
	if len(fiducials) == 0 {
		return fmt.Errorf("registration.fiducials not configured in %s", a.ConfigFile)
	}
	if len(config.Reference.Markers) == 0 {
		return fmt.Errorf("reference.markers not configured in %s", a.ConfigFile)
	}
	toolID, err := a.toolID()
	if err != nil {
		return err
	}
	body, ok := a.toolBody(toolID)
	if !ok {
		return fmt.Errorf("tool %s has no tip: set tools[].tip or run --calibrate", toolID)
	}

	frames, err := mesh.LoadNavigationRecording(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Loaded %d frames from %s\n", len(frames), path)

	method := config.PivotOptions().Method
	start := time.Now()
	reg, err := mesh.RegisterFiducials(a.context(), method, body, config.ReferenceBody().Markers, frames, fiducials.Cloud())
	if err != nil {
		return fmt.Errorf("fiducial registration: %w", err)
	}

	fmt.Fprintf(a.Out, "\n=== Fiducial registration (%s) ===\n", method)
	for i := 0; i < reg.Touched.Len(); i++ {
		touched := reg.Touched.At(i)
		target := fiducials[i].Vec()
		fmt.Fprintf(a.Out, "fiducial %d: touched (%.3f, %.3f, %.3f) target (%.3f, %.3f, %.3f) error %.4f\n",
			i, touched.X, touched.Y, touched.Z, target.X, target.Y, target.Z, mesh.Distance(reg.Frame.Apply(touched), target))
	}
	r, t := reg.Frame.R, reg.Frame.T
	for i := 0; i < 3; i++ {
		fmt.Fprintf(a.Out, "R[%d]:      (% .6f, % .6f, % .6f)\n", i, r[i][0], r[i][1], r[i][2])
	}
	fmt.Fprintf(a.Out, "T:         (%.4f, %.4f, %.4f)\n", t.X, t.Y, t.Z)
	fmt.Fprintf(a.Out, "FRE:       %.6f\n", reg.RMS)
	fmt.Fprintf(a.Out, "Elapsed:   %s\n", time.Since(start).Round(time.Microsecond))

	if config.Registration.Transform != nil {
		log.Printf("Warning: registration.transform in %s overrides the stored registration", a.ConfigFile)
	}
	cal := mesh.NewRegistrationCalibration(reg)
	saved, err := a.updateCalibration(func(cache *mesh.CalibrationData) {
		cache.Registration = &cal
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "\nSaved registration to %s\n", saved)
	return nil
}

// RunExpected predicts, for every frame of a calibration-object recording,
// where the tracker should report the object's target points.
func (a *App) RunExpected(path string) error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if config.CalibrationObject == nil {
		return fmt.Errorf("calibrationObject not configured in %s", a.ConfigFile)
	}
	body := config.CalibrationObject.Body()

	frames, err := mesh.LoadNavigationRecording(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "\n=== Expected targets: %d frames ===\n", len(frames))
	for _, frame := range frames {
		expected, err := mesh.ExpectedMarkers(body, frame)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "frame %d:\n", frame.Index)
		for _, p := range expected.Points() {
			fmt.Fprintf(a.Out, "  (%.3f, %.3f, %.3f)\n", p.X, p.Y, p.Z)
		}
	}
	return nil
}

// RunQuery navigates every frame of a recording and prints the closest
// surface point per frame.
func (a *App) RunQuery(path string) error {
	if _, err := a.loadConfig(); err != nil {
		return err
	}
	ctx := a.context()
	if err := a.loadCalibration(); err != nil {
		log.Printf("Warning: %v", err)
	}
	surface, err := a.loadSurface(ctx)
	if err != nil {
		return err
	}
	if err := a.installSurface(surface); err != nil {
		return err
	}
	toolID, err := a.toolID()
	if err != nil {
		return err
	}
	nav, err := a.navigator(toolID)
	if err != nil {
		return err
	}

	frames, err := mesh.LoadNavigationRecording(path)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := nav.Run(ctx, frames)
	if err != nil {
		return fmt.Errorf("navigating %s: %w", path, err)
	}
	elapsed := time.Since(start)

	fmt.Fprintf(a.Out, "\n=== %s: %d frames ===\n", toolID, len(results))
	var sum, worst float64
	for _, r := range results {
		fmt.Fprintf(a.Out, "frame %d: sample (%.3f, %.3f, %.3f) closest (%.3f, %.3f, %.3f) distance %.4f triangle %d\n",
			r.Frame, r.Sample.X, r.Sample.Y, r.Sample.Z, r.Closest.X, r.Closest.Y, r.Closest.Z, r.Distance, r.Triangle)
		sum += r.Distance
		worst = math.Max(worst, r.Distance)
		a.StateTracker.UpdateResult(toolID, r)
	}
	if len(results) > 0 {
		fmt.Fprintf(a.Out, "\nMean distance: %.4f  Max distance: %.4f  (%s)\n", sum/float64(len(results)), worst, elapsed.Round(time.Microsecond))
	}
	return nil
}

// RunCompare measures how often the configured strategy finds the same
// closest point as brute force, on n random points around the surface.
func (a *App) RunCompare(n int) error {
	if a.SurfaceFile == "" {
		if _, err := a.loadConfig(); err != nil {
			return err
		}
	} else if _, err := a.loadConfig(); err != nil {
		log.Printf("Warning: %v; using search flags only", err)
	}
	ctx := a.context()

	surface, err := a.loadSurface(ctx)
	if err != nil {
		return err
	}
	strategy, neighbors, err := a.searchSettings()
	if err != nil {
		return err
	}

	reference, err := mesh.NewBruteForceFinder(surface)
	if err != nil {
		return err
	}
	candidate, err := mesh.NewFinder(strategy, surface, neighbors)
	if err != nil {
		return err
	}

	points := samplePoints(rand.New(rand.NewSource(1)), surface.Bounds(), n)

	start := time.Now()
	agreement, err := mesh.CompareFinders(ctx, reference, candidate, points, compareTolerance)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "\n=== %s vs brute force ===\n", strategy)
	fmt.Fprintf(a.Out, "Surface:   %d triangles\n", surface.Len())
	fmt.Fprintf(a.Out, "Points:    %d\n", len(points))
	if strategy == mesh.StrategyIndexed {
		fmt.Fprintf(a.Out, "Neighbors: %d\n", neighbors)
	}
	fmt.Fprintf(a.Out, "Agreement: %.2f%%\n", agreement*100)
	fmt.Fprintf(a.Out, "Elapsed:   %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// samplePoints draws n uniform points from box grown by compareMargin of its
// diagonal on every side.
func samplePoints(rng *rand.Rand, box mesh.BoundingBox, n int) []r3.Vec {
	pad := compareMargin * r3.Norm(box.Size())
	lo := r3.Sub(box.Min, r3.Vec{X: pad, Y: pad, Z: pad})
	size := r3.Add(box.Size(), r3.Vec{X: 2 * pad, Y: 2 * pad, Z: 2 * pad})
	points := make([]r3.Vec, n)
	for i := range points {
		points[i] = r3.Vec{
			X: lo.X + rng.Float64()*size.X,
			Y: lo.Y + rng.Float64()*size.Y,
			Z: lo.Z + rng.Float64()*size.Z,
		}
	}
	return points
}

// setupService loads config, calibration and surface and builds the pivot
// collector. It does not touch the network except to fetch a surface.
func (a *App) setupService(ctx context.Context) error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := a.loadCalibration(); err != nil {
		log.Printf("Warning: %v", err)
	}
	if len(config.Reference.Markers) == 0 {
		log.Println("Warning: reference.markers not configured; navigation will fail until it is")
	}

	a.StateTracker = mesh.NewStateTrackerWithCache(filepath.Join(a.DataDir, surfaceCacheFile))
	if surface, err := a.loadSurface(ctx); err != nil {
		log.Printf("Warning: %v; navigation disabled until a surface is available", err)
	} else if err := a.installSurface(surface); err != nil {
		return err
	}

	a.Collector = mesh.NewPivotCollector(config, a.Calibration, a.calibrationPath())
	a.Collector.SetCalibrationHandler(a.handleCalibration)
	return nil
}

// handleFrame is the MQTT frame callback. Frames of a tool that is pivoting
// feed the collector; all others are navigated and published.
func (a *App) handleFrame(toolID string, frame mesh.TrackerFrame, err error) {
	if err != nil {
		log.Printf("Error receiving frame for %s: %v", toolID, err)
		return
	}
	if a.Collector != nil && a.Collector.OnFrame(toolID, frame) {
		return
	}

	nav, err := a.navigator(toolID)
	if err != nil {
		log.Printf("[NAV] %s: dropping frame %d: %v", toolID, frame.Index, err)
		return
	}
	res, err := nav.Locate(frame)
	if err != nil {
		log.Printf("[NAV] %s: frame %d: %v", toolID, frame.Index, err)
		return
	}
	a.StateTracker.UpdateResult(toolID, res)
	log.Printf("[NAV] %s: frame %d sample(%.2f,%.2f,%.2f) -> triangle %d distance %.3f",
		toolID, res.Frame, res.Sample.X, res.Sample.Y, res.Sample.Z, res.Triangle, res.Distance)

	if a.Publisher != nil {
		if err := a.Publisher.PublishResult(toolID, res); err != nil {
			log.Printf("Error publishing result for %s: %v", toolID, err)
		}
	}
}

// handleState is the MQTT state callback.
func (a *App) handleState(toolID, state string) {
	a.StateTracker.SetMode(toolID, state)
	if a.Collector != nil {
		a.Collector.OnStateChange(toolID, state)
	}
}

// handleCalibration publishes a freshly stored pivot calibration.
func (a *App) handleCalibration(toolID string, cal mesh.ToolCalibration) {
	log.Printf("[PIVOT] %s: new tip (%.3f, %.3f, %.3f) rms=%.4f from %d poses",
		toolID, cal.Tip[0], cal.Tip[1], cal.Tip[2], cal.RMS, cal.Frames)
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.PublishCalibration(toolID, cal); err != nil {
		log.Printf("Error publishing calibration for %s: %v", toolID, err)
	}
}

// calibrationStatus reports the live calibration state for the HTTP server.
func (a *App) calibrationStatus() mesh.CalibrationStatus {
	if a.Collector != nil {
		return a.Collector.Status()
	}
	return a.Calibration.GetStatus(a.Config.ToolIDs())
}

// RunService runs MQTT navigation and/or the HTTP server until interrupted.
func (a *App) RunService() error {
	fmt.Fprintln(a.Out, "Starting stylus service...")

	if err := a.setupService(context.Background()); err != nil {
		return err
	}
	config := a.Config

	if a.MqttMode {
		mqttClient, err := mesh.InitMQTT(config, a.handleFrame)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		mqttClient.SetStateHandler(a.handleState)
		a.MQTTClient = mqttClient

		a.Publisher = mesh.NewPublisher(mqttClient.GetClient())
		if config.MQTT.PublishPrefix != "" && os.Getenv("MQTT_PUBLISH_PREFIX") == "" {
			a.Publisher.SetPrefix(config.MQTT.PublishPrefix)
		}
		fmt.Fprintln(a.Out, "MQTT result publisher initialized")
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.StateTracker, a.calibrationStatus)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
			log.Printf("[HTTP] Server stopped unexpectedly")
		}()
	}

	a.printServiceInfo()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Fprintln(a.Out, "\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.Out, "\nService Running")
	fmt.Fprintln(a.Out, "===============")

	if a.MqttMode && a.Config != nil {
		fmt.Fprintln(a.Out, "\nMQTT:")
		fmt.Fprintln(a.Out, "  Subscribed topics:")
		for _, tc := range a.Config.Tools {
			fmt.Fprintf(a.Out, "    - %s (%s)\n", tc.Topic, tc.ID)
		}
		prefix := "stylus"
		if a.Publisher != nil {
			prefix = a.Publisher.Prefix()
		}
		fmt.Fprintf(a.Out, "  Publishing to: %s/{toolID}\n", prefix)
		fmt.Fprintf(a.Out, "  Combined results: %s/results\n", prefix)
	}

	if a.HttpMode {
		fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.Out, "  GET /health          - Health check")
		fmt.Fprintln(a.Out, "  GET /results         - Latest result per tool")
		fmt.Fprintln(a.Out, "  GET /results/{id}    - Latest result of one tool")
		fmt.Fprintln(a.Out, "  GET /calibration     - Pivot calibration status")
		fmt.Fprintln(a.Out, "  GET /surface.json    - Active surface")
	}

	fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}
