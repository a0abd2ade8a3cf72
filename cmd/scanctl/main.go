// Command scanctl is the 4DOF photogrammetry scan controller's server
// binary: it loads the YAML configuration, wires the motion, camera, and
// lighting subsystems (real hardware or the simulation backends when
// system.simulation_mode is set), and drives a single scan to completion,
// following the root/help/mkconf/conf/run/version command shape
// cmd/andorhttp3/main.go uses.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/scanctl/camera"
	"github.com/nasa-jpl/scanctl/comm"
	"github.com/nasa-jpl/scanctl/config"
	"github.com/nasa-jpl/scanctl/coords"
	"github.com/nasa-jpl/scanctl/eventbus"
	"github.com/nasa-jpl/scanctl/lighting"
	"github.com/nasa-jpl/scanctl/motion"
	"github.com/nasa-jpl/scanctl/pattern"
	"github.com/nasa-jpl/scanctl/scan"
	"github.com/nasa-jpl/scanctl/storage"
)

// Version is the build version, typically injected via ldflags.
var Version = "1"

// ConfigFileName is the default configuration path, matching the teacher's
// convention of a fixed filename in the working directory.
const ConfigFileName = "scanctl.yml"

func root() {
	str := `scanctl drives a 4-axis photogrammetry turntable rig through a scan
pattern: positioning, lighting, and dual-camera capture, one point at a
time, with pause/resume/cancel and a final JSON report.

Usage:
	scanctl <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `scanctl is configured via its .yaml file. The command mkconf writes the
default configuration to scanctl.yml; conf prints the configuration
currently in effect (defaults plus any scanctl.yml overlay).

Set system.simulation_mode: true to run against the in-memory simulation
backends with no hardware attached -- useful for rehearsing a pattern or
exercising the orchestrator in CI.`
	fmt.Println(str)
}

func mkconf() {
	c := config.Defaults()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("scanctl version %v\n", Version)
}

// deviceIndexFromPort extracts the trailing integer from a V4L2 device
// path ("/dev/video2" -> 2), the way the gocv backend addresses a camera.
func deviceIndexFromPort(port string) int {
	i := len(port)
	for i > 0 && port[i-1] >= '0' && port[i-1] <= '9' {
		i--
	}
	n, _ := strconv.Atoi(port[i:])
	return n
}

func buildMotion(cfg config.Config) (*motion.Controller, error) {
	axes := cfg.AxisSet()
	var e motion.Backend
	if cfg.System.SimulationMode {
		e = motion.NewSimEngine(axes)
	} else {
		serCfg := &serial.Config{
			Name:        cfg.Motion.Port,
			Baud:        cfg.Motion.Baudrate,
			ReadTimeout: 2 * time.Second,
		}
		rd := comm.NewRemoteDevice(cfg.Motion.Port, true, &comm.Terminators{Rx: '\n', Tx: '\n'}, serCfg)
		e = motion.NewEngine(&rd, nil)
		if err := e.Connect(); err != nil {
			return nil, fmt.Errorf("connect motion board: %w", err)
		}
	}
	return motion.NewController(e, axes), nil
}

func buildCameras(cfg config.Config, bus *eventbus.Bus) (*camera.Controller, []string, error) {
	backends := make(map[string]camera.Backend, len(cfg.Cameras.PerCamera))
	ids := make([]string, 0, len(cfg.Cameras.PerCamera))
	for id, cc := range cfg.Cameras.PerCamera {
		ids = append(ids, id)
		if cfg.System.SimulationMode {
			backends[id] = camera.NewSimBackend()
			continue
		}
		backends[id] = camera.NewGocvBackend(deviceIndexFromPort(cc.Port), cc.JPEGQuality)
	}
	// Map iteration order is randomised per run; the orchestrator treats
	// CameraIDs[0] as the fixed stereo-left camera, so the order here must
	// be deterministic across invocations of the same configuration.
	sort.Strings(ids)
	ctrl := camera.NewController(backends, bus.Source("camera"), nil)
	res := camera.Resolution{Width: 1920, Height: 1080}
	for _, cc := range cfg.Cameras.PerCamera {
		if cc.CaptureResWidth > 0 && cc.CaptureResHeight > 0 {
			res = camera.Resolution{Width: cc.CaptureResWidth, Height: cc.CaptureResHeight}
		}
		break
	}
	if err := ctrl.Initialize(res); err != nil {
		return nil, nil, fmt.Errorf("initialize cameras: %w", err)
	}
	return ctrl, ids, nil
}

func buildLighting(cfg config.Config, bus *eventbus.Bus) (*lighting.Controller, error) {
	zones := make(map[string]lighting.PWMWriter, len(cfg.Lighting.Zones))
	maxDuty := make(map[string]float64, len(cfg.Lighting.Zones))
	for id, z := range cfg.Lighting.Zones {
		maxDuty[id] = z.MaxDutyCycle
		if cfg.System.SimulationMode {
			zones[id] = lighting.NewSimPWM()
			continue
		}
		pwm, err := lighting.NewPeriphPWM(z.PWMChannel)
		if err != nil {
			return nil, fmt.Errorf("open PWM channel %s: %w", z.PWMChannel, err)
		}
		zones[id] = pwm
	}
	return lighting.NewController(zones, maxDuty, bus.Source("lighting"), nil), nil
}

// buildGrid turns the configured axis soft limits into the scan pattern
// that run uses: a grid spanning the full X/Y limits, spaced at a quarter
// of the X range, at the home Z/C.
func buildGrid(cfg config.Config) (*pattern.Pattern, error) {
	axes := cfg.AxisSet()
	spacing := (axes.X.Max - axes.X.Min) / 4
	if spacing <= 0 {
		spacing = 10
	}
	return pattern.Grid(pattern.GridParams{
		XMin: axes.X.Min, XMax: axes.X.Max,
		YMin: axes.Y.Min, YMax: axes.Y.Max,
		Spacing: spacing,
		Z:       axes.Z.Home,
		C:       axes.C.Home,
	}, axes)
}

func run() {
	cfg, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}

	logger := log.New(os.Stderr, "scanctl: ", log.LstdFlags)
	bus := eventbus.New(logger)

	m, err := buildMotion(cfg)
	if err != nil {
		log.Fatal(err)
	}
	cams, camIDs, err := buildCameras(cfg, bus)
	if err != nil {
		log.Fatal(err)
	}
	defer cams.Shutdown()
	lc, err := buildLighting(cfg, bus)
	if err != nil {
		log.Fatal(err)
	}
	defer lc.TurnOffAll()

	sink := storage.NewMemorySink()

	focusMode := camera.FocusDefault
	var manualLens float64
	for _, cc := range cfg.Cameras.PerCamera {
		focusMode = camera.FocusMode(cc.Focus.Mode)
		manualLens = cc.Focus.ManualLensPosition
		break
	}

	orchCfg := scan.Config{
		CameraIDs: camIDs,
		Stereo:    coords.Stereo{BaselineMM: cfg.Stereo.BaselineMM, ConvergenceDegMM: cfg.Stereo.ConvergenceAngleDeg},
		Focus:     scan.FocusConfig{Mode: focusMode, ManualLensPosition: manualLens},
		Lighting: scan.LightingConfig{
			FlashMode:         cfg.Lighting.FlashMode,
			IdleBrightness:    cfg.Lighting.IdleBrightness,
			CaptureBrightness: cfg.Lighting.CaptureBrightness,
		},
		CaptureSettings:  camera.Settings{Resolution: camera.Resolution{Width: 1920, Height: 1080}, JPEGQuality: 90},
		FeedrateMMPerMin: cfg.Motion.Axes.X.MaxFeedrate,
	}
	orch := scan.New(m, cams, lc, sink, bus.Source("scan"), logger, orchCfg)

	pat, err := buildGrid(cfg)
	if err != nil {
		log.Fatal(err)
	}

	rep, err := orch.Run(context.Background(), "", pat)
	if err != nil {
		log.Fatal(err)
	}
	if err := yml.NewEncoder(os.Stdout).Encode(rep); err != nil {
		log.Fatal(err)
	}
	log.Printf("scan %s finished: %s, %d points, %d images captured, %d failed",
		rep.ScanID, rep.Status, rep.PointsCompleted, rep.ImagesCaptured, rep.ImagesFailed)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
