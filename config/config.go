// Package config loads the scan controller's configuration contract
// (spec.md §6): motion axes, per-camera settings, lighting zones, stereo
// geometry, and system-level flags including simulation_mode. It follows
// the same koanf struct-default + YAML-file load shape
// cmd/andorhttp3/main.go's setupconfig/mkconf uses, one-shot (no
// hot-reload watcher: that is the named external-UI Non-goal).
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.com/nasa-jpl/scanctl/axis"
)

// AxesConfig is the motion axis block: per-axis AxisConfig keyed by
// letter, matching axis.Set's field names.
type AxesConfig struct {
	X axis.Config `yaml:"x"`
	Y axis.Config `yaml:"y"`
	Z axis.Config `yaml:"z"`
	C axis.Config `yaml:"c"`
}

// MotionConfig is the §6 Motion configuration block.
type MotionConfig struct {
	Port     string     `yaml:"port"`
	Baudrate int        `yaml:"baudrate"`
	Axes     AxesConfig `yaml:"axes"`
}

// AutofocusConfig is the per-camera autofocus sub-block.
type AutofocusConfig struct {
	AFRangeMin float64 `yaml:"af_range_min"`
	AFRangeMax float64 `yaml:"af_range_max"`
	TimeoutMs  int     `yaml:"timeout_ms"`
}

// FocusConfig is the per-camera focus configuration sub-block.
type FocusConfig struct {
	Mode               string          `yaml:"mode"`
	ManualLensPosition float64         `yaml:"manual_lens_position"`
	Autofocus          AutofocusConfig `yaml:"autofocus"`
}

// CameraConfig is one camera's §6 configuration entry.
type CameraConfig struct {
	Port             string      `yaml:"port"`
	CaptureResWidth  int         `yaml:"capture_resolution_width"`
	CaptureResHeight int         `yaml:"capture_resolution_height"`
	JPEGQuality      int         `yaml:"jpeg_quality"`
	Focus            FocusConfig `yaml:"focus"`
}

// CamerasConfig is the §6 Cameras configuration block: per-camera entries
// keyed by camera ID.
type CamerasConfig struct {
	PerCamera map[string]CameraConfig `yaml:"per_camera"`
}

// LEDZoneConfig is one LED zone's configuration.
type LEDZoneConfig struct {
	PWMChannel   string  `yaml:"pwm_channel"`
	MaxDutyCycle float64 `yaml:"max_duty_cycle"`
}

// LightingConfig is the §6 Lighting configuration block.
type LightingConfig struct {
	Zones             map[string]LEDZoneConfig `yaml:"zones"`
	FlashMode         bool                     `yaml:"flash_mode"`
	IdleBrightness    float64                  `yaml:"idle_brightness"`
	CaptureBrightness float64                  `yaml:"capture_brightness"`
	FlashDurationMs   int                      `yaml:"flash_duration_ms"`
}

// StereoConfig is the §6 Stereo configuration block.
type StereoConfig struct {
	BaselineMM          float64 `yaml:"baseline_mm"`
	ConvergenceAngleDeg float64 `yaml:"convergence_angle_deg"`
}

// SystemConfig is the §6 System configuration block.
type SystemConfig struct {
	SimulationMode bool   `yaml:"simulation_mode"`
	LogLevel       string `yaml:"log_level"`
}

// Config is the full, immutable configuration contract read once at
// startup and passed by value into each component's constructor. Unknown
// fields are ignored by koanf's unmarshal; missing required fields are
// caught by Validate.
type Config struct {
	Motion   MotionConfig   `yaml:"motion"`
	Cameras  CamerasConfig  `yaml:"cameras"`
	Lighting LightingConfig `yaml:"lighting"`
	Stereo   StereoConfig   `yaml:"stereo"`
	System   SystemConfig   `yaml:"system"`
}

// Defaults returns the struct-default configuration loaded before any
// YAML file is applied, mirroring setupconfig's structs.Provider seed.
func Defaults() Config {
	return Config{
		Motion: MotionConfig{
			Port:     "/dev/ttyUSB0",
			Baudrate: 115200,
			Axes: AxesConfig{
				X: axis.Config{Type: axis.Linear, Units: "mm", Min: 0, Max: 300, Home: 0, MaxFeedrate: 3000, HomingRequired: true},
				Y: axis.Config{Type: axis.Linear, Units: "mm", Min: 0, Max: 300, Home: 0, MaxFeedrate: 3000, HomingRequired: true},
				Z: axis.Config{Type: axis.Rotational, Units: "deg", Min: -180, Max: 180, Continuous: true, MaxFeedrate: 6000},
				C: axis.Config{Type: axis.Rotational, Units: "deg", Min: -180, Max: 180, Continuous: true, MaxFeedrate: 1000},
			},
		},
		Lighting: LightingConfig{
			FlashMode:         true,
			IdleBrightness:    0.05,
			CaptureBrightness: 0.30,
			FlashDurationMs:   250,
		},
		Stereo: StereoConfig{BaselineMM: 60, ConvergenceAngleDeg: 5},
		System: SystemConfig{SimulationMode: false, LogLevel: "info"},
	}
}

// Load reads the struct defaults, then overlays a YAML configuration file
// at path if present. A missing file is not an error (the defaults apply
// on their own, matching setupconfig's "no such file, who cares"
// tolerance); a malformed file is. The merged result is then validated, so
// the defaults alone, which configure no camera, fail with a
// *ValidationError on cameras.per_camera.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "yaml"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !isMissingFile(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	var c Config
	if err := k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func isMissingFile(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no such file") || strings.Contains(s, "cannot find the file")
}

// Validate checks for the configuration-category errors spec.md §7 names
// as fatal at startup: unknown axis invariants, missing required fields,
// out-of-range limits.
func (c Config) Validate() error {
	if c.Motion.Port == "" {
		return &ValidationError{Field: "motion.port", Detail: "required"}
	}
	for name, ax := range map[string]axis.Config{"x": c.Motion.Axes.X, "y": c.Motion.Axes.Y, "z": c.Motion.Axes.Z, "c": c.Motion.Axes.C} {
		if !ax.Valid() {
			return &ValidationError{Field: "motion.axes." + name, Detail: "min <= home <= max violated, or continuous axis not at [-180,180]"}
		}
	}
	if len(c.Cameras.PerCamera) == 0 {
		return &ValidationError{Field: "cameras.per_camera", Detail: "at least one camera required"}
	}
	for id, zone := range c.Lighting.Zones {
		if zone.MaxDutyCycle > 0.90 {
			return &ValidationError{Field: fmt.Sprintf("lighting.zones.%s.max_duty_cycle", id), Detail: "exceeds the 0.90 hard ceiling"}
		}
	}
	return nil
}

// AxisSet converts the configuration's axis block into axis.Set, the
// shape motion.NewController expects.
func (c Config) AxisSet() axis.Set {
	return axis.Set{X: c.Motion.Axes.X, Y: c.Motion.Axes.Y, Z: c.Motion.Axes.Z, C: c.Motion.Axes.C}
}
