package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nasa-jpl/scanctl/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err == nil {
		t.Fatal("expected defaults-only config to fail validation: no cameras configured")
	}
	ve, ok := err.(*config.ValidationError)
	if !ok || ve.Field != "cameras.per_camera" {
		t.Fatalf("expected missing file to fall back to defaults, failing only on cameras.per_camera, got %v", err)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanctl.yml")
	data := `
motion:
  port: /dev/ttyACM0
cameras:
  per_camera:
    "0":
      port: /dev/video0
      jpeg_quality: 90
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Motion.Port != "/dev/ttyACM0" {
		t.Errorf("expected overlay to change motion.port, got %q", c.Motion.Port)
	}
	if len(c.Cameras.PerCamera) != 1 {
		t.Fatalf("expected 1 configured camera, got %d", len(c.Cameras.PerCamera))
	}
}

func TestValidateRejectsOverDutyCeiling(t *testing.T) {
	c := config.Defaults()
	c.Cameras.PerCamera = map[string]config.CameraConfig{"0": {Port: "/dev/video0"}}
	c.Lighting.Zones = map[string]config.LEDZoneConfig{"inner": {MaxDutyCycle: 0.95}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected a zone max_duty_cycle above 0.90 to fail validation")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := config.Defaults()
	c.Cameras.PerCamera = map[string]config.CameraConfig{"0": {Port: "/dev/video0"}}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected defaults + one camera to validate, got %v", err)
	}
}
