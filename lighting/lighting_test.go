package lighting_test

import (
	"testing"

	"github.com/nasa-jpl/scanctl/lighting"
)

func newTestController(zoneID string, maxDuty float64) (*lighting.Controller, *lighting.SimPWM) {
	sim := lighting.NewSimPWM()
	c := lighting.NewController(
		map[string]lighting.PWMWriter{zoneID: sim},
		map[string]float64{zoneID: maxDuty},
		nil, nil,
	)
	return c, sim
}

// Scenario 6: LED safety refusal.
func TestSetBrightnessRefusesAboveHardCeiling(t *testing.T) {
	c, sim := newTestController("inner", 0.90)
	err := c.SetBrightness("inner", 0.95)
	if _, ok := err.(*lighting.SafetyError); !ok {
		t.Fatalf("expected *SafetyError, got %T (%v)", err, err)
	}
	if sim.LastDuty != 0 {
		t.Errorf("expected hardware never written, got duty %v", sim.LastDuty)
	}
	snap, _ := c.Snapshot("inner")
	if snap.CurrentDuty != 0 {
		t.Errorf("expected current_duty to remain unchanged, got %v", snap.CurrentDuty)
	}
}

func TestDutyBoundary(t *testing.T) {
	c, _ := newTestController("z", 0.90)
	if err := c.SetBrightness("z", 0.9001); err == nil {
		t.Errorf("expected 0.9001 to be refused")
	}
	if err := c.SetBrightness("z", 0.9000); err != nil {
		t.Errorf("expected 0.9000 to be accepted, got %v", err)
	}
}

func TestRedundantWriteSuppressed(t *testing.T) {
	c, sim := newTestController("z", 0.90)
	if err := c.SetBrightness("z", 0.30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writesAfterFirst := sim.LastDuty
	if err := c.SetBrightness("z", 0.30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.LastDuty != writesAfterFirst {
		t.Errorf("expected second identical write to be suppressed")
	}
	// a small change within 1% is also suppressed.
	if err := c.SetBrightness("z", 0.305); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.LastDuty != 0.30 {
		t.Errorf("expected sub-1%% change to be suppressed, hardware shows %v", sim.LastDuty)
	}
}

func TestOnOffBoundaryAlwaysWrites(t *testing.T) {
	c, sim := newTestController("z", 0.90)
	if err := c.SetBrightness("z", 0.005); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.LastDuty != 0 {
		t.Fatalf("expected sub-1%% write from zero to be suppressed, got %v", sim.LastDuty)
	}
	// crossing from off (<=0.01) to on must always write even though the
	// absolute delta could be tiny.
	if err := c.SetBrightness("z", 0.011); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.LastDuty != 0.011 {
		t.Errorf("expected on/off boundary crossing to always write, got %v", sim.LastDuty)
	}
}

func TestZoneMaxDutyClampedAtConstruction(t *testing.T) {
	c, _ := newTestController("z", 0.99)
	snap, _ := c.Snapshot("z")
	if snap.MaxDutyCycle != 0.90 {
		t.Errorf("expected configured max above 0.90 to be clamped to 0.90, got %v", snap.MaxDutyCycle)
	}
}

func TestFlashSetsHoldsThenReturnsToZero(t *testing.T) {
	c, sim := newTestController("z", 0.90)
	var heldDuty float64
	err := c.Flash([]string{"z"}, 0.5, func() {
		heldDuty = sim.LastDuty
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if heldDuty != 0.5 {
		t.Errorf("expected duty 0.5 during hold, got %v", heldDuty)
	}
	if sim.LastDuty != 0 {
		t.Errorf("expected duty to return to 0 after flash, got %v", sim.LastDuty)
	}
}

func TestEmergencyShutdownForcesZero(t *testing.T) {
	c, sim := newTestController("z", 0.90)
	c.SetBrightness("z", 0.5)
	c.EmergencyShutdown()
	if sim.LastDuty != 0 {
		t.Errorf("expected emergency shutdown to force duty to 0, got %v", sim.LastDuty)
	}
	snap, _ := c.Snapshot("z")
	if snap.IsOn {
		t.Errorf("expected zone to be marked off after emergency shutdown")
	}
}
