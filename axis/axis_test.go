package axis_test

import (
	"testing"

	"github.com/nasa-jpl/scanctl/axis"
)

func TestNormalizeIdempotent(t *testing.T) {
	for _, theta := range []float64{0, 90, 180, -180, 270, -540, 359} {
		n := axis.Normalize(theta)
		if n != axis.Normalize(n) {
			t.Errorf("normalize(%v)=%v not idempotent: normalize again gives %v", theta, n, axis.Normalize(n))
		}
	}
}

func TestNormalizeModulo360(t *testing.T) {
	theta := 37.5
	for k := -3; k <= 3; k++ {
		got := axis.Normalize(theta + 360*float64(k))
		want := axis.Normalize(theta)
		if got != want {
			t.Errorf("normalize(%v+360*%d)=%v want %v", theta, k, got, want)
		}
	}
}

func TestShortestDeltaAtWrap(t *testing.T) {
	// Scenario 3: current=170, target=-170, expect delta=20 (absolute 190 == -170)
	d := axis.ShortestDelta(170, -170)
	if d != 20 {
		t.Errorf("expected delta 20, got %v", d)
	}
	if d < -180 || d > 180 {
		t.Errorf("delta %v exceeds shortest-arc bound", d)
	}
}

func TestShortestDeltaExactlyOnWrap(t *testing.T) {
	d := axis.ShortestDelta(0, 180)
	if d < -180 || d > 180 {
		t.Errorf("expected |delta| <= 180, got %v", d)
	}
}

func TestEqualContinuous(t *testing.T) {
	if !axis.EqualContinuous(179, -181, 1) {
		t.Errorf("expected 179 and -181 to be equal modulo 360 within tolerance 1")
	}
	if axis.EqualContinuous(0, 90, 1) {
		t.Errorf("expected 0 and 90 to not be equal within tolerance 1")
	}
}

func TestConfigValidBounded(t *testing.T) {
	c := axis.Config{Type: axis.Linear, Min: 0, Max: 100, Home: 50}
	if !c.Valid() {
		t.Errorf("expected bounded config to be valid")
	}
	c.Home = -1
	if c.Valid() {
		t.Errorf("expected config with home outside [min,max] to be invalid")
	}
}

func TestConfigValidContinuous(t *testing.T) {
	c := axis.Config{Type: axis.Rotational, Continuous: true, Min: -180, Max: 180}
	if !c.Valid() {
		t.Errorf("expected continuous config with min/max -180/180 to be valid")
	}
}

func TestInBoundsContinuousAlwaysTrue(t *testing.T) {
	c := axis.Config{Continuous: true, Min: -180, Max: 180}
	if !c.InBounds(5000) {
		t.Errorf("expected continuous axis to always be in bounds")
	}
}

func TestInBoundsBounded(t *testing.T) {
	c := axis.Config{Min: 0, Max: 10}
	if c.InBounds(11) {
		t.Errorf("expected 11 to be out of bounds for [0,10]")
	}
	if !c.InBounds(10) {
		t.Errorf("expected 10 to be in bounds for [0,10]")
	}
}
