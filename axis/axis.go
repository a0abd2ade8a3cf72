// Package axis holds the 4DOF position model shared by the motion protocol
// engine, the motion controller, and the coordinate transformer: the X/Y
// linear axes, the Z turntable and C tilt rotational axes, and the
// continuous-axis wraparound arithmetic used to command the shorter arc.
package axis

import "math"

// Type tags an axis as linear (millimetres) or rotational (degrees).
type Type int

const (
	// Linear axes are measured in millimetres and have hard soft limits.
	Linear Type = iota
	// Rotational axes are measured in degrees and may be continuous.
	Rotational
)

func (t Type) String() string {
	if t == Linear {
		return "linear"
	}
	return "rotational"
}

// Position4D is the (x, y, z, c) tuple every motion command and status
// report is expressed in. X and Y are linear; Z and C are rotational.
type Position4D struct {
	X, Y, Z, C float64
}

// Config describes one axis: its type, units, soft limits, home position,
// feedrate ceiling, and whether it requires homing or wraps continuously.
//
// Invariant: for a bounded axis, Min <= Home <= Max. A continuous axis has
// Min = -180, Max = 180 but accepts any commanded angle, which is normalised
// before it is ever written to the wire.
type Config struct {
	Type           Type    `json:"type" yaml:"type"`
	Units          string  `json:"units" yaml:"units"`
	Min            float64 `json:"min" yaml:"min"`
	Max            float64 `json:"max" yaml:"max"`
	Home           float64 `json:"home" yaml:"home"`
	MaxFeedrate    float64 `json:"max_feedrate" yaml:"max_feedrate"`
	StepsPerUnit   float64 `json:"steps_per_unit" yaml:"steps_per_unit"`
	HomingRequired bool    `json:"homing_required" yaml:"homing_required"`
	Continuous     bool    `json:"continuous" yaml:"continuous"`
}

// Valid reports whether the configuration satisfies its own invariant.
func (c Config) Valid() bool {
	if c.Continuous {
		return c.Min == -180 && c.Max == 180
	}
	return c.Min <= c.Home && c.Home <= c.Max
}

// Set is the four AxisConfigs for a 4DOF platform, keyed by their letter.
type Set struct {
	X, Y, Z, C Config
}

// Normalize maps a rotational angle in degrees to [-180, 180).
//
// normalize(theta) = ((theta + 180) mod 360) - 180
func Normalize(theta float64) float64 {
	r := math.Mod(theta+180, 360)
	if r < 0 {
		r += 360
	}
	return r - 180
}

// ShortestDelta returns the signed delta, in [-180, 180], that moves a
// continuous axis from current to target via the shorter arc. The caller
// commands current+delta as an absolute position, never the normalised
// target directly, so a request for one degree of travel near the wrap
// point never becomes a 359 degree sweep.
func ShortestDelta(current, target float64) float64 {
	return Normalize(target - current)
}

// EqualContinuous compares two angles modulo 360 degrees within tol.
func EqualContinuous(a, b, tol float64) bool {
	d := math.Abs(Normalize(a - b))
	return d <= tol
}

// InBounds checks a bounded (non-continuous) axis value against its config.
// Continuous axes always report true: they cannot violate limits once
// normalised, by construction.
func (c Config) InBounds(v float64) bool {
	if c.Continuous {
		return true
	}
	return v >= c.Min && v <= c.Max
}
