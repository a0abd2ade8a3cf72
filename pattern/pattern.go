// Package pattern implements the scan pattern generator (C6): grid,
// cylindrical, and explicit-list patterns of ScanPoints, each a
// deterministic, restartable, finite sequence consumed one point at a
// time by the scan orchestrator.
package pattern

import (
	"fmt"

	"github.com/nasa-jpl/scanctl/axis"
	"github.com/nasa-jpl/scanctl/camera"
	"github.com/nasa-jpl/scanctl/coords"
)

// Point is one ScanPoint: a target position plus the per-point overrides
// the orchestrator may apply. CaptureCount is implicit: it is len(FocusValues)
// when stacking, else 1. The orchestrator never mutates a Point; it may
// expand it into CaptureCount() individual captures.
type Point struct {
	Position         axis.Position4D
	CameraSettings   *camera.Settings
	LightingOverride *float64 // capture-brightness override, nil = use scan default
	DwellMs          int
	FocusMode        camera.FocusMode
	FocusValues      []float64 // single value or stack, user-facing [0,15]
}

const defaultDwellMs = 100

// CaptureCount is the number of captures this point expands to: the
// length of FocusValues when focus-stacking, else 1.
func (p Point) CaptureCount() int {
	if len(p.FocusValues) > 1 {
		return len(p.FocusValues)
	}
	return 1
}

// Dwell returns the point's configured dwell, or the 100ms default.
func (p Point) Dwell() int {
	if p.DwellMs > 0 {
		return p.DwellMs
	}
	return defaultDwellMs
}

// Validate checks a point's focus invariants: lens values in [0,15], and
// manual mode requiring focus values to be present.
func (p Point) Validate() error {
	for _, f := range p.FocusValues {
		if f < 0.0 || f > 15.0 {
			return fmt.Errorf("pattern: focus value %.2f outside [0,15]", f)
		}
	}
	if p.FocusMode == camera.FocusManual && len(p.FocusValues) == 0 {
		return fmt.Errorf("pattern: focus_mode manual requires focus_values")
	}
	return nil
}

// Pattern is a finite, restartable, deterministic sequence of Points. It
// is backed by a materialised slice rather than a true generator: every
// concrete constructor below validates the full point set against axis
// limits before scanning begins (per the spec's "fails before scanning"
// invariant for explicit patterns, generalised to all pattern kinds), so
// there is nothing gained from true laziness and restart is trivially
// exact.
type Pattern struct {
	points []Point
	pos    int
}

// Len returns the total number of points.
func (p *Pattern) Len() int { return len(p.points) }

// Next returns the next point and advances the cursor, or ok=false once
// the sequence is exhausted.
func (p *Pattern) Next() (Point, bool) {
	if p.pos >= len(p.points) {
		return Point{}, false
	}
	pt := p.points[p.pos]
	p.pos++
	return pt, true
}

// Reset rewinds the cursor to the start; re-iterating after Reset
// reproduces the identical sequence.
func (p *Pattern) Reset() { p.pos = 0 }

// Points returns every point without consuming the cursor.
func (p *Pattern) Points() []Point {
	out := make([]Point, len(p.points))
	copy(out, p.points)
	return out
}

func validateAgainstAxes(pos axis.Position4D, axes axis.Set) error {
	if !axes.X.InBounds(pos.X) {
		return fmt.Errorf("pattern: x=%.3f outside axis limits [%v,%v]", pos.X, axes.X.Min, axes.X.Max)
	}
	if !axes.Y.InBounds(pos.Y) {
		return fmt.Errorf("pattern: y=%.3f outside axis limits [%v,%v]", pos.Y, axes.Y.Min, axes.Y.Max)
	}
	if !axes.Z.Continuous && !axes.Z.InBounds(pos.Z) {
		return fmt.Errorf("pattern: z=%.3f outside axis limits [%v,%v]", pos.Z, axes.Z.Min, axes.Z.Max)
	}
	return nil
}

// GridParams configures the grid pattern: bounds on X/Y, the spacing
// between rows/columns, and a fixed Z/C to hold for every point.
type GridParams struct {
	XMin, XMax, YMin, YMax float64
	Spacing                float64
	Z, C                   float64
	PerPoint               func(x, y float64) *Point // optional per-point override hook
}

// Grid generates a zig-zag raster over (x_range, y_range) at the given
// spacing, minimising backtracking: each row of constant Y traverses X in
// alternating direction. Construction fails if any generated position
// falls outside the configured axis limits.
func Grid(p GridParams, axes axis.Set) (*Pattern, error) {
	if p.Spacing <= 0 {
		return nil, fmt.Errorf("pattern: grid spacing must be positive")
	}
	var pts []Point
	forward := true
	for y := p.YMin; y <= p.YMax+1e-9; y += p.Spacing {
		xs := arange(p.XMin, p.XMax, p.Spacing)
		if !forward {
			reverse(xs)
		}
		for _, x := range xs {
			pos := axis.Position4D{X: x, Y: y, Z: p.Z, C: p.C}
			if err := validateAgainstAxes(pos, axes); err != nil {
				return nil, err
			}
			pt := Point{Position: pos}
			if p.PerPoint != nil {
				if ov := p.PerPoint(x, y); ov != nil {
					pt = *ov
					pt.Position = pos
				}
			}
			pts = append(pts, pt)
		}
		forward = !forward
	}
	return &Pattern{points: pts}, nil
}

func arange(min, max, step float64) []float64 {
	var out []float64
	for v := min; v <= max+1e-9; v += step {
		out = append(out, v)
	}
	return out
}

func reverse(xs []float64) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// TiltPolicy selects how a cylindrical pattern's tilt is computed.
type TiltPolicy struct {
	Fixed        bool
	FixedDeg     float64
	FocusTrack   bool
	YFocus       float64
	FromList     []float64 // attached per-point list in generation order, overrides the other two
}

// CylindricalParams configures the cylindrical pattern: a fixed radius,
// the heights and rotations to cross as a Cartesian product, and the tilt
// policy.
type CylindricalParams struct {
	Radius    float64
	Heights   []float64
	Rotations []float64
	Tilt      TiltPolicy
}

// Cylindrical generates the Cartesian product of heights x rotations at a
// fixed radius. Tilt is resolved per point from a fixed angle, the
// servo-tilt focus-tracking function, or an attached per-point list.
func Cylindrical(p CylindricalParams, axes axis.Set) (*Pattern, error) {
	var pts []Point
	idx := 0
	for _, h := range p.Heights {
		for _, rot := range p.Rotations {
			var tilt float64
			switch {
			case len(p.Tilt.FromList) > 0:
				if idx >= len(p.Tilt.FromList) {
					return nil, fmt.Errorf("pattern: tilt list shorter than point count")
				}
				tilt = p.Tilt.FromList[idx]
			case p.Tilt.FocusTrack:
				tilt = coords.FocusTiltDeg(p.Radius, h, p.Tilt.YFocus)
			default:
				tilt = p.Tilt.FixedDeg
			}
			pos := axis.Position4D{X: p.Radius, Y: h, Z: rot, C: tilt}
			if err := validateAgainstAxes(pos, axes); err != nil {
				return nil, err
			}
			pts = append(pts, Point{Position: pos})
			idx++
		}
	}
	return &Pattern{points: pts}, nil
}

// ExplicitRecord is one CSV/list record for the explicit pattern.
type ExplicitRecord struct {
	X, Y, Z, C  float64
	FocusMode   camera.FocusMode
	FocusValues []float64
}

// Explicit builds a pattern from an ordered list of records, validating
// every record against axis limits and focus ranges before scanning
// begins: an invalid record rejects the whole pattern at construction,
// never partway through a running scan.
func Explicit(records []ExplicitRecord, axes axis.Set) (*Pattern, error) {
	pts := make([]Point, 0, len(records))
	for i, r := range records {
		pos := axis.Position4D{X: r.X, Y: r.Y, Z: r.Z, C: r.C}
		if err := validateAgainstAxes(pos, axes); err != nil {
			return nil, fmt.Errorf("pattern: record %d: %w", i, err)
		}
		pt := Point{Position: pos, FocusMode: r.FocusMode, FocusValues: r.FocusValues}
		if err := pt.Validate(); err != nil {
			return nil, fmt.Errorf("pattern: record %d: %w", i, err)
		}
		pts = append(pts, pt)
	}
	return &Pattern{points: pts}, nil
}
