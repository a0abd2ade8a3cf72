// Package coords implements the coordinate transformer (C5): conversions
// between the user-facing cylindrical camera frame, the machine frame
// reported by the motion board, and the Cartesian world frame used for
// photogrammetry metadata, plus servo-tilt focus tracking.
package coords

import (
	"math"

	"github.com/nasa-jpl/scanctl/axis"
)

// Cylindrical is the user-facing camera frame: radius (mm) from the
// turntable axis, height (mm), rotation (deg), tilt (deg).
type Cylindrical struct {
	Radius, Height, Rotation, Tilt float64
}

// Cartesian is the world frame: millimetres, Z up, origin at the
// turntable top-centre.
type Cartesian struct {
	X, Y, Z float64
}

// Euler is the orientation of a camera in the world frame, in degrees.
type Euler struct {
	Omega, Phi, Kappa float64
}

// Stereo holds the baseline and convergence angle of a two-camera rig.
type Stereo struct {
	BaselineMM       float64
	ConvergenceDegMM float64 // convergence angle, degrees
}

// CylindricalToMachine maps the user-facing frame directly onto the
// machine frame: radius -> x, height -> y, rotation -> z, tilt -> c.
func CylindricalToMachine(c Cylindrical) axis.Position4D {
	return axis.Position4D{X: c.Radius, Y: c.Height, Z: c.Rotation, C: c.Tilt}
}

// MachineToCylindrical is the inverse of CylindricalToMachine.
func MachineToCylindrical(p axis.Position4D) Cylindrical {
	return Cylindrical{Radius: p.X, Height: p.Y, Rotation: p.Z, Tilt: p.C}
}

// CentreCartesian computes the centre-camera world position from a
// machine-frame position: x is the radial distance, z the turntable angle
// in degrees.
func CentreCartesian(p axis.Position4D) Cartesian {
	rad := p.Z * math.Pi / 180
	return Cartesian{X: p.X * math.Cos(rad), Y: p.X * math.Sin(rad), Z: p.Y}
}

// StereoCartesian computes one stereo camera's world position, offset
// perpendicular to the viewing direction by +-baseline/2 and yaw-rotated
// inward by the convergence angle. left selects the left (+) or right (-)
// camera.
func StereoCartesian(p axis.Position4D, s Stereo, left bool) (Cartesian, Euler) {
	centre := CentreCartesian(p)
	rad := p.Z * math.Pi / 180
	sign := -1.0
	if left {
		sign = 1.0
	}
	half := sign * s.BaselineMM / 2
	offX := half * -math.Sin(rad)
	offY := half * math.Cos(rad)

	pos := Cartesian{X: centre.X + offX, Y: centre.Y + offY, Z: centre.Z}
	kappa := p.Z + sign*s.ConvergenceDegMM
	return pos, Euler{Omega: 0, Phi: p.C, Kappa: kappa}
}

// CartesianToMachine is the inverse of CentreCartesian for the centre
// camera: given a world position, recover the
// machine-frame (x, y, z) with C left at zero (tilt must be supplied by
// the caller; it is not recoverable from position alone).
func CartesianToMachine(c Cartesian) axis.Position4D {
	radius := math.Hypot(c.X, c.Y)
	angle := math.Atan2(c.Y, c.X) * 180 / math.Pi
	return axis.Position4D{X: radius, Y: c.Z, Z: angle, C: 0}
}

// FocusTiltDeg computes the servo-tilt angle, in degrees, required to keep
// a focus point at height yFocus on the axis centred, given the camera's
// (x, y) machine position: c = -atan2(y - y_focus, x).
func FocusTiltDeg(x, y, yFocus float64) float64 {
	return -math.Atan2(y-yFocus, x) * 180 / math.Pi
}
