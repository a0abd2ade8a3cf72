package motion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/scanctl/axis"
)

// Backend is the capability seam the motion controller drives: the real
// protocol engine over a serial link, or an in-memory simulation engine
// selected when system.simulation_mode is set, per the factory guidance
// that also shapes camera.Backend and lighting.PWMWriter.
type Backend interface {
	SendCommand(line string, waitMotion bool) error
	QueryStatus() (Status, error)
	CachedStatus() Status
	State() EngineState
	Home(timeout time.Duration) error
	Unlock() error
	EmergencyStop() error
}

// Controller offers the axis-aware motion API above the protocol engine:
// validation against AxisConfigs, continuous-axis normalisation, and cache
// coherency, per C2.
type Controller struct {
	engine Backend
	axes   axis.Set

	cached   axis.Position4D
	unlocked bool // true after Unlock(): position is "unknown", degraded
}

// NewController wraps a Backend (an already-connected *Engine, or a
// simulation engine) with the configured axis set.
func NewController(e Backend, axes axis.Set) *Controller {
	return &Controller{engine: e, axes: axes}
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// validate checks a target against the configured soft limits. Bounded
// axes outside their limits fail before any bytes reach the wire;
// continuous axes cannot violate limits once normalised.
func (c *Controller) validate(target axis.Position4D) error {
	checks := []struct {
		name string
		cfg  axis.Config
		v    float64
	}{
		{"x", c.axes.X, target.X},
		{"y", c.axes.Y, target.Y},
	}
	for _, ch := range checks {
		if !ch.cfg.InBounds(ch.v) {
			return &LimitError{Axis: ch.name, Value: ch.v, Min: ch.cfg.Min, Max: ch.cfg.Max}
		}
	}
	if !c.axes.Z.Continuous && !c.axes.Z.InBounds(target.Z) {
		return &LimitError{Axis: "z", Value: target.Z, Min: c.axes.Z.Min, Max: c.axes.Z.Max}
	}
	// C is never bound-checked: it is treated as continuous whatever
	// c.axes.C.Continuous says, so a bounded C configuration is not enforced.
	return nil
}

// MoveAbsolute validates the target, normalises continuous axes (Z when
// configured continuous, C always) via the shortest arc from the current
// cached position, and blocks until motion completes.
func (c *Controller) MoveAbsolute(target axis.Position4D, feedrate float64) error {
	if err := c.validate(target); err != nil {
		return err
	}
	current := c.GetPosition()

	cmdZ := target.Z
	if c.axes.Z.Continuous {
		cmdZ = current.Z + axis.ShortestDelta(current.Z, target.Z)
	}
	cmdC := current.C + axis.ShortestDelta(current.C, target.C)

	line := fmt.Sprintf("G90 G1 X%s Y%s Z%s C%s", fmtNum(target.X), fmtNum(target.Y), fmtNum(cmdZ), fmtNum(cmdC))
	if feedrate > 0 {
		line += fmt.Sprintf(" F%s", fmtNum(feedrate))
	}
	if err := c.engine.SendCommand(line, true); err != nil {
		return err
	}
	return c.refreshCache()
}

// MoveRelative computes target = cached + delta on the controller's own
// frame; continuous-axis additions (Z when configured continuous, C
// always) are folded modulo 360 into [-180,180)
// before being handed to MoveAbsolute, which then re-derives the shortest
// commanded arc from the current position.
func (c *Controller) MoveRelative(delta axis.Position4D, feedrate float64) error {
	current := c.GetPosition()
	target := axis.Position4D{
		X: current.X + delta.X,
		Y: current.Y + delta.Y,
		Z: current.Z + delta.Z,
		C: axis.Normalize(current.C + delta.C),
	}
	if c.axes.Z.Continuous {
		target.Z = axis.Normalize(target.Z)
	}
	return c.MoveAbsolute(target, feedrate)
}

// Jog issues a jog command on a single axis, cancellable via JogCancel.
func (c *Controller) Jog(axisName string, delta, feedrate float64) error {
	axisName = strings.ToUpper(axisName)
	line := fmt.Sprintf("$J=G91 %s%s", axisName, fmtNum(delta))
	if feedrate > 0 {
		line += fmt.Sprintf(" F%s", fmtNum(feedrate))
	}
	return c.engine.SendCommand(line, false)
}

// HomeAll delegates to the protocol engine's homing sequence, then marks
// the controller no longer degraded.
func (c *Controller) HomeAll() error {
	if err := c.engine.Home(0); err != nil {
		return err
	}
	c.unlocked = false
	return c.refreshCache()
}

// refreshCache issues a fresh status query and replaces the cache; the
// controller never trusts its own predicted position.
func (c *Controller) refreshCache() error {
	st, err := c.engine.QueryStatus()
	if err != nil {
		return err
	}
	c.cached = st.PositionMachine
	return nil
}

// GetPosition returns the cached machine position. If the cache is stale
// (older than 1s) or the engine reports an active command, a fresh query
// is issued first, per the cache-coherency contract.
func (c *Controller) GetPosition() axis.Position4D {
	st := c.engine.CachedStatus()
	if st.Stale(time.Now()) || c.engine.State() == StateBusy {
		if err := c.refreshCache(); err == nil {
			return c.cached
		}
	}
	return st.PositionMachine
}

// EmergencyStop delegates directly to the protocol engine.
func (c *Controller) EmergencyStop() error {
	return c.engine.EmergencyStop()
}

// ClearAlarm unlocks the board. Position becomes unknown (degraded) until
// the next successful home.
func (c *Controller) ClearAlarm() error {
	if err := c.engine.Unlock(); err != nil {
		return err
	}
	c.unlocked = true
	return nil
}

// Degraded reports whether the controller is in the unlocked-but-not-homed
// state the orchestrator must treat as not motion-ready.
func (c *Controller) Degraded() bool {
	return c.unlocked
}

// HomePosition returns the configured home position for every axis, the
// safe position the orchestrator returns to on cancellation.
func (c *Controller) HomePosition() axis.Position4D {
	return axis.Position4D{X: c.axes.X.Home, Y: c.axes.Y.Home, Z: c.axes.Z.Home, C: c.axes.C.Home}
}
