package motion

import (
	"testing"

	"github.com/nasa-jpl/scanctl/axis"
)

func simAxes() axis.Set {
	return axis.Set{
		X: axis.Config{Type: axis.Linear, Min: -100, Max: 100},
		Y: axis.Config{Type: axis.Linear, Min: -100, Max: 100},
		Z: axis.Config{Type: axis.Rotational, Continuous: true, Min: -180, Max: 180},
		C: axis.Config{Type: axis.Rotational, Continuous: true, Min: -180, Max: 180},
	}
}

func TestSimEngineDrivesController(t *testing.T) {
	axes := simAxes()
	c := NewController(NewSimEngine(axes), axes)
	if err := c.MoveAbsolute(axis.Position4D{X: 10, Y: -5, Z: 90, C: 45}, 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := c.GetPosition()
	if got.X != 10 || got.Y != -5 {
		t.Errorf("expected X=10 Y=-5, got %+v", got)
	}
	if !axis.EqualContinuous(got.C, 45, 0.01) {
		t.Errorf("expected C=45, got %v", got.C)
	}
}

func TestSimEngineRejectsOutOfBounds(t *testing.T) {
	axes := simAxes()
	c := NewController(NewSimEngine(axes), axes)
	err := c.MoveAbsolute(axis.Position4D{X: 500}, 0)
	if _, ok := err.(*LimitError); !ok {
		t.Fatalf("expected *LimitError, got %T", err)
	}
}
