package camera

import (
	"context"
	"fmt"
	"time"
)

// SimBackend is the in-memory fake camera backend selected when
// simulation_mode is set: deterministic focus feedback and a synthesized
// frame, no hardware I/O, so the orchestrator's full sequencing logic can
// run end-to-end with no camera attached.
type SimBackend struct {
	focus      int
	autoExpose bool
	open       bool
}

// NewSimBackend constructs a simulated camera backend.
func NewSimBackend() *SimBackend {
	return &SimBackend{}
}

func (s *SimBackend) Open(res Resolution) error {
	s.open = true
	return nil
}

func (s *SimBackend) Close() error {
	s.open = false
	return nil
}

func (s *SimBackend) Start() error { return nil }
func (s *SimBackend) Stop() error  { return nil }

func (s *SimBackend) SetFocus(raw int) error {
	s.focus = raw
	return nil
}

func (s *SimBackend) GetFocus() (int, error) {
	return s.focus, nil
}

func (s *SimBackend) Autofocus() (int, error) {
	// a simulated lens always converges to mid-travel.
	s.focus = lensRawMax / 2
	return s.focus, nil
}

func (s *SimBackend) SetAutoExposure(bool) error { return nil }

func (s *SimBackend) ReadFrame(ctx context.Context) ([]byte, error) {
	if !s.open {
		return nil, fmt.Errorf("camera not open")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return []byte(fmt.Sprintf("sim-frame@focus=%d", s.focus)), nil
	}
}
