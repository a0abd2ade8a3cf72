package camera

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a scriptable Backend used to exercise controller logic
// without gocv or real hardware, mirroring the teacher's preference for
// small hand-written fakes over a mocking framework.
type fakeBackend struct {
	mu          sync.Mutex
	focus       int
	readErrs    []error // consumed in order by ReadFrame, nil means success
	readDelay   []time.Duration
	readIdx     int
	stopCount   int
	startCount  int
	autoFocusTo int
}

func (f *fakeBackend) Open(Resolution) error { return nil }
func (f *fakeBackend) Close() error          { return nil }
func (f *fakeBackend) Start() error          { f.startCount++; return nil }
func (f *fakeBackend) Stop() error           { f.stopCount++; return nil }
func (f *fakeBackend) SetFocus(raw int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus = raw
	return nil
}
func (f *fakeBackend) GetFocus() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focus, nil
}
func (f *fakeBackend) Autofocus() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus = f.autoFocusTo
	return f.focus, nil
}
func (f *fakeBackend) SetAutoExposure(bool) error { return nil }
func (f *fakeBackend) ReadFrame(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	idx := f.readIdx
	f.readIdx++
	var delay time.Duration
	if idx < len(f.readDelay) {
		delay = f.readDelay[idx]
	}
	var err error
	if idx < len(f.readErrs) {
		err = f.readErrs[idx]
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("frame"), nil
}

func streamingController(backends map[string]Backend) *Controller {
	c := NewController(backends, nil, nil)
	for _, cm := range c.cameras {
		cm.state = Streaming
	}
	return c
}

func TestSetFocusManualIdempotent(t *testing.T) {
	fb := &fakeBackend{}
	c := streamingController(map[string]Backend{"a": fb})
	if err := c.SetFocusManual("a", 8.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SetFocusManual("a", 8.0); err != nil {
		t.Fatalf("unexpected error on repeat: %v", err)
	}
	raw, _ := fb.GetFocus()
	if userToRaw(8.0) != raw {
		t.Errorf("expected raw focus %d, got %d", userToRaw(8.0), raw)
	}
}

func TestReconfigureReassertsFocus(t *testing.T) {
	fb := &fakeBackend{}
	c := streamingController(map[string]Backend{"a": fb})
	if err := c.SetFocusManual("a", 10.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Reconfigure("a", Resolution{Width: 1920, Height: 1080}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := fb.GetFocus()
	got := rawToUser(raw)
	if got < 10.0-5 || got > 10.0+5 {
		t.Errorf("expected focus to persist within +/-5 units of 10.0, got %v", got)
	}
}

func TestCalibrateExposureSkipAutofocusLeavesLensAlone(t *testing.T) {
	fb := &fakeBackend{autoFocusTo: 999}
	c := streamingController(map[string]Backend{"a": fb})
	c.SetFocusManual("a", 6.0)
	res, err := c.CalibrateExposure("a", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.LensPosition != 6.0 {
		t.Errorf("expected lens position to remain 6.0, got %v", res.LensPosition)
	}
	raw, _ := fb.GetFocus()
	if raw == 999 {
		t.Errorf("autofocus must not have been engaged when skip_autofocus is set")
	}
}

// Scenario 5: ISP-stall recovery.
func TestCaptureISPStallRecovery(t *testing.T) {
	fb := &fakeBackend{
		readErrs:  []error{context.DeadlineExceeded, fmt.Errorf("Invalid argument"), nil},
		readDelay: []time.Duration{50 * time.Millisecond, 0, 0},
	}
	c := streamingController(map[string]Backend{"a": fb})

	start := time.Now()
	result := c.Capture("a", Settings{})
	elapsed := time.Since(start)

	if !result.Success {
		t.Fatalf("expected capture to eventually succeed, got error: %v", result.Err)
	}
	if elapsed < stopWait+startWait {
		t.Errorf("expected recovery sequence to take at least stop+start wait, took %v", elapsed)
	}
	if fb.stopCount < 1 || fb.startCount < 1 {
		t.Errorf("expected at least one stop/start recovery cycle, got stop=%d start=%d", fb.stopCount, fb.startCount)
	}
}

func TestCaptureExhaustsAfterThreeAttempts(t *testing.T) {
	fb := &fakeBackend{
		readErrs: []error{fmt.Errorf("timeout"), fmt.Errorf("timeout"), fmt.Errorf("timeout")},
	}
	c := streamingController(map[string]Backend{"a": fb})
	result := c.Capture("a", Settings{})
	if result.Success {
		t.Fatalf("expected capture to fail after three attempts")
	}
	if _, ok := result.Err.(*CaptureError); !ok {
		t.Errorf("expected *CaptureError, got %T", result.Err)
	}
}

func TestCaptureSyncAllWaitsForEveryCamera(t *testing.T) {
	fast := &fakeBackend{}
	slow := &fakeBackend{readDelay: []time.Duration{20 * time.Millisecond}}
	c := streamingController(map[string]Backend{"fast": fast, "slow": slow})
	res := c.CaptureSyncAll(map[string]Settings{"fast": {}, "slow": {}})
	if len(res.PerCamera) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.PerCamera))
	}
	for id, r := range res.PerCamera {
		if !r.Success {
			t.Errorf("camera %s: expected success, got %v", id, r.Err)
		}
	}
}

func TestUserRawFocusRoundTrip(t *testing.T) {
	// +/-5 raw units, expressed in user units.
	tol := 5 * lensUserMax / lensRawMax
	for _, user := range []float64{0, 6.0, 8.0, 15.0} {
		raw := userToRaw(user)
		back := rawToUser(raw)
		if back < user-tol || back > user+tol {
			t.Errorf("round trip of %v through raw %d gave %v, outside +/-5 raw units (%v)", user, raw, back, tol)
		}
	}
}
