// Package camera implements the camera capture pipeline (C3): per-camera
// lifecycle, focus/exposure calibration, dual-camera synchronised capture
// with ISP-stall recovery, and focus-stack capture.
package camera

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"
)

// State is a camera's lifecycle state.
type State int

const (
	Uninitialised State = iota
	Configured
	Streaming
	Capturing
	Reconfiguring
	Recovering
)

func (s State) String() string {
	switch s {
	case Uninitialised:
		return "uninitialised"
	case Configured:
		return "configured"
	case Streaming:
		return "streaming"
	case Capturing:
		return "capturing"
	case Reconfiguring:
		return "reconfiguring"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// FocusMode selects how focus is resolved for a scan point.
type FocusMode string

const (
	FocusDefault       FocusMode = "default"
	FocusManual        FocusMode = "manual"
	FocusAutofocusOnce FocusMode = "autofocus_once"
	FocusContinuousAF  FocusMode = "continuous_af"
)

// Resolution is a capture frame size in pixels.
type Resolution struct {
	Width, Height int
}

// Settings is the per-capture configuration handed to Capture.
type Settings struct {
	Resolution  Resolution
	JPEGQuality int
}

// CaptureResult is the outcome of one camera's capture.
type CaptureResult struct {
	Success          bool
	ImageBytes       []byte
	TimestampNs      int64
	CameraID         string
	SettingsSnapshot Settings
	Err              error
}

// SyncCaptureResult is the outcome of capture_sync_all: every per-camera
// result plus the observed skew between the first and last completion.
type SyncCaptureResult struct {
	PerCamera map[string]CaptureResult
	SkewNs    int64
}

// CalibrationResult is the outcome of calibrate_exposure.
type CalibrationResult struct {
	CameraID     string
	LensPosition float64
	Gain         float64
	Exposure     time.Duration
}

// Backend is the hardware seam a concrete camera implementation satisfies.
// The production backend wraps gocv.VideoCapture (V4L2); a simulation
// backend can substitute deterministic synthesized frames with no
// hardware I/O, per the simulation_mode factory guidance.
type Backend interface {
	Open(res Resolution) error
	Close() error
	Start() error
	Stop() error
	// SetFocus/GetFocus operate in raw hardware units (0-1023).
	SetFocus(raw int) error
	GetFocus() (int, error)
	Autofocus() (raw int, err error)
	SetAutoExposure(bool) error
	// ReadFrame blocks until one JPEG-encoded frame is available or ctx is
	// cancelled; it is the operation the ISP-stall recovery wraps.
	ReadFrame(ctx context.Context) ([]byte, error)
}

const (
	lensUserMax  = 15.0
	lensRawMax   = 1023
	focusTol     = 5.0
	ispDeadline  = 10 * time.Second
	maxAttempts  = 3
	stopWait     = 500 * time.Millisecond
	startWait    = 300 * time.Millisecond
	stackSettle  = 150 * time.Millisecond
	aeSettleCt   = 3
	aeSettleWait = 300 * time.Millisecond
	afTimeout    = 4 * time.Second
)

func userToRaw(user float64) int {
	return int(math.Round(user / lensUserMax * lensRawMax))
}

func rawToUser(raw int) float64 {
	return float64(raw) / lensRawMax * lensUserMax
}

// camera bundles a Backend with its lifecycle state and focus memory.
type camera struct {
	mu          sync.Mutex
	id          string
	backend     Backend
	state       State
	focusMemory float64 // user units, last value this controller asserted
	hasFocus    bool
}

// Controller owns every per-camera handle; callers reach cameras only
// through its methods, per the ownership rule in the data model.
type Controller struct {
	log     *log.Logger
	bus     EventPublisher
	cameras map[string]*camera
}

// EventPublisher is the minimal surface the camera controller needs from
// the event bus: publishing capture/recovery/sync events.
type EventPublisher interface {
	Publish(kind string, data interface{})
}

// NewController constructs a camera controller over the given backends,
// keyed by camera ID.
func NewController(backends map[string]Backend, bus EventPublisher, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	cams := make(map[string]*camera, len(backends))
	for id, b := range backends {
		cams[id] = &camera{id: id, backend: b, state: Uninitialised}
	}
	return &Controller{log: logger, bus: bus, cameras: cams}
}

func (c *Controller) cam(id string) (*camera, error) {
	cm, ok := c.cameras[id]
	if !ok {
		return nil, &NotFoundError{CameraID: id, Detail: "not configured"}
	}
	return cm, nil
}

// FocusMemory returns the last focus value this controller asserted for
// camID, for callers (the scan orchestrator's persistence metadata) that
// need to report the lens position a capture was taken at.
func (c *Controller) FocusMemory(camID string) (float64, bool) {
	cm, err := c.cam(camID)
	if err != nil {
		return 0, false
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.focusMemory, cm.hasFocus
}

// CameraIDs returns every configured camera ID.
func (c *Controller) CameraIDs() []string {
	ids := make([]string, 0, len(c.cameras))
	for id := range c.cameras {
		ids = append(ids, id)
	}
	return ids
}

// Initialize opens and starts streaming on every configured camera.
func (c *Controller) Initialize(res Resolution) error {
	for id, cm := range c.cameras {
		cm.mu.Lock()
		if err := cm.backend.Open(res); err != nil {
			cm.mu.Unlock()
			return &NotFoundError{CameraID: id, Detail: err.Error()}
		}
		cm.state = Configured
		if err := cm.backend.Start(); err != nil {
			cm.mu.Unlock()
			return &NotFoundError{CameraID: id, Detail: err.Error()}
		}
		cm.state = Streaming
		cm.mu.Unlock()
	}
	return nil
}

// Shutdown stops and closes every camera.
func (c *Controller) Shutdown() error {
	var firstErr error
	for _, cm := range c.cameras {
		cm.mu.Lock()
		cm.backend.Stop()
		if err := cm.backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		cm.state = Uninitialised
		cm.mu.Unlock()
	}
	return firstErr
}

func (c *camera) requireStreaming(op string) error {
	if c.state != Streaming {
		return &StateError{CameraID: c.id, State: c.state, Op: op}
	}
	return nil
}

// SetFocusManual sets manual-focus mode at the given user-facing lens
// position ([0,15]), waits a brief settling delay, and is idempotent.
func (c *Controller) SetFocusManual(camID string, lensPosition float64) error {
	cm, err := c.cam(camID)
	if err != nil {
		return err
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if err := cm.requireStreaming("set_focus_manual"); err != nil {
		return err
	}
	if err := cm.backend.SetFocus(userToRaw(lensPosition)); err != nil {
		return err
	}
	cm.focusMemory = lensPosition
	cm.hasFocus = true
	time.Sleep(stackSettle)
	return nil
}

// AutofocusOnce triggers one autofocus cycle and stores the result in the
// focus memory.
func (c *Controller) AutofocusOnce(camID string) (float64, error) {
	cm, err := c.cam(camID)
	if err != nil {
		return 0, err
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if err := cm.requireStreaming("autofocus_once"); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), afTimeout)
	defer cancel()
	type result struct {
		raw int
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		raw, err := cm.backend.Autofocus()
		resCh <- result{raw, err}
	}()
	select {
	case r := <-resCh:
		if r.err != nil {
			return 0, r.err
		}
		lens := rawToUser(r.raw)
		cm.focusMemory = lens
		cm.hasFocus = true
		return lens, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("camera %s: autofocus timed out after %s", camID, afTimeout)
	}
}

// reassertFocus re-applies the stored focus memory, enforcing the focus
// persistence invariant after any operation that touches camera controls.
func (cm *camera) reassertFocus() error {
	if !cm.hasFocus {
		return nil
	}
	if err := cm.backend.SetFocus(userToRaw(cm.focusMemory)); err != nil {
		return err
	}
	raw, err := cm.backend.GetFocus()
	if err != nil {
		return err
	}
	if math.Abs(rawToUser(raw)-cm.focusMemory) > focusTol {
		return fmt.Errorf("camera %s: focus persistence violated: memory=%.2f reported=%.2f", cm.id, cm.focusMemory, rawToUser(raw))
	}
	return nil
}

// Reconfigure stops streaming, applies a new resolution, restarts
// streaming, and reapplies the stored focus memory before returning.
func (c *Controller) Reconfigure(camID string, res Resolution) error {
	cm, err := c.cam(camID)
	if err != nil {
		return err
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.state = Reconfiguring
	cm.backend.Stop()
	if err := cm.backend.Open(res); err != nil {
		return err
	}
	if err := cm.backend.Start(); err != nil {
		return err
	}
	cm.state = Streaming
	return cm.reassertFocus()
}

// CalibrateExposure enables auto-exposure, waits for settling frames,
// optionally autofocuses, and reasserts focus memory before returning.
// When skipAutofocus is true the controller must not engage autofocus and
// must leave the lens position intact, including across this call.
func (c *Controller) CalibrateExposure(camID string, skipAutofocus bool) (CalibrationResult, error) {
	cm, err := c.cam(camID)
	if err != nil {
		return CalibrationResult{}, err
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if err := cm.requireStreaming("calibrate_exposure"); err != nil {
		return CalibrationResult{}, err
	}
	if err := cm.backend.SetAutoExposure(true); err != nil {
		return CalibrationResult{}, err
	}
	for i := 0; i < aeSettleCt; i++ {
		time.Sleep(aeSettleWait)
	}

	lens := cm.focusMemory
	if skipAutofocus {
		// skip_autofocus: never engage autofocus, leave the lens position
		// intact (re-asserting the stored memory, not a fresh AF cycle).
		if err := cm.reassertFocus(); err != nil {
			return CalibrationResult{}, err
		}
	} else {
		raw, err := cm.backend.Autofocus()
		if err != nil {
			return CalibrationResult{}, err
		}
		lens = rawToUser(raw)
		cm.focusMemory = lens
		cm.hasFocus = true
	}
	return CalibrationResult{CameraID: camID, LensPosition: lens}, nil
}

// recoverableCapture matches the recognised ISP-stall error substrings.
func recoverableCapture(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "failed to queue buffer") ||
		strings.Contains(s, "invalid argument") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded")
}

// Capture fetches one frame, applying the ISP-stall recovery sequence:
// stop/wait 500ms/start/wait 300ms/retry, up to three attempts total.
func (c *Controller) Capture(camID string, settings Settings) CaptureResult {
	cm, err := c.cam(camID)
	if err != nil {
		return CaptureResult{CameraID: camID, Err: err}
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if err := cm.requireStreaming("capture"); err != nil {
		return CaptureResult{CameraID: camID, Err: err}
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		cm.state = Capturing
		ctx, cancel := context.WithTimeout(context.Background(), ispDeadline)
		frame, err := cm.backend.ReadFrame(ctx)
		cancel()
		cm.state = Streaming
		if err == nil {
			if attempt > 1 {
				c.publish("camera.recovered", map[string]interface{}{"camera_id": camID})
			}
			return CaptureResult{
				Success:          true,
				ImageBytes:       frame,
				TimestampNs:      time.Now().UnixNano(),
				CameraID:         camID,
				SettingsSnapshot: settings,
			}
		}
		lastErr = err
		c.publish("camera.capture_failed", map[string]interface{}{"camera_id": camID, "attempt": attempt, "error": err.Error()})
		if attempt == maxAttempts || !recoverableCapture(err) {
			break
		}
		cm.state = Recovering
		cm.backend.Stop()
		time.Sleep(stopWait)
		cm.backend.Start()
		time.Sleep(startWait)
	}
	return CaptureResult{CameraID: camID, Err: &CaptureError{CameraID: camID, Attempts: attempts, Last: lastErr}}
}

// maxSyncSkew is the target skew for capture_sync_all; exceeding it does
// not fail the capture but is reported and surfaced as camera.sync_lost.
const maxSyncSkew = 10 * time.Millisecond

// CaptureSyncAll fires every requested camera's capture concurrently and
// does not return until every per-camera result is resolved.
func (c *Controller) CaptureSyncAll(settingsPerCam map[string]Settings) SyncCaptureResult {
	type timedResult struct {
		id   string
		res  CaptureResult
		done time.Time
	}
	resCh := make(chan timedResult, len(settingsPerCam))
	var wg sync.WaitGroup
	for id, s := range settingsPerCam {
		wg.Add(1)
		go func(id string, s Settings) {
			defer wg.Done()
			r := c.Capture(id, s)
			resCh <- timedResult{id: id, res: r, done: time.Now()}
		}(id, s)
	}
	wg.Wait()
	close(resCh)

	out := SyncCaptureResult{PerCamera: make(map[string]CaptureResult, len(settingsPerCam))}
	var first, last time.Time
	for tr := range resCh {
		out.PerCamera[tr.id] = tr.res
		if first.IsZero() || tr.done.Before(first) {
			first = tr.done
		}
		if tr.done.After(last) {
			last = tr.done
		}
	}
	out.SkewNs = last.Sub(first).Nanoseconds()
	if time.Duration(out.SkewNs) > maxSyncSkew {
		c.publish("camera.sync_lost", map[string]interface{}{"skew_ns": out.SkewNs})
	}
	for id, r := range out.PerCamera {
		if r.Success {
			c.publish("camera.capture_succeeded", map[string]interface{}{"camera_id": id})
		}
	}
	return out
}

func (c *Controller) publish(kind string, data interface{}) {
	if c.bus != nil {
		c.bus.Publish(kind, data)
	}
}
