package scan

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-jpl/scanctl/axis"
	"github.com/nasa-jpl/scanctl/camera"
	"github.com/nasa-jpl/scanctl/coords"
	"github.com/nasa-jpl/scanctl/lighting"
	"github.com/nasa-jpl/scanctl/metadata"
	"github.com/nasa-jpl/scanctl/motion"
	"github.com/nasa-jpl/scanctl/pattern"
	"github.com/nasa-jpl/scanctl/storage"
)

// EventPublisher is the minimal bus surface the orchestrator needs,
// matching the local interface every other component package declares.
type EventPublisher interface {
	Publish(kind string, data interface{})
}

// FocusConfig is the scan-time global focus configuration applied when a
// point carries no per-point override.
type FocusConfig struct {
	Mode               camera.FocusMode
	ManualLensPosition float64
}

// LightingConfig is the scan-level lighting regime: flash (per-capture
// brightness change) or constant (hold for the whole scan), per §4.7.
type LightingConfig struct {
	FlashMode         bool
	IdleBrightness    float64
	CaptureBrightness float64
}

// Config bundles everything the orchestrator needs beyond the subsystem
// handles themselves: which cameras to drive (first entry is the stereo
// "left" camera, if two are configured), the stereo geometry for world-
// position metadata, the global focus and lighting regimes, and the
// capture resolution/quality to request.
type Config struct {
	CameraIDs      []string
	Stereo         coords.Stereo
	Focus          FocusConfig
	Lighting       LightingConfig
	CaptureSettings camera.Settings
	FeedrateMMPerMin float64
}

// Orchestrator is the scan-level state machine (C7): it sequences
// motion -> lighting -> capture -> persistence per point, via C5 for
// target/world-position math, with pause/resume/cancel and a final
// report. It is the only component holding references to all three
// hardware subsystems; they never call each other directly.
type Orchestrator struct {
	motion   *motion.Controller
	cameras  *camera.Controller
	lighting *lighting.Controller
	sink     storage.Sink
	bus      EventPublisher
	log      *log.Logger
	cfg      Config

	mu          sync.Mutex
	state       State
	totalPaused time.Duration

	pauseRequested  int32
	cancelRequested int32
	continuousAF    bool
}

// New constructs an orchestrator over already-constructed subsystem
// controllers. bus may be nil (events silently dropped); logger may be
// nil (falls back to log.Default()).
func New(m *motion.Controller, c *camera.Controller, l *lighting.Controller, sink storage.Sink, bus EventPublisher, logger *log.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		motion: m, cameras: c, lighting: l, sink: sink, bus: bus, log: logger, cfg: cfg,
		state: State{Status: StatusIdle},
	}
}

func (o *Orchestrator) publish(kind string, data interface{}) {
	if o.bus != nil {
		o.bus.Publish(kind, data)
	}
}

// Snapshot returns a non-blocking copy of the current scan state, the
// only way external readers observe it.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.state.Status = s
	o.mu.Unlock()
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.state.Phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) appendError(e PointError) {
	o.mu.Lock()
	o.state.Errors = append(o.state.Errors, e)
	o.mu.Unlock()
}

// Pause requests a pause, honoured at the next inter-point boundary,
// never mid-capture or mid-motion.
func (o *Orchestrator) Pause() { atomic.StoreInt32(&o.pauseRequested, 1) }

// Resume clears a pending or active pause request.
func (o *Orchestrator) Resume() { atomic.StoreInt32(&o.pauseRequested, 0) }

// Cancel requests cancellation, honoured at the same boundaries as Pause.
func (o *Orchestrator) Cancel() { atomic.StoreInt32(&o.cancelRequested, 1) }

func (o *Orchestrator) isCancelled() bool { return atomic.LoadInt32(&o.cancelRequested) == 1 }

// waitIfPaused blocks while a pause is active, excluding the blocked
// duration from the scan's active-time accounting. It is only ever
// called at an inter-point boundary, never from inside a capture or
// motion call.
func (o *Orchestrator) waitIfPaused() {
	if atomic.LoadInt32(&o.pauseRequested) == 0 {
		return
	}
	o.setStatus(StatusPaused)
	o.publish("scan.paused", nil)
	start := time.Now()
	for atomic.LoadInt32(&o.pauseRequested) == 1 && !o.isCancelled() {
		time.Sleep(25 * time.Millisecond)
	}
	o.mu.Lock()
	o.totalPaused += time.Since(start)
	o.mu.Unlock()
	if !o.isCancelled() {
		o.setStatus(StatusRunning)
		o.publish("scan.resumed", nil)
	}
}

// checkReady performs the pre-scan readiness checks once before the first
// point: the motion, camera and lighting handles are set and at least one
// camera ID is configured. It does not query whether motion is connected
// and homed or unlocked, or whether the cameras are streaming.
func (o *Orchestrator) checkReady() error {
	if o.motion == nil {
		return &NotReadyError{Subsystem: "motion", Detail: "not configured"}
	}
	if o.cameras == nil || len(o.cfg.CameraIDs) == 0 {
		return &NotReadyError{Subsystem: "camera", Detail: "no cameras configured"}
	}
	if o.lighting == nil {
		return &NotReadyError{Subsystem: "lighting", Detail: "not configured"}
	}
	return nil
}

// Run executes a complete scan over pat, returning the final report. It
// blocks the calling goroutine for the scan's duration; Pause/Resume/
// Cancel are safe to call concurrently from another goroutine, per the
// cooperative-concurrency model in spec.md §5. scanID may be empty, in
// which case a UUID v4 is generated once, at scan start, per the
// supplemented report/session-ID convention.
func (o *Orchestrator) Run(ctx context.Context, scanID string, pat *pattern.Pattern) (Report, error) {
	if o.Snapshot().Status == StatusRunning || o.Snapshot().Status == StatusPaused {
		return Report{}, &AlreadyRunningError{}
	}
	if err := o.checkReady(); err != nil {
		return Report{}, err
	}
	if scanID == "" {
		scanID = uuid.NewString()
	}

	atomic.StoreInt32(&o.pauseRequested, 0)
	atomic.StoreInt32(&o.cancelRequested, 0)
	o.continuousAF = false

	o.mu.Lock()
	o.state = State{
		ID:       scanID,
		Status:   StatusInitializing,
		Phase:    PhaseInit,
		Progress: Progress{TotalPoints: pat.Len()},
		Timing:   Timing{StartedAt: time.Now()},
	}
	o.totalPaused = 0
	o.mu.Unlock()

	o.publish("scan.started", map[string]interface{}{"scan_id": scanID, "total_points": pat.Len()})
	o.setStatus(StatusRunning)

	// Lighting bracket, per spec.md:145/:198/:206: flash mode holds idle
	// brightness between points and steps up only around each capture;
	// constant mode raises to capture_brightness once, here, and holds it
	// for the whole scan so every point's capture already has light on it.
	if o.cfg.Lighting.FlashMode {
		o.lighting.SetAll(o.cfg.Lighting.IdleBrightness)
	} else {
		o.lighting.SetAll(o.cfg.Lighting.CaptureBrightness)
	}

	var (
		imagesCaptured, imagesFailed, pointsCompleted int
		terminal                                      Status
	)
	terminal = StatusCompleted

	idx := 0
	for {
		pt, ok := pat.Next()
		if !ok {
			break
		}
		idx++

		if o.isCancelled() {
			terminal = StatusCancelled
			break
		}
		o.waitIfPaused()
		if o.isCancelled() {
			terminal = StatusCancelled
			break
		}

		captured, failed, perr := o.runPoint(ctx, scanID, idx, pt)
		imagesCaptured += captured
		imagesFailed += failed
		if perr != nil {
			o.appendError(*perr)
			o.publish("motion.failed", map[string]interface{}{"point_index": idx, "detail": perr.Detail})
			if perr.Kind == "fatal" {
				terminal = StatusFailed
				break
			}
		}
		pointsCompleted++
		o.mu.Lock()
		o.state.Progress.CurrentPoint = idx
		o.mu.Unlock()
		o.publish("scan.point_completed", map[string]interface{}{"point_index": idx, "total_points": pat.Len()})

		if o.isCancelled() {
			terminal = StatusCancelled
			break
		}
		o.waitIfPaused()
	}

	if terminal == StatusCancelled {
		if !o.motion.Degraded() {
			o.motion.MoveAbsolute(o.motion.HomePosition(), o.cfg.FeedrateMMPerMin)
		}
		o.publish("scan.cancelled", map[string]interface{}{"scan_id": scanID})
	} else if terminal == StatusFailed {
		o.publish("scan.failed", map[string]interface{}{"scan_id": scanID})
	} else {
		o.publish("scan.completed", map[string]interface{}{"scan_id": scanID})
	}
	// Closes the bracket opened above for both lighting regimes: flash mode's
	// idle floor and constant mode's held capture_brightness both end here.
	o.lighting.SetAll(0)

	o.setPhase(PhaseFinalising)
	o.mu.Lock()
	o.state.Status = terminal
	o.state.Timing.EndedAt = time.Now()
	endedAt := o.state.Timing.EndedAt
	startedAt := o.state.Timing.StartedAt
	errs := append([]PointError(nil), o.state.Errors...)
	paused := o.totalPaused
	o.mu.Unlock()

	active := endedAt.Sub(startedAt) - paused
	if active < 0 {
		active = 0
	}

	return Report{
		ScanID:          scanID,
		Status:          terminal,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		ElapsedActiveS:  active.Seconds(),
		PointsCompleted: pointsCompleted,
		ImagesCaptured:  imagesCaptured,
		ImagesFailed:    imagesFailed,
		Errors:          errs,
	}, nil
}

// runPoint executes steps 1-8 of §4.7 for a single point, returning the
// number of images captured and failed across every stack level and
// camera, plus a point-level error if motion or first-point calibration
// failed outright.
func (o *Orchestrator) runPoint(ctx context.Context, scanID string, idx int, pt pattern.Point) (captured, failed int, perr *PointError) {
	n := pt.CaptureCount()
	totalShots := n * len(o.cfg.CameraIDs)

	o.setPhase(PhasePositioning)
	if err := o.moveWithRetry(pt.Position); err != nil {
		return 0, totalShots, &PointError{PointIndex: idx, Kind: classifyMotionErr(err), Detail: err.Error()}
	}
	o.publish("motion.completed", map[string]interface{}{"point_index": idx})

	time.Sleep(time.Duration(pt.Dwell()) * time.Millisecond)

	if idx == 1 {
		o.setPhase(PhaseCalibrating)
		if err := o.setupFocusForFirstPoint(pt); err != nil {
			return 0, totalShots, &PointError{PointIndex: idx, Kind: "fatal", Detail: err.Error()}
		}
	} else if o.continuousAF {
		o.setPhase(PhaseCalibrating)
		for _, camID := range o.cfg.CameraIDs {
			if _, err := o.cameras.AutofocusOnce(camID); err != nil {
				o.appendError(PointError{PointIndex: idx, Kind: "skip", Detail: fmt.Sprintf("autofocus camera %s: %v", camID, err)})
				o.publish("camera.autofocus_failed", map[string]interface{}{"point_index": idx, "camera_id": camID, "detail": err.Error()})
			}
		}
	}

	if o.cfg.Lighting.FlashMode {
		o.lighting.SetAll(o.cfg.Lighting.CaptureBrightness)
	}

	for i := 1; i <= n; i++ {
		o.setPhase(PhaseCapturing)
		o.mu.Lock()
		o.state.Progress.StackIndex = i
		o.state.Progress.StackTotal = n
		o.mu.Unlock()

		if n > 1 {
			lens := pt.FocusValues[i-1]
			for _, camID := range o.cfg.CameraIDs {
				o.cameras.SetFocusManual(camID, lens)
			}
			time.Sleep(150 * time.Millisecond)
		}

		settings := make(map[string]camera.Settings, len(o.cfg.CameraIDs))
		for _, camID := range o.cfg.CameraIDs {
			settings[camID] = o.cfg.CaptureSettings
		}
		sres := o.cameras.CaptureSyncAll(settings)

		o.setPhase(PhaseSaving)
		for _, camID := range o.cfg.CameraIDs {
			r := sres.PerCamera[camID]
			if !r.Success {
				failed++
				continue
			}
			world, euler := o.worldPosition(camID, pt.Position)
			lens, _ := o.cameras.FocusMemory(camID)
			rec := storage.Record{
				ScanID:          scanID,
				PointIndex:      idx,
				StackIndex:      i,
				StackTotal:      n,
				CameraID:        camID,
				ImageBytes:      r.ImageBytes,
				PositionMachine: pt.Position,
				PositionWorld:   metadata.Position{World: world, Orient: euler, CamID: camID},
				FocusLensPos:    lens,
				CapturedAt:      time.Unix(0, r.TimestampNs),
			}
			if err := o.sink.Save(ctx, rec); err != nil {
				failed++
				o.appendError(PointError{PointIndex: idx, Kind: "skip", Detail: fmt.Sprintf("persist camera %s: %v", camID, err)})
				continue
			}
			captured++
		}
	}

	if o.cfg.Lighting.FlashMode {
		o.lighting.SetAll(o.cfg.Lighting.IdleBrightness)
	}
	return captured, failed, nil
}

// moveWithRetry issues the move and, on a motion timeout only, retries
// once before surfacing the error, per spec.md §7's timeout policy.
func (o *Orchestrator) moveWithRetry(target axis.Position4D) error {
	err := o.motion.MoveAbsolute(target, o.cfg.FeedrateMMPerMin)
	if err == nil {
		return nil
	}
	if _, ok := err.(*motion.TimeoutError); ok {
		return o.motion.MoveAbsolute(target, o.cfg.FeedrateMMPerMin)
	}
	return err
}

// classifyMotionErr maps a motion error to a point-level outcome kind per
// spec.md §7: alarms and limit violations are fatal to the scan; a
// timeout that survives the one retry in moveWithRetry is also fatal.
func classifyMotionErr(err error) string {
	switch err.(type) {
	case *motion.AlarmError:
		return "fatal"
	case *motion.LimitError:
		return "fatal"
	case *motion.TimeoutError:
		return "fatal"
	default:
		return "fatal"
	}
}

// setupFocusForFirstPoint performs the focus-mode dispatch of §4.7 step 4,
// run only for the first point of a scan.
func (o *Orchestrator) setupFocusForFirstPoint(pt pattern.Point) error {
	mode := pt.FocusMode
	if mode == "" {
		mode = o.cfg.Focus.Mode
	}
	switch mode {
	case camera.FocusManual:
		lens := o.cfg.Focus.ManualLensPosition
		if len(pt.FocusValues) > 0 {
			lens = pt.FocusValues[0]
		}
		for _, camID := range o.cfg.CameraIDs {
			if err := o.cameras.SetFocusManual(camID, lens); err != nil {
				return err
			}
		}
		return o.calibrateAll(true)
	case camera.FocusAutofocusOnce:
		for _, camID := range o.cfg.CameraIDs {
			if _, err := o.cameras.AutofocusOnce(camID); err != nil {
				return err
			}
		}
		return o.calibrateAll(true)
	case camera.FocusContinuousAF:
		o.continuousAF = true
		return o.calibrateAll(false)
	default: // FocusDefault: apply configured global settings
		for _, camID := range o.cfg.CameraIDs {
			if err := o.cameras.SetFocusManual(camID, o.cfg.Focus.ManualLensPosition); err != nil {
				return err
			}
		}
		return o.calibrateAll(true)
	}
}

func (o *Orchestrator) calibrateAll(skipAutofocus bool) error {
	for _, camID := range o.cfg.CameraIDs {
		if _, err := o.cameras.CalibrateExposure(camID, skipAutofocus); err != nil {
			return err
		}
	}
	return nil
}

// worldPosition resolves a camera's Cartesian world position and
// orientation for metadata emission via C5. When exactly two cameras are
// configured, the first is treated as the stereo-left camera and the
// second as stereo-right; with any other camera count, the centre-camera
// transform is used for every camera.
func (o *Orchestrator) worldPosition(camID string, target axis.Position4D) (coords.Cartesian, coords.Euler) {
	if len(o.cfg.CameraIDs) == 2 {
		left := camID == o.cfg.CameraIDs[0]
		return coords.StereoCartesian(target, o.cfg.Stereo, left)
	}
	c := coords.CentreCartesian(target)
	return c, coords.Euler{Omega: 0, Phi: target.C, Kappa: target.Z}
}
