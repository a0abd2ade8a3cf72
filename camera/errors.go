package camera

import "fmt"

// CaptureError reports a frame-fetch failure after the ISP-stall recovery
// sequence has been exhausted, or at once when the error is not one that
// recovery applies to. Attempts is the number of frame reads made.
type CaptureError struct {
	CameraID string
	Attempts int
	Last     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("camera %s: capture failed after %d attempts: %v", e.CameraID, e.Attempts, e.Last)
}

// SyncError reports that not every requested camera produced a result in
// capture_sync_all.
type SyncError struct {
	Failed []string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("camera sync: %d camera(s) failed: %v", len(e.Failed), e.Failed)
}

// StateError reports an operation attempted from a state that does not
// permit it (capture/calibration/focus require "streaming").
type StateError struct {
	CameraID string
	State    State
	Op       string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("camera %s: cannot %s from state %s", e.CameraID, e.Op, e.State)
}

// NotFoundError reports that the requested camera device could not be
// opened — a hardware-connection error, fatal at startup unless
// simulation_mode is set.
type NotFoundError struct {
	CameraID string
	Detail   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("camera %s not found: %s", e.CameraID, e.Detail)
}
