// Package scan implements the scan orchestrator (C7): the state machine
// that sequences motion, lighting, capture, and persistence per scan
// point, with pause/resume/cancel, progress accounting, and final report
// emission, per spec.md §4.7.
package scan

import "time"

// Status is the scan's top-level lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Phase is the current inter-point activity, finer-grained than Status.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseHoming      Phase = "homing"
	PhasePositioning Phase = "positioning"
	PhaseCalibrating Phase = "calibrating"
	PhaseCapturing   Phase = "capturing"
	PhaseSaving      Phase = "saving"
	PhaseFinalising  Phase = "finalising"
)

// PointError is one entry in the scan's error list: no error is ever
// silently dropped, every one is appended here and also emitted as an
// event.
type PointError struct {
	PointIndex int    `json:"point_index"`
	Kind       string `json:"kind"` // "retryable", "fatal", "skip"
	Detail     string `json:"detail"`
}

// Progress is current_point/total_points, plus the stack index when the
// point being captured is a focus stack.
type Progress struct {
	CurrentPoint int
	TotalPoints  int
	StackIndex   int
	StackTotal   int
}

// Timing records when the scan started and ended. Time spent paused is
// tracked by the Orchestrator and subtracted when the report's active
// duration is computed.
type Timing struct {
	StartedAt time.Time
	EndedAt   time.Time
}

// State is the live snapshot of a running (or terminated) scan. It is
// owned exclusively by the Orchestrator; external readers only ever see a
// copy via Snapshot, never the live value.
type State struct {
	ID         string
	Status     Status
	Phase      Phase
	Progress   Progress
	Timing     Timing
	Errors     []PointError
	PatternRef string
}

// Report is the JSON-shaped record emitted on scan termination, per
// spec.md §4.7.
type Report struct {
	ScanID          string       `json:"scan_id"`
	Status          Status       `json:"status"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         time.Time    `json:"ended_at"`
	ElapsedActiveS  float64      `json:"elapsed_active_s"`
	PointsCompleted int          `json:"points_completed"`
	ImagesCaptured  int          `json:"images_captured"`
	ImagesFailed    int          `json:"images_failed"`
	Errors          []PointError `json:"errors"`
}
