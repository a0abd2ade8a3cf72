// Package storage specifies the persistence collaborator's contract: the
// scan orchestrator (C7) hands each capture's image bytes and
// photogrammetry metadata to a Sink, but the file-system session layout
// that decides where those bytes ultimately land is an external
// collaborator, out of scope per spec.md §1 ("file-system session
// layout"). Only the interface is specified here, plus an in-memory Sink
// used by this repo's own tests.
package storage

import (
	"context"
	"time"

	"github.com/nasa-jpl/scanctl/axis"
	"github.com/nasa-jpl/scanctl/metadata"
)

// Record is one persisted capture: a single camera's image at a single
// stack index of a single scan point, with the metadata the orchestrator
// assembles per spec.md §4.7 step 6.
type Record struct {
	ScanID          string
	PointIndex      int
	StackIndex      int // 1-based
	StackTotal      int
	CameraID        string
	ImageBytes      []byte
	PositionMachine axis.Position4D
	PositionWorld   metadata.Position
	FocusLensPos    float64
	Exposure        time.Duration
	Gain            float64
	CapturedAt      time.Time
}

// Sink is the persistence collaborator's contract. Implementations decide
// where bytes land (local disk, object storage, a test double); Save must
// be safe to call concurrently, since capture_sync_all may fan out one
// Save per camera.
type Sink interface {
	Save(ctx context.Context, rec Record) error
}
