package scan

import "fmt"

// NotReadyError reports that Run's pre-scan check found a subsystem
// handle missing (motion, camera or lighting) or no camera ID configured.
// It is not raised for a motion link that is disconnected or unhomed, or
// for cameras that are not streaming: those states are not checked.
type NotReadyError struct {
	Subsystem string
	Detail    string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("scan: %s not ready: %s", e.Subsystem, e.Detail)
}

// AlreadyRunningError reports an attempt to start a second scan while one
// is in flight — at most one scan runs at a time per scanner instance.
type AlreadyRunningError struct{}

func (e *AlreadyRunningError) Error() string {
	return "scan: a scan is already running"
}
