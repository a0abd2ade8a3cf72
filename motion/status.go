package motion

import (
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/scanctl/axis"
)

// MachineState is the board-reported state, authoritative over any local
// cache. Motion validation is gated on this, never on predicted position.
type MachineState string

const (
	StateIdle  MachineState = "Idle"
	StateRun   MachineState = "Run"
	StateJog   MachineState = "Jog"
	StateHome  MachineState = "Home"
	StateAlarm MachineState = "Alarm"
	StateHold  MachineState = "Hold"
	StateDoor  MachineState = "Door"
	StateCheck MachineState = "Check"
)

// Status is the parsed form of a `<State|MPos:...|...>` report.
type Status struct {
	MachineState    MachineState
	PositionMachine axis.Position4D
	Feedrate        float64
	HasFeedrate     bool
	LastUpdateNs    int64
}

// staleAfter is the cache staleness window from §4.2: a cached status older
// than this is never handed to a caller without a fresh query.
const staleAfter = time.Second

// Stale reports whether s is older than the one-second staleness window.
func (s Status) Stale(now time.Time) bool {
	if s.LastUpdateNs == 0 {
		return true
	}
	age := now.Sub(time.Unix(0, s.LastUpdateNs))
	return age > staleAfter
}

// parseStatus parses a status-report line, stripping its angle brackets if
// present, e.g. "<Idle|MPos:0.000,0.000,0.000,0.000|FS:0,0>".
//
// The number of machine coordinates after MPos: is variable: boards may
// emit 4, 5, or 6 axes. The first two are always the linear X/Y axes; the
// LAST one is always C, regardless of how many filler axes sit between
// them. This accommodates boards configured with extra reported axes.
func parseStatus(line string, now time.Time) (Status, bool) {
	line = strings.TrimPrefix(line, "<")
	line = strings.TrimSuffix(line, ">")
	fields := strings.Split(line, "|")
	if len(fields) == 0 {
		return Status{}, false
	}
	st := Status{MachineState: MachineState(fields[0]), LastUpdateNs: now.UnixNano()}
	found := false
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "MPos:") {
			coords := strings.Split(strings.TrimPrefix(f, "MPos:"), ",")
			if len(coords) < 2 {
				continue
			}
			vals := make([]float64, len(coords))
			ok := true
			for i, c := range coords {
				v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
				if err != nil {
					ok = false
					break
				}
				vals[i] = v
			}
			if !ok {
				continue
			}
			st.PositionMachine.X = vals[0]
			st.PositionMachine.Y = vals[1]
			st.PositionMachine.C = vals[len(vals)-1]
			if len(vals) >= 3 {
				st.PositionMachine.Z = vals[2]
			}
			found = true
		} else if strings.HasPrefix(f, "FS:") {
			parts := strings.Split(strings.TrimPrefix(f, "FS:"), ",")
			if len(parts) > 0 {
				if v, err := strconv.ParseFloat(parts[0], 64); err == nil {
					st.Feedrate = v
					st.HasFeedrate = true
				}
			}
		}
	}
	return st, found
}

// isHomingDoneMarker matches a debug message against the fixed homing
// completion marker, case-insensitive on the token "done" as specified.
func isHomingDoneMarker(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "homing") && strings.Contains(lower, "done")
}
