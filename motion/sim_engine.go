package motion

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/scanctl/axis"
)

// SimEngine is an in-memory stand-in for Engine: it parses the same G-code
// lines the real controller issues and updates a position ledger
// immediately, with no serial I/O and no motion latency, so the
// orchestrator's full sequencing logic runs end-to-end with no hardware
// attached, per the simulation_mode factory guidance.
type SimEngine struct {
	mu       sync.Mutex
	pos      axis.Position4D
	home     axis.Position4D
	state    EngineState
	unlocked bool
}

// NewSimEngine constructs a simulation engine already parked at its
// configured home position.
func NewSimEngine(axes axis.Set) *SimEngine {
	home := axis.Position4D{X: axes.X.Home, Y: axes.Y.Home, Z: axes.Z.Home, C: axes.C.Home}
	return &SimEngine{
		pos:   home,
		home:  home,
		state: StateEngineIdle,
	}
}

// SendCommand parses the "G90 G1 X.. Y.. Z.. C.." lines MoveAbsolute
// issues and jog lines, applying them to the ledger instantly.
func (s *SimEngine) SendCommand(line string, waitMotion bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := strings.Fields(line)
	// jog lines ("$J=G91 ...") carry relative deltas
	relative := strings.Contains(line, "G91")
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		axisLetter := f[0]
		val, err := strconv.ParseFloat(f[1:], 64)
		if err != nil {
			continue
		}
		if relative {
			switch axisLetter {
			case 'X':
				val += s.pos.X
			case 'Y':
				val += s.pos.Y
			case 'Z':
				val += s.pos.Z
			case 'C':
				val += s.pos.C
			}
		}
		switch axisLetter {
		case 'X':
			s.pos.X = val
		case 'Y':
			s.pos.Y = val
		case 'Z':
			s.pos.Z = val
		case 'C':
			s.pos.C = val
		}
	}
	return nil
}

func (s *SimEngine) QueryStatus() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{MachineState: StateIdle, PositionMachine: s.pos, LastUpdateNs: time.Now().UnixNano()}, nil
}

func (s *SimEngine) CachedStatus() Status {
	st, _ := s.QueryStatus()
	return st
}

func (s *SimEngine) State() EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SimEngine) Home(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = s.home
	s.unlocked = false
	return nil
}

func (s *SimEngine) Unlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = true
	return nil
}

func (s *SimEngine) EmergencyStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateEngineAlarm
	return nil
}
