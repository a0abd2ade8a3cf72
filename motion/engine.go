// Package motion implements the motion protocol engine (C1) that speaks the
// motion board's streaming G-code-like dialect over a serial link, and the
// motion controller (C2) that layers an axis-aware API on top of it.
package motion

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/scanctl/comm"
)

// EngineState mirrors the protocol engine's own state machine:
// disconnected -> connecting -> idle -> busy -> (idle | alarm | lost);
// alarm and lost are left via Unlock (alarm -> idle) or a fresh Reconnect.
type EngineState int

const (
	StateDisconnected EngineState = iota
	StateConnecting
	StateEngineIdle
	StateBusy
	StateEngineAlarm
	StateLost
)

const (
	defaultCommandTimeout = 2 * time.Second
	defaultHomingTimeout  = 120 * time.Second
)

// Engine is the single-writer protocol engine owning one exclusive serial
// connection to the motion board. It is not safe to share across
// goroutines except through its methods; callers serialise through it the
// way the motion controller does.
type Engine struct {
	rd  *comm.RemoteDevice
	log *log.Logger

	mu         sync.Mutex
	state      EngineState
	needsReset bool
	lastStatus Status

	acks  chan ackFrame
	dbg   chan string
	rdone chan struct{}
}

type ackFrame struct {
	ok   bool
	code int
	kind string // "ok", "error", "alarm"
}

// NewEngine wraps an opened comm.RemoteDevice. logger may be nil, in which
// case log.Default() is used, matching the teacher's nil-safe logging
// convention.
func NewEngine(rd *comm.RemoteDevice, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		rd:    rd,
		log:   logger,
		state: StateDisconnected,
		acks:  make(chan ackFrame, 4),
		dbg:   make(chan string, 16),
		rdone: make(chan struct{}),
	}
	return e
}

// Connect opens the serial link and starts the background reader that
// demultiplexes the board's three output streams.
func (e *Engine) Connect() error {
	e.mu.Lock()
	e.state = StateConnecting
	e.mu.Unlock()
	if err := e.rd.Open(); err != nil {
		e.mu.Lock()
		e.state = StateDisconnected
		e.mu.Unlock()
		return err
	}
	e.mu.Lock()
	e.state = StateEngineIdle
	e.needsReset = false
	e.mu.Unlock()
	go e.readLoop()
	return nil
}

// Reconnect clears needs_reset and re-establishes the connection.
func (e *Engine) Reconnect() error {
	e.rd.Close()
	return e.Connect()
}

func (e *Engine) readLoop() {
	defer close(e.rdone)
	for {
		line, err := e.rd.Recv()
		if err != nil {
			e.log.Printf("motion: read loop terminating: %v", err)
			e.mu.Lock()
			e.state = StateLost
			e.needsReset = true
			e.mu.Unlock()
			return
		}
		s := string(line)
		if s == "" {
			continue
		}
		switch {
		case s == "ok":
			e.acks <- ackFrame{ok: true, kind: "ok"}
		case strings.HasPrefix(s, "error:"):
			code, _ := strconv.Atoi(strings.TrimPrefix(s, "error:"))
			e.acks <- ackFrame{ok: false, code: code, kind: "error"}
		case strings.HasPrefix(s, "ALARM:"):
			code, _ := strconv.Atoi(strings.TrimPrefix(s, "ALARM:"))
			e.mu.Lock()
			e.state = StateEngineAlarm
			e.needsReset = true
			e.mu.Unlock()
			e.acks <- ackFrame{ok: false, code: code, kind: "alarm"}
		case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
			st, ok := parseStatus(s, time.Now())
			if ok {
				e.mu.Lock()
				e.lastStatus = st
				e.mu.Unlock()
			}
		case strings.HasPrefix(s, "[MSG:") || strings.HasPrefix(s, "[msg:"):
			inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
			select {
			case e.dbg <- inner:
			default:
				e.log.Printf("motion: debug channel full, dropping %q", inner)
			}
		default:
			e.log.Printf("motion: unrecognised line %q", s)
		}
	}
}

// NeedsReset reports whether the engine has abandoned a command (alarm,
// timeout, emergency stop) and refuses further non-reset traffic.
func (e *Engine) NeedsReset() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.needsReset
}

func (e *Engine) waitAck(timeout time.Duration) error {
	select {
	case f := <-e.acks:
		switch f.kind {
		case "ok":
			return nil
		case "error":
			e.mu.Lock()
			e.needsReset = true
			e.mu.Unlock()
			return &ResponseError{Code: f.code}
		case "alarm":
			return &AlarmError{Code: f.code}
		}
		return nil
	case <-time.After(timeout):
		e.mu.Lock()
		e.needsReset = true
		e.mu.Unlock()
		return &TimeoutError{Op: "command ack", Timeout: timeout.String()}
	}
}

// SendCommand writes line+\n, then awaits ok/error/ALARM. If waitMotion is
// true, it additionally blocks until the status stream shows a non-idle
// state followed by idle — a command that completes in "ok" without ever
// leaving idle (e.g. a parameter set) is immediately considered complete.
func (e *Engine) SendCommand(line string, waitMotion bool) error {
	if e.NeedsReset() {
		return &NeedsResetError{}
	}
	e.mu.Lock()
	e.state = StateBusy
	e.mu.Unlock()

	if err := e.rd.Send([]byte(line)); err != nil {
		e.mu.Lock()
		e.needsReset = true
		e.state = StateDisconnected
		e.mu.Unlock()
		return err
	}
	if err := e.waitAck(defaultCommandTimeout); err != nil {
		return err
	}
	if waitMotion {
		if err := e.waitMotionComplete(defaultCommandTimeout * 60); err != nil {
			return err
		}
	}
	e.mu.Lock()
	if e.state == StateBusy {
		e.state = StateEngineIdle
	}
	e.mu.Unlock()
	return nil
}

// waitMotionComplete polls status until it has observed a non-idle state
// followed by idle. An Idle report before the machine has ever left Idle is
// not completion — it is just the poll winning the race against the board
// starting the move — so at least one StateRun (or other non-idle) report
// must be seen first.
func (e *Engine) waitMotionComplete(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	sawNonIdle := false
	for time.Now().Before(deadline) {
		st, err := e.QueryStatus()
		if err != nil {
			return err
		}
		if st.MachineState != StateIdle {
			sawNonIdle = true
		} else if sawNonIdle {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return &TimeoutError{Op: "motion complete", Timeout: timeout.String()}
}

// QueryStatus sends the status-request byte and parses the next status
// report into the cache, returning it.
func (e *Engine) QueryStatus() (Status, error) {
	sent := time.Now().UnixNano()
	if err := e.rd.SendRaw('?'); err != nil {
		return Status{}, err
	}
	deadline := time.Now().Add(defaultCommandTimeout)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		st := e.lastStatus
		fresh := st.LastUpdateNs >= sent
		e.mu.Unlock()
		if fresh {
			return st, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return Status{}, &TimeoutError{Op: "status report", Timeout: defaultCommandTimeout.String()}
}

// CachedStatus returns the last parsed status report without querying.
func (e *Engine) CachedStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStatus
}

// Home sends the homing command, then requires both the debug completion
// marker and a subsequent Idle status report. A board that never emits the
// marker is not considered homed even if it reports Idle.
func (e *Engine) Home(timeout time.Duration) error {
	if timeout == 0 {
		timeout = defaultHomingTimeout
	}
	if e.NeedsReset() {
		return &NeedsResetError{}
	}
	if err := e.rd.Send([]byte("$H")); err != nil {
		return err
	}
	if err := e.waitAck(defaultCommandTimeout); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	sawMarker := false
	for time.Now().Before(deadline) {
		select {
		case msg := <-e.dbg:
			if isHomingDoneMarker(msg) {
				sawMarker = true
			}
		case <-time.After(50 * time.Millisecond):
		}
		if sawMarker {
			break
		}
	}
	if !sawMarker {
		return &TimeoutError{Op: "homing debug marker", Timeout: timeout.String()}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = 5 * time.Second
	}
	idleDeadline := time.Now().Add(remaining)
	for time.Now().Before(idleDeadline) {
		st, err := e.QueryStatus()
		if err == nil && st.MachineState == StateIdle {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return ErrHomingNotIdle
}

// Unlock sends $X (clear-alarm). It does not home: position becomes
// unknown, and the caller above must surface that as a degraded state.
func (e *Engine) Unlock() error {
	if err := e.rd.Send([]byte("$X")); err != nil {
		return err
	}
	if err := e.waitAck(defaultCommandTimeout); err != nil {
		return err
	}
	e.mu.Lock()
	e.needsReset = false
	e.state = StateEngineIdle
	e.mu.Unlock()
	return nil
}

// EmergencyStop is a best-effort halt: feed-hold then soft-reset, both
// real-time bytes. The engine refuses further non-reset commands until the
// caller explicitly Reconnects.
func (e *Engine) EmergencyStop() error {
	err1 := e.rd.SendRaw('!')
	err2 := e.rd.SendRaw(0x18)
	e.mu.Lock()
	e.needsReset = true
	e.state = StateEngineAlarm
	e.mu.Unlock()
	if err1 != nil {
		return err1
	}
	return err2
}

// JogCancel writes the real-time jog-cancel byte, aborting an in-progress jog.
func (e *Engine) JogCancel() error {
	return e.rd.SendRaw(0x85)
}

// Disconnect closes the serial link and waits for the read loop to exit.
func (e *Engine) Disconnect() error {
	err := e.rd.Close()
	<-e.rdone
	e.mu.Lock()
	e.state = StateDisconnected
	e.mu.Unlock()
	return err
}

// State returns the engine's current state-machine value.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
