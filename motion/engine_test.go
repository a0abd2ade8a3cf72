package motion

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nasa-jpl/scanctl/comm"
)

func fakeEngine(t *testing.T) (*Engine, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	serverCh := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		serverCh <- conn
	}()
	rd := comm.NewRemoteDevice(ln.Addr().String(), false, &comm.Terminators{Rx: '\n', Tx: '\n'}, nil)
	if err := rd.Open(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	server := <-serverCh
	ln.Close()
	e := NewEngine(&rd, nil)
	e.mu.Lock()
	e.state = StateEngineIdle
	e.mu.Unlock()
	go e.readLoop()
	return e, server
}

func TestSendCommandAck(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		r := bufio.NewReader(server)
		line, _ := r.ReadString('\n')
		if strings.TrimSpace(line) == "$X" {
			server.Write([]byte("ok\n"))
		}
	}()
	if err := e.SendCommand("$X", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendCommandError(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		r := bufio.NewReader(server)
		r.ReadString('\n')
		server.Write([]byte("error:9\n"))
	}()
	err := e.SendCommand("bogus", false)
	re, ok := err.(*ResponseError)
	if !ok {
		t.Fatalf("expected *ResponseError, got %T (%v)", err, err)
	}
	if re.Code != 9 {
		t.Errorf("expected code 9, got %d", re.Code)
	}
	if !e.NeedsReset() {
		t.Errorf("expected engine to need reset after an error token")
	}
}

// Scenario 4: homing-completion detection.
func TestHomeScenario(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		r := bufio.NewReader(server)
		line, _ := r.ReadString('\n')
		if strings.TrimSpace(line) != "$H" {
			return
		}
		server.Write([]byte("ok\n"))
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte("[MSG:DBG: Homing Cycle Z]\n"))
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte("[msg:dbg: homing DONE]\n"))
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte("<Idle|MPos:0,0,0,0|FS:0,0>\n"))
	}()
	if err := e.Home(2 * time.Second); err != nil {
		t.Fatalf("expected Home to succeed, got %v", err)
	}
}

func TestHomeWithoutFinalIdleFails(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		r := bufio.NewReader(server)
		r.ReadString('\n')
		server.Write([]byte("ok\n"))
		time.Sleep(10 * time.Millisecond)
		server.Write([]byte("[MSG:DBG: Homing done]\n"))
		// deliberately never send a subsequent <Idle...> report
	}()
	err := e.Home(300 * time.Millisecond)
	if err == nil {
		t.Fatalf("expected Home to fail without a subsequent Idle report")
	}
}

func TestQueryStatusParsesLastCoordAsC(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		r := bufio.NewReader(server)
		b := make([]byte, 1)
		server.Read(b) // the '?' real-time byte
		server.Write([]byte("<Idle|MPos:1.0,2.0,3.0,4.0,5.0|FS:0,0>\n"))
		_ = r
	}()
	st, err := e.QueryStatus()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.PositionMachine.X != 1.0 || st.PositionMachine.Y != 2.0 {
		t.Errorf("expected X=1.0 Y=2.0, got %+v", st.PositionMachine)
	}
	if st.PositionMachine.C != 5.0 {
		t.Errorf("expected last coordinate 5.0 to be parsed as C, got %v", st.PositionMachine.C)
	}
}

// waitMotionComplete must not report completion on the first Idle it sees
// if the board never actually left Idle to run the move.
func TestWaitMotionCompleteRequiresNonIdleTransition(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		b := make([]byte, 1)
		for {
			if _, err := server.Read(b); err != nil {
				return
			}
			if b[0] == '?' {
				server.Write([]byte("<Idle|MPos:0,0,0,0|FS:0,0>\n"))
			}
		}
	}()
	if err := e.waitMotionComplete(100 * time.Millisecond); err == nil {
		t.Fatalf("expected a timeout when the board never reports a non-idle state")
	}
}

// Scenario generalisation: a genuine Run -> Idle transition is accepted.
func TestWaitMotionCompleteWaitsForRunThenIdle(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		b := make([]byte, 1)
		seen := 0
		for {
			if _, err := server.Read(b); err != nil {
				return
			}
			if b[0] != '?' {
				continue
			}
			seen++
			if seen == 1 {
				server.Write([]byte("<Run|MPos:0,0,0,0|FS:100,0>\n"))
				continue
			}
			server.Write([]byte("<Idle|MPos:0,0,0,0|FS:0,0>\n"))
		}
	}()
	if err := e.waitMotionComplete(2 * time.Second); err != nil {
		t.Fatalf("expected completion after a Run->Idle transition, got %v", err)
	}
}

func TestEmergencyStopNeedsReset(t *testing.T) {
	e, server := fakeEngine(t)
	defer server.Close()
	go func() {
		buf := make([]byte, 2)
		server.Read(buf)
	}()
	if err := e.EmergencyStop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.NeedsReset() {
		t.Errorf("expected needs_reset after emergency stop")
	}
}
