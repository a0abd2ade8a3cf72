package motion

import (
	"bufio"
	"net"
	"strings"
	"testing"

	"github.com/nasa-jpl/scanctl/axis"
)

func fakeController(t *testing.T) (*Controller, net.Conn) {
	t.Helper()
	e, server := fakeEngine(t)
	axes := axis.Set{
		X: axis.Config{Type: axis.Linear, Min: -100, Max: 100},
		Y: axis.Config{Type: axis.Linear, Min: -100, Max: 100},
		Z: axis.Config{Type: axis.Rotational, Continuous: true, Min: -180, Max: 180},
		C: axis.Config{Type: axis.Rotational, Continuous: true, Min: -180, Max: 180},
	}
	return NewController(e, axes), server
}

// fakeBoard serves status queries ('?') with whatever *status currently
// holds, and replies "ok" to any newline-terminated command it receives,
// additionally invoking onCommand (which may mutate *status) with the
// command text (sans terminator) if it is non-nil.
func fakeBoard(server net.Conn, status *string, onCommand func(line string)) {
	var lineBuf []byte
	buf := make([]byte, 1)
	for {
		n, err := server.Read(buf)
		if err != nil || n == 0 {
			return
		}
		b := buf[0]
		if b == '?' {
			server.Write([]byte(*status + "\n"))
			continue
		}
		if b == '\n' {
			line := string(lineBuf)
			lineBuf = nil
			server.Write([]byte("ok\n"))
			if onCommand != nil {
				onCommand(line)
			}
			continue
		}
		lineBuf = append(lineBuf, b)
	}
}

func TestMoveAbsoluteRejectsOutOfBounds(t *testing.T) {
	c, server := fakeController(t)
	defer server.Close()
	err := c.MoveAbsolute(axis.Position4D{X: 500}, 0)
	if _, ok := err.(*LimitError); !ok {
		t.Fatalf("expected *LimitError, got %T (%v)", err, err)
	}
}

func TestMoveAbsoluteShortestArc(t *testing.T) {
	c, server := fakeController(t)
	defer server.Close()

	status := "<Idle|MPos:0,0,170,170|FS:0,0>"
	var sent string
	go fakeBoard(server, &status, func(line string) {
		if strings.HasPrefix(line, "G90") {
			sent = line
			status = "<Idle|MPos:0,0,190,190|FS:0,0>"
		}
	})

	// current cached C/Z default to zero; seed the cache from the board.
	c.GetPosition()

	if err := c.MoveAbsolute(axis.Position4D{X: 0, Y: 0, Z: -170, C: -170}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sent, "Z190.0000") {
		t.Errorf("expected commanded Z to be 190 (shortest arc), got %q", sent)
	}
}

func TestClearAlarmMarksDegraded(t *testing.T) {
	c, server := fakeController(t)
	defer server.Close()
	go func() {
		r := bufio.NewReader(server)
		r.ReadString('\n')
		server.Write([]byte("ok\n"))
	}()
	if err := c.ClearAlarm(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Degraded() {
		t.Errorf("expected controller to be degraded after ClearAlarm")
	}
}
