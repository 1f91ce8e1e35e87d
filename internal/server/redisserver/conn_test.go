package redisserver

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/respkv/internal/storage/memory"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

func newTestConnManager(opts ConnOptions, reg *metric.Registry) *ConnManager {
	h := NewCommandHandler(memory.New(), nil, reg, quietLogger())
	return NewConnManager(h, opts, reg, quietLogger())
}

// drain takes every pending byte for fd and reports whether the connection
// asked to be closed.
func drain(m *ConnManager, fd int) (string, bool) {
	out := string(m.Pending(fd))
	quit := m.Advance(fd, len(out))
	return out, quit
}

// ============================================================
// ConnState Tests
// ============================================================

func TestConnState_String(t *testing.T) {
	tests := []struct {
		state ConnState
		want  string
	}{
		{StateAccepted, "accepted"},
		{StateReading, "reading"},
		{StateProcessing, "processing"},
		{StateWriting, "writing"},
		{StateClosed, "closed"},
		{ConnState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// ============================================================
// ConnManager Tests
// ============================================================

func TestConnManager_OpenClose(t *testing.T) {
	reg := metric.NewRegistry()
	m := newTestConnManager(ConnOptions{}, reg)

	c1 := m.Open(7, "127.0.0.1:5000")
	c2 := m.Open(8, "127.0.0.1:5001")

	if c1.ID() == "" || c1.ID() == c2.ID() {
		t.Errorf("connection ids not unique: %q %q", c1.ID(), c2.ID())
	}
	if c1.State() != StateAccepted {
		t.Errorf("state = %v, want accepted", c1.State())
	}
	if c1.RemoteAddr() != "127.0.0.1:5000" {
		t.Errorf("RemoteAddr() = %q", c1.RemoteAddr())
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if got := testutil.ToFloat64(reg.ConnectionsActive); got != 2 {
		t.Errorf("connections_active = %v, want 2", got)
	}

	m.Close(7)
	m.Close(7)
	if _, ok := m.Lookup(7); ok {
		t.Error("connection 7 still registered after Close")
	}
	if c1.State() != StateClosed {
		t.Errorf("state = %v, want closed", c1.State())
	}

	fds := m.CloseAll()
	if len(fds) != 1 || fds[0] != 8 {
		t.Errorf("CloseAll() = %v, want [8]", fds)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after CloseAll", m.Len())
	}
	if got := testutil.ToFloat64(reg.ConnectionsActive); got != 0 {
		t.Errorf("connections_active = %v, want 0", got)
	}
}

func TestConnManager_FeedUnknown(t *testing.T) {
	m := newTestConnManager(ConnOptions{}, nil)
	if err := m.Feed(1, []byte("*1\r\n$4\r\nPING\r\n")); err == nil {
		t.Error("Feed() on unknown connection should fail")
	}
	if m.Pending(1) != nil {
		t.Error("Pending() on unknown connection should be nil")
	}
}

func TestConnManager_Pipelining(t *testing.T) {
	m := newTestConnManager(ConnOptions{}, nil)
	m.Open(1, "peer")

	var in []byte
	in = AppendCommand(in, []byte("SET"), []byte("k"), []byte("1"))
	in = AppendCommand(in, []byte("INCR"), []byte("k"))
	in = AppendCommand(in, []byte("GET"), []byte("k"))

	if err := m.Feed(1, in); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	c, _ := m.Lookup(1)
	if c.State() != StateWriting {
		t.Errorf("state = %v, want writing", c.State())
	}

	out, quit := drain(m, 1)
	if out != "+OK\r\n:2\r\n$1\r\n2\r\n" {
		t.Errorf("replies = %q", out)
	}
	if quit {
		t.Error("Advance() reported close without QUIT")
	}
	if c.State() != StateReading {
		t.Errorf("state = %v after flush, want reading", c.State())
	}
}

func TestConnManager_PartialFrames(t *testing.T) {
	m := newTestConnManager(ConnOptions{}, nil)
	m.Open(1, "peer")

	frame := AppendCommand(nil, []byte("ECHO"), []byte("hello world"))
	for i := 0; i < len(frame); i++ {
		if err := m.Feed(1, frame[i:i+1]); err != nil {
			t.Fatalf("Feed() byte %d error = %v", i, err)
		}
		if i < len(frame)-1 && len(m.Pending(1)) != 0 {
			t.Fatalf("reply produced after %d of %d bytes", i+1, len(frame))
		}
	}

	if out, _ := drain(m, 1); out != "$11\r\nhello world\r\n" {
		t.Errorf("reply = %q", out)
	}
}

func TestConnManager_PartialWrite(t *testing.T) {
	m := newTestConnManager(ConnOptions{}, nil)
	m.Open(1, "peer")

	if err := m.Feed(1, AppendCommand(nil, []byte("PING"))); err != nil {
		t.Fatal(err)
	}
	if m.Advance(1, 3) {
		t.Fatal("Advance() reported close")
	}
	if got := string(m.Pending(1)); got != "NG\r\n" {
		t.Errorf("Pending() after partial write = %q, want %q", got, "NG\r\n")
	}
	c, _ := m.Lookup(1)
	if c.State() != StateWriting {
		t.Errorf("state = %v, want writing", c.State())
	}
}

func TestConnManager_ProtocolError(t *testing.T) {
	reg := metric.NewRegistry()
	m := newTestConnManager(ConnOptions{}, reg)
	m.Open(1, "peer")

	in := AppendCommand(nil, []byte("PING"))
	in = append(in, "GARBAGE\r\n"...)

	err := m.Feed(1, in)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Feed() error = %v, want ErrProtocol", err)
	}
	if out, _ := drain(m, 1); out != "+PONG\r\n" {
		t.Errorf("replies before the bad frame = %q, want +PONG", out)
	}
	if got := testutil.ToFloat64(reg.ProtocolErrors); got != 1 {
		t.Errorf("protocol_errors_total = %v, want 1", got)
	}
}

func TestConnManager_Quit(t *testing.T) {
	m := newTestConnManager(ConnOptions{}, nil)
	m.Open(1, "peer")

	var in []byte
	in = AppendCommand(in, []byte("PING"))
	in = AppendCommand(in, []byte("quit"))
	in = AppendCommand(in, []byte("SET"), []byte("k"), []byte("v"))

	if err := m.Feed(1, in); err != nil {
		t.Fatal(err)
	}
	c, _ := m.Lookup(1)
	if !c.Closing() {
		t.Fatal("connection not marked closing after QUIT")
	}

	out, quit := drain(m, 1)
	if out != "+PONG\r\n+OK\r\n" {
		t.Errorf("replies = %q, want PONG then OK", out)
	}
	if !quit {
		t.Error("Advance() should report close once the QUIT reply is flushed")
	}
	if m.handler.Store().Exists("k") {
		t.Error("command after QUIT was executed")
	}
	if err := m.Feed(1, AppendCommand(nil, []byte("PING"))); err != nil || len(m.Pending(1)) != 0 {
		t.Error("closing connection accepted more input")
	}
}

func TestConnManager_OutputLimit(t *testing.T) {
	m := newTestConnManager(ConnOptions{MaxOutputBuffer: 64}, nil)
	m.Open(1, "peer")

	big := strings.Repeat("x", 100)
	err := m.Feed(1, AppendCommand(nil, []byte("ECHO"), []byte(big)))
	if !errors.Is(err, ErrOutputLimit) {
		t.Errorf("Feed() error = %v, want ErrOutputLimit", err)
	}
}

func TestConnManager_RateLimit(t *testing.T) {
	m := newTestConnManager(ConnOptions{RateLimit: 2}, nil)
	m.Open(1, "peer")

	var in []byte
	for i := 0; i < 3; i++ {
		in = AppendCommand(in, []byte("INCR"), []byte("n"))
	}
	if err := m.Feed(1, in); err != nil {
		t.Fatal(err)
	}

	out, _ := drain(m, 1)
	want := ":1\r\n:2\r\n-ERR rate limit exceeded\r\n"
	if out != want {
		t.Errorf("replies = %q, want %q", out, want)
	}
}

func TestConnManager_EmptyArraysIgnored(t *testing.T) {
	m := newTestConnManager(ConnOptions{}, nil)
	m.Open(1, "peer")

	if err := m.Feed(1, []byte("*0\r\n*-1\r\n*1\r\n$4\r\nPING\r\n")); err != nil {
		t.Fatal(err)
	}
	if out, _ := drain(m, 1); out != "+PONG\r\n" {
		t.Errorf("replies = %q, want a single PONG", out)
	}
}
