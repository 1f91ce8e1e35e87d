//go:build linux

package redisserver

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/yndnr/respkv/internal/storage/memory"
	"github.com/yndnr/respkv/pkg/netpoll"
)

// newListeningEngine returns an epoll engine with its listener registered,
// without starting the loop, so tests can drive Wait themselves.
func newListeningEngine(t *testing.T) (*epollEngine, string) {
	t.Helper()
	handler := NewCommandHandler(memory.New(), nil, nil, quietLogger())
	core := &loopCore{
		cfg:     testConfig(BackendEpoll),
		handler: handler,
		conns:   NewConnManager(handler, ConnOptions{}, nil, quietLogger()),
		logger:  quietLogger(),
	}
	e := newEpollEngine(core)

	lfd, addr, err := netpoll.Listen("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	poller, err := netpoll.NewPoller()
	if err != nil {
		_ = netpoll.Close(lfd)
		t.Fatalf("NewPoller() error = %v", err)
	}
	if err := poller.Add(lfd, netpoll.InterestRead); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	e.lfd = lfd
	e.poller.Store(poller)
	e.readBuf = make([]byte, readBufferSize)

	t.Cleanup(e.shutdown)
	return e, addr
}

// ============================================================
// Accept backoff Tests
// ============================================================

func TestEpollEngine_PausedAcceptWaitsForResume(t *testing.T) {
	e, addr := newListeningEngine(t)

	e.pauseAccept(fmt.Errorf("accept: %w", netpoll.ErrNoDescriptors))
	if !e.acceptPaused {
		t.Fatal("acceptPaused = false after pauseAccept")
	}
	// A second pause while already paused is a no-op.
	e.pauseAccept(netpoll.ErrNoDescriptors)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// The queued connection must not wake the loop while paused.
	n, err := e.poller.Load().Wait(50*time.Millisecond, e.handle)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if n != 0 || e.core.conns.Len() != 0 {
		t.Fatalf("paused loop handled %d events, %d connections open", n, e.core.conns.Len())
	}

	e.resumeAccept()
	if e.acceptPaused {
		t.Fatal("acceptPaused = true after resumeAccept")
	}

	deadline := time.Now().Add(time.Second)
	for e.core.conns.Len() == 0 && time.Now().Before(deadline) {
		if _, err := e.poller.Load().Wait(50*time.Millisecond, e.handle); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if e.core.conns.Len() != 1 {
		t.Errorf("connections after resume = %d, want 1", e.core.conns.Len())
	}
}

func TestEpollEngine_ResumeWithoutPause(t *testing.T) {
	e, _ := newListeningEngine(t)

	e.resumeAccept()
	if e.acceptPaused {
		t.Error("acceptPaused = true without a pause")
	}
}
