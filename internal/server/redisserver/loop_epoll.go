package redisserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/yndnr/respkv/pkg/netpoll"
)

const (
	// readBufferSize is the size of the loop's shared read buffer.
	readBufferSize = 64 << 10

	// maxReadsPerEvent bounds the reads done for one readiness event so a
	// single busy client cannot starve the others. The poller is
	// level-triggered, so unread data is reported again.
	maxReadsPerEvent = 4
)

// epollEngine is the event loop built directly on epoll.
type epollEngine struct {
	core *loopCore

	poller  atomic.Pointer[netpoll.Poller]
	lfd     int
	readBuf []byte

	// writing tracks connections currently registered for write interest.
	writing map[int]bool

	// acceptPaused is set while the listener is out of the poller after
	// running out of descriptors. The next tick registers it again.
	acceptPaused bool
}

func newEpollEngine(core *loopCore) *epollEngine {
	return &epollEngine{
		core:    core,
		lfd:     -1,
		writing: make(map[int]bool),
	}
}

func (e *epollEngine) wake() {
	if p := e.poller.Load(); p != nil {
		_ = p.Wake()
	}
}

func (e *epollEngine) run(ctx context.Context, host string, port int, ready func(string)) error {
	lfd, addr, err := netpoll.Listen(host, port)
	if err != nil {
		return fmt.Errorf("redisserver: listen: %w", err)
	}
	e.lfd = lfd

	poller, err := netpoll.NewPoller()
	if err != nil {
		_ = netpoll.Close(lfd)
		return fmt.Errorf("redisserver: create poller: %w", err)
	}
	if err := poller.Add(lfd, netpoll.InterestRead); err != nil {
		_ = poller.Close()
		_ = netpoll.Close(lfd)
		return fmt.Errorf("redisserver: register listener: %w", err)
	}
	e.poller.Store(poller)
	e.readBuf = make([]byte, readBufferSize)

	ready(addr)

	interval := e.core.cfg.TickInterval
	nextTick := time.Now().Add(interval)

	var loopErr error
	for ctx.Err() == nil {
		timeout := time.Until(nextTick)
		if timeout < 0 {
			timeout = 0
		}

		if _, err := poller.Wait(timeout, e.handle); err != nil {
			loopErr = err
			break
		}

		if now := time.Now(); !now.Before(nextTick) {
			e.resumeAccept()
			e.core.tick(now)
			nextTick = now.Add(interval)
		}
	}

	e.shutdown()
	return errors.Join(loopErr, e.core.finish())
}

// handle dispatches one readiness event.
func (e *epollEngine) handle(ev netpoll.Event) {
	if ev.FD == e.lfd {
		e.acceptAll()
		return
	}
	if _, ok := e.core.conns.Lookup(ev.FD); !ok {
		return
	}

	if ev.Writable {
		if !e.flush(ev.FD) {
			return
		}
	}
	if ev.Readable || ev.Hangup {
		e.read(ev.FD)
	}
}

func (e *epollEngine) acceptAll() {
	poller := e.poller.Load()
	for {
		fd, remote, err := netpoll.Accept(e.lfd)
		if err != nil {
			switch {
			case errors.Is(err, netpoll.ErrWouldBlock):
			case errors.Is(err, netpoll.ErrNoDescriptors):
				e.pauseAccept(err)
			default:
				e.core.logger.Warn("accept failed", "error", err)
			}
			return
		}
		if err := poller.Add(fd, netpoll.InterestRead); err != nil {
			e.core.logger.Warn("register connection failed", "remote", remote, "error", err)
			_ = netpoll.Close(fd)
			continue
		}
		e.core.conns.Open(fd, remote)
	}
}

// pauseAccept takes the listener out of the poller. The backlog stays
// readable while descriptors are exhausted, so leaving it registered would
// spin the level-triggered loop.
func (e *epollEngine) pauseAccept(cause error) {
	if e.acceptPaused {
		return
	}
	if err := e.poller.Load().Remove(e.lfd); err != nil {
		e.core.logger.Warn("pause accept failed", "error", err)
		return
	}
	e.acceptPaused = true
	e.core.logger.Warn("accept paused until next tick", "error", cause)
}

// resumeAccept registers the listener again after pauseAccept.
func (e *epollEngine) resumeAccept() {
	if !e.acceptPaused {
		return
	}
	if err := e.poller.Load().Add(e.lfd, netpoll.InterestRead); err != nil {
		e.core.logger.Warn("resume accept failed", "error", err)
		return
	}
	e.acceptPaused = false
	e.core.logger.Info("accept resumed")
}

// read drains fd, feeds the bytes to the connection and flushes replies.
func (e *epollEngine) read(fd int) {
	for i := 0; i < maxReadsPerEvent; i++ {
		n, err := netpoll.Read(fd, e.readBuf)
		if err != nil {
			if errors.Is(err, netpoll.ErrWouldBlock) {
				break
			}
			if !errors.Is(err, io.EOF) {
				e.core.logger.Debug("read failed", "fd", fd, "error", err)
			}
			e.closeConn(fd)
			return
		}

		if err := e.core.conns.Feed(fd, e.readBuf[:n]); err != nil {
			// Best effort: replies to commands before the bad frame.
			e.flush(fd)
			e.closeConn(fd)
			return
		}
		if n < len(e.readBuf) {
			break
		}
	}
	e.flush(fd)
}

// flush writes as much pending output as the socket accepts. It returns
// false when the connection was closed.
func (e *epollEngine) flush(fd int) bool {
	for {
		pending := e.core.conns.Pending(fd)
		if len(pending) == 0 {
			e.setWriting(fd, false)
			return true
		}

		n, err := netpoll.Write(fd, pending)
		if err != nil {
			if errors.Is(err, netpoll.ErrWouldBlock) {
				e.setWriting(fd, true)
				return true
			}
			e.core.logger.Debug("write failed", "fd", fd, "error", err)
			e.closeConn(fd)
			return false
		}

		if e.core.conns.Advance(fd, n) {
			e.closeConn(fd)
			return false
		}
		if n < len(pending) {
			e.setWriting(fd, true)
			return true
		}
	}
}

func (e *epollEngine) setWriting(fd int, on bool) {
	if e.writing[fd] == on {
		return
	}
	interest := netpoll.InterestRead
	if on {
		interest |= netpoll.InterestWrite
	}
	if err := e.poller.Load().Modify(fd, interest); err != nil {
		e.core.logger.Debug("modify interest failed", "fd", fd, "error", err)
		return
	}
	if on {
		e.writing[fd] = true
	} else {
		delete(e.writing, fd)
	}
}

func (e *epollEngine) closeConn(fd int) {
	_ = e.poller.Load().Remove(fd)
	_ = netpoll.Close(fd)
	delete(e.writing, fd)
	e.core.conns.Close(fd)
}

// shutdown releases every connection, the listener and the poller.
func (e *epollEngine) shutdown() {
	poller := e.poller.Load()
	for _, fd := range e.core.conns.CloseAll() {
		_ = poller.Remove(fd)
		_ = netpoll.Close(fd)
	}
	clear(e.writing)

	if !e.acceptPaused {
		_ = poller.Remove(e.lfd)
	}
	_ = netpoll.Close(e.lfd)
	e.lfd = -1
	e.acceptPaused = false

	e.poller.Store(nil)
	_ = poller.Close()
}
