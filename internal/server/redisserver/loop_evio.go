package redisserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/evio"
)

// evioEngine runs the loop on tidwall/evio with a single loop goroutine.
// It is the portable backend and the default outside Linux.
//
// evio's own Tick starts a ticker goroutine that outlives Serve and keeps
// writing to the loop's closed eventfd, so the engine never sets it.
// Housekeeping and shutdown are instead driven by waking a loopback
// control connection, and the engine's ticker is stopped before evio
// closes its poller.
type evioEngine struct {
	core *loopCore
	next int

	mu      sync.Mutex
	control evio.Conn
	stopped bool

	stopOnce   sync.Once
	stopTicker chan struct{}
	tickerDone chan struct{}
}

// controlHandle marks the control connection in evio.Conn contexts.
type controlHandle struct{}

func newEvioEngine(core *loopCore) *evioEngine {
	return &evioEngine{
		core:       core,
		stopTicker: make(chan struct{}),
		tickerDone: make(chan struct{}),
	}
}

// wake makes the loop run a tick, which also notices cancellation.
func (e *evioEngine) wake() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.control != nil && !e.stopped {
		e.control.Wake()
	}
}

func (e *evioEngine) run(ctx context.Context, host string, port int, ready func(string)) error {
	var (
		events  evio.Events
		served  bool
		ctrl    net.Conn
		ctrlErr error
	)
	events.NumLoops = 1

	events.Serving = func(srv evio.Server) evio.Action {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		if len(srv.Addrs) > 0 {
			addr = srv.Addrs[0].String()
		}
		// The listener is bound, so the dial completes from the backlog
		// before the loop starts accepting.
		ctrl, ctrlErr = net.DialTimeout("tcp", loopbackAddr(host, srv.Addrs), time.Second)
		if ctrlErr != nil {
			return evio.Shutdown
		}
		served = true
		ready(addr)
		return evio.None
	}

	events.Opened = func(c evio.Conn) ([]byte, evio.Options, evio.Action) {
		if ctrl != nil && sameTCPAddr(c.RemoteAddr(), ctrl.LocalAddr()) {
			c.SetContext(controlHandle{})
			if ctx.Err() != nil {
				return nil, evio.Options{}, evio.Shutdown
			}
			e.startTicker(c)
			return nil, evio.Options{}, evio.None
		}

		e.next++
		handle := e.next
		c.SetContext(handle)
		remote := ""
		if ra := c.RemoteAddr(); ra != nil {
			remote = ra.String()
		}
		e.core.conns.Open(handle, remote)
		return nil, evio.Options{ReuseInputBuffer: true}, evio.None
	}

	events.Data = func(c evio.Conn, in []byte) ([]byte, evio.Action) {
		switch handle := c.Context().(type) {
		case controlHandle:
			if ctx.Err() != nil {
				e.stop()
				return nil, evio.Shutdown
			}
			e.core.tick(time.Now())
			return nil, evio.None
		case int:
			if len(in) == 0 {
				return nil, evio.None
			}

			err := e.core.conns.Feed(handle, in)

			// evio copies out and writes it before acting on Close.
			out := e.core.conns.Pending(handle)
			quit := e.core.conns.Advance(handle, len(out))
			if err != nil || quit {
				return out, evio.Close
			}
			return out, evio.None
		default:
			return nil, evio.Close
		}
	}

	events.Closed = func(c evio.Conn, err error) evio.Action {
		switch handle := c.Context().(type) {
		case controlHandle:
			e.stop()
		case int:
			e.core.conns.Close(handle)
		}
		return evio.None
	}

	serveErr := evio.Serve(events, "tcp://"+net.JoinHostPort(host, strconv.Itoa(port)))
	e.stop()
	if ctrl != nil {
		_ = ctrl.Close()
	}

	if !served {
		if ctrlErr != nil {
			return fmt.Errorf("redisserver: dial control connection: %w", ctrlErr)
		}
		return serveErr
	}
	e.core.conns.CloseAll()
	return errors.Join(serveErr, e.core.finish())
}

// startTicker registers the control connection and wakes it every tick
// interval until stop.
func (e *evioEngine) startTicker(c evio.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.control = c

	go func() {
		defer close(e.tickerDone)
		t := time.NewTicker(e.core.cfg.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-e.stopTicker:
				return
			case <-t.C:
				e.wake()
			}
		}
	}()
}

// stop forbids further wakes and waits for the ticker to exit. It runs
// before evio closes its poller.
func (e *evioEngine) stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		started := e.control != nil
		e.mu.Unlock()

		close(e.stopTicker)
		if started {
			<-e.tickerDone
		}
	})
}

// loopbackAddr returns a dialable address for the first listener. A
// wildcard listener is reached through loopback; an IPv4 or empty host may
// be served by a dual-stack socket, so only an explicit IPv6 host dials ::1.
func loopbackAddr(host string, addrs []net.Addr) string {
	if len(addrs) == 0 {
		return ""
	}
	tcp, ok := addrs[0].(*net.TCPAddr)
	if !ok {
		return addrs[0].String()
	}
	ip := tcp.IP
	if ip == nil || ip.IsUnspecified() {
		ip = net.IPv4(127, 0, 0, 1)
		if h := net.ParseIP(host); h != nil && h.To4() == nil {
			ip = net.IPv6loopback
		}
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port))
}

func sameTCPAddr(a, b net.Addr) bool {
	ta, ok := a.(*net.TCPAddr)
	if !ok {
		return false
	}
	tb, ok := b.(*net.TCPAddr)
	if !ok {
		return false
	}
	return ta.Port == tb.Port && ta.IP.Equal(tb.IP)
}
