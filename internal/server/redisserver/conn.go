package redisserver

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

// ErrOutputLimit is returned by Feed when a connection's pending output
// grows past the configured cap. The connection must be closed.
var ErrOutputLimit = errors.New("redisserver: output buffer limit exceeded")

// ConnState is the lifecycle state of a client connection.
type ConnState uint8

const (
	StateAccepted ConnState = iota
	StateReading
	StateProcessing
	StateWriting
	StateClosed
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateReading:
		return "reading"
	case StateProcessing:
		return "processing"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the server side state of one client connection.
type Conn struct {
	id     string
	remote string

	in     []byte
	out    []byte
	outOff int

	state   ConnState
	closing bool

	limiter  *rate.Limiter
	opened   time.Time
	commands uint64
}

// ID returns the connection's unique id.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address as reported at accept time.
func (c *Conn) RemoteAddr() string { return c.remote }

// State returns the connection's lifecycle state.
func (c *Conn) State() ConnState { return c.state }

// Closing reports whether the connection is to be closed once its pending
// output is flushed.
func (c *Conn) Closing() bool { return c.closing }

// ConnOptions configures per-connection limits.
type ConnOptions struct {
	// RateLimit is the maximum number of commands per second per connection.
	// Zero disables rate limiting.
	RateLimit int

	// MaxOutputBuffer is the maximum number of unwritten reply bytes per
	// connection. Zero means unbounded.
	MaxOutputBuffer int
}

// ConnManager owns every open connection and drives the
// read → decode → execute → encode pipeline for each of them.
//
// Connections are keyed by an integer handle chosen by the event loop
// (the file descriptor for the epoll engine). ConnManager is not safe for
// concurrent use.
type ConnManager struct {
	conns   map[int]*Conn
	handler *CommandHandler
	opts    ConnOptions
	metrics *metric.Registry
	logger  *slog.Logger
}

// NewConnManager creates an empty ConnManager.
func NewConnManager(handler *CommandHandler, opts ConnOptions, metrics *metric.Registry, logger *slog.Logger) *ConnManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnManager{
		conns:   make(map[int]*Conn),
		handler: handler,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
	}
}

// Open registers a newly accepted connection under fd.
func (m *ConnManager) Open(fd int, remote string) *Conn {
	c := &Conn{
		id:     ulid.Make().String(),
		remote: remote,
		state:  StateAccepted,
		opened: time.Now(),
	}
	if m.opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(m.opts.RateLimit), m.opts.RateLimit)
	}
	m.conns[fd] = c
	m.metrics.ConnOpened()
	m.logger.Debug("connection opened", "conn_id", c.id, "remote", remote)
	return c
}

// Lookup returns the connection registered under fd.
func (m *ConnManager) Lookup(fd int) (*Conn, bool) {
	c, ok := m.conns[fd]
	return c, ok
}

// Len returns the number of open connections.
func (m *ConnManager) Len() int {
	return len(m.conns)
}

// Feed appends data to the connection's input buffer and executes every
// complete command in it, queueing the replies.
//
// An error means the connection must be closed: a malformed frame
// (wrapping ErrProtocol or ErrLimitExceeded) or ErrOutputLimit. Replies to
// commands decoded before the error stay queued.
func (m *ConnManager) Feed(fd int, data []byte) error {
	c, ok := m.conns[fd]
	if !ok {
		return fmt.Errorf("redisserver: unknown connection %d", fd)
	}
	if c.closing {
		return nil
	}

	m.metrics.BytesRead(len(data))
	c.in = append(c.in, data...)
	c.state = StateReading

	consumed := 0
	for consumed < len(c.in) && !c.closing {
		args, n, err := DecodeCommand(c.in[consumed:])
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			m.metrics.ProtocolError()
			m.logger.Debug("protocol error, closing connection", "conn_id", c.id, "remote", c.remote, "error", err)
			c.in = c.in[:0]
			return err
		}
		consumed += n
		if len(args) == 0 {
			continue
		}

		c.state = StateProcessing
		m.execute(c, args)

		if m.opts.MaxOutputBuffer > 0 && len(c.out)-c.outOff > m.opts.MaxOutputBuffer {
			m.logger.Warn("output buffer limit exceeded, closing connection",
				"conn_id", c.id, "remote", c.remote, "pending", len(c.out)-c.outOff)
			return ErrOutputLimit
		}
	}

	c.compactInput(consumed)
	if len(c.out) > c.outOff {
		c.state = StateWriting
	} else {
		c.state = StateReading
	}
	return nil
}

func (m *ConnManager) execute(c *Conn, args [][]byte) {
	c.commands++

	if c.limiter != nil && !c.limiter.Allow() {
		c.out = AppendReply(c.out, ErrorReply(domain.ErrRateLimited))
		return
	}

	reply := m.handler.Execute(args)
	c.out = AppendReply(c.out, reply)

	if len(args) == 1 && normalizeCommandName(args[0]) == "QUIT" {
		c.closing = true
	}
}

// compactInput drops the first n bytes of the input buffer, keeping its
// backing array for reuse.
func (c *Conn) compactInput(n int) {
	if n == 0 {
		return
	}
	if n >= len(c.in) {
		c.in = resetBuffer(c.in)
		return
	}
	rest := copy(c.in, c.in[n:])
	c.in = c.in[:rest]
}

// retainBufferCap is the largest idle buffer kept for reuse.
const retainBufferCap = 64 << 10

func resetBuffer(b []byte) []byte {
	if cap(b) > retainBufferCap {
		return nil
	}
	return b[:0]
}

// Pending returns the bytes waiting to be written to fd. The slice is only
// valid until the next call into the manager.
func (m *ConnManager) Pending(fd int) []byte {
	c, ok := m.conns[fd]
	if !ok {
		return nil
	}
	return c.out[c.outOff:]
}

// Advance marks n pending bytes as written. It reports whether the
// connection should now be closed (a QUIT reply has been fully flushed).
func (m *ConnManager) Advance(fd int, n int) bool {
	c, ok := m.conns[fd]
	if !ok {
		return false
	}

	m.metrics.BytesWritten(n)
	c.outOff += n
	if c.outOff >= len(c.out) {
		c.out = resetBuffer(c.out)
		c.outOff = 0
		c.state = StateReading
		return c.closing
	}
	c.state = StateWriting
	return false
}

// Close releases the connection registered under fd.
func (m *ConnManager) Close(fd int) {
	c, ok := m.conns[fd]
	if !ok {
		return
	}
	c.state = StateClosed
	c.in, c.out = nil, nil
	delete(m.conns, fd)
	m.metrics.ConnClosed()
	m.logger.Debug("connection closed",
		"conn_id", c.id,
		"remote", c.remote,
		"commands", c.commands,
		"duration", time.Since(c.opened))
}

// CloseAll releases every connection and returns their handles so the
// caller can close the underlying sockets.
func (m *ConnManager) CloseAll() []int {
	fds := make([]int, 0, len(m.conns))
	for fd := range m.conns {
		fds = append(fds, fd)
	}
	for _, fd := range fds {
		m.Close(fd)
	}
	return fds
}
