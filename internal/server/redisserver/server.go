package redisserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/yndnr/respkv/internal/storage/memory"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

// Event loop backends.
const (
	BackendAuto  = "auto"
	BackendEpoll = "epoll"
	BackendEvio  = "evio"
)

// Config holds the RESP server configuration.
type Config struct {
	// Host and Port form the listen address. Port 0 picks a free port.
	Host string
	Port int

	// Backend selects the event loop: "epoll" (Linux only), "evio", or
	// "auto" which prefers epoll where available.
	Backend string

	// TickInterval is the period of housekeeping on the loop: active
	// expiry, autosave and the shutdown check.
	TickInterval time.Duration

	// RateLimit is the maximum number of commands per second per
	// connection. Set to 0 to disable rate limiting.
	RateLimit int

	// MaxOutputBuffer caps unwritten reply bytes per connection; a client
	// exceeding it is disconnected. Set to 0 for no cap.
	MaxOutputBuffer int

	// SaveInterval triggers a snapshot when the store changed since the
	// last one and the interval elapsed. Set to 0 to disable autosave.
	SaveInterval time.Duration

	// SaveOnShutdown writes a final snapshot after the last connection is
	// closed.
	SaveOnShutdown bool

	// ActiveExpireSample is the number of keys with a deadline examined
	// per tick.
	ActiveExpireSample int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "127.0.0.1",
		Port:               6379,
		Backend:            BackendAuto,
		TickInterval:       100 * time.Millisecond,
		ActiveExpireSample: memory.DefaultActiveExpireSample,
	}
}

// engine runs the single event loop.
type engine interface {
	// run binds host:port, calls ready with the bound address and serves
	// until ctx is cancelled. Every loopCore call happens inside run.
	run(ctx context.Context, host string, port int, ready func(addr string)) error
	// wake interrupts a blocked wait so cancellation is noticed promptly.
	// Safe to call from any goroutine.
	wake()
}

// Server represents the RESP protocol server.
type Server struct {
	cfg    Config
	core   *loopCore
	engine engine
	logger *slog.Logger

	addr   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// New creates a new RESP server over store. saver and metrics may be nil.
func New(cfg Config, store *memory.Store, saver Saver, metrics *metric.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redisserver")

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.ActiveExpireSample <= 0 {
		cfg.ActiveExpireSample = memory.DefaultActiveExpireSample
	}

	handler := NewCommandHandler(store, saver, metrics, logger)
	conns := NewConnManager(handler, ConnOptions{
		RateLimit:       cfg.RateLimit,
		MaxOutputBuffer: cfg.MaxOutputBuffer,
	}, metrics, logger)

	core := &loopCore{
		cfg:     cfg,
		store:   store,
		handler: handler,
		conns:   conns,
		metrics: metrics,
		logger:  logger,
	}

	eng, err := newEngine(cfg.Backend, core)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		core:   core,
		engine: eng,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

func newEngine(backend string, core *loopCore) (engine, error) {
	switch backend {
	case "", BackendAuto:
		if runtime.GOOS == "linux" {
			return newEpollEngine(core), nil
		}
		return newEvioEngine(core), nil
	case BackendEpoll:
		if runtime.GOOS != "linux" {
			return nil, fmt.Errorf("redisserver: backend %q requires linux", backend)
		}
		return newEpollEngine(core), nil
	case BackendEvio:
		return newEvioEngine(core), nil
	default:
		return nil, fmt.Errorf("redisserver: unknown backend %q", backend)
	}
}

// Start binds the listening socket and starts the event loop goroutine.
// It returns once the server accepts connections.
func (s *Server) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.core.lastSave = time.Now()
	s.core.savedChanges = s.core.store.Changes()

	readyCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(s.done)
		err := s.engine.run(loopCtx, s.cfg.Host, s.cfg.Port, func(addr string) {
			readyCh <- addr
		})
		if err != nil {
			s.logger.Error("event loop stopped with error", "error", err)
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		errCh <- err
	}()

	select {
	case addr := <-readyCh:
		s.addr = addr
		s.logger.Info("redis server listening", "address", addr, "backend", s.Backend())
		return nil
	case err := <-errCh:
		cancel()
		if err == nil {
			err = errors.New("redisserver: event loop exited before listening")
		}
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Addr returns the bound listen address. Valid after Start.
func (s *Server) Addr() string {
	return s.addr
}

// Backend returns the name of the event loop in use.
func (s *Server) Backend() string {
	switch s.engine.(type) {
	case *evioEngine:
		return BackendEvio
	default:
		return BackendEpoll
	}
}

// Done is closed when the event loop has exited.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the event loop exited with, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Shutdown stops the event loop, closes every connection and, when
// configured, writes a final snapshot. It waits for the loop to exit or
// ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.engine.wake()

	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loopCore is the state shared by both engines. Every method runs on the
// event loop goroutine.
type loopCore struct {
	cfg     Config
	store   *memory.Store
	handler *CommandHandler
	conns   *ConnManager
	metrics *metric.Registry
	logger  *slog.Logger

	lastSave     time.Time
	savedChanges uint64
}

// tick runs periodic housekeeping.
func (c *loopCore) tick(now time.Time) {
	if n := c.store.ActiveExpire(c.cfg.ActiveExpireSample); n > 0 {
		c.logger.Debug("active expiry", "removed", n)
	}
	c.metrics.SetKeys(c.store.Len())

	if c.cfg.SaveInterval <= 0 || now.Sub(c.lastSave) < c.cfg.SaveInterval {
		return
	}
	changes := c.store.Changes()
	if changes == c.savedChanges {
		return
	}
	c.lastSave = now
	if _, err := c.handler.Save("autosave"); err == nil {
		c.savedChanges = changes
	}
}

// finish runs after the last connection is released.
func (c *loopCore) finish() error {
	if !c.cfg.SaveOnShutdown {
		return nil
	}
	if _, err := c.handler.Save("shutdown"); err != nil && !errors.Is(err, errPersistenceDisabled) {
		return fmt.Errorf("redisserver: final snapshot: %w", err)
	}
	return nil
}
