package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/infra/buildinfo"
	"github.com/yndnr/respkv/internal/infra/confloader"
	"github.com/yndnr/respkv/internal/infra/shutdown"
	"github.com/yndnr/respkv/internal/server/config"
	"github.com/yndnr/respkv/internal/server/httpserver"
	"github.com/yndnr/respkv/internal/server/redisserver"
	"github.com/yndnr/respkv/internal/storage/memory"
	"github.com/yndnr/respkv/internal/storage/snapshot"
	"github.com/yndnr/respkv/internal/telemetry/logger"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app := &cli.App{
		Name:    "respkv-server",
		Usage:   "in-memory RESP key-value server",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML configuration file"},
			&cli.StringFlag{Name: "host", Usage: "listen host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port"},
			&cli.StringFlag{Name: "snapshot", Usage: "snapshot file path"},
			&cli.StringFlag{Name: "backend", Usage: "event loop: auto, epoll, evio"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flagOverrides maps the flags the user set to configuration keys.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"host":      "server.host",
		"port":      "server.port",
		"snapshot":  "storage.snapshot_path",
		"backend":   "server.backend",
		"log-level": "log.level",
	}

	out := make(map[string]any)
	for flag, key := range keys {
		if !c.IsSet(flag) {
			continue
		}
		if flag == "port" {
			out[key] = c.Int(flag)
		} else {
			out[key] = c.String(flag)
		}
	}
	return out
}

func run(c *cli.Context) error {
	loaderOpts := []confloader.Option{
		confloader.WithConfigFile(c.String("config")),
		confloader.WithFlags(flagOverrides(c)),
	}
	loader := confloader.NewLoader(loaderOpts...)
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	log.Info("starting respkv-server",
		slog.String("version", buildinfo.Version),
		slog.String("commit", buildinfo.Commit),
		slog.String("config", loader.FilePath()),
		slog.Any("settings", config.Sanitize(cfg)))

	var metrics *metric.Registry
	if cfg.Metrics.Enabled {
		metrics = metric.NewRegistry()
	}

	store := memory.New(memory.WithExpireHook(func(string) { metrics.KeyExpired() }))

	snapshots, err := snapshot.NewManager(snapshot.Config{
		Path:          cfg.Storage.SnapshotPath,
		EncryptionKey: cfg.Storage.EncryptionKey,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("init snapshot: %w", err)
	}
	if _, err := snapshots.Load(store); err != nil {
		return fmt.Errorf("load snapshot %s: %w", snapshots.Path(), err)
	}
	metrics.SetKeys(store.Len())

	srv, err := redisserver.New(serverConfig(cfg), store, snapshots, metrics, log)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(shutdownTimeout, log)
	ctx := context.Background()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	shutdownHandler.OnShutdown("redis server", srv.Shutdown)

	if cfg.Metrics.Enabled {
		admin := httpserver.New(cfg.Metrics.Addr, httpserver.NewRouter(httpserver.RouterConfig{
			Metrics:   metrics,
			Readiness: readiness(srv),
			Logger:    log,
		}), log)
		if err := admin.Start(); err != nil {
			_ = srv.Shutdown(ctx)
			return fmt.Errorf("start admin server: %w", err)
		}
		shutdownHandler.OnShutdown("admin server", admin.Shutdown)
	}

	if path := loader.FilePath(); path != "" {
		reload := func() (*config.ServerConfig, error) {
			return loadConfig(confloader.NewLoader(loaderOpts...))
		}
		stop, err := watchLogLevel(path, reload, log)
		if err != nil {
			log.Warn("config watcher disabled", slog.Any("error", err))
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error { return stop() })
		}
	}

	go watchServer(srv, shutdownHandler, log)

	log.Info("server started", slog.String("addr", srv.Addr()), slog.String("backend", srv.Backend()))
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		return err
	}
	if err := srv.Err(); err != nil {
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loopServer is the part of the RESP server watchServer observes.
type loopServer interface {
	Done() <-chan struct{}
	Err() error
}

// watchServer triggers shutdown when the event loop exits before shutdown
// was requested. A loop stopped by the shutdown hooks is not reported.
func watchServer(srv loopServer, h *shutdown.Handler, log *slog.Logger) {
	select {
	case <-srv.Done():
	case <-h.Started():
		return
	}
	select {
	case <-h.Started():
		return
	default:
	}
	log.Error("event loop stopped", slog.Any("error", srv.Err()))
	h.Trigger("event loop stopped")
}

// loadConfig loads configuration from defaults, file, environment and
// flags, then validates it.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serverConfig(cfg *config.ServerConfig) redisserver.Config {
	return redisserver.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		Backend:            cfg.Server.Backend,
		TickInterval:       cfg.Server.TickInterval,
		RateLimit:          cfg.Server.RateLimit,
		MaxOutputBuffer:    cfg.Server.MaxOutputBuffer,
		SaveInterval:       cfg.Storage.SaveInterval,
		SaveOnShutdown:     cfg.Storage.SaveOnShutdown,
		ActiveExpireSample: cfg.Storage.ActiveExpireSample,
	}
}

func readiness(srv *redisserver.Server) func() error {
	return func() error {
		select {
		case <-srv.Done():
			if err := srv.Err(); err != nil {
				return err
			}
			return errors.New("event loop stopped")
		default:
			return nil
		}
	}
}

// watchLogLevel reloads the configuration when the file changes and applies
// a new log.level. Other settings need a restart.
func watchLogLevel(path string, reload func() (*config.ServerConfig, error), log *slog.Logger) (func() error, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(string) {
		cfg, err := reload()
		if err != nil {
			log.Warn("config reload failed", slog.Any("error", err))
			return
		}
		if strings.EqualFold(cfg.Log.Level, logger.GetLevel()) {
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("ignoring invalid log level", slog.String("level", cfg.Log.Level))
			return
		}
		log.Info("log level changed", slog.String("level", cfg.Log.Level))
	})
	w.StartAsync()
	return w.Stop, nil
}
