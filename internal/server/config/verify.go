package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// minEncryptionKeyLength matches the snapshot sealer's minimum.
const minEncryptionKeyLength = 16

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Host == "" {
		return errors.New("server.host is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Port)
	}
	switch cfg.Backend {
	case "auto", "epoll", "evio":
	default:
		return fmt.Errorf("server.backend %q must be auto, epoll or evio", cfg.Backend)
	}
	if cfg.TickInterval <= 0 {
		return errors.New("server.tick_interval must be positive")
	}
	if cfg.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if cfg.MaxOutputBuffer < 0 {
		return errors.New("server.max_output_buffer must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.SnapshotPath == "" {
		return errors.New("storage.snapshot_path is required")
	}

	dir := filepath.Dir(cfg.SnapshotPath)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("storage.snapshot_path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage.snapshot_path: %s is not a directory", dir)
	}

	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) < minEncryptionKeyLength {
		return fmt.Errorf("storage.encryption_key must be at least %d bytes", minEncryptionKeyLength)
	}
	if cfg.SaveInterval < 0 {
		return errors.New("storage.save_interval must not be negative")
	}
	if cfg.ActiveExpireSample < 1 {
		return errors.New("storage.active_expire_sample must be at least 1")
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if !cfg.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("metrics.addr: %w", err)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q must be json or text", cfg.Format)
	}
	return nil
}
