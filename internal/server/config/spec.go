package config

import "time"

// ServerConfig is the root configuration for respkv-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Metrics MetricsSection `koanf:"metrics"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures the RESP listener and its event loop.
type ServerSection struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// Backend is the event loop implementation: auto, epoll or evio.
	Backend string `koanf:"backend"`

	// TickInterval is the housekeeping period of the event loop.
	TickInterval time.Duration `koanf:"tick_interval"`

	// RateLimit is the per-connection command budget per second (0 = off).
	RateLimit int `koanf:"rate_limit"`

	// MaxOutputBuffer caps unwritten reply bytes per connection (0 = off).
	MaxOutputBuffer int `koanf:"max_output_buffer"`
}

// StorageSection configures the snapshot.
type StorageSection struct {
	SnapshotPath string `koanf:"snapshot_path"`

	// EncryptionKey enables snapshot encryption when set.
	EncryptionKey string `koanf:"encryption_key"`

	// SaveInterval is the autosave period (0 = only SAVE writes).
	SaveInterval time.Duration `koanf:"save_interval"`

	SaveOnShutdown bool `koanf:"save_on_shutdown"`

	// ActiveExpireSample is the number of volatile keys checked per tick.
	ActiveExpireSample int `koanf:"active_expire_sample"`
}

// MetricsSection configures the admin HTTP endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
