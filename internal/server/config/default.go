package config

import "time"

// Default configuration values.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 6379
	DefaultBackend      = "auto"
	DefaultTickInterval = 100 * time.Millisecond

	DefaultSnapshotPath       = "dump.snap"
	DefaultActiveExpireSample = 20

	DefaultMetricsAddr = "127.0.0.1:9121"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Host:         DefaultHost,
			Port:         DefaultPort,
			Backend:      DefaultBackend,
			TickInterval: DefaultTickInterval,
		},
		Storage: StorageSection{
			SnapshotPath:       DefaultSnapshotPath,
			ActiveExpireSample: DefaultActiveExpireSample,
		},
		Metrics: MetricsSection{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
