package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "respkv"

// Registry holds all application metrics.
//
// A nil *Registry is valid and records nothing, so components can be built
// without metrics in tests.
type Registry struct {
	reg *prometheus.Registry

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Connection metrics
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ProtocolErrors      prometheus.Counter
	NetworkBytes        *prometheus.CounterVec

	// Keyspace metrics
	Keys        prometheus.Gauge
	KeysExpired prometheus.Counter

	// Snapshot metrics
	SnapshotSaves    *prometheus.CounterVec
	SnapshotDuration prometheus.Histogram
	SnapshotSize     prometheus.Gauge
}

// NewRegistry creates the metrics and registers them, together with the Go
// runtime, process and build info collectors, on a private registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed, by command name and outcome.",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution time on the event loop.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"command"}),

		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Client connections accepted.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Client connections currently open.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed because of a malformed frame.",
		}),
		NetworkBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_bytes_total",
			Help:      "Bytes read from and written to clients.",
		}, []string{"direction"}),

		Keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "keys",
			Help:      "Keys in the store, including expired keys not yet reclaimed.",
		}),
		KeysExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keyspace",
			Name:      "expired_total",
			Help:      "Keys removed because their deadline passed.",
		}),

		SnapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "saves_total",
			Help:      "Snapshot saves, by outcome.",
		}, []string{"status"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "save_duration_seconds",
			Help:      "Time spent writing a snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "size_bytes",
			Help:      "Size of the last snapshot written or loaded.",
		}),
	}

	r.reg.MustRegister(
		r.CommandsTotal,
		r.CommandDuration,
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.ProtocolErrors,
		r.NetworkBytes,
		r.Keys,
		r.KeysExpired,
		r.SnapshotSaves,
		r.SnapshotDuration,
		r.SnapshotSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewCollector(),
	)
	return r
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveCommand records one executed command.
func (r *Registry) ObserveCommand(command, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.CommandsTotal.WithLabelValues(command, status).Inc()
	r.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// ConnOpened records an accepted connection.
func (r *Registry) ConnOpened() {
	if r == nil {
		return
	}
	r.ConnectionsAccepted.Inc()
	r.ConnectionsActive.Inc()
}

// ConnClosed records a released connection.
func (r *Registry) ConnClosed() {
	if r == nil {
		return
	}
	r.ConnectionsActive.Dec()
}

// ProtocolError records a connection dropped for a malformed frame.
func (r *Registry) ProtocolError() {
	if r == nil {
		return
	}
	r.ProtocolErrors.Inc()
}

// BytesRead records bytes received from clients.
func (r *Registry) BytesRead(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.NetworkBytes.WithLabelValues("in").Add(float64(n))
}

// BytesWritten records bytes sent to clients.
func (r *Registry) BytesWritten(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.NetworkBytes.WithLabelValues("out").Add(float64(n))
}

// SetKeys publishes the current key count.
func (r *Registry) SetKeys(n int) {
	if r == nil {
		return
	}
	r.Keys.Set(float64(n))
}

// KeyExpired records one expired key.
func (r *Registry) KeyExpired() {
	if r == nil {
		return
	}
	r.KeysExpired.Inc()
}

// ObserveSnapshot records one snapshot save attempt.
func (r *Registry) ObserveSnapshot(size int64, d time.Duration, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.SnapshotSaves.WithLabelValues("error").Inc()
		return
	}
	r.SnapshotSaves.WithLabelValues("ok").Inc()
	r.SnapshotDuration.Observe(d.Seconds())
	r.SnapshotSize.Set(float64(size))
}
