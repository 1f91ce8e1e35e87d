// Package metric provides Prometheus metrics for respkv.
//
// Metrics include:
//
//   - Command counters and latency histograms
//   - Connection counts and network bytes
//   - Keyspace size and expirations
//   - Snapshot save outcomes, duration and size
//
// All metrics live on a private registry exposed at /metrics by the admin
// HTTP server.
package metric
