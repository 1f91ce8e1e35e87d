// Package httpserver provides the optional admin HTTP endpoint of respkv.
//
// It serves Prometheus metrics, a health check and build information
// through a chi router. The RESP protocol itself is served by the
// redisserver package; nothing here reads or writes keys.
package httpserver
