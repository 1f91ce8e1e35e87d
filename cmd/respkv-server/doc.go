// Package main provides the entry point for respkv-server.
//
// respkv-server is a single-node in-memory key-value store speaking the
// RESP protocol on a single event loop.
//
// Usage:
//
//	respkv-server [--config respkv.yaml] [--host 0.0.0.0] [--port 6379]
//	respkv-server --snapshot /var/lib/respkv/dump.snap --backend evio
//
// Configuration is read from the YAML file, then RESPKV_* environment
// variables, then the flags above, each overriding the previous.
package main
