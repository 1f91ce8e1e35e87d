// Package logger builds the process' structured logger on log/slog.
//
//   - logger.go: handler construction, shared runtime level
//   - redact.go: masking of secret-looking attributes
//   - context.go: request scoped loggers carried in a context
package logger
