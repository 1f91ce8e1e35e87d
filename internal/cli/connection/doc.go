// Package connection provides the respkv-cli connection to a respkv server.
//
// It wraps a go-redis client speaking RESP2 and reports replies as plain Go
// values: string, Status, int64, []any, nil for null replies, and a
// ReplyError for error replies.
package connection
