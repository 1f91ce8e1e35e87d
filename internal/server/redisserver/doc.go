// Package redisserver implements the RESP2 command server.
//
// The server runs a single event loop goroutine that owns the store: it
// accepts connections, reads and decodes pipelined commands, executes them
// and writes the replies, then runs periodic housekeeping (active expiry
// and autosave) between readiness waits. Two loop backends exist: a direct
// epoll loop on Linux and a tidwall/evio loop elsewhere.
//
// Supported commands:
//   - PING, ECHO, QUIT
//   - GET, SET [EX|PX|EXAT|PXAT], INCR, DECR
//   - EXISTS, DEL, TTL, PTTL, DBSIZE
//   - LPUSH, RPUSH, LRANGE, LLEN
//   - SAVE
package redisserver
