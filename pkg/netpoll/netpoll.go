package netpoll

import "errors"

var (
	// ErrWouldBlock means the operation cannot make progress until the
	// descriptor reports readiness again.
	ErrWouldBlock = errors.New("netpoll: operation would block")

	// ErrNoDescriptors means accept failed because the process or system
	// file descriptor limit was reached. Pending connections stay queued.
	ErrNoDescriptors = errors.New("netpoll: out of file descriptors")

	// ErrUnsupported is returned on platforms without an implementation.
	ErrUnsupported = errors.New("netpoll: not supported on this platform")
)

// Interest is the set of readiness conditions a descriptor is watched for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Event is one readiness notification.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	// Hangup is set on peer shutdown or a socket error. The descriptor
	// should still be read until it returns an error or EOF.
	Hangup bool
}
