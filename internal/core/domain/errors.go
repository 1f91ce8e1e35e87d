package domain

import (
	"errors"
	"strings"
)

// CommandError is a recoverable, client-visible command failure.
//
// It is encoded on the wire as "-<Prefix> <Message>". Two CommandErrors
// match with errors.Is when their codes are equal, regardless of message.
type CommandError struct {
	Code    string // Stable identifier (e.g. "ARITY", "WRONGTYPE")
	Prefix  string // Reply prefix (e.g. "ERR", "WRONGTYPE")
	Message string // Human-readable message
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return e.Prefix + " " + e.Message
}

// Is implements errors.Is() support for error comparison.
func (e *CommandError) Is(target error) bool {
	t, ok := target.(*CommandError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewCommandError creates a CommandError with the ERR prefix.
func NewCommandError(code, message string) *CommandError {
	return &CommandError{
		Code:    code,
		Prefix:  "ERR",
		Message: message,
	}
}

// WithMessage returns a copy of the error carrying a different message.
func (e *CommandError) WithMessage(message string) *CommandError {
	return &CommandError{
		Code:    e.Code,
		Prefix:  e.Prefix,
		Message: message,
	}
}

// ============================================================================
// Command errors
// ============================================================================

var (
	// ErrWrongType indicates an operation against a key holding the other variant.
	ErrWrongType = &CommandError{
		Code:    "WRONGTYPE",
		Prefix:  "WRONGTYPE",
		Message: "Operation against a key holding the wrong kind of value",
	}

	// ErrNotInteger indicates a value or argument is not a base-10 int64.
	ErrNotInteger = NewCommandError("NOTINT", "value is not an integer or out of range")

	// ErrOverflow indicates INCR/DECR would leave the int64 range.
	ErrOverflow = NewCommandError("OVERFLOW", "increment or decrement would overflow")

	// ErrSyntax indicates malformed optional arguments.
	ErrSyntax = NewCommandError("SYNTAX", "syntax error")

	// ErrInvalidExpire indicates a non-positive or overflowing expiry.
	ErrInvalidExpire = NewCommandError("EXPIRE", "invalid expire time in 'set' command")

	// ErrArity is the template for wrong-argument-count errors.
	ErrArity = NewCommandError("ARITY", "wrong number of arguments")

	// ErrUnknownCommand is the template for unrecognised command names.
	ErrUnknownCommand = NewCommandError("UNKNOWN", "unknown command")

	// ErrPersistence indicates SAVE failed.
	ErrPersistence = NewCommandError("PERSIST", "snapshot failed")

	// ErrRateLimited indicates the connection exceeded its command budget.
	ErrRateLimited = NewCommandError("RATELIMIT", "rate limit exceeded")
)

// WrongArity returns the arity error for the named command.
func WrongArity(name string) *CommandError {
	return ErrArity.WithMessage("wrong number of arguments for '" + strings.ToLower(name) + "' command")
}

// UnknownCommand returns the error for an unrecognised command name.
func UnknownCommand(name string) *CommandError {
	return ErrUnknownCommand.WithMessage("unknown command '" + name + "'")
}

// AsCommandError converts err into a CommandError, wrapping foreign errors
// under the ERR prefix.
func AsCommandError(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}
	return NewCommandError("INTERNAL", err.Error())
}
