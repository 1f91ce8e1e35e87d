package domain

import (
	"math"
	"time"
)

// ExpiryKind selects how an ExpiryOption value is interpreted.
type ExpiryKind uint8

const (
	// ExpiryNone means the key has no deadline.
	ExpiryNone ExpiryKind = iota
	// ExpiryRelSeconds is a relative TTL in seconds (SET EX).
	ExpiryRelSeconds
	// ExpiryRelMillis is a relative TTL in milliseconds (SET PX).
	ExpiryRelMillis
	// ExpiryAbsSeconds is a Unix timestamp in seconds (SET EXAT).
	ExpiryAbsSeconds
	// ExpiryAbsMillis is a Unix timestamp in milliseconds (SET PXAT).
	ExpiryAbsMillis
)

// String returns the SET flag for the kind.
func (k ExpiryKind) String() string {
	switch k {
	case ExpiryRelSeconds:
		return "EX"
	case ExpiryRelMillis:
		return "PX"
	case ExpiryAbsSeconds:
		return "EXAT"
	case ExpiryAbsMillis:
		return "PXAT"
	default:
		return "NONE"
	}
}

// ExpiryOption is the parsed form of SET's optional expiry argument.
// Only one option is ever recognised per command.
type ExpiryOption struct {
	Kind  ExpiryKind
	Value int64
}

// NoExpiry is the ExpiryOption for a plain SET.
var NoExpiry = ExpiryOption{Kind: ExpiryNone}

// Deadline resolves the option against now.
//
// It returns ok=false for ExpiryNone. Values must be positive and the
// resulting deadline must fit in int64 milliseconds; otherwise
// ErrInvalidExpire is returned.
func (o ExpiryOption) Deadline(now time.Time) (deadline time.Time, ok bool, err error) {
	if o.Kind == ExpiryNone {
		return time.Time{}, false, nil
	}
	if o.Value <= 0 {
		return time.Time{}, false, ErrInvalidExpire
	}

	var ms int64
	switch o.Kind {
	case ExpiryRelSeconds, ExpiryAbsSeconds:
		if o.Value > math.MaxInt64/1000 {
			return time.Time{}, false, ErrInvalidExpire
		}
		ms = o.Value * 1000
	case ExpiryRelMillis, ExpiryAbsMillis:
		ms = o.Value
	default:
		return time.Time{}, false, ErrSyntax
	}

	if o.Kind == ExpiryRelSeconds || o.Kind == ExpiryRelMillis {
		nowMs := now.UnixMilli()
		if ms > math.MaxInt64-nowMs {
			return time.Time{}, false, ErrInvalidExpire
		}
		ms += nowMs
	}

	return time.UnixMilli(ms), true, nil
}
