// Package domain defines the core data model of respkv.
//
// Domain types are pure values without any IO dependencies. This package contains:
//
//   - Value: tagged union of a byte string or an ordered list
//   - ExpiryOption: parsed SET expiry argument (EX, PX, EXAT, PXAT)
//   - CommandError: client-visible, recoverable command failures
package domain
