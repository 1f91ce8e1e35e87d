package memory

import (
	"math"
	"strconv"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
)

// DefaultActiveExpireSample is the number of expiry entries examined by
// one ActiveExpire pass when the caller passes a non-positive limit.
const DefaultActiveExpireSample = 20

// Side selects the end of a list that ListPush inserts at.
type Side uint8

const (
	// Head inserts at the front (LPUSH).
	Head Side = iota
	// Tail inserts at the back (RPUSH).
	Tail
)

// TTLState describes the expiry status of a key.
type TTLState uint8

const (
	// TTLMissing means the key does not exist.
	TTLMissing TTLState = iota
	// TTLPersistent means the key exists without a deadline.
	TTLPersistent
	// TTLVolatile means the key exists and has a deadline.
	TTLVolatile
)

// Store maps keys to values and tracks per-key expiry deadlines.
//
// Store is not safe for concurrent use. It is owned by the event loop
// goroutine, which serialises every command.
type Store struct {
	data    map[string]*domain.Value
	expires map[string]time.Time

	now      func() time.Time
	onExpire func(key string)

	changes uint64
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpireHook registers a callback invoked whenever a key is removed
// because its deadline passed.
func WithExpireHook(fn func(key string)) Option {
	return func(s *Store) {
		s.onExpire = fn
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		data:    make(map[string]*domain.Value),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// lookup returns the live value for key, removing it first if expired.
func (s *Store) lookup(key string) (*domain.Value, bool) {
	v, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if deadline, ok := s.expires[key]; ok && !deadline.After(s.now()) {
		s.expire(key)
		return nil, false
	}
	return v, true
}

func (s *Store) expire(key string) {
	s.remove(key)
	if s.onExpire != nil {
		s.onExpire(key)
	}
}

// remove deletes key from both tables.
func (s *Store) remove(key string) {
	delete(s.data, key)
	delete(s.expires, key)
	s.changes++
}

// Get returns the value stored at key.
func (s *Store) Get(key string) (*domain.Value, bool) {
	return s.lookup(key)
}

// Set stores value at key, replacing any existing value and deadline.
//
// A deadline that has already passed leaves the key absent.
func (s *Store) Set(key string, value *domain.Value, opt domain.ExpiryOption) error {
	now := s.now()
	deadline, hasDeadline, err := opt.Deadline(now)
	if err != nil {
		return err
	}

	if hasDeadline && !deadline.After(now) {
		if _, ok := s.data[key]; ok {
			s.remove(key)
		}
		return nil
	}

	s.data[key] = value
	if hasDeadline {
		s.expires[key] = deadline
	} else {
		delete(s.expires, key)
	}
	s.changes++
	return nil
}

// Exists reports whether key holds a live value.
func (s *Store) Exists(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

// Delete removes key and reports whether a live value was removed.
func (s *Store) Delete(key string) bool {
	if _, ok := s.lookup(key); !ok {
		return false
	}
	s.remove(key)
	return true
}

// Incr adds one to the integer stored at key.
func (s *Store) Incr(key string) (int64, error) {
	return s.IncrBy(key, 1)
}

// Decr subtracts one from the integer stored at key.
func (s *Store) Decr(key string) (int64, error) {
	return s.IncrBy(key, -1)
}

// IncrBy adds delta to the base-10 integer stored at key.
//
// A missing key counts as zero. The value is left untouched when it is a
// list, is not an integer, or the result would overflow. An existing
// deadline is preserved.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	var current int64

	v, ok := s.lookup(key)
	if ok {
		if !v.IsString() {
			return 0, domain.ErrWrongType
		}
		n, err := parseInt(v.Bytes())
		if err != nil {
			return 0, domain.ErrNotInteger
		}
		current = n
	}

	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		return 0, domain.ErrOverflow
	}
	next := current + delta

	s.data[key] = domain.NewString(strconv.AppendInt(nil, next, 10))
	s.changes++
	return next, nil
}

// parseInt accepts exactly what strconv.FormatInt produces: optional minus,
// digits, no padding or plus sign.
func parseInt(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 20 || b[0] == '+' {
		return 0, strconv.ErrSyntax
	}
	if len(b) > 1 && b[0] == '0' {
		return 0, strconv.ErrSyntax
	}
	if len(b) > 1 && b[0] == '-' && b[1] == '0' {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(string(b), 10, 64)
}

// ListPush inserts values at one end of the list stored at key and returns
// the new length. A missing key is created as an empty list first.
func (s *Store) ListPush(key string, values [][]byte, side Side) (int, error) {
	v, ok := s.lookup(key)
	if ok && !v.IsList() {
		return 0, domain.ErrWrongType
	}
	if !ok {
		v = domain.NewList()
		s.data[key] = v
	}

	var n int
	if side == Head {
		n = v.PushFront(values...)
	} else {
		n = v.PushBack(values...)
	}
	s.changes++
	return n, nil
}

// ListRange returns the elements between start and stop inclusive.
// Negative indexes count from the tail, as in LRANGE.
func (s *Store) ListRange(key string, start, stop int64) ([][]byte, error) {
	v, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	if !v.IsList() {
		return nil, domain.ErrWrongType
	}

	items := v.Items()
	n := int64(len(items))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return [][]byte{}, nil
	}
	return items[start : stop+1], nil
}

// ListLen returns the length of the list at key, zero if missing.
func (s *Store) ListLen(key string) (int, error) {
	v, ok := s.lookup(key)
	if !ok {
		return 0, nil
	}
	if !v.IsList() {
		return 0, domain.ErrWrongType
	}
	return v.Len(), nil
}

// TTL returns the remaining time to live of key.
func (s *Store) TTL(key string) (time.Duration, TTLState) {
	if _, ok := s.lookup(key); !ok {
		return 0, TTLMissing
	}
	deadline, ok := s.expires[key]
	if !ok {
		return 0, TTLPersistent
	}
	return deadline.Sub(s.now()), TTLVolatile
}

// Deadline returns the absolute expiry of key, if any.
func (s *Store) Deadline(key string) (time.Time, bool) {
	if _, ok := s.lookup(key); !ok {
		return time.Time{}, false
	}
	deadline, ok := s.expires[key]
	return deadline, ok
}

// Len returns the number of keys, including expired keys not yet reclaimed.
func (s *Store) Len() int {
	return len(s.data)
}

// Changes returns the number of mutations applied since creation.
func (s *Store) Changes() uint64 {
	return s.changes
}

// ActiveExpire examines up to limit keys with a deadline and removes the
// expired ones. It returns the number removed.
func (s *Store) ActiveExpire(limit int) int {
	if limit <= 0 {
		limit = DefaultActiveExpireSample
	}

	now := s.now()
	removed := 0
	examined := 0
	// Map iteration order is randomised, which gives the sampling.
	for key, deadline := range s.expires {
		if examined >= limit {
			break
		}
		examined++
		if !deadline.After(now) {
			s.expire(key)
			removed++
		}
	}
	return removed
}

// ForEach calls fn for every live key. A zero deadline means no expiry.
// Iteration stops when fn returns false. fn must not mutate the store.
func (s *Store) ForEach(fn func(key string, value *domain.Value, deadline time.Time) bool) {
	now := s.now()
	for key, v := range s.data {
		deadline, ok := s.expires[key]
		if ok && !deadline.After(now) {
			continue
		}
		if !fn(key, v, deadline) {
			return
		}
	}
}

// Restore inserts a key loaded from a snapshot. A zero deadline means no
// expiry; a passed deadline drops the entry.
func (s *Store) Restore(key string, value *domain.Value, deadline time.Time) bool {
	if !deadline.IsZero() && !deadline.After(s.now()) {
		return false
	}
	s.data[key] = value
	if deadline.IsZero() {
		delete(s.expires, key)
	} else {
		s.expires[key] = deadline
	}
	return true
}
