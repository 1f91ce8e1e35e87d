package memory

import (
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func str(s string) *domain.Value { return domain.NewString([]byte(s)) }

func listStrings(items [][]byte) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it)
	}
	return out
}

func bytesArgs(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// ============================================================
// Get / Set / Exists / Delete
// ============================================================

func TestStore_SetGet(t *testing.T) {
	s := New()

	if _, ok := s.Get("missing"); ok {
		t.Fatal("Get(missing) ok = true")
	}

	if err := s.Set("k", str("v"), domain.NoExpiry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := s.Get("k")
	if !ok || string(v.Bytes()) != "v" {
		t.Fatalf("Get(k) = %v, %v; want v, true", v, ok)
	}

	// Overwrite with a different variant.
	if err := s.Set("k", domain.NewList([]byte("a")), domain.NoExpiry); err != nil {
		t.Fatalf("Set list: %v", err)
	}
	v, _ = s.Get("k")
	if !v.IsList() {
		t.Fatalf("Get(k) kind = %v, want list", v.Kind())
	}
}

func TestStore_ExistsDelete(t *testing.T) {
	s := New()
	_ = s.Set("a", str("1"), domain.NoExpiry)

	if !s.Exists("a") {
		t.Error("Exists(a) = false")
	}
	if s.Exists("b") {
		t.Error("Exists(b) = true")
	}
	if !s.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if s.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

// ============================================================
// Expiry
// ============================================================

func TestStore_ExpiryLazy(t *testing.T) {
	clock := newFakeClock()
	var expired []string
	s := New(WithClock(clock.Now), WithExpireHook(func(k string) { expired = append(expired, k) }))

	if err := s.Set("k", str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if v, ok := s.Get("k"); !ok || string(v.Bytes()) != "v" {
		t.Fatal("key should be readable before deadline")
	}

	clock.Advance(999 * time.Millisecond)
	if !s.Exists("k") {
		t.Fatal("key should exist 1ms before deadline")
	}

	clock.Advance(time.Millisecond)
	if _, ok := s.Get("k"); ok {
		t.Fatal("key should be gone at deadline")
	}
	if s.Exists("k") {
		t.Fatal("Exists should be false after deadline")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (lazily removed)", s.Len())
	}
	if _, ok := s.expires["k"]; ok {
		t.Error("expiry entry should be removed together with the key")
	}
	if len(expired) != 1 || expired[0] != "k" {
		t.Errorf("expire hook calls = %v, want [k]", expired)
	}
}

func TestStore_SetClearsPreviousExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	_ = s.Set("k", str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelMillis, Value: 100})
	_ = s.Set("k", str("v2"), domain.NoExpiry)

	clock.Advance(time.Second)
	v, ok := s.Get("k")
	if !ok || string(v.Bytes()) != "v2" {
		t.Fatal("plain SET should clear the previous deadline")
	}
	if _, state := s.TTL("k"); state != TTLPersistent {
		t.Errorf("TTL state = %v, want persistent", state)
	}
}

func TestStore_SetExpiryKinds(t *testing.T) {
	clock := newFakeClock()
	nowMs := clock.Now().UnixMilli()

	tests := []struct {
		name string
		opt  domain.ExpiryOption
		want time.Time
	}{
		{"EX", domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 5}, clock.Now().Add(5 * time.Second)},
		{"PX", domain.ExpiryOption{Kind: domain.ExpiryRelMillis, Value: 250}, clock.Now().Add(250 * time.Millisecond)},
		{"EXAT", domain.ExpiryOption{Kind: domain.ExpiryAbsSeconds, Value: nowMs/1000 + 60}, time.Unix(nowMs/1000+60, 0)},
		{"PXAT", domain.ExpiryOption{Kind: domain.ExpiryAbsMillis, Value: nowMs + 42}, time.UnixMilli(nowMs + 42)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(WithClock(clock.Now))
			if err := s.Set("k", str("v"), tt.opt); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, ok := s.Deadline("k")
			if !ok || !got.Equal(tt.want) {
				t.Errorf("Deadline = %v, %v; want %v", got, ok, tt.want)
			}
		})
	}
}

func TestStore_SetPastDeadlineDeletes(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	_ = s.Set("k", str("old"), domain.NoExpiry)

	past := domain.ExpiryOption{Kind: domain.ExpiryAbsSeconds, Value: clock.Now().Unix() - 10}
	if err := s.Set("k", str("new"), past); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if s.Exists("k") {
		t.Error("SET with a past EXAT should leave the key absent")
	}
}

func TestStore_SetInvalidExpireDoesNotMutate(t *testing.T) {
	s := New()
	_ = s.Set("k", str("old"), domain.NoExpiry)

	err := s.Set("k", str("new"), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 0})
	if !errors.Is(err, domain.ErrInvalidExpire) {
		t.Fatalf("err = %v, want ErrInvalidExpire", err)
	}
	v, _ := s.Get("k")
	if string(v.Bytes()) != "old" {
		t.Errorf("value = %q, want old", v.Bytes())
	}
}

func TestStore_ListExpiresLikeString(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	_ = s.Set("l", domain.NewList([]byte("a")), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 1})
	clock.Advance(2 * time.Second)

	n, err := s.ListPush("l", bytesArgs("b"), Tail)
	if err != nil || n != 1 {
		t.Fatalf("ListPush after expiry = %d, %v; want fresh list of 1", n, err)
	}
	if _, state := s.TTL("l"); state != TTLPersistent {
		t.Error("recreated list should have no deadline")
	}
}

func TestStore_ActiveExpire(t *testing.T) {
	clock := newFakeClock()
	expired := 0
	s := New(WithClock(clock.Now), WithExpireHook(func(string) { expired++ }))

	for i := 0; i < 10; i++ {
		_ = s.Set("short"+strconv.Itoa(i), str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelMillis, Value: 10})
	}
	_ = s.Set("long", str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 100})
	_ = s.Set("forever", str("v"), domain.NoExpiry)

	clock.Advance(time.Second)

	removed := s.ActiveExpire(100)
	if removed != 10 {
		t.Errorf("ActiveExpire removed %d, want 10", removed)
	}
	if expired != 10 {
		t.Errorf("expire hook calls = %d, want 10", expired)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	if got := s.ActiveExpire(100); got != 0 {
		t.Errorf("second pass removed %d, want 0", got)
	}
}

func TestStore_ActiveExpireRespectsLimit(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	for i := 0; i < 50; i++ {
		_ = s.Set(strconv.Itoa(i), str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelMillis, Value: 1})
	}
	clock.Advance(time.Second)

	if got := s.ActiveExpire(5); got != 5 {
		t.Errorf("ActiveExpire(5) = %d, want 5", got)
	}
}

func TestStore_TTL(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	_ = s.Set("p", str("v"), domain.NoExpiry)
	_ = s.Set("v", str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 10})

	if _, state := s.TTL("missing"); state != TTLMissing {
		t.Errorf("TTL(missing) state = %v", state)
	}
	if _, state := s.TTL("p"); state != TTLPersistent {
		t.Errorf("TTL(p) state = %v", state)
	}
	clock.Advance(3 * time.Second)
	d, state := s.TTL("v")
	if state != TTLVolatile || d != 7*time.Second {
		t.Errorf("TTL(v) = %v, %v; want 7s volatile", d, state)
	}
}

// ============================================================
// INCR / DECR
// ============================================================

func TestStore_IncrDecr(t *testing.T) {
	tests := []struct {
		name    string
		initial *domain.Value
		delta   int64
		want    int64
		wantErr error
		stored  string
	}{
		{name: "missing incr", delta: 1, want: 1, stored: "1"},
		{name: "missing decr", delta: -1, want: -1, stored: "-1"},
		{name: "existing", initial: str("41"), delta: 1, want: 42, stored: "42"},
		{name: "negative", initial: str("-5"), delta: -1, want: -6, stored: "-6"},
		{name: "not integer", initial: str("abc"), delta: 1, wantErr: domain.ErrNotInteger, stored: "abc"},
		{name: "float", initial: str("1.5"), delta: 1, wantErr: domain.ErrNotInteger, stored: "1.5"},
		{name: "leading space", initial: str(" 1"), delta: 1, wantErr: domain.ErrNotInteger, stored: " 1"},
		{name: "plus sign", initial: str("+1"), delta: 1, wantErr: domain.ErrNotInteger, stored: "+1"},
		{name: "leading zero", initial: str("01"), delta: 1, wantErr: domain.ErrNotInteger, stored: "01"},
		{name: "negative zero", initial: str("-0"), delta: 1, wantErr: domain.ErrNotInteger, stored: "-0"},
		{name: "empty", initial: str(""), delta: 1, wantErr: domain.ErrNotInteger, stored: ""},
		{name: "overflow", initial: str(strconv.FormatInt(math.MaxInt64, 10)), delta: 1, wantErr: domain.ErrOverflow, stored: strconv.FormatInt(math.MaxInt64, 10)},
		{name: "underflow", initial: str(strconv.FormatInt(math.MinInt64, 10)), delta: -1, wantErr: domain.ErrOverflow, stored: strconv.FormatInt(math.MinInt64, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			if tt.initial != nil {
				_ = s.Set("k", tt.initial, domain.NoExpiry)
			}

			got, err := s.IncrBy("k", tt.delta)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("IncrBy = %d, want %d", got, tt.want)
				}
			}

			v, ok := s.Get("k")
			if !ok {
				t.Fatal("key should exist afterwards")
			}
			if string(v.Bytes()) != tt.stored {
				t.Errorf("stored = %q, want %q", v.Bytes(), tt.stored)
			}
		})
	}
}

func TestStore_IncrOnListIsWrongType(t *testing.T) {
	s := New()
	_, _ = s.ListPush("l", bytesArgs("a"), Tail)

	if _, err := s.Incr("l"); !errors.Is(err, domain.ErrWrongType) {
		t.Errorf("Incr(list) err = %v, want ErrWrongType", err)
	}
	if _, err := s.Decr("l"); !errors.Is(err, domain.ErrWrongType) {
		t.Errorf("Decr(list) err = %v, want ErrWrongType", err)
	}
}

func TestStore_IncrKeepsDeadline(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	_ = s.Set("c", str("1"), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 10})

	if _, err := s.Incr("c"); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if _, state := s.TTL("c"); state != TTLVolatile {
		t.Error("INCR should keep the existing deadline")
	}
}

// ============================================================
// Lists
// ============================================================

func TestStore_ListPushOrdering(t *testing.T) {
	s := New()

	n, err := s.ListPush("k", bytesArgs("a", "b", "c"), Head)
	if err != nil || n != 3 {
		t.Fatalf("LPUSH = %d, %v; want 3", n, err)
	}
	n, err = s.ListPush("k", bytesArgs("x", "y"), Tail)
	if err != nil || n != 5 {
		t.Fatalf("RPUSH = %d, %v; want 5", n, err)
	}

	items, err := s.ListRange("k", 0, -1)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	got := listStrings(items)
	want := []string{"c", "b", "a", "x", "y"}
	if len(got) != len(want) {
		t.Fatalf("list = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list = %v, want %v", got, want)
		}
	}
}

func TestStore_ListPushOnStringIsWrongType(t *testing.T) {
	s := New()
	_ = s.Set("k", str("v"), domain.NoExpiry)

	if _, err := s.ListPush("k", bytesArgs("a"), Head); !errors.Is(err, domain.ErrWrongType) {
		t.Fatalf("err = %v, want ErrWrongType", err)
	}
	v, _ := s.Get("k")
	if !v.IsString() || string(v.Bytes()) != "v" {
		t.Error("string value should be unchanged")
	}
}

func TestStore_ListRange(t *testing.T) {
	s := New()
	_, _ = s.ListPush("k", bytesArgs("0", "1", "2", "3", "4"), Tail)

	tests := []struct {
		start, stop int64
		want        []string
	}{
		{0, -1, []string{"0", "1", "2", "3", "4"}},
		{1, 2, []string{"1", "2"}},
		{-2, -1, []string{"3", "4"}},
		{-100, 1, []string{"0", "1"}},
		{3, 100, []string{"3", "4"}},
		{4, 2, []string{}},
		{10, 20, []string{}},
	}

	for _, tt := range tests {
		items, err := s.ListRange("k", tt.start, tt.stop)
		if err != nil {
			t.Fatalf("ListRange(%d,%d): %v", tt.start, tt.stop, err)
		}
		got := listStrings(items)
		if len(got) != len(tt.want) {
			t.Errorf("ListRange(%d,%d) = %v, want %v", tt.start, tt.stop, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ListRange(%d,%d) = %v, want %v", tt.start, tt.stop, got, tt.want)
				break
			}
		}
	}

	if items, err := s.ListRange("missing", 0, -1); err != nil || items != nil {
		t.Errorf("ListRange(missing) = %v, %v; want nil, nil", items, err)
	}
}

func TestStore_ListLen(t *testing.T) {
	s := New()
	_, _ = s.ListPush("l", bytesArgs("a", "b"), Tail)
	_ = s.Set("s", str("v"), domain.NoExpiry)

	if n, err := s.ListLen("l"); err != nil || n != 2 {
		t.Errorf("ListLen(l) = %d, %v", n, err)
	}
	if n, err := s.ListLen("missing"); err != nil || n != 0 {
		t.Errorf("ListLen(missing) = %d, %v", n, err)
	}
	if _, err := s.ListLen("s"); !errors.Is(err, domain.ErrWrongType) {
		t.Errorf("ListLen(s) err = %v", err)
	}
}

// ============================================================
// Iteration / Restore / bookkeeping
// ============================================================

func TestStore_ForEachSkipsExpired(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	_ = s.Set("live", str("v"), domain.NoExpiry)
	_ = s.Set("ttl", str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 100})
	_ = s.Set("dead", str("v"), domain.ExpiryOption{Kind: domain.ExpiryRelMillis, Value: 1})
	clock.Advance(time.Second)

	seen := map[string]time.Time{}
	s.ForEach(func(key string, _ *domain.Value, deadline time.Time) bool {
		seen[key] = deadline
		return true
	})

	if len(seen) != 2 {
		t.Fatalf("ForEach saw %v, want live and ttl", seen)
	}
	if !seen["live"].IsZero() {
		t.Error("live key should report a zero deadline")
	}
	if seen["ttl"].IsZero() {
		t.Error("ttl key should report its deadline")
	}
}

func TestStore_Restore(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	if !s.Restore("a", str("1"), time.Time{}) {
		t.Error("Restore without deadline should succeed")
	}
	if !s.Restore("b", str("2"), clock.Now().Add(time.Minute)) {
		t.Error("Restore with future deadline should succeed")
	}
	if s.Restore("c", str("3"), clock.Now().Add(-time.Minute)) {
		t.Error("Restore with past deadline should be skipped")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if s.Changes() != 0 {
		t.Errorf("Changes() = %d, want 0 after restore", s.Changes())
	}
}

func TestStore_Changes(t *testing.T) {
	s := New()
	_ = s.Set("a", str("1"), domain.NoExpiry)
	_, _ = s.Incr("a")
	_, _ = s.ListPush("l", bytesArgs("x"), Head)
	s.Delete("a")
	s.Delete("missing")

	if s.Changes() != 4 {
		t.Errorf("Changes() = %d, want 4", s.Changes())
	}
}
