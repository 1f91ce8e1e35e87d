package snapshot

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/internal/storage/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, key string) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Path:          filepath.Join(t.TempDir(), "dump.snap"),
		EncryptionKey: key,
		Logger:        quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func seedStore(t *testing.T, s *memory.Store) {
	t.Helper()
	if err := s.Set("greeting", domain.NewString([]byte("hello")), domain.NoExpiry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("bin\x00key", domain.NewString([]byte{0x00, 0xff, '\r', '\n'}), domain.NoExpiry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("empty", domain.NewString(nil), domain.NoExpiry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.ListPush("queue", [][]byte{[]byte("a"), []byte("b"), []byte("c")}, memory.Tail); err != nil {
		t.Fatalf("ListPush: %v", err)
	}
}

func assertSameContents(t *testing.T, want, got *memory.Store) {
	t.Helper()
	if want.Len() != got.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), want.Len())
	}
	want.ForEach(func(key string, v *domain.Value, deadline time.Time) bool {
		gv, ok := got.Get(key)
		if !ok {
			t.Errorf("key %q missing after load", key)
			return true
		}
		if !gv.Equal(v) {
			t.Errorf("key %q: value mismatch", key)
		}
		gd, hasDeadline := got.Deadline(key)
		if deadline.IsZero() != !hasDeadline || (hasDeadline && !gd.Equal(deadline)) {
			t.Errorf("key %q: deadline = %v, want %v", key, gd, deadline)
		}
		return true
	})
}

// ============================================================
// Round trip
// ============================================================

func TestManager_SaveLoadPlain(t *testing.T) {
	m := newTestManager(t, "")

	src := memory.New()
	seedStore(t, src)

	info, err := m.Save(src)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info.KeyCount != 4 {
		t.Errorf("KeyCount = %d, want 4", info.KeyCount)
	}
	if info.Encrypted {
		t.Error("Encrypted = true, want false")
	}

	dst := memory.New()
	loaded, err := m.Load(dst)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Checksum != info.Checksum {
		t.Errorf("Checksum = %s, want %s", loaded.Checksum, info.Checksum)
	}
	assertSameContents(t, src, dst)
}

func TestManager_SaveEmptyStore(t *testing.T) {
	m := newTestManager(t, "")

	if _, err := m.Save(memory.New()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	dst := memory.New()
	info, err := m.Load(dst)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if info == nil || info.KeyCount != 0 || dst.Len() != 0 {
		t.Fatalf("Load = %+v, len %d; want empty", info, dst.Len())
	}
}

func TestManager_SaveOverwrites(t *testing.T) {
	m := newTestManager(t, "")

	first := memory.New()
	_ = first.Set("a", domain.NewString([]byte("1")), domain.NoExpiry)
	if _, err := m.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := memory.New()
	_ = second.Set("b", domain.NewString([]byte("2")), domain.NoExpiry)
	if _, err := m.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := memory.New()
	if _, err := m.Load(dst); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dst.Exists("a") || !dst.Exists("b") {
		t.Fatal("second save should replace the first")
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(m.Path()))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

// ============================================================
// Expiry
// ============================================================

func TestManager_ExpiryPersisted(t *testing.T) {
	m := newTestManager(t, "")
	base := time.UnixMilli(1_700_000_000_000)

	src := memory.New(memory.WithClock(func() time.Time { return base }))
	_ = src.Set("short", domain.NewString([]byte("v")), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 10})
	_ = src.Set("long", domain.NewString([]byte("v")), domain.ExpiryOption{Kind: domain.ExpiryRelSeconds, Value: 3600})
	_ = src.Set("forever", domain.NewString([]byte("v")), domain.NoExpiry)

	if _, err := m.Save(src); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Run("before deadline", func(t *testing.T) {
		dst := memory.New(memory.WithClock(func() time.Time { return base.Add(time.Second) }))
		if _, err := m.Load(dst); err != nil {
			t.Fatalf("Load: %v", err)
		}
		assertSameContents(t, src, dst)
	})

	t.Run("after deadline", func(t *testing.T) {
		dst := memory.New(memory.WithClock(func() time.Time { return base.Add(time.Minute) }))
		info, err := m.Load(dst)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if info.KeyCount != 2 {
			t.Errorf("KeyCount = %d, want 2", info.KeyCount)
		}
		if dst.Exists("short") {
			t.Error("expired key should be skipped on load")
		}
		d, ok := dst.Deadline("long")
		if !ok || !d.Equal(base.Add(time.Hour)) {
			t.Errorf("long deadline = %v, %v", d, ok)
		}
	})
}

// ============================================================
// Failure handling
// ============================================================

func TestManager_LoadMissingFile(t *testing.T) {
	m := newTestManager(t, "")

	dst := memory.New()
	info, err := m.Load(dst)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if info != nil {
		t.Errorf("info = %+v, want nil", info)
	}
	if dst.Len() != 0 {
		t.Errorf("Len = %d, want 0", dst.Len())
	}
}

func TestManager_LoadCorrupt(t *testing.T) {
	m := newTestManager(t, "")
	src := memory.New()
	seedStore(t, src)
	if _, err := m.Save(src); err != nil {
		t.Fatalf("Save: %v", err)
	}
	good, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{
			name:    "bad magic",
			mutate:  func(b []byte) []byte { b[0] = 'X'; return b },
			wantErr: ErrInvalidMagic,
		},
		{
			name:    "flipped data byte",
			mutate:  func(b []byte) []byte { b[len(b)-checksumSize-2] ^= 0xff; return b },
			wantErr: ErrChecksumMismatch,
		},
		{
			name:    "flipped checksum byte",
			mutate:  func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b },
			wantErr: ErrChecksumMismatch,
		},
		{
			name:    "truncated",
			mutate:  func(b []byte) []byte { return b[:10] },
			wantErr: ErrTruncated,
		},
		{
			name:    "garbage",
			mutate:  func([]byte) []byte { return []byte("this is not a snapshot file at all, just some plain text that is long enough") },
			wantErr: ErrInvalidMagic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := tt.mutate(append([]byte(nil), good...))
			if err := os.WriteFile(m.Path(), corrupt, 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := m.Load(memory.New())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManager_FailedSaveKeepsPrevious(t *testing.T) {
	m := newTestManager(t, "")

	src := memory.New()
	seedStore(t, src)
	if _, err := m.Save(src); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.ReadFile(m.Path())

	m.syncFile = func(*os.File) error { return errors.New("disk full") }
	_ = src.Set("extra", domain.NewString([]byte("x")), domain.NoExpiry)
	if _, err := m.Save(src); err == nil {
		t.Fatal("Save should fail when sync fails")
	}

	after, _ := os.ReadFile(m.Path())
	if string(before) != string(after) {
		t.Error("previous snapshot was modified by a failed save")
	}
	entries, _ := os.ReadDir(filepath.Dir(m.Path()))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the snapshot", len(entries))
	}
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("empty path should be rejected")
	}
	if _, err := NewManager(Config{Path: "x.snap", EncryptionKey: "short"}); !errors.Is(err, ErrKeyTooShort) {
		t.Errorf("short key err = %v, want ErrKeyTooShort", err)
	}
}
