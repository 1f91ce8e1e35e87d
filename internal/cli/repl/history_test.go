package repl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewHistory(t *testing.T) {
	h := NewHistory("")
	if h.maxSize != defaultHistorySize {
		t.Errorf("maxSize = %d, want %d", h.maxSize, defaultHistorySize)
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

func TestHistory_AddGet(t *testing.T) {
	h := NewHistory("")
	h.Add("PING")
	h.Add("GET k")
	h.Add("GET k")
	h.Add("SET k v")

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (consecutive duplicate collapsed)", h.Len())
	}

	tests := []struct {
		index int
		want  string
	}{
		{0, "SET k v"},
		{1, "GET k"},
		{2, "PING"},
		{3, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := h.Get(tt.index); got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestHistory_MaxSize(t *testing.T) {
	h := &History{maxSize: 2}
	h.Add("a")
	h.Add("b")
	h.Add("c")

	if h.Len() != 2 || h.Get(0) != "c" || h.Get(1) != "b" {
		t.Errorf("entries = %v, want [b c]", h.entries)
	}
}

func TestHistory_SaveLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "history")

	h := NewHistory(file)
	h.Add("SET k v")
	h.Add("GET k")
	if err := h.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("history file mode = %o, want 600", perm)
	}

	loaded := NewHistory(file)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 2 || loaded.Get(0) != "GET k" {
		t.Errorf("loaded entries = %v", loaded.entries)
	}
}

func TestHistory_LoadMissing(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "absent"))
	if err := h.Load(); err != nil {
		t.Errorf("Load() of missing file error = %v", err)
	}
}

func TestHistory_NoFile(t *testing.T) {
	h := NewHistory("")
	h.Add("PING")
	if err := h.Save(); err != nil {
		t.Errorf("Save() without file error = %v", err)
	}
	if err := h.Load(); err != nil {
		t.Errorf("Load() without file error = %v", err)
	}
}

func TestDefaultHistoryFile(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	if got := DefaultHistoryFile(); got != filepath.Join("/home/tester", ".respkv_history") {
		t.Errorf("DefaultHistoryFile() = %q", got)
	}
}
