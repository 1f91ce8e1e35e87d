package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/internal/storage/memory"
)

// Magic bytes identify snapshot files.
var magicBytes = []byte("RESPKV01")

const (
	checksumSize  = 32
	headerVersion = 1

	// maxHeaderSize bounds the header JSON so a corrupt length cannot
	// trigger a huge allocation.
	maxHeaderSize = 1 << 20

	typeString = "string"
	typeList   = "list"
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrTruncated        = errors.New("snapshot: truncated file")
	ErrUnsupported      = errors.New("snapshot: unsupported version")
)

type snapshotHeader struct {
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	KeyCount  uint64 `json:"key_count"`
	Encrypted bool   `json:"encrypted"`
	Salt      []byte `json:"salt,omitempty"`
}

// snapshotEntry is the on-disk form of one key. Byte slices are base64
// encoded by encoding/json, so binary keys and values survive unchanged.
type snapshotEntry struct {
	Key         []byte   `json:"key"`
	Type        string   `json:"type"`
	Str         []byte   `json:"str,omitempty"`
	List        [][]byte `json:"list,omitempty"`
	ExpiresAtMs int64    `json:"expires_at_ms,omitempty"`
}

func entryFromValue(key string, v *domain.Value, deadline time.Time) snapshotEntry {
	e := snapshotEntry{Key: []byte(key)}
	if v.IsList() {
		e.Type = typeList
		e.List = v.Items()
	} else {
		e.Type = typeString
		e.Str = v.Bytes()
	}
	if !deadline.IsZero() {
		e.ExpiresAtMs = deadline.UnixMilli()
	}
	return e
}

func (e snapshotEntry) toValue() (*domain.Value, time.Time, error) {
	var deadline time.Time
	if e.ExpiresAtMs != 0 {
		deadline = time.UnixMilli(e.ExpiresAtMs)
	}

	switch e.Type {
	case typeString:
		return domain.NewString(e.Str), deadline, nil
	case typeList:
		return domain.NewList(e.List...), deadline, nil
	default:
		return nil, time.Time{}, fmt.Errorf("snapshot: unknown value type %q", e.Type)
	}
}

// Config configures the snapshot manager.
type Config struct {
	// Path is the snapshot file. Its directory holds the temp files.
	Path string

	// EncryptionKey enables encryption of the data block when non-empty.
	EncryptionKey string

	Logger *slog.Logger
}

// Info contains metadata about a snapshot file.
type Info struct {
	Path      string        `json:"path"`
	KeyCount  int64         `json:"key_count"`
	CreatedAt int64         `json:"created_at"`
	Size      int64         `json:"size"`
	Checksum  string        `json:"checksum"`
	Encrypted bool          `json:"encrypted"`
	Duration  time.Duration `json:"duration"`
}

// Manager saves and loads the whole key space as a single file.
type Manager struct {
	path   string
	sealer *sealer
	logger *slog.Logger

	// syncFile is swapped in tests to inject write failures.
	syncFile func(*os.File) error
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("snapshot: path is required")
	}
	s, err := newSealer(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		path:     cfg.Path,
		sealer:   s,
		logger:   logger.With("component", "snapshot"),
		syncFile: (*os.File).Sync,
	}, nil
}

// Path returns the snapshot file path.
func (m *Manager) Path() string {
	return m.path
}

// Save writes every live key of src to the snapshot file.
//
// The data goes to a temp file in the same directory which is fsynced and
// renamed over the target. On failure the temp file is removed and the
// previous snapshot is left as it was.
func (m *Manager) Save(src *memory.Store) (*Info, error) {
	start := time.Now()

	entries := make([]snapshotEntry, 0, src.Len())
	src.ForEach(func(key string, v *domain.Value, deadline time.Time) bool {
		entries = append(entries, entryFromValue(key, v, deadline))
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal entries: %w", err)
	}

	hdr := snapshotHeader{
		Version:   headerVersion,
		CreatedAt: start.UnixMilli(),
		KeyCount:  uint64(len(entries)),
		Encrypted: m.sealer != nil,
	}
	if m.sealer != nil {
		if hdr.Salt, err = newSalt(); err != nil {
			return nil, err
		}
		if data, err = m.sealer.seal(data, hdr.Salt, magicBytes); err != nil {
			return nil, err
		}
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	sum, size, err := m.writeAtomic(hdrJSON, data)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Path:      m.path,
		KeyCount:  int64(len(entries)),
		CreatedAt: hdr.CreatedAt,
		Size:      size,
		Checksum:  hex.EncodeToString(sum),
		Encrypted: hdr.Encrypted,
		Duration:  time.Since(start),
	}
	m.logger.Info("snapshot saved",
		"path", info.Path,
		"keys", info.KeyCount,
		"bytes", info.Size,
		"encrypted", info.Encrypted,
		"duration", info.Duration)
	return info, nil
}

func (m *Manager) writeAtomic(hdrJSON, data []byte) (sum []byte, size int64, err error) {
	dir := filepath.Dir(m.path)
	file, err := os.CreateTemp(dir, filepath.Base(m.path)+".tmp-*")
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tempPath := file.Name()

	committed := false
	defer func() {
		if !committed {
			file.Close()
			os.Remove(tempPath)
		}
	}()

	hash := sha256.New()
	writer := io.MultiWriter(file, hash)

	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	var dataLen [8]byte
	binary.BigEndian.PutUint64(dataLen[:], uint64(len(data)))

	for _, part := range [][]byte{magicBytes, hdrLen[:], hdrJSON, dataLen[:], data} {
		if _, err := writer.Write(part); err != nil {
			return nil, 0, fmt.Errorf("snapshot: write: %w", err)
		}
	}

	// The checksum trailer is not part of the hash.
	sum = hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		return nil, 0, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := m.syncFile(file); err != nil {
		return nil, 0, fmt.Errorf("snapshot: sync: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: stat: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, 0, fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		committed = true
		return nil, 0, fmt.Errorf("snapshot: rename: %w", err)
	}
	committed = true

	if err := syncDir(dir); err != nil {
		m.logger.Warn("snapshot directory sync failed", "dir", dir, "error", err)
	}
	return sum, stat.Size(), nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Load reads the snapshot file into dst.
//
// A missing file is not an error: Load returns (nil, nil) and dst stays
// empty. Any other failure, including a malformed file, is returned and
// dst must be discarded. Entries whose deadline has passed are skipped.
func (m *Manager) Load(dst *memory.Store) (*Info, error) {
	start := time.Now()

	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Info("no snapshot found, starting empty", "path", m.path)
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}

	hdr, data, sum, err := m.decodeFile(raw)
	if err != nil {
		return nil, err
	}

	if hdr.Encrypted {
		if m.sealer == nil {
			return nil, ErrKeyRequired
		}
		if data, err = m.sealer.open(data, hdr.Salt, magicBytes); err != nil {
			return nil, err
		}
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal entries: %w", err)
	}
	if uint64(len(entries)) != hdr.KeyCount {
		return nil, fmt.Errorf("snapshot: header declares %d keys, found %d", hdr.KeyCount, len(entries))
	}

	var loaded, skipped int64
	for _, e := range entries {
		v, deadline, err := e.toValue()
		if err != nil {
			return nil, err
		}
		if dst.Restore(string(e.Key), v, deadline) {
			loaded++
		} else {
			skipped++
		}
	}

	info := &Info{
		Path:      m.path,
		KeyCount:  loaded,
		CreatedAt: hdr.CreatedAt,
		Size:      int64(len(raw)),
		Checksum:  hex.EncodeToString(sum),
		Encrypted: hdr.Encrypted,
		Duration:  time.Since(start),
	}
	m.logger.Info("snapshot loaded",
		"path", m.path,
		"keys", loaded,
		"expired_skipped", skipped,
		"encrypted", hdr.Encrypted,
		"duration", info.Duration)
	return info, nil
}

// decodeFile validates framing and checksum and returns the header and the
// raw data block.
func (m *Manager) decodeFile(raw []byte) (*snapshotHeader, []byte, []byte, error) {
	minSize := len(magicBytes) + 4 + 8 + checksumSize
	if len(raw) < minSize {
		return nil, nil, nil, ErrTruncated
	}
	if !bytes.Equal(raw[:len(magicBytes)], magicBytes) {
		return nil, nil, nil, ErrInvalidMagic
	}

	body, expected := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	actual := sha256.Sum256(body)
	if !bytes.Equal(actual[:], expected) {
		return nil, nil, nil, ErrChecksumMismatch
	}

	off := len(magicBytes)
	hdrLen := int(binary.BigEndian.Uint32(body[off:]))
	off += 4
	if hdrLen == 0 || hdrLen > maxHeaderSize || off+hdrLen+8 > len(body) {
		return nil, nil, nil, ErrTruncated
	}

	var hdr snapshotHeader
	if err := json.Unmarshal(body[off:off+hdrLen], &hdr); err != nil {
		return nil, nil, nil, fmt.Errorf("snapshot: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, nil, fmt.Errorf("%w: %d", ErrUnsupported, hdr.Version)
	}
	off += hdrLen

	dataLen := binary.BigEndian.Uint64(body[off:])
	off += 8
	if dataLen != uint64(len(body)-off) {
		return nil, nil, nil, ErrTruncated
	}

	return &hdr, body[off:], expected, nil
}
