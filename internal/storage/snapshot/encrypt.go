package snapshot

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryption errors.
var (
	ErrKeyTooShort      = errors.New("snapshot: encryption key too short (minimum 16 bytes)")
	ErrKeyRequired      = errors.New("snapshot: file is encrypted but no encryption key is configured")
	ErrDecryptionFailed = errors.New("snapshot: decryption failed - wrong key or corrupted data")
)

const (
	// MinKeyLength is the minimum encryption key length.
	MinKeyLength = 16

	// SaltLength is the per-file salt length fed to HKDF.
	SaltLength = 16

	subkeyInfo = "respkv snapshot data v1"
)

// sealer encrypts the snapshot data block with ChaCha20-Poly1305.
//
// Every file gets a fresh random salt; the data key is derived from the
// configured secret and that salt with HKDF-SHA256, so two saves never
// reuse a key/nonce pair.
type sealer struct {
	secret []byte
}

func newSealer(key string) (*sealer, error) {
	if key == "" {
		return nil, nil
	}
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	return &sealer{secret: []byte(key)}, nil
}

// newSalt returns SaltLength random bytes.
func newSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("snapshot: generate salt: %w", err)
	}
	return salt, nil
}

// deriveKey derives the data key for one file.
func (s *sealer) deriveKey(salt []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, s.secret, salt, []byte(subkeyInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("snapshot: derive key: %w", err)
	}
	return key, nil
}

// seal returns nonce || ciphertext.
func (s *sealer) seal(plaintext, salt, aad []byte) ([]byte, error) {
	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("snapshot: init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("snapshot: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// open reverses seal.
func (s *sealer) open(sealed, salt, aad []byte) ([]byte, error) {
	key, err := s.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("snapshot: init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
