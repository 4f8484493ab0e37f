package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KeyStore persists one ed25519 private key per label (typically an
// index URL, mirroring config's per-index token resolution) as the
// hex-encoded 32-byte seed under <base>/<label>.key, adapted from the teacher's
// FileSignatureStore persistence shape (one file per key, mutex-guarded,
// tolerant of a missing file meaning "nothing stored yet").
type KeyStore struct {
	base string
	mu   sync.Mutex
}

// NewKeyStore opens (creating if absent) a key store rooted at base.
func NewKeyStore(base string) (*KeyStore, error) {
	if base == "" {
		return nil, errors.New("signing: key store base directory required")
	}

	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, err
	}

	return &KeyStore{base: base}, nil
}

func (s *KeyStore) path(label string) string {
	return filepath.Join(s.base, sanitizeLabel(label)+".key")
}

// Load reads the private key stored for label, or (nil, false, nil) if
// none has been generated yet.
func (s *KeyStore) Load(label string) (ed25519.PrivateKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(label))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, err
	}

	seed, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, false, fmt.Errorf("signing: corrupt key file for %q: %w", label, err)
	}

	if len(seed) != ed25519.SeedSize {
		return nil, false, fmt.Errorf("signing: key file for %q has wrong length", label)
	}

	return ed25519.NewKeyFromSeed(seed), true, nil
}

// Store writes priv for label, overwriting any existing key. The file
// is written with 0o600 permissions since it holds private key material.
func (s *KeyStore) Store(label string, priv ed25519.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seed := priv.Seed()

	return os.WriteFile(s.path(label), []byte(hex.EncodeToString(seed)), 0o600)
}

// LoadOrGenerate returns the key stored for label, generating and
// persisting a new one on first use.
func (s *KeyStore) LoadOrGenerate(label string) (ed25519.PrivateKey, error) {
	if priv, ok, err := s.Load(label); err != nil {
		return nil, err
	} else if ok {
		return priv, nil
	}

	_, priv, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	if err := s.Store(label, priv); err != nil {
		return nil, err
	}

	return priv, nil
}

func sanitizeLabel(label string) string {
	out := make([]rune, 0, len(label))

	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}

	return string(out)
}
