// Package keystore is the thin PEM load/generate-and-save helper
// spec.md §1 assumes exists externally ("key-file persistence" is a
// Non-goal of the protocol core, but something still has to hand the
// core a keypair at process startup). It is grounded on the
// os.Getenv/os.MkdirAll/os.ReadFile file-handling idiom the teacher's
// internal/client.SessionManager uses for its session directory, scaled
// down to a single keypair file.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/qcchat/qcchat/internal/protocol"
)

// Store persists a single RSA keypair as a PEM file at Path.
type Store struct {
	Path string
}

// New returns a Store rooted at path.
func New(path string) *Store {
	return &Store{Path: path}
}

// Load reads and decodes the keypair at Path. It returns the underlying
// os error unwrapped so callers can test os.IsNotExist.
func (s *Store) Load() (*protocol.KeyPair, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	kp, err := protocol.DecodeKeyPairPEM(string(data))
	if err != nil {
		return nil, fmt.Errorf("keystore: decode %s: %w", s.Path, err)
	}
	return kp, nil
}

// Save PEM-encodes kp and writes it to Path, creating parent
// directories as needed. The file is written with owner-only
// permissions since it holds private key material.
func (s *Store) Save(kp *protocol.KeyPair) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("keystore: create directory for %s: %w", s.Path, err)
		}
	}
	if err := os.WriteFile(s.Path, []byte(kp.EncodePEM()), 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", s.Path, err)
	}
	return nil
}

// LoadOrGenerate loads the keypair at Path, or generates a fresh one at
// the given bit size and persists it if no file exists yet.
func (s *Store) LoadOrGenerate(bits int) (*protocol.KeyPair, error) {
	kp, err := s.Load()
	if err == nil {
		return kp, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	kp, err = protocol.GenerateKeyPair(bits)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate keypair: %w", err)
	}
	if err := s.Save(kp); err != nil {
		return nil, err
	}
	return kp, nil
}
