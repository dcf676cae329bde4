// Package store persists credential bundles to an encrypted artifact in
// a shared directory. The artifact is encrypted with an age X25519
// identity whose private key lives next to it, so any local process
// that can read the directory can decrypt the bundle. The trust
// boundary is the host, not the file permission bits.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
	"github.com/spf13/afero"

	"github.com/parentsync/parentsync/pkg/credentials"
)

const (
	// ArtifactName is the encrypted bundle file inside the share directory.
	ArtifactName = "cookies.enc"

	// KeyFileName holds the age identity used to encrypt and decrypt
	// the artifact. One key must be shared by the writer and every
	// reader; regenerating it makes existing artifacts unreadable.
	KeyFileName = ".key"

	envelopeVersion = "1.0"
)

// ErrNotFound is returned by Load when no artifact exists. Callers are
// expected to treat this as "re-authentication needed", not as a fault.
var ErrNotFound = errors.New("store: no credentials stored")

// StorageError wraps I/O, encryption, and parse failures. It is
// deliberately distinct from ErrNotFound so corruption and key
// mismatches are surfaced instead of silently read as empty.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// envelope is the serialized form of a bundle before encryption.
type envelope struct {
	Version   string               `json:"version"`
	Timestamp time.Time            `json:"timestamp"`
	Cookies   []credentials.Cookie `json:"cookies"`
}

// Store reads and writes the encrypted credential artifact. Writers and
// readers may run in different processes; the write path stays safe
// under concurrency purely through write-temp-then-rename.
type Store struct {
	fs       afero.Fs
	dir      string
	mu       sync.Mutex
	identity *age.X25519Identity
}

// New opens (or initializes) a store rooted at dir. On first use it
// generates the encryption key; afterwards it loads the existing one.
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "init share directory", Err: err}
	}
	s := &Store{fs: fs, dir: dir}
	if err := s.loadOrCreateKey(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the share directory this store is rooted at.
func (s *Store) Dir() string { return s.dir }

func (s *Store) artifactPath() string { return filepath.Join(s.dir, ArtifactName) }
func (s *Store) keyPath() string      { return filepath.Join(s.dir, KeyFileName) }

func (s *Store) loadOrCreateKey() error {
	keyPath := s.keyPath()

	raw, err := afero.ReadFile(s.fs, keyPath)
	if err == nil {
		identity, parseErr := age.ParseX25519Identity(strings.TrimSpace(string(raw)))
		if parseErr != nil {
			return &StorageError{Op: "parse encryption key", Err: parseErr}
		}
		s.identity = identity
		return nil
	}
	if !os.IsNotExist(err) {
		return &StorageError{Op: "read encryption key", Err: err}
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return &StorageError{Op: "generate encryption key", Err: err}
	}
	// Readable by every local consumer. If two processes race here at
	// first use, the last writer wins and earlier artifacts written
	// under the losing key become unreadable; the window is
	// startup-only and re-authentication recovers.
	if err := afero.WriteFile(s.fs, keyPath, []byte(identity.String()+"\n"), 0o644); err != nil {
		return &StorageError{Op: "write encryption key", Err: err}
	}
	s.identity = identity
	return nil
}

// Save serializes, encrypts, and atomically writes the bundle. A
// concurrent reader never observes a partially written artifact.
func (s *Store) Save(bundle credentials.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := envelope{
		Version:   envelopeVersion,
		Timestamp: time.Now().UTC(),
		Cookies:   bundle.Cookies,
	}
	plaintext, err := json.Marshal(env)
	if err != nil {
		return &StorageError{Op: "encode bundle", Err: err}
	}

	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, s.identity.Recipient())
	if err != nil {
		return &StorageError{Op: "init encryption", Err: err}
	}
	if _, err := w.Write(plaintext); err != nil {
		return &StorageError{Op: "encrypt bundle", Err: err}
	}
	if err := w.Close(); err != nil {
		return &StorageError{Op: "finalize encryption", Err: err}
	}

	tempPath := s.artifactPath() + ".tmp"
	if err := afero.WriteFile(s.fs, tempPath, ciphertext.Bytes(), 0o644); err != nil {
		return &StorageError{Op: "write temp artifact", Err: err}
	}
	if err := s.fs.Rename(tempPath, s.artifactPath()); err != nil {
		s.fs.Remove(tempPath)
		return &StorageError{Op: "rename artifact", Err: err}
	}
	if err := s.fs.Chmod(s.artifactPath(), 0o644); err != nil {
		return &StorageError{Op: "set artifact permissions", Err: err}
	}
	return nil
}

// Load decrypts and returns the stored bundle. It returns ErrNotFound
// when no artifact exists and a StorageError when the artifact cannot
// be decrypted or parsed (key mismatch, corruption).
func (s *Store) Load() (credentials.Bundle, error) {
	ciphertext, err := afero.ReadFile(s.fs, s.artifactPath())
	if err != nil {
		if os.IsNotExist(err) {
			return credentials.Bundle{}, ErrNotFound
		}
		return credentials.Bundle{}, &StorageError{Op: "read artifact", Err: err}
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return credentials.Bundle{}, &StorageError{Op: "decrypt artifact", Err: err}
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return credentials.Bundle{}, &StorageError{Op: "decrypt artifact", Err: err}
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return credentials.Bundle{}, &StorageError{Op: "decode bundle", Err: err}
	}
	return credentials.Bundle{Cookies: env.Cookies}, nil
}

// Clear removes the artifact. Removing an absent artifact is a no-op.
func (s *Store) Clear() error {
	err := s.fs.Remove(s.artifactPath())
	if err != nil && !os.IsNotExist(err) {
		return &StorageError{Op: "remove artifact", Err: err}
	}
	return nil
}

// Exists reports whether an encrypted artifact is present. It does not
// validate that the artifact is decryptable.
func (s *Store) Exists() bool {
	ok, err := afero.Exists(s.fs, s.artifactPath())
	return err == nil && ok
}
