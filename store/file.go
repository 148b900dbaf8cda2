// Package store provides auth.Storage implementations: a JSON file shared
// safely between processes, optionally sealed with a passphrase, and an
// in-memory store for tests and ephemeral sessions.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/go-authgate/boxsession/auth"
)

// ErrCorrupted means the credential file exists but cannot be decoded.
var ErrCorrupted = errors.New("credential file is corrupted")

// malformedError is a file that decrypted (or was never sealed) but is not a
// valid document. Nothing can be recovered from it, so writes replace it.
type malformedError struct{ err error }

func (e *malformedError) Error() string {
	return ErrCorrupted.Error() + ": " + e.err.Error()
}

func (e *malformedError) Unwrap() []error {
	return []error{ErrCorrupted, e.err}
}

// document is the on-disk layout.
type document struct {
	LastUserID string                    `json:"last_user_id,omitempty"`
	AuthInfos  map[string]*auth.AuthInfo `json:"auth_infos"`
}

// FileStore keeps all users' credentials in one JSON file. Writes take a
// sibling lock file and replace the file atomically, so several processes
// can share it.
type FileStore struct {
	path       string
	passphrase []byte
	log        zerolog.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithPassphrase seals the file with a key derived from passphrase.
func WithPassphrase(passphrase string) Option {
	return func(s *FileStore) {
		s.passphrase = []byte(passphrase)
	}
}

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *FileStore) {
		s.log = l
	}
}

// NewFileStore returns a store backed by path. The file is created on first
// write.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ auth.Storage = (*FileStore)(nil)

// Path returns the credential file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (map[string]*auth.AuthInfo, error) {
	doc, err := s.read()
	if err != nil {
		return map[string]*auth.AuthInfo{}, err
	}
	return doc.AuthInfos, nil
}

func (s *FileStore) LastUserID() (string, error) {
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc.LastUserID, nil
}

func (s *FileStore) Store(infos map[string]*auth.AuthInfo, lastUserID string) error {
	return s.update(func(doc *document) {
		doc.AuthInfos = make(map[string]*auth.AuthInfo, len(infos))
		for id, info := range infos {
			doc.AuthInfos[id] = info.Clone()
		}
		doc.LastUserID = lastUserID
	})
}

func (s *FileStore) ClearLastUserID() error {
	return s.update(func(doc *document) {
		doc.LastUserID = ""
	})
}

func (s *FileStore) Clear() error {
	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer s.release(lock)

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	s.log.Debug().Str("path", s.path).Msg("credential file removed")
	return nil
}

// update applies fn to the current document under the file lock. A malformed
// document is replaced; a file that cannot be read or decrypted is left alone
// and the error returned, so a wrong passphrase never overwrites credentials.
func (s *FileStore) update(fn func(doc *document)) error {
	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer s.release(lock)

	doc, err := s.read()
	var malformed *malformedError
	switch {
	case errors.As(err, &malformed):
		s.log.Warn().Err(err).Str("path", s.path).Msg("replacing malformed credential file")
		doc = &document{}
	case err != nil:
		return err
	}
	fn(doc)
	if doc.AuthInfos == nil {
		doc.AuthInfos = map[string]*auth.AuthInfo{}
	}
	return s.write(doc)
}

func (s *FileStore) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{AuthInfos: map[string]*auth.AuthInfo{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	switch {
	case isSealed(data):
		if data, err = unseal(s.passphrase, data); err != nil {
			return nil, err
		}
	case len(s.passphrase) > 0:
		s.log.Warn().Str("path", s.path).Msg("credential file is not sealed, it will be on next write")
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &malformedError{err: err}
	}
	if doc.AuthInfos == nil {
		doc.AuthInfos = map[string]*auth.AuthInfo{}
	}
	return &doc, nil
}

func (s *FileStore) write(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if len(s.passphrase) > 0 {
		if data, err = seal(s.passphrase, data); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (s *FileStore) release(lock *fileLock) {
	if err := lock.release(); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("failed to release lock")
	}
}
