// Package storage provides the file-backed key -> bytes store used for the
// handle cache. One file per key under a state directory; writes go through a
// temp file + rename so a crash never leaves a torn record.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileStore implements remote.Store on the local filesystem.
type FileStore struct {
	dir    string
	logger *logrus.Logger
}

func NewFileStore(dir string, logger *logrus.Logger) (*FileStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Load returns the stored bytes for key, or (nil, nil) if never saved.
func (s *FileStore) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record for %q: %w", key, err)
	}
	return data, nil
}

// Save writes the bytes for key atomically.
func (s *FileStore) Save(key string, data []byte) error {
	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write record for %q: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit record for %q: %w", key, err)
	}
	s.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(data),
	}).Debug("Stored record")
	return nil
}

// Delete removes the record for key. Missing records are not an error.
func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record for %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".bin")
}

// sanitizeKey turns a device address like "AA:BB:CC:DD:EE:FF" into a safe
// file name.
func sanitizeKey(key string) string {
	r := strings.NewReplacer(":", "-", "/", "_", "\\", "_", " ", "_")
	return strings.ToLower(r.Replace(key))
}
