package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore maps keys to files below a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore constructs the store.
func NewLocalStore(root string) *LocalStore {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	return &LocalStore{root: root}
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("objectstore: empty key")
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes data to root/key, creating parent directories.
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("objectstore: create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Get opens root/key.
func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

var _ Store = (*LocalStore)(nil)
