// Package images stores framegrab and snapshot files referenced by
// aux-data records.
package images

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Store is the contract for image persistence. Files are addressed by
// name, not content hash, because aux-data records reference them by the
// filename recorded in their data items.
type Store interface {
	// Put persists the reader's contents under the given name, replacing
	// any previous file of that name.
	Put(ctx context.Context, name string, r io.Reader) error
	// Get retrieves a stored file.
	Get(ctx context.Context, name string) ([]byte, error)
	// Exists reports whether a file of that name is stored.
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes a stored file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates an image store rooted at the given directory.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure image dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(name string) (string, error) {
	// Names come from client-supplied metadata; confine them to the base dir.
	clean := filepath.Base(filepath.Clean(name))
	if clean == "." || clean == ".." || clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid image name: %q", name)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *FileStore) Put(_ context.Context, name string, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(name)
	if err != nil {
		return err
	}

	// Write to temp, then rename, so readers never see a partial file.
	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("stage image: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit image: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("image not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return b, nil
}

func (s *FileStore) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat image: %w", err)
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
