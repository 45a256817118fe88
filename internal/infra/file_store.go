package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const fileStoreName = "webmon.json"

// FileStore implements domain.SessionStore as a single JSON object on disk.
// Every write takes an flock and replaces the file atomically, so a
// reader never observes a partially written snapshot.
type FileStore struct {
	path string
}

// NewFileStore creates a JSON file store in dataDir.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dataDir, fileStoreName)}, nil
}

// NewFileStoreWithPath creates a store at a specific path (for testing).
func NewFileStoreWithPath(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the store file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get decodes the value at key into dst.
func (s *FileStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	doc, err := s.load()
	if err != nil {
		return false, err
	}
	raw, ok := doc[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Set merges entries into the document.
func (s *FileStore) Set(ctx context.Context, entries map[string]any) error {
	return s.update(func(doc map[string]json.RawMessage) error {
		for k, v := range entries {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode %q: %w", k, err)
			}
			doc[k] = data
		}
		return nil
	})
}

// Remove deletes keys from the document.
func (s *FileStore) Remove(ctx context.Context, keys ...string) error {
	return s.update(func(doc map[string]json.RawMessage) error {
		for _, k := range keys {
			delete(doc, k)
		}
		return nil
	})
}

// Close is a no-op; the file is not held open.
func (s *FileStore) Close() error {
	return nil
}

// update runs a read-modify-write cycle under an exclusive lock.
func (s *FileStore) update(fn func(doc map[string]json.RawMessage) error) error {
	// Use file lock so the CLI and daemon don't interleave writes
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	// Acquire exclusive lock
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.atomicWrite(doc)
}

func (s *FileStore) load() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return doc, nil
}

// atomicWrite writes the document to file atomically (write + rename).
func (s *FileStore) atomicWrite(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Ensure FileStore implements domain.SessionStore.
var _ domain.SessionStore = (*FileStore)(nil)
