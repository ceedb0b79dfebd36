package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	doorstep "github.com/goliatone/go-doorstep"
)

// FileStorage keeps one JSON document per key under a directory.
// Writes go through a temp file and rename so a crash never leaves a torn snapshot.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage returns a storage rooted at dir. The directory is created on first save.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (s *FileStorage) Load(_ context.Context, key string) (*doorstep.Snapshot, error) {
	if s == nil || strings.TrimSpace(s.dir) == "" {
		return nil, storageError("load", key, errNotConfigured("file"))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(key)
	if err != nil {
		return nil, storageError("load", key, err)
	}
	return snap, nil
}

func (s *FileStorage) Save(_ context.Context, key string, snap *doorstep.Snapshot, expectedVersion int) (int, error) {
	if s == nil || strings.TrimSpace(s.dir) == "" {
		return 0, storageError("save", key, errNotConfigured("file"))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, storageError("save", key, errKeyRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(key)
	if err != nil {
		return 0, storageError("save", key, err)
	}
	next := snap.Clone()
	version, err := applyVersion(key, next, current, expectedVersion)
	if err != nil {
		return 0, err
	}
	data, err := encodeSnapshot(next)
	if err != nil {
		return 0, storageError("save", key, err)
	}
	if err := writeAtomic(s.path(key), data); err != nil {
		return 0, storageError("save", key, err)
	}
	return version, nil
}

func (s *FileStorage) read(key string) (*doorstep.Snapshot, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path(key), err)
	}
	return snap, nil
}

func (s *FileStorage) path(key string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.dir, name+".json")
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".doorstep-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
