package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
)

// Storage persists delivery snapshots with optimistic locking.
// Load returns nil, nil when nothing is stored under key.
type Storage interface {
	Load(ctx context.Context, key string) (*doorstep.Snapshot, error)
	Save(ctx context.Context, key string, snap *doorstep.Snapshot, expectedVersion int) (newVersion int, err error)
}

// MemoryStorage is a thread-safe in-process Storage.
type MemoryStorage struct {
	mu    sync.RWMutex
	state map[string]*doorstep.Snapshot
}

// NewMemoryStorage constructs an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{state: make(map[string]*doorstep.Snapshot)}
}

// Load returns a cloned snapshot for key.
func (s *MemoryStorage) Load(_ context.Context, key string) (*doorstep.Snapshot, error) {
	if s == nil {
		return nil, storageError("load", key, errNotConfigured("memory"))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key].Clone(), nil
}

// Save performs compare-and-set persistence.
func (s *MemoryStorage) Save(_ context.Context, key string, snap *doorstep.Snapshot, expectedVersion int) (int, error) {
	if s == nil {
		return 0, storageError("save", key, errNotConfigured("memory"))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, storageError("save", key, errKeyRequired)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := snap.Clone()
	version, err := applyVersion(key, next, s.state[key], expectedVersion)
	if err != nil {
		return 0, err
	}
	s.state[key] = next
	return version, nil
}

// applyVersion stamps next with the version following current, or fails
// when current does not match expectedVersion.
func applyVersion(key string, next, current *doorstep.Snapshot, expectedVersion int) (int, error) {
	if next == nil {
		return 0, storageError("save", key, errSnapshotRequired)
	}
	if expectedVersion < 0 {
		expectedVersion = 0
	}
	currentVersion := 0
	if current != nil {
		currentVersion = current.Version
	}
	if currentVersion != expectedVersion {
		return 0, versionConflict(key, expectedVersion, currentVersion)
	}
	next.Version = expectedVersion + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	return next.Version, nil
}

func encodeSnapshot(snap *doorstep.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func decodeSnapshot(data []byte) (*doorstep.Snapshot, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var snap doorstep.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
