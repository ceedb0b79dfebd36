package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	doorstep "github.com/goliatone/go-doorstep"
	_ "github.com/mattn/go-sqlite3"
)

type sqlExecContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLiteStorage persists snapshots in a single SQLite table keyed by storage key.
type SQLiteStorage struct {
	db    *sql.DB
	table string

	mu          sync.Mutex
	schemaReady bool
}

// OpenSQLite opens a SQLite database using the mattn driver.
func OpenSQLite(dsn string) (*sql.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("sqlite dsn required")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps in-memory databases on a single connection
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteStorage builds a storage over db using table, "deliveries" when empty.
func NewSQLiteStorage(db *sql.DB, table string) *SQLiteStorage {
	if strings.TrimSpace(table) == "" {
		table = "deliveries"
	}
	return &SQLiteStorage{db: db, table: table}
}

func (s *SQLiteStorage) Load(ctx context.Context, key string) (*doorstep.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, storageError("load", key, errNotConfigured("sqlite"))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, storageError("load", key, err)
	}

	q := fmt.Sprintf(`SELECT snapshot, version, updated_at FROM %s WHERE storage_key = ?`, s.table)
	var payload string
	var version int
	var updatedAt string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&payload, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load", key, err)
	}
	snap, err := decodeSnapshot([]byte(payload))
	if err != nil {
		return nil, storageError("load", key, err)
	}
	if snap == nil {
		return nil, nil
	}
	snap.Version = version
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		snap.UpdatedAt = ts
	}
	return snap, nil
}

func (s *SQLiteStorage) Save(ctx context.Context, key string, snap *doorstep.Snapshot, expectedVersion int) (int, error) {
	if s == nil || s.db == nil {
		return 0, storageError("save", key, errNotConfigured("sqlite"))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, storageError("save", key, errKeyRequired)
	}
	if snap == nil {
		return 0, storageError("save", key, errSnapshotRequired)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, storageError("save", key, err)
	}
	if expectedVersion < 0 {
		expectedVersion = 0
	}

	next := snap.Clone()
	next.Version = expectedVersion + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	payload, err := encodeSnapshot(next)
	if err != nil {
		return 0, storageError("save", key, err)
	}
	updatedAt := next.UpdatedAt.UTC().Format(time.RFC3339Nano)

	var result sql.Result
	if expectedVersion == 0 {
		q := fmt.Sprintf(`INSERT OR IGNORE INTO %s (storage_key, delivery_id, generation, snapshot, version, updated_at) VALUES (?, ?, ?, ?, 1, ?)`, s.table)
		result, err = s.db.ExecContext(ctx, q, key, deliveryID(next), next.Generation, string(payload), updatedAt)
	} else {
		q := fmt.Sprintf(`UPDATE %s SET delivery_id=?, generation=?, snapshot=?, version=?, updated_at=? WHERE storage_key=? AND version=?`, s.table)
		result, err = s.db.ExecContext(ctx, q, deliveryID(next), next.Generation, string(payload), next.Version, updatedAt, key, expectedVersion)
	}
	if err != nil {
		return 0, storageError("save", key, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storageError("save", key, err)
	}
	if rows == 0 {
		return 0, versionConflict(key, expectedVersion, -1)
	}
	return next.Version, nil
}

func (s *SQLiteStorage) ensureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemaReady {
		return nil
	}
	if err := createSchema(ctx, s.db, s.table); err != nil {
		return err
	}
	s.schemaReady = true
	return nil
}

func createSchema(ctx context.Context, exec sqlExecContext, table string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		storage_key TEXT PRIMARY KEY,
		delivery_id TEXT,
		generation INTEGER NOT NULL DEFAULT 0,
		snapshot TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	)`, table)
	_, err := exec.ExecContext(ctx, ddl)
	return err
}

func deliveryID(snap *doorstep.Snapshot) string {
	if snap == nil || snap.Trip == nil {
		return ""
	}
	return snap.Trip.DeliveryID
}
