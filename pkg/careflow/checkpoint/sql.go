package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver registered as "pgx"
	_ "modernc.org/sqlite"             // Pure Go SQLite driver
)

// Dialect selects SQL syntax differences between backends.
type Dialect int

const (
	// DialectSQLite targets modernc.org/sqlite.
	DialectSQLite Dialect = iota
	// DialectPostgres targets PostgreSQL through pgx.
	DialectPostgres
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// SQLStore persists checkpoints to a SQL database.
// Version checks are single conditional statements, so concurrent writers
// across processes are safe as long as they share the database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	cfg     storeConfig
	mu      sync.RWMutex
	closed  bool
}

// NewSQLiteStore opens (or creates) a SQLite checkpoint database.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:" for testing.
func NewSQLiteStore(path string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers the same way SQLite would anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return newSQLStore(context.Background(), db, DialectSQLite, opts)
}

// NewPostgresStore connects to PostgreSQL with the given DSN.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return newSQLStore(ctx, db, DialectPostgres, opts)
}

// NewSQLStore wraps an existing connection pool. The schema is created if
// missing.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*SQLStore, error) {
	return newSQLStore(ctx, db, dialect, opts)
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect Dialect, opts []Option) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, cfg: applyOptions(opts)}

	if _, err := db.ExecContext(ctx, s.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_workflow_checkpoints_session
		ON workflow_checkpoints(session_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}
	return s, nil
}

func (s *SQLStore) schema() string {
	blob := "BLOB"
	if s.dialect == DialectPostgres {
		blob = "BYTEA"
	}
	return `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			session_id TEXT NOT NULL,
			workflow TEXT NOT NULL,
			version BIGINT NOT NULL,
			data ` + blob + ` NOT NULL,
			updated_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (session_id, workflow)
		)
	`
}

// rebind rewrites "?" placeholders into "$n" for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, key Key, data []byte, expectedVersion int64) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	now := s.cfg.now()
	expires := unixNanos(s.cfg.expiry(now))

	if expectedVersion == 0 {
		return s.insert(ctx, key, data, now, expires)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE workflow_checkpoints
		SET version = version + 1, data = ?, updated_at = ?, expires_at = ?
		WHERE session_id = ? AND workflow = ? AND version = ?
		  AND (expires_at = 0 OR expires_at > ?)
	`), data, now.UnixNano(), expires, key.SessionID, key.Workflow, expectedVersion, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("update checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update checkpoint: %w", err)
	}
	if n == 0 {
		return 0, &ConflictError{Key: key, Expected: expectedVersion, Actual: s.currentVersion(ctx, key, now)}
	}
	return expectedVersion + 1, nil
}

// insert creates version 1. An expired row for the same key is replaced.
func (s *SQLStore) insert(ctx context.Context, key Key, data []byte, now time.Time, expires int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`
		DELETE FROM workflow_checkpoints
		WHERE session_id = ? AND workflow = ? AND expires_at <> 0 AND expires_at <= ?
	`), key.SessionID, key.Workflow, now.UnixNano()); err != nil {
		return 0, fmt.Errorf("purge expired checkpoint: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO workflow_checkpoints (session_id, workflow, version, data, updated_at, expires_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (session_id, workflow) DO NOTHING
	`), key.SessionID, key.Workflow, data, now.UnixNano(), expires)
	if err != nil {
		return 0, fmt.Errorf("insert checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert checkpoint: %w", err)
	}
	if n == 0 {
		return 0, &ConflictError{Key: key, Expected: 0, Actual: -1}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return 1, nil
}

func (s *SQLStore) currentVersion(ctx context.Context, key Key, now time.Time) int64 {
	var v int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT version FROM workflow_checkpoints
		WHERE session_id = ? AND workflow = ? AND (expires_at = 0 OR expires_at > ?)
	`), key.SessionID, key.Workflow, now.UnixNano()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0
	}
	if err != nil {
		return -1
	}
	return v
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key Key) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var (
		rec              = Record{Key: key}
		updated, expires int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT version, data, updated_at, expires_at FROM workflow_checkpoints
		WHERE session_id = ? AND workflow = ? AND (expires_at = 0 OR expires_at > ?)
	`), key.SessionID, key.Workflow, s.cfg.now().UnixNano()).Scan(&rec.Version, &rec.Data, &updated, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	rec.UpdatedAt = fromUnixNanos(updated)
	rec.ExpiresAt = fromUnixNanos(expires)
	return &rec, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key Key) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM workflow_checkpoints WHERE session_id = ? AND workflow = ?
	`), key.SessionID, key.Workflow); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// DeleteSession implements Store.
func (s *SQLStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM workflow_checkpoints WHERE session_id = ?
	`), sessionID); err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM workflow_checkpoints WHERE expires_at <> 0 AND expires_at <= ?
	`), s.cfg.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge expired checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

var _ Store = (*SQLStore)(nil)
