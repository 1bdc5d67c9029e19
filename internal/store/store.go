// Package store persists the social graph in a single SQLite database:
// raw API payloads (append-only), normalized accounts, posts and snapshots,
// and derived intervals, edges, communities, positions and frames.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import for register side-effects.
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// busyTimeout bounds how long SQLite waits on a locked database before
// failing a statement.
const busyTimeout = 5 * time.Second

// maxSQLParams caps IN (...) expansions below SQLite's default host
// parameter limit of 999.
const maxSQLParams = 500

// Store wraps the SQLite connection pool and owns all SQL in the program.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path, creating it and applying the
// schema when needed. The returned store owns the connection pool.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// SQLite allows a single writer. One connection serializes writers in
	// the pool instead of surfacing SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	s := &Store{db: db}

	err = s.migrate(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrating database %q: %w", path, err)
	}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on nil and rolling back
// on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// placeholders returns "?,?,...,?" with n slots.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// chunk splits ids into slices of at most size elements.
func chunk(ids []string, size int) [][]string {
	var out [][]string

	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}

	if len(ids) > 0 {
		out = append(out, ids)
	}

	return out
}

// nullString maps "" to NULL on the write path.
func nullString(v string) any {
	if v == "" {
		return nil
	}

	return v
}

// nullTime maps the zero time to NULL on the write path. All stored
// timestamps are UTC so that lexicographic and temporal order agree.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.UTC()
}

func fromNullString(v sql.NullString) string {
	if !v.Valid {
		return ""
	}

	return v.String
}

func fromNullTime(v sql.NullTime) time.Time {
	if !v.Valid {
		return time.Time{}
	}

	return v.Time.UTC()
}

func fromNullInt(v sql.NullInt64) int64 {
	if !v.Valid {
		return 0
	}

	return v.Int64
}
