// Package store implements the document-style persistence layer on top of
// database/sql. Two backends are supported: PostgreSQL (lib/pq) for
// production, and SQLite (modernc.org/sqlite) as lite mode for single-vessel
// installs without a database server. Option and data arrays are stored as
// JSON documents inside their rows, so the row keeps the shape of the wire
// record.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	// ErrDuplicateKey reports a unique-constraint violation on insert. The
	// orchestrators convert it into an update rather than surfacing it.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Dialect selects backend-specific SQL rendering.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Store is the shared handle the typed stores hang off. It is injected into
// each orchestrator at construction; nothing reads it from a global.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// OpenPostgres connects to PostgreSQL and verifies the connection.
func OpenPostgres(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db, dialect: DialectPostgres}, nil
}

// OpenSQLite opens (and creates if needed) a SQLite database file.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite tolerates one writer; serialize through a single conn.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db, dialect: DialectSQLite}, nil
}

// NewWithDB wraps an existing connection, used by tests with sqlmock.
func NewWithDB(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Dialect returns the active backend dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	jsonType := "JSONB"
	tsType := "TIMESTAMPTZ"
	if s.dialect == DialectSQLite {
		jsonType = "TEXT"
		tsType = "TIMESTAMP"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			event_author TEXT NOT NULL,
			ts %s NOT NULL,
			event_value TEXT NOT NULL,
			event_free_text TEXT NOT NULL DEFAULT '',
			event_options %s NOT NULL DEFAULT '[]'
		)`, tsType, jsonType),
		`CREATE INDEX IF NOT EXISTS events_ts_idx ON events (ts)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS event_aux_data (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			data_source TEXT NOT NULL,
			data_array %s NOT NULL DEFAULT '[]'
		)`, jsonType),
		`CREATE UNIQUE INDEX IF NOT EXISTS event_aux_data_natural_key
			ON event_aux_data (event_id, data_source)`,
		`CREATE INDEX IF NOT EXISTS event_aux_data_event_idx ON event_aux_data (event_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cruises (
			id TEXT PRIMARY KEY,
			cruise_id TEXT NOT NULL,
			start_ts %s NOT NULL,
			stop_ts %s NOT NULL,
			cruise_hidden BOOLEAN NOT NULL DEFAULT FALSE,
			cruise_access_list %s NOT NULL DEFAULT '[]'
		)`, tsType, tsType, jsonType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS lowerings (
			id TEXT PRIMARY KEY,
			lowering_id TEXT NOT NULL,
			start_ts %s NOT NULL,
			stop_ts %s NOT NULL,
			lowering_hidden BOOLEAN NOT NULL DEFAULT FALSE,
			lowering_access_list %s NOT NULL DEFAULT '[]'
		)`, tsType, tsType, jsonType),
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// rebind converts ?-placeholders to the dialect's parameter style.
func (s *Store) rebind(q string) string {
	if s.dialect == DialectSQLite {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isDuplicateKey recognizes unique-violation errors from either driver.
func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT_UNIQUE /
	// SQLITE_CONSTRAINT_PRIMARYKEY in the error text.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: events.id") ||
		strings.Contains(msg, "2067") || strings.Contains(msg, "1555")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
