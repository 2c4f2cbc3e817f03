package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is stamped into PRAGMA user_version after
// migrations run. History:
//
//	0 - initial schema
//	1 - index on fields(return_id)
const currentSchemaVersion = 1

// connPragmas are applied to every opened database, in order. WAL keeps
// readers unblocked during recalculation commits; the busy timeout
// absorbs writer contention from concurrent CLI invocations against the
// same file; foreign keys back the return -> field/audit ownership.
var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// migrations upgrade a database from version i to i+1. Each step must
// be safe to re-run on a database that already carries the change,
// since a crash can land between the step and the version stamp.
var migrations = []func(db *sql.DB) error{
	addFieldsReturnIndex,
}

// Store is the durable home of returns, fields, and audit rows.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the return database at path, applies
// the connection pragmas, installs the schema, and brings the file up
// to the current schema version. Safe to call on an already-initialized
// database.
//
// The pool is pinned to one connection: SQLite allows a single writer,
// and serializing through one connection avoids SQLITE_BUSY on the
// recalculation write path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open return database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for ad-hoc queries. Prefer the
// typed Store methods; this exists for tooling and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

func initialize(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect to return database: %w", err)
	}
	for _, p := range connPragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("install schema: %w", err)
	}
	return migrate(db)
}

// migrate runs every migration past the file's recorded version, then
// stamps currentSchemaVersion. Fresh databases already match the
// embedded schema, so their steps are no-ops.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for ; version < len(migrations); version++ {
		if err := migrations[version](db); err != nil {
			return fmt.Errorf("migrate schema to v%d: %w", version+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

// addFieldsReturnIndex (v0 -> v1) backfills the fields(return_id) index
// on databases created before schema.sql carried it.
func addFieldsReturnIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fields_return
		ON fields(return_id)
	`)
	return err
}

// verifyPragma reports whether a pragma holds the expected value.
// Exercised by the pragma tests.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("pragma %s = %q, want %q", name, value, expected)
	}
	return nil
}
