// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      — a connection pool (NOT a single connection!)
//   - sql.Tx      — a transaction
//   - sql.Row     — a single result row
//   - sql.Rows    — multiple result rows (must be closed!)
//
// CONSISTENCY:
// Every uniqueness and referential rule lives in the schema below:
//   - users.username is UNIQUE, so two racing signups cannot both succeed
//   - likes has PRIMARY KEY (user_id, photo_id), so a pair exists at most once
//   - likes rows cascade away with their photo or user
//
// Repository methods treat the resulting constraint errors as the
// authoritative signal (see constraintCode) instead of checking first.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// Options tunes the connection pool. The zero value is usable.
type Options struct {
	// MaxOpenConns caps the pool. In-memory databases always use 1 because
	// each connection would otherwise see its own empty database.
	MaxOpenConns int
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/photoshare.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
//
// PRAGMAS AS DSN PARAMETERS:
// PRAGMA foreign_keys is per connection. Running it once with conn.Exec only
// reaches whichever pooled connection served that call, so the pragmas are
// passed as _pragma DSN parameters and applied to every new connection.
// _txlock=immediate makes BeginTx take the write lock up front, which keeps
// two read-then-write transactions from deadlocking on lock upgrade.
func New(dbPath string, opts Options) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if dbPath == ":memory:" || maxOpen <= 0 {
		maxOpen = 1
	}
	conn.SetMaxOpenConns(maxOpen)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	params := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if dbPath == ":memory:" {
		return "file::memory:?" + params
	}
	params += "&_pragma=journal_mode(WAL)"
	if strings.HasPrefix(dbPath, "file:") {
		sep := "?"
		if strings.Contains(dbPath, "?") {
			sep = "&"
		}
		return dbPath + sep + params
	}
	return "file:" + dbPath + "?" + params
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			question      TEXT NOT NULL DEFAULT '',
			answer_hash   TEXT NOT NULL DEFAULT '',
			profile_pic   TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// uploader is deliberately not a foreign key: photos may be uploaded
	// under any name, and RenameUser keeps existing rows in step.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS photos (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			uploader    TEXT NOT NULL DEFAULT '',
			url         TEXT NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			tags        TEXT NOT NULL DEFAULT '[]',
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_photos_created_at ON photos(created_at);
		CREATE INDEX IF NOT EXISTS idx_photos_uploader ON photos(uploader);
	`)
	if err != nil {
		return fmt.Errorf("creating photos table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS likes (
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			photo_id   INTEGER NOT NULL REFERENCES photos(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, photo_id)
		);
		CREATE INDEX IF NOT EXISTS idx_likes_photo_id ON likes(photo_id);
	`)
	if err != nil {
		return fmt.Errorf("creating likes table: %w", err)
	}

	return nil
}

// constraintCode returns the extended SQLite result code carried by err, or
// 0 when err did not come from the driver.
func constraintCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// The bare SQLITE_CONSTRAINT cases cover connections without extended
// result codes.
func isUniqueViolation(err error) bool {
	switch constraintCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE")
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	switch constraintCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "FOREIGN KEY")
	}
	return false
}

// withTx runs fn inside a write transaction, committing on nil and rolling
// back otherwise.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.runTx(ctx, nil, fn)
}

// withReadTx is withTx for reads. The driver ignores _txlock for read-only
// transactions and issues a plain deferred BEGIN, so readers do not take
// the write lock and run alongside writers under WAL.
func (db *DB) withReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.runTx(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (db *DB) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}
