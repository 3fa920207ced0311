// Package store persists companies, catalog entities, mapping rules, import
// sessions, drafts and posted operations in SQLite. Every query is scoped
// by company id.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a scoped lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyPosted is returned when a draft to be posted is already processed
// or no longer exists.
var ErrAlreadyPosted = errors.New("draft already posted")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo holds the queries. It runs against the database directly (Store) or
// inside a transaction (Tx).
type Repo struct {
	q querier
}

// Store is an open SQLite database.
type Store struct {
	Repo
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// schema. WAL mode, foreign keys and a busy timeout are enabled.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{Repo: Repo{q: db}, db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Tx is a Repo bound to an open transaction.
type Tx struct {
	Repo
	tx *sql.Tx
	sp int
}

// Transaction runs fn in a transaction, committing when fn returns nil and
// rolling back on error or panic.
func (s *Store) Transaction(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	tx := &Tx{Repo: Repo{q: sqlTx}, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Isolate runs fn under a savepoint. If fn fails its writes are rolled back
// and the transaction stays usable.
func (t *Tx) Isolate(ctx context.Context, fn func() error) error {
	t.sp++
	name := fmt.Sprintf("sp_%d", t.sp)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("creating savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		_, _ = t.tx.ExecContext(ctx, "RELEASE "+name)
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("releasing savepoint: %w", err)
	}
	return nil
}

// Fixed-width layouts keep lexical order equal to chronological order.
const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	return int(n), err
}
