// Package store persists threads, postings, subscriptions and the
// notification history in a local SQLite database.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jobwatch/jobwatch/internal/contracts"
	"github.com/jobwatch/jobwatch/internal/logging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a queried row does not exist.
var ErrNotFound = errors.New("not found in store")

// Store wraps the SQLite database holding all jobwatch state.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// Open opens or creates the SQLite database at path and prepares the schema.
// The special path ":memory:" opens a temporary in-memory database.
func Open(path string, logger *logging.Logger) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		// Both pool connections must see the same in-memory database.
		dsn = "file::memory:?cache=shared"
	} else if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, "cannot create database directory")
		}
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open database")
	}

	// modernc.org/sqlite allows one writer at a time. A single connection
	// sidesteps SQLITE_BUSY for this daemon's low write volume.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "cannot execute %q", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "cannot create schema")
	}

	logger.Debugw("Opened database", zap.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, committing iff fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "cannot start transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "cannot commit transaction")
}

// buildInsertStmt renders a named insert statement for the given columns of
// the subject's table. Auto-incremented ID columns are simply left out.
func buildInsertStmt(into contracts.TableNamer, columns ...string) string {
	return fmt.Sprintf(
		`INSERT INTO "%s" ("%s") VALUES (:%s)`,
		into.TableName(),
		strings.Join(columns, `", "`),
		strings.Join(columns, ", :"),
	)
}

// insertAndFetchID executes the given named insert statement and fetches the
// auto-incremented ID of the new row.
func insertAndFetchID(ctx context.Context, tx *sqlx.Tx, stmt string, args any) (int64, error) {
	result, err := tx.NamedExecContext(ctx, stmt, args)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot insert entry for type %T", args)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.Wrapf(err, "cannot fetch last insert ID for type %T", args)
	}

	return id, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS thread (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	time BIGINT NOT NULL,
	last_synced BIGINT
);

CREATE TABLE IF NOT EXISTS posting (
	id INTEGER PRIMARY KEY,
	thread_id INTEGER NOT NULL REFERENCES thread(id) ON DELETE CASCADE,
	author TEXT NOT NULL DEFAULT '',
	time BIGINT NOT NULL,
	text TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_posting_thread ON posting(thread_id);

CREATE TABLE IF NOT EXISTS subscription (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	filter TEXT NOT NULL DEFAULT '',
	channel_type TEXT NOT NULL,
	recipient TEXT NOT NULL,
	token_hash TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_history (
	id TEXT PRIMARY KEY,
	subscription_id INTEGER NOT NULL REFERENCES subscription(id) ON DELETE CASCADE,
	posting_id INTEGER NOT NULL,
	channel_type TEXT NOT NULL,
	sent_at BIGINT NOT NULL,
	UNIQUE (subscription_id, posting_id)
);
`
