// Package db provides the local SQLite store for the ledger.
//
// The store keeps three tables in a single database file:
//   - transacoes: ledger transactions
//   - recorrentes: recurring-payment templates
//   - config: string key/value settings (JSON lists, sync cursor, auth token)
//
// All access goes through one connection owned by DB and serialized by a
// mutex. Do runs a function with exclusive access; the exported methods on
// DB are single-operation wrappers around Do. A sync flow that must read,
// call the network and write without interleaving uses Do directly.
//
// Writes use INSERT OR REPLACE keyed by id, so the last writer wins and a
// replaced row keeps nothing from its previous version.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPath is the database file used when no path is configured.
const DefaultPath = "vertexads.db"

var (
	// ErrNotOpen is returned by every operation after Close.
	ErrNotOpen = errors.New("database not open")

	// ErrNotFound is returned when an operation targets a missing row.
	ErrNotFound = errors.New("not found")
)

// DB owns the single database connection and the lock guarding it.
type DB struct {
	mu     sync.Mutex
	conn   *sql.DB
	path   string
	now    func() time.Time
	logger logrus.FieldLogger
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// WithLogger sets the logger used for skipped batch entries.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// Open creates or opens the database file at path.
//
// The parent directory is created if needed. The caller MUST call Close
// when done. Open does not create tables; call InitSchema.
//
// Example:
//
//	database, err := db.Open("vertexads.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string, opts ...Option) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open(driverName, dataSource(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One connection: the mutex is the only admission control.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{
		conn:   conn,
		path:   path,
		now:    time.Now,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(db)
	}

	ctx := context.Background()
	if err := pragma(ctx, conn, "PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := pragma(ctx, conn, "PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection. Close waits for an
// in-flight Do to finish. Calling Close twice is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return nil
	}

	if err := pragma(context.Background(), db.conn, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.WithError(err).Warn("failed to checkpoint WAL")
	}

	err := db.conn.Close()
	db.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Do runs fn with exclusive access to the store.
//
// The lock is held for the whole call and released on every exit path.
// If ctx is already done, Do returns its error without running fn. After
// Close, Do returns ErrNotOpen.
func (db *DB) Do(ctx context.Context, fn func(*Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(&Session{conn: db.conn, now: db.now, logger: db.logger})
}

// Session is exclusive access to the store for the duration of a Do call.
// It must not be retained after fn returns.
type Session struct {
	conn   *sql.DB
	now    func() time.Time
	logger logrus.FieldLogger
}

// Now returns the store clock's current time.
func (s *Session) Now() time.Time {
	return s.now()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transacoes (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	description TEXT,
	client TEXT,
	value REAL NOT NULL,
	type TEXT NOT NULL,
	contexto TEXT,
	contraparte TEXT,
	category TEXT,
	account TEXT,
	metodo_pagamento TEXT,
	status TEXT,
	deleted INTEGER NOT NULL DEFAULT 0,
	recorrencia_id TEXT,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS recorrentes (
	id TEXT PRIMARY KEY,
	titulo TEXT,
	valor REAL,
	tipo TEXT,
	categoria TEXT,
	conta TEXT,
	metodo_pagamento TEXT,
	dia_vencimento INTEGER,
	ativo INTEGER,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS config (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_transacoes_data ON transacoes(data);
`

// InitSchema creates the tables if they don't exist.
//
// It never drops or alters existing tables and is safe to call on every
// startup.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	return db.Do(ctx, func(s *Session) error {
		return s.InitSchema(ctx)
	})
}

// InitSchema creates the tables if they don't exist.
func (s *Session) InitSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// pragma runs a PRAGMA statement and discards any rows it returns.
func pragma(ctx context.Context, conn *sql.DB, stmt string) error {
	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}
