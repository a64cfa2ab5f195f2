// Package store provides the SQLite-backed event store for Gavel.
// Event logs are append-only; everything else is derived or materialized.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	gerrors "github.com/gavel-sh/gavel/internal/errors"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_info (
  version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS decisions (
  decision_id TEXT PRIMARY KEY,
  created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_events (
  event_id     TEXT PRIMARY KEY,
  decision_id  TEXT NOT NULL,
  seq          INTEGER NOT NULL,
  event_type   TEXT NOT NULL,
  actor_type   TEXT NOT NULL,
  actor_id     TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  digest       TEXT NOT NULL,
  ts           TEXT NOT NULL,
  FOREIGN KEY(decision_id) REFERENCES decisions(decision_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_decision_events_seq
  ON decision_events(decision_id, seq);
CREATE INDEX IF NOT EXISTS ix_decision_events_decision
  ON decision_events(decision_id);

CREATE TABLE IF NOT EXISTS templates (
  name            TEXT PRIMARY KEY,
  description     TEXT NOT NULL,
  policy_json     TEXT NOT NULL,
  digest          TEXT NOT NULL,
  created_at      TEXT NOT NULL,
  created_by_type TEXT NOT NULL,
  created_by_id   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS template_events (
  event_id      TEXT PRIMARY KEY,
  template_name TEXT NOT NULL,
  seq           INTEGER NOT NULL,
  event_type    TEXT NOT NULL,
  actor_type    TEXT NOT NULL,
  actor_id      TEXT NOT NULL,
  payload_json  TEXT NOT NULL,
  digest        TEXT NOT NULL,
  ts            TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_template_events_seq
  ON template_events(template_name, seq);

CREATE TABLE IF NOT EXISTS runs (
  run_id      TEXT PRIMARY KEY,
  decision_id TEXT,
  mode        TEXT NOT NULL,
  goal        TEXT NOT NULL,
  status      TEXT NOT NULL,
  created_at  TEXT NOT NULL
);
`

// Config contains configuration for the store.
type Config struct {
	// Path is the database file path. ":memory:" opens an in-memory store.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:         "gavel.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// Store is the SQLite-backed event store.
type Store struct {
	db     *sql.DB
	config *Config
	logger *log.Logger
	now    func() time.Time
}

// Open opens (and if necessary initializes) the store at the configured path.
func Open(config *Config, logger *log.Logger) (*Store, error) {
	const op = "store.Open"

	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = log.Default()
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, gerrors.StoreWrap(err, op, "failed to open database")
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &Store{
		db:     db,
		config: config,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug("store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets pragmas and creates the schema.
func (s *Store) initialize() error {
	const op = "store.initialize"

	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return gerrors.StoreWrap(err, op, "failed to enable WAL mode")
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return gerrors.StoreWrap(err, op, "failed to set busy timeout")
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return gerrors.StoreWrap(err, op, "failed to enable foreign keys")
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return gerrors.StoreWrap(err, op, "failed to create schema")
	}

	if _, err := s.db.Exec("INSERT OR IGNORE INTO schema_info(version) VALUES (?)", schemaVersion); err != nil {
		return gerrors.StoreWrap(err, op, "failed to record schema version")
	}

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_info").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return gerrors.StoreWrap(err, op, "failed to read schema version")
	}
	if version != schemaVersion {
		return gerrors.Store(op, fmt.Sprintf("schema version mismatch: expected %d, got %d", schemaVersion, version))
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return gerrors.StoreWrap(err, "store.Ping", "database unreachable")
	}
	return nil
}

// timestamps are stored as RFC3339 with nanoseconds, always UTC.
const tsFormat = time.RFC3339Nano

func formatTS(t time.Time) string {
	return t.UTC().Format(tsFormat)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsFormat, s)
}
