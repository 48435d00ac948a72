package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database connection
	// Use WAL mode for better concurrency between the many poller
	// writers and the many HTTP readers.
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite allows a single writer at a time; keep the pool small so
	// writers queue on the driver rather than erroring out under load.
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the filesystem path this database was opened from,
// used by the Downsampler to size and back up the file.
func (db *DB) Path() string {
	return db.path
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// schema is the full set of tables backing §3's data model: samples,
// monitors, monitor_values, alert_rules, alert_states,
// notification_targets.
const schema = `
CREATE TABLE IF NOT EXISTS samples (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id       TEXT NOT NULL,
	display_name    TEXT NOT NULL DEFAULT '',
	value           REAL,
	text            TEXT NOT NULL DEFAULT '',
	unit            TEXT NOT NULL DEFAULT '',
	decimal_places  INTEGER NOT NULL DEFAULT 2,
	timestamp       DATETIME NOT NULL,
	received_at     DATETIME NOT NULL,
	is_change       INTEGER NOT NULL DEFAULT 0,
	previous_value  REAL
);
CREATE INDEX IF NOT EXISTS idx_samples_source_ts ON samples(source_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(timestamp);

CREATE TABLE IF NOT EXISTS monitors (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	unit                 TEXT NOT NULL DEFAULT '',
	color                TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	decimal_places       INTEGER NOT NULL DEFAULT 2,
	formula              TEXT NOT NULL,
	enabled              INTEGER NOT NULL DEFAULT 1,
	heartbeat_interval_s INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS monitor_values (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id   TEXT NOT NULL,
	value        REAL NOT NULL,
	computed_at  DATETIME NOT NULL,
	dependencies TEXT NOT NULL DEFAULT '[]',
	FOREIGN KEY (monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_monitor_values_monitor ON monitor_values(monitor_id, computed_at);

CREATE TABLE IF NOT EXISTS alert_rules (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	condition             TEXT NOT NULL,
	level                 TEXT NOT NULL,
	enabled               INTEGER NOT NULL DEFAULT 1,
	cooldown_s            INTEGER NOT NULL DEFAULT 300,
	heartbeat_enabled     INTEGER NOT NULL DEFAULT 0,
	heartbeat_interval_s  INTEGER NOT NULL DEFAULT 0,
	created_at            DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_states (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_key            TEXT NOT NULL,
	level               TEXT NOT NULL,
	triggered_at        DATETIME NOT NULL,
	last_notified_at    DATETIME NOT NULL,
	notification_count  INTEGER NOT NULL DEFAULT 0,
	resolved_at         DATETIME,
	is_active           INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_alert_states_rule_active ON alert_states(rule_key, is_active);

CREATE TABLE IF NOT EXISTS notification_targets (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	recipient_key TEXT NOT NULL,
	auth_token    TEXT NOT NULL DEFAULT '',
	enabled       INTEGER NOT NULL DEFAULT 1,
	min_level     TEXT NOT NULL DEFAULT 'low'
);
`

// Migrate creates the schema if it does not already exist. Table
// creation is idempotent, so this is safe to call on every startup.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
