// Package store provides the SDK's local persistent state, backed by an
// embedded SQLite database. It owns the database lifecycle and exposes the
// DAOs the syncers and message log operate through.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite"
)

// migrations holds the ordered list of DDL statements that bring the schema
// up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — conversation replica
	`CREATE TABLE IF NOT EXISTS local_conversations (
		conversation_id          TEXT PRIMARY KEY,
		conversation_type        INTEGER NOT NULL,
		user_id                  TEXT NOT NULL DEFAULT '',
		group_id                 TEXT NOT NULL DEFAULT '',
		show_name                TEXT NOT NULL DEFAULT '',
		face_url                 TEXT NOT NULL DEFAULT '',
		latest_msg               TEXT NOT NULL DEFAULT '',
		latest_msg_send_time     INTEGER NOT NULL DEFAULT 0,
		unread_count             INTEGER NOT NULL DEFAULT 0,
		recv_msg_opt             INTEGER NOT NULL DEFAULT 0,
		is_pinned                INTEGER NOT NULL DEFAULT 0,
		is_private_chat          INTEGER NOT NULL DEFAULT 0,
		burn_duration            INTEGER NOT NULL DEFAULT 0,
		group_at_type            INTEGER NOT NULL DEFAULT 0,
		is_not_in_group          INTEGER NOT NULL DEFAULT 0,
		update_unread_count_time INTEGER NOT NULL DEFAULT 0,
		max_seq                  INTEGER NOT NULL DEFAULT 0,
		min_seq                  INTEGER NOT NULL DEFAULT 0,
		is_msg_destruct          INTEGER NOT NULL DEFAULT 0,
		msg_destruct_time        INTEGER NOT NULL DEFAULT 0,
		draft_text               TEXT NOT NULL DEFAULT '',
		draft_text_time          INTEGER NOT NULL DEFAULT 0,
		attached_info            TEXT NOT NULL DEFAULT '',
		ex                       TEXT NOT NULL DEFAULT ''
	)`,
	// v2 — friend replica
	`CREATE TABLE IF NOT EXISTS local_friends (
		owner_user_id   TEXT NOT NULL,
		friend_user_id  TEXT NOT NULL,
		remark          TEXT NOT NULL DEFAULT '',
		nickname        TEXT NOT NULL DEFAULT '',
		face_url        TEXT NOT NULL DEFAULT '',
		add_source      INTEGER NOT NULL DEFAULT 0,
		operator_user_id TEXT NOT NULL DEFAULT '',
		create_time     INTEGER NOT NULL DEFAULT 0,
		ex              TEXT NOT NULL DEFAULT '',
		attached_info   TEXT NOT NULL DEFAULT '',
		is_pinned       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (owner_user_id, friend_user_id)
	)`,
	// v3 — sync version cursors
	`CREATE TABLE IF NOT EXISTS local_version_sync (
		table_name TEXT NOT NULL,
		entity_id  TEXT NOT NULL,
		version    INTEGER NOT NULL DEFAULT 0,
		version_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (table_name, entity_id)
	)`,
	// v4 — indexes for conversation listing
	`CREATE INDEX IF NOT EXISTS idx_local_conversations_pinned_time
		ON local_conversations(is_pinned, latest_msg_send_time)`,
	// v5 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes the SDK's DAOs.
type Store struct {
	db *sql.DB

	tableMu sync.Mutex // serializes per-conversation CREATE TABLE IF NOT EXISTS
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests). Schema initialization happens exactly once here, per spec §5's
// shared-connection-pool model.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Allow a small pool of connections; SQLite itself admits one writer at
	// a time, and busy_timeout below makes other writers wait rather than
	// fail immediately. An in-memory database only survives on
	// the connection that created it, so ":memory:" is pinned to exactly
	// one connection — otherwise pool churn would hand queries to a fresh,
	// empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[store] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema_migrations table (if absent) and applies any
// migrations whose version number exceeds the current maximum.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
	}
	return nil
}

// Optimize runs SQLite's query-planner optimizer. Intended to be called
// periodically by the facade, mirroring the teacher's hourly store.Optimize
// background task in server/main.go.
func (s *Store) Optimize() error {
	_, err := s.db.Exec(`PRAGMA optimize`)
	return err
}
