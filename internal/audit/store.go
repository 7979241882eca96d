// Package audit keeps a SQLite log of connection lifecycle activity
// (connects, disconnects, sweep results) for after-the-fact diagnostics.
// Recording is best-effort: write failures are logged and swallowed so the
// broadcast path is never slowed or aborted by the audit trail.
package audit

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS connection_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	connection_id TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL,
	detail        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_connection_log_created_at ON connection_log(created_at);
`

// Record kinds.
const (
	KindConnect    = "connect"
	KindDisconnect = "disconnect"
	KindSweep      = "sweep"
)

// Entry is one audit record.
type Entry struct {
	ID           int64
	ConnectionID string
	UserID       string
	Kind         string
	Detail       string
	CreatedAt    time.Time
}

// Store is the SQLite-backed audit log.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	logger *zap.Logger
}

// Open opens (creating if needed) the audit database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach audit database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply audit schema: %w", err)
	}
	insert, err := db.Prepare(
		`INSERT INTO connection_log (connection_id, user_id, kind, detail) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	return &Store{
		db:     db,
		insert: insert,
		logger: logger.With(zap.String("component", "audit")),
	}, nil
}

// RecordConnect logs a new connection.
func (s *Store) RecordConnect(connectionID, userID string) {
	s.record(connectionID, userID, KindConnect, "")
}

// RecordDisconnect logs a connection teardown with its reason.
func (s *Store) RecordDisconnect(connectionID, userID, reason string) {
	s.record(connectionID, userID, KindDisconnect, reason)
}

// RecordSweep logs the outcome of a stale-connection sweep.
func (s *Store) RecordSweep(removed int) {
	s.record("", "", KindSweep, strconv.Itoa(removed))
}

func (s *Store) record(connectionID, userID, kind, detail string) {
	if _, err := s.insert.Exec(connectionID, userID, kind, detail); err != nil {
		s.logger.Warn("audit record failed", zap.String("kind", kind), zap.Error(err))
	}
}

// RecentEntries returns the newest entries, most recent first.
func (s *Store) RecentEntries(limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, connection_id, user_id, kind, detail, created_at
		 FROM connection_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.UserID, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.insert.Close(); err != nil {
		s.logger.Warn("audit statement close failed", zap.Error(err))
	}
	return s.db.Close()
}
