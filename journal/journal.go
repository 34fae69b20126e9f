// Package journal persists profile lifecycle and failure events to a
// local SQLite database.
//
// Recording is non-blocking for callers: insert failures are logged but
// never propagated, so a broken journal cannot take profile operations
// down with it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/browsermux/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id   TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	profile    TEXT NOT NULL,
	tab        TEXT NOT NULL DEFAULT '',
	op         TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_created_idx ON events(created_at);
CREATE INDEX IF NOT EXISTS events_profile_idx ON events(profile, created_at);
`

// Event kinds.
const (
	KindLifecycle = "lifecycle"
	KindFailure   = "failure"
)

// Event is one recorded entry. A zero At is stamped at record time.
type Event struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Profile string    `json:"profile"`
	Tab     string    `json:"tab,omitempty"`
	Op      string    `json:"op"`
	Kind    string    `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
}

// Journal writes and queries events. Safe for concurrent use.
type Journal struct {
	db    *sql.DB
	log   *slog.Logger
	newID idgen.Generator
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used to report journal-internal failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.log = l
		}
	}
}

// WithIDGenerator sets a custom event ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// Open opens the journal database at path, creating parent directories
// and the schema as needed. WAL mode and a busy timeout are applied so
// concurrent writers queue instead of erroring.
func Open(path string, opts ...Option) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}

	j := &Journal{
		db:    db,
		log:   slog.Default(),
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// OpenMemory opens an in-memory journal for testing. MaxOpenConns is
// pinned to 1 so every query hits the same in-memory database, and the
// journal is closed automatically via t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *Journal {
	t.Helper()
	j, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("journal.OpenMemory: %v", err)
	}
	j.db.SetMaxOpenConns(1)
	t.Cleanup(func() { j.Close() })
	return j
}

// Record inserts one event. Failures are logged, never returned.
func (j *Journal) Record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.ID == "" {
		ev.ID = j.newID()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (event_id, created_at, profile, tab, op, kind, detail)
		VALUES (?,?,?,?,?,?,?)`,
		ev.ID, ev.At.Unix(), ev.Profile, ev.Tab, ev.Op, ev.Kind, ev.Detail)
	if err != nil {
		j.log.Error("journal: record failed", "error", err, "op", ev.Op, "profile", ev.Profile)
	}
}

// Recent returns up to limit events, newest first. A limit of zero or
// less defaults to 50.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	// event_id breaks ties within one second: UUIDv7 IDs sort by time.
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, created_at, profile, tab, op, kind, detail
		FROM events
		ORDER BY created_at DESC, event_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var at int64
		if err := rows.Scan(&ev.ID, &at, &ev.Profile, &ev.Tab, &ev.Op, &ev.Kind, &ev.Detail); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		ev.At = time.Unix(at, 0)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return out, nil
}

// Prune deletes events older than keepDays days. Zero or negative keeps
// everything.
func (j *Journal) Prune(ctx context.Context, keepDays int) error {
	if keepDays <= 0 {
		return nil
	}
	cutoff := time.Now().Unix() - int64(keepDays)*86400
	if _, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("journal: prune: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
