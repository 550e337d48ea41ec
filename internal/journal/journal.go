// Package journal persists the reconciliation history to a local SQLite
// database. Every applied action gets one log row plus one outbox row; the
// outbox feeds the audit event publisher, which marks rows published once
// they are accepted by the stream.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/syncbridge/syncbridge/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    file_id TEXT,
    counterpart TEXT,
    path TEXT,
    status TEXT,
    size INTEGER,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outbox (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    payload TEXT,
    published INTEGER DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox(published) WHERE published = 0;
`

// Journal is the on-disk reconciliation log.
type Journal struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open opens (or creates) the journal database at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply journal schema: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record logs one applied reconciliation action. Journal failures are logged
// and swallowed: the sync loop never blocks on its own audit trail.
func (j *Journal) Record(action string, e types.SyncEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO sync_log (action, file_id, counterpart, path, status, size) VALUES (?, ?, ?, ?, ?, ?)`,
		action, e.FileID, e.Counterpart, e.Path, string(e.SyncStatus), e.Size)
	if err != nil {
		log.Printf("journal: failed to log %s for %s: %v", action, e.Path, err)
		return
	}

	payload, _ := json.Marshal(e)
	if _, err := j.db.Exec(
		`INSERT INTO outbox (action, payload) VALUES (?, ?)`, action, string(payload)); err != nil {
		log.Printf("journal: failed to queue outbox row for %s: %v", e.Path, err)
	}
}

// LogEntry is one row of the reconciliation history.
type LogEntry struct {
	ID          int64  `json:"id"`
	Action      string `json:"action"`
	FileID      string `json:"fileId"`
	Counterpart string `json:"counterpart"`
	Path        string `json:"path"`
	Status      string `json:"status"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"createdAt"`
}

// Recent returns the newest log rows, most recent first.
func (j *Journal) Recent(limit int) ([]LogEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, action, file_id, counterpart, path, status, size, created_at
		 FROM sync_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.FileID, &e.Counterpart, &e.Path, &e.Status, &e.Size, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Event is one unpublished outbox row.
type Event struct {
	ID        int64
	Action    string
	Payload   string
	CreatedAt string
}

// UnpublishedEvents returns outbox rows not yet accepted by the audit
// stream, oldest first.
func (j *Journal) UnpublishedEvents(limit int) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, action, payload, created_at FROM outbox WHERE published = 0 ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Action, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkPublished marks the given outbox rows as accepted.
func (j *Journal) MarkPublished(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE outbox SET published = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
