package types

import "time"

// ChangeType classifies a change observed by a watcher diff pass.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// ChangeEvent is a transient notification of a created/updated/deleted
// FileRecord on one side. Events live only on the watcher→orchestrator
// queue and are never persisted.
type ChangeEvent struct {
	ID        string     `json:"id"`
	Type      ChangeType `json:"type"`
	Source    Side       `json:"source"`
	Timestamp time.Time  `json:"timestamp"`
	FileID    string     `json:"fileId"`
	FileName  string     `json:"fileName"`
	OldPath   string     `json:"oldPath,omitempty"`
	NewPath   string     `json:"newPath,omitempty"`
	Record    FileRecord `json:"metadata"`
}
