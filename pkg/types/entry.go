package types

import "time"

// SyncStatus is the reconciliation state of a SyncEntry.
type SyncStatus string

const (
	StatusSynced   SyncStatus = "synced"
	StatusPending  SyncStatus = "pending"
	StatusConflict SyncStatus = "conflict"
	StatusError    SyncStatus = "error"
	StatusDeleted  SyncStatus = "deleted"
)

// SyncEntry is the cross-reference record for one logical file spanning both
// sides. FileID is the Source A id; Counterpart is the Source B id and stays
// empty until the first successful propagation.
type SyncEntry struct {
	FileID        string     `json:"fileId"`
	Counterpart   string     `json:"counterpart,omitempty"`
	Name          string     `json:"name"`
	Path          string     `json:"path"`
	Size          int64      `json:"size"`
	FileType      string     `json:"fileType,omitempty"`
	LastModified  time.Time  `json:"lastModified"`
	SyncStatus    SyncStatus `json:"syncStatus"`
	DeletedInA    bool       `json:"deletedInA"`
	DeletedInB    bool       `json:"deletedInB"`
	Enriched      bool       `json:"enriched"`
	ExtractedText string     `json:"extractedText,omitempty"`

	// DeletedAtCycle records the poll cycle that observed the deletion and
	// DeletedOn the side whose counter it came from; together they drive
	// grace-period eviction from the record store.
	DeletedAtCycle uint64 `json:"-"`
	DeletedOn      Side   `json:"-"`

	// LastPropagatedAt is when the orchestrator last wrote this file to
	// either side. A change stamped before this instant is only treated as
	// a conflict when the counterpart diverged from the propagated copy.
	LastPropagatedAt time.Time `json:"-"`
}

// SoftDeleted reports whether the entry is deleted on both sides and only
// retained for the post-delete grace period.
func (e *SyncEntry) SoftDeleted() bool {
	return e.DeletedInA && e.DeletedInB
}
