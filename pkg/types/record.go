package types

import "time"

// Side identifies which storage backend a record or event belongs to.
type Side string

const (
	SideA Side = "A" // file store (cloud-drive hierarchy)
	SideB Side = "B" // structured-record workspace
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// FileRecord is the canonical description of one tracked item on one side.
// IDs are opaque and stable per side; they are never comparable across sides.
type FileRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Deleted    bool      `json:"deleted"`
}

// Changed reports whether two observations of the same id differ in a way
// that should produce an updated event.
func (r FileRecord) Changed(other FileRecord) bool {
	return r.Size != other.Size || !r.ModifiedAt.Equal(other.ModifiedAt)
}
