package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/syncbridge/syncbridge/pkg/types"
)

// ErrNotFound is returned by Download when the id is unknown or soft-deleted.
// It is not an error condition for callers; they branch on it.
var ErrNotFound = errors.New("storage: record not found")

// Adapter is the uniform contract over one side's storage backend. Both the
// live and the simulated implementations satisfy it; callers never branch on
// an operating mode.
type Adapter interface {
	// Side identifies which side of the sync this adapter serves.
	Side() types.Side

	// List returns the full current listing under the tracked root.
	// It must be side-effect-free.
	List(ctx context.Context, recursive bool) ([]types.FileRecord, error)

	// Upload creates a new record from raw bytes and assigns it a new id.
	Upload(ctx context.Context, data []byte, name, targetPath string) (*types.FileRecord, error)

	// Download returns the raw bytes for an id, or ErrNotFound.
	Download(ctx context.Context, id string) ([]byte, error)

	// Delete removes a record. It is idempotent: deleting an absent record
	// returns false, never an error.
	Delete(ctx context.Context, id string) (bool, error)

	// HealthCheck is a lightweight liveness probe. It never returns an
	// error; any failure is reported as false.
	HealthCheck(ctx context.Context) bool
}

var mimeByExt = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".gif":  "image/gif",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".zip":  "application/zip",
}

// DetectMime guesses a MIME type from the file name extension. Object
// listings on either backend do not carry a reliable content type, so the
// extension is the comparison-stable source.
func DetectMime(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if mt, ok := mimeByExt[ext]; ok {
		return mt
	}
	return "application/octet-stream"
}

// JoinPath joins a directory path and file name with exactly one slash.
func JoinPath(dir, name string) string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return "/" + name
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	return dir + "/" + name
}
