package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncbridge/syncbridge/pkg/types"
)

// PostgresAdapter is the live Source B adapter over a PostgreSQL entry
// workspace. Each tracked file is one row in the entries table; the row UUID
// is the record id. Soft-deleted rows stay invisible to List and Download.
type PostgresAdapter struct {
	pool *pgxpool.Pool
	root string
}

// NewPostgresAdapter connects to the workspace database and ensures the
// entries schema exists.
func NewPostgresAdapter(ctx context.Context, databaseURL, targetRoot string) (*PostgresAdapter, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	a := &PostgresAdapter{
		pool: pool,
		root: normalizeRoot(targetRoot),
	}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func normalizeRoot(root string) string {
	if root == "" {
		return "/"
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

func (a *PostgresAdapter) ensureSchema(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name        TEXT NOT NULL,
			path        TEXT NOT NULL,
			size        BIGINT NOT NULL DEFAULT 0,
			mime_type   TEXT NOT NULL DEFAULT '',
			modified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted     BOOLEAN NOT NULL DEFAULT false,
			content     BYTEA
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create entries table: %w", err)
	}
	_, err = a.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS entries_path_idx ON entries (path) WHERE NOT deleted`)
	if err != nil {
		return fmt.Errorf("failed to create entries index: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (a *PostgresAdapter) Close() {
	a.pool.Close()
}

// Side identifies this adapter as Source B.
func (a *PostgresAdapter) Side() types.Side { return types.SideB }

// List returns all live entries under the target root. With recursive=false
// entries in nested folders are excluded.
func (a *PostgresAdapter) List(ctx context.Context, recursive bool) ([]types.FileRecord, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, name, path, size, mime_type, modified_at
		FROM entries
		WHERE NOT deleted AND path LIKE $1
		ORDER BY path
	`, a.root+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var records []types.FileRecord
	for rows.Next() {
		var r types.FileRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Path, &r.Size, &r.MimeType, &r.ModifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if !recursive && strings.Contains(strings.TrimPrefix(r.Path, a.root), "/") {
			continue
		}
		r.ModifiedAt = r.ModifiedAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Upload inserts a new entry and returns the record with its assigned id.
func (a *PostgresAdapter) Upload(ctx context.Context, data []byte, name, targetPath string) (*types.FileRecord, error) {
	p := JoinPath(targetPath, name)
	if !strings.HasPrefix(p, a.root) {
		p = JoinPath(strings.TrimSuffix(a.root, "/"), strings.TrimPrefix(p, "/"))
	}
	mime := DetectMime(name)
	now := time.Now().UTC()

	var id string
	err := a.pool.QueryRow(ctx, `
		INSERT INTO entries (name, path, size, mime_type, modified_at, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, name, p, int64(len(data)), mime, now, data).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry %s: %w", p, err)
	}

	return &types.FileRecord{
		ID:         id,
		Name:       name,
		Path:       p,
		Size:       int64(len(data)),
		MimeType:   mime,
		ModifiedAt: now,
	}, nil
}

// Download returns the entry content, or ErrNotFound for unknown and
// soft-deleted ids.
func (a *PostgresAdapter) Download(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := a.pool.QueryRow(ctx, `
		SELECT content FROM entries WHERE id = $1 AND NOT deleted
	`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download entry %s: %w", id, err)
	}
	return data, nil
}

// Delete soft-deletes the entry. Returns false when it was already absent.
func (a *PostgresAdapter) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := a.pool.Exec(ctx, `
		UPDATE entries SET deleted = true, modified_at = now()
		WHERE id = $1 AND NOT deleted
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// HealthCheck pings the database. Any failure is reported as false.
func (a *PostgresAdapter) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.pool.Ping(ctx) == nil
}
