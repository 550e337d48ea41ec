package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/syncbridge/syncbridge/pkg/types"
)

// SimAdapter is a deterministic, network-free adapter used when live
// credentials are absent. It is a first-class operating mode: the engine
// runs the full sync loop against canned records held in memory.
type SimAdapter struct {
	side types.Side

	mu      sync.Mutex
	records map[string]types.FileRecord
	content map[string][]byte
	nextID  int
	healthy bool
	failErr error
}

// NewSimAdapter creates a simulated adapter pre-populated with the given
// seed records. Seed content is synthesized from the record metadata so
// downloads are deterministic.
func NewSimAdapter(side types.Side, seed []types.FileRecord) *SimAdapter {
	a := &SimAdapter{
		side:    side,
		records: make(map[string]types.FileRecord),
		content: make(map[string][]byte),
		nextID:  1,
		healthy: true,
	}
	for _, r := range seed {
		a.records[r.ID] = r
		a.content[r.ID] = []byte(fmt.Sprintf("simulated content of %s (%d bytes)", r.Path, r.Size))
	}
	return a
}

// DefaultSeed returns the canned listing for one side. Timestamps are fixed
// so repeated runs observe identical state.
func DefaultSeed(side types.Side) []types.FileRecord {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	prefix := strings.ToLower(string(side))
	names := []string{"invoice-2025-001.pdf", "scan-receipt.png", "notes.txt"}
	sizes := []int64{204800, 81920, 2048}

	var seed []types.FileRecord
	for i, name := range names {
		seed = append(seed, types.FileRecord{
			ID:         fmt.Sprintf("sim-%s-%d", prefix, i+1),
			Name:       name,
			Path:       "/" + name,
			Size:       sizes[i],
			MimeType:   DetectMime(name),
			ModifiedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return seed
}

// Side identifies which side this adapter simulates.
func (a *SimAdapter) Side() types.Side { return a.side }

// List returns a copy of the current listing, sorted by path for
// deterministic output.
func (a *SimAdapter) List(_ context.Context, recursive bool) ([]types.FileRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return nil, a.failErr
	}

	var records []types.FileRecord
	for _, r := range a.records {
		if r.Deleted {
			continue
		}
		if !recursive && strings.Count(r.Path, "/") > 1 {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

// Upload stores the bytes under a new sequential id.
func (a *SimAdapter) Upload(_ context.Context, data []byte, name, targetPath string) (*types.FileRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return nil, a.failErr
	}

	id := fmt.Sprintf("sim-%s-up-%d", strings.ToLower(string(a.side)), a.nextID)
	a.nextID++

	r := types.FileRecord{
		ID:         id,
		Name:       name,
		Path:       JoinPath(targetPath, name),
		Size:       int64(len(data)),
		MimeType:   DetectMime(name),
		ModifiedAt: time.Now().UTC(),
	}
	a.records[id] = r
	a.content[id] = append([]byte(nil), data...)
	return &r, nil
}

// Download returns the stored bytes, or ErrNotFound.
func (a *SimAdapter) Download(_ context.Context, id string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return nil, a.failErr
	}

	r, ok := a.records[id]
	if !ok || r.Deleted {
		return nil, ErrNotFound
	}
	return append([]byte(nil), a.content[id]...), nil
}

// Delete removes the record. Returns false when it was already absent.
func (a *SimAdapter) Delete(_ context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return false, a.failErr
	}

	r, ok := a.records[id]
	if !ok || r.Deleted {
		return false, nil
	}
	delete(a.records, id)
	delete(a.content, id)
	return true, nil
}

// HealthCheck reports the simulated liveness.
func (a *SimAdapter) HealthCheck(_ context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.healthy && a.failErr == nil
}

// SetHealthy toggles the simulated liveness probe.
func (a *SimAdapter) SetHealthy(healthy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthy = healthy
}

// SetError makes every subsequent operation fail with err. Pass nil to
// restore normal behavior.
func (a *SimAdapter) SetError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failErr = err
}

// Put inserts or replaces a record and its content directly, bypassing
// Upload's id assignment. Used to stage external changes the watcher should
// observe on its next poll.
func (a *SimAdapter) Put(r types.FileRecord, data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[r.ID] = r
	a.content[r.ID] = append([]byte(nil), data...)
}

// Remove drops a record directly, simulating an external deletion.
func (a *SimAdapter) Remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, id)
	delete(a.content, id)
}
