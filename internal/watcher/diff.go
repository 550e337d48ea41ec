package watcher

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/syncbridge/pkg/types"
)

// Diff compares a fresh listing against the cached baseline and returns the
// change events for one poll cycle, in emission order: created, then
// updated, then deleted. Within each group events are ordered by path so a
// given pair of listings always produces the same sequence.
func Diff(side types.Side, cached map[string]types.FileRecord, current []types.FileRecord) []types.ChangeEvent {
	now := time.Now().UTC()

	currentByID := make(map[string]types.FileRecord, len(current))
	for _, r := range current {
		currentByID[r.ID] = r
	}

	var created, updated, deleted []types.ChangeEvent

	sorted := append([]types.FileRecord(nil), current...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, r := range sorted {
		prev, ok := cached[r.ID]
		if !ok {
			created = append(created, newEvent(types.ChangeCreated, side, r, now))
			continue
		}
		if prev.Changed(r) {
			ev := newEvent(types.ChangeUpdated, side, r, now)
			if prev.Path != r.Path {
				ev.OldPath = prev.Path
				ev.NewPath = r.Path
			}
			updated = append(updated, ev)
		}
	}

	var gone []types.FileRecord
	for id, prev := range cached {
		if _, ok := currentByID[id]; ok {
			continue
		}
		if prev.Deleted {
			continue // already observed, marker retained for the grace cycle
		}
		gone = append(gone, prev)
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i].Path < gone[j].Path })
	for _, prev := range gone {
		deleted = append(deleted, newEvent(types.ChangeDeleted, side, prev, now))
	}

	events := make([]types.ChangeEvent, 0, len(created)+len(updated)+len(deleted))
	events = append(events, created...)
	events = append(events, updated...)
	events = append(events, deleted...)
	return events
}

func newEvent(t types.ChangeType, side types.Side, r types.FileRecord, now time.Time) types.ChangeEvent {
	return types.ChangeEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    side,
		Timestamp: now,
		FileID:    r.ID,
		FileName:  r.Name,
		Record:    r,
	}
}
