// Package recordstore holds the in-memory last-known state of every tracked
// file: the cross-side SyncEntry model and one FileRecord baseline per side.
// The orchestrator is the single writer of the entry model; watchers only
// take baseline snapshots and install fresh baselines after diffing.
package recordstore

import (
	"sort"
	"sync"

	"github.com/syncbridge/syncbridge/pkg/types"
)

// GraceCycles is how many polling cycles a fully soft-deleted SyncEntry is
// retained before eviction: the cycle that observed the deletion plus one.
const GraceCycles = 1

type baselineRecord struct {
	rec            types.FileRecord
	deletedAtCycle uint64
}

// Store is the in-memory record store.
type Store struct {
	mu sync.RWMutex

	entries map[string]*types.SyncEntry // keyed by entry key (A id, or "b:"+B id before first sync)
	byB     map[string]string           // B id -> entry key

	baseline map[types.Side]map[string]baselineRecord
	cycle    map[types.Side]uint64
}

// New creates an empty record store.
func New() *Store {
	return &Store{
		entries: make(map[string]*types.SyncEntry),
		byB:     make(map[string]string),
		baseline: map[types.Side]map[string]baselineRecord{
			types.SideA: {},
			types.SideB: {},
		},
		cycle: map[types.Side]uint64{},
	}
}

func entryKey(e types.SyncEntry) string {
	if e.FileID != "" {
		return e.FileID
	}
	return "b:" + e.Counterpart
}

// EntryByA returns the entry whose Source A id matches, if any.
func (s *Store) EntryByA(id string) (types.SyncEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return types.SyncEntry{}, false
	}
	return *e, true
}

// EntryByB returns the entry whose Source B id matches, if any.
func (s *Store) EntryByB(id string) (types.SyncEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byB[id]
	if !ok {
		return types.SyncEntry{}, false
	}
	e, ok := s.entries[key]
	if !ok {
		return types.SyncEntry{}, false
	}
	return *e, true
}

// EntryBySide looks up an entry by the id it carries on the given side.
func (s *Store) EntryBySide(side types.Side, id string) (types.SyncEntry, bool) {
	if side == types.SideA {
		return s.EntryByA(id)
	}
	return s.EntryByB(id)
}

// EntryByPath returns the live entry tracking the given path, if any. Used
// to link a file first seen on one side to its counterpart observed later on
// the other: paths are the only cross-side identity before ids are paired.
func (s *Store) EntryByPath(path string) (types.SyncEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Path == path && !e.SoftDeleted() {
			return *e, true
		}
	}
	return types.SyncEntry{}, false
}

// Put inserts or replaces an entry, reindexing both side ids. An entry that
// gains its Source A id after being tracked under a provisional B key is
// rekeyed in place.
func (s *Store) Put(e types.SyncEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(e)
	if e.FileID != "" && e.Counterpart != "" {
		// Drop a provisional B-keyed copy left from before the first sync.
		if old, ok := s.byB[e.Counterpart]; ok && old != key {
			delete(s.entries, old)
		}
	}
	cp := e
	s.entries[key] = &cp
	if e.Counterpart != "" {
		s.byB[e.Counterpart] = key
	}
}

// Delete removes an entry and its indexes.
func (s *Store) Delete(e types.SyncEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entryKey(e))
	if e.Counterpart != "" {
		delete(s.byB, e.Counterpart)
	}
}

// Entries returns a copy of all entries sorted by path then name.
func (s *Store) Entries() []types.SyncEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.SyncEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Annotate marks the entry carrying the given side id as enriched and
// stores the extracted text. The in-place update keeps the enrichment
// pipeline from clobbering concurrent orchestrator writes to other fields.
func (s *Store) Annotate(side types.Side, id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id
	if side == types.SideB {
		var ok bool
		if key, ok = s.byB[id]; !ok {
			return false
		}
	}
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.Enriched = true
	e.ExtractedText = text
	return true
}

// EvictExpired removes entries that are soft-deleted on both sides and whose
// grace period has elapsed. The grace period is measured on the side that
// observed the deletion, so one side polling faster cannot shorten it.
// Returns the number of evicted entries.
func (s *Store) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, e := range s.entries {
		if !e.SoftDeleted() {
			continue
		}
		now := s.cycle[e.DeletedOn]
		if e.DeletedOn == "" {
			// Entries restored from a snapshot carry no grace marker;
			// either side's progress retires them.
			now = s.cycle[types.SideA]
			if s.cycle[types.SideB] > now {
				now = s.cycle[types.SideB]
			}
		}
		if now > e.DeletedAtCycle+GraceCycles {
			delete(s.entries, key)
			if e.Counterpart != "" {
				delete(s.byB, e.Counterpart)
			}
			evicted++
		}
	}
	return evicted
}

// Snapshot returns a copy of the side's baseline, including records still
// retained with the soft-delete marker.
func (s *Store) Snapshot(side types.Side) map[string]types.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.FileRecord, len(s.baseline[side]))
	for id, br := range s.baseline[side] {
		out[id] = br.rec
	}
	return out
}

// ReplaceBaseline installs a fresh listing as the side's baseline and
// advances the side's poll cycle. Records marked deleted in the previous
// baseline are carried for one cycle so the next diff pass can still observe
// the deletion, then dropped.
func (s *Store) ReplaceBaseline(side types.Side, current []types.FileRecord) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycle[side]++
	now := s.cycle[side]

	fresh := make(map[string]baselineRecord, len(current))
	for _, r := range current {
		fresh[r.ID] = baselineRecord{rec: r}
	}
	for id, br := range s.baseline[side] {
		if _, ok := fresh[id]; ok {
			continue
		}
		if br.rec.Deleted && now <= br.deletedAtCycle+1 {
			fresh[id] = br
		}
	}
	s.baseline[side] = fresh
	return now
}

// UpsertRecord adds a record to the side's baseline. The orchestrator calls
// this after every successful upload so the side's next diff does not report
// the propagated write as a fresh change.
func (s *Store) UpsertRecord(side types.Side, rec types.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseline[side][rec.ID] = baselineRecord{rec: rec}
}

// MarkRecordDeleted flags a baseline record as deleted. The orchestrator
// calls this after propagating a delete; the flagged record suppresses the
// echo event on the side's next diff.
func (s *Store) MarkRecordDeleted(side types.Side, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	br, ok := s.baseline[side][id]
	if !ok {
		return
	}
	br.rec.Deleted = true
	br.deletedAtCycle = s.cycle[side]
	s.baseline[side][id] = br
}

// State is a persistable copy of the store contents. Cycle counters and
// grace markers are poll-relative and deliberately excluded; after a restore
// they rebuild from the next polls.
type State struct {
	Entries   []types.SyncEntry                 `json:"entries"`
	Baselines map[types.Side][]types.FileRecord `json:"baselines"`
}

// Export copies the current contents for snapshot persistence.
func (s *Store) Export() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{Baselines: make(map[types.Side][]types.FileRecord, 2)}
	for _, e := range s.entries {
		st.Entries = append(st.Entries, *e)
	}
	sort.Slice(st.Entries, func(i, j int) bool { return entryKey(st.Entries[i]) < entryKey(st.Entries[j]) })
	for side, base := range s.baseline {
		records := make([]types.FileRecord, 0, len(base))
		for _, br := range base {
			records = append(records, br.rec)
		}
		sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
		st.Baselines[side] = records
	}
	return st
}

// Restore replaces the store contents from a persisted snapshot.
func (s *Store) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*types.SyncEntry, len(st.Entries))
	s.byB = make(map[string]string, len(st.Entries))
	for _, e := range st.Entries {
		cp := e
		key := entryKey(e)
		s.entries[key] = &cp
		if e.Counterpart != "" {
			s.byB[e.Counterpart] = key
		}
	}

	s.baseline = map[types.Side]map[string]baselineRecord{
		types.SideA: {},
		types.SideB: {},
	}
	for side, records := range st.Baselines {
		base := make(map[string]baselineRecord, len(records))
		for _, r := range records {
			base[r.ID] = baselineRecord{rec: r}
		}
		s.baseline[side] = base
	}
	s.cycle = map[types.Side]uint64{}
}

// Cycle returns the side's current poll cycle number.
func (s *Store) Cycle(side types.Side) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle[side]
}
