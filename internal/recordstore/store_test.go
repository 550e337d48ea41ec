package recordstore

import (
	"testing"
	"time"

	"github.com/syncbridge/syncbridge/pkg/types"
)

func TestPutAndLookupBothSides(t *testing.T) {
	s := New()
	s.Put(types.SyncEntry{
		FileID:      "a-1",
		Counterpart: "b-1",
		Name:        "doc.pdf",
		Path:        "/doc.pdf",
		SyncStatus:  types.StatusSynced,
	})

	if e, ok := s.EntryByA("a-1"); !ok || e.Counterpart != "b-1" {
		t.Errorf("EntryByA(a-1) = (%+v, %v)", e, ok)
	}
	if e, ok := s.EntryByB("b-1"); !ok || e.FileID != "a-1" {
		t.Errorf("EntryByB(b-1) = (%+v, %v)", e, ok)
	}
	if _, ok := s.EntryByA("a-2"); ok {
		t.Error("expected miss for unknown id")
	}
}

func TestRekeyAfterFirstSync(t *testing.T) {
	s := New()

	// A file first seen on side B has no A id yet.
	s.Put(types.SyncEntry{Counterpart: "b-7", Name: "new.png", Path: "/new.png", SyncStatus: types.StatusPending})

	// After propagation to A the entry gains its A id.
	s.Put(types.SyncEntry{FileID: "a-7", Counterpart: "b-7", Name: "new.png", Path: "/new.png", SyncStatus: types.StatusSynced})

	if len(s.Entries()) != 1 {
		t.Fatalf("expected 1 entry after rekey, got %d", len(s.Entries()))
	}
	e, ok := s.EntryByB("b-7")
	if !ok || e.FileID != "a-7" || e.SyncStatus != types.StatusSynced {
		t.Errorf("EntryByB(b-7) = (%+v, %v)", e, ok)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	s := New()
	s.Put(types.SyncEntry{FileID: "a-1", Name: "doc.pdf", SyncStatus: types.StatusPending})

	e, _ := s.EntryByA("a-1")
	e.SyncStatus = types.StatusError

	again, _ := s.EntryByA("a-1")
	if again.SyncStatus != types.StatusPending {
		t.Error("mutating a looked-up entry must not affect the store")
	}
}

func TestBaselineReplaceAndSnapshot(t *testing.T) {
	s := New()
	recs := []types.FileRecord{
		{ID: "a-1", Name: "one.txt", Path: "/one.txt", Size: 1},
		{ID: "a-2", Name: "two.txt", Path: "/two.txt", Size: 2},
	}

	cycle := s.ReplaceBaseline(types.SideA, recs)
	if cycle != 1 {
		t.Errorf("expected cycle 1, got %d", cycle)
	}

	snap := s.Snapshot(types.SideA)
	if len(snap) != 2 {
		t.Fatalf("expected 2 records in snapshot, got %d", len(snap))
	}

	// Mutating the snapshot must not leak into the store.
	delete(snap, "a-1")
	if len(s.Snapshot(types.SideA)) != 2 {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestDeletedBaselineRecordRetainedOneCycle(t *testing.T) {
	s := New()
	recs := []types.FileRecord{{ID: "a-1", Name: "gone.txt", Path: "/gone.txt"}}
	s.ReplaceBaseline(types.SideA, recs)

	s.MarkRecordDeleted(types.SideA, "a-1")

	// The cycle after the deletion still sees the marker.
	s.ReplaceBaseline(types.SideA, nil)
	snap := s.Snapshot(types.SideA)
	if r, ok := snap["a-1"]; !ok || !r.Deleted {
		t.Fatalf("expected deleted marker retained one cycle, got %+v (ok=%v)", r, ok)
	}

	// One more cycle and it is gone for good.
	s.ReplaceBaseline(types.SideA, nil)
	if _, ok := s.Snapshot(types.SideA)["a-1"]; ok {
		t.Error("expected deleted record evicted after grace cycle")
	}
}

func TestEvictExpiredEntries(t *testing.T) {
	s := New()
	s.ReplaceBaseline(types.SideA, nil) // cycle 1

	s.Put(types.SyncEntry{
		FileID:         "a-1",
		Counterpart:    "b-1",
		Name:           "old.txt",
		DeletedInA:     true,
		DeletedInB:     true,
		SyncStatus:     types.StatusDeleted,
		DeletedAtCycle: s.Cycle(types.SideA),
		DeletedOn:      types.SideA,
	})
	s.Put(types.SyncEntry{FileID: "a-2", Name: "live.txt", SyncStatus: types.StatusSynced})

	if n := s.EvictExpired(); n != 0 {
		t.Fatalf("eviction before grace elapsed removed %d entries", n)
	}

	s.ReplaceBaseline(types.SideA, nil) // cycle 2: grace cycle
	if n := s.EvictExpired(); n != 0 {
		t.Fatalf("eviction during grace cycle removed %d entries", n)
	}

	s.ReplaceBaseline(types.SideA, nil) // cycle 3: grace elapsed
	if n := s.EvictExpired(); n != 1 {
		t.Fatalf("expected 1 eviction after grace elapsed, got %d", n)
	}
	if _, ok := s.EntryByA("a-1"); ok {
		t.Error("evicted entry still resolvable by A id")
	}
	if _, ok := s.EntryByB("b-1"); ok {
		t.Error("evicted entry still resolvable by B id")
	}
	if _, ok := s.EntryByA("a-2"); !ok {
		t.Error("live entry must survive eviction")
	}
}

func TestEvictionFollowsObservingSideCycles(t *testing.T) {
	s := New()
	s.ReplaceBaseline(types.SideA, nil) // A cycle 1

	s.Put(types.SyncEntry{
		FileID:         "a-1",
		Counterpart:    "b-1",
		Name:           "old.txt",
		DeletedInA:     true,
		DeletedInB:     true,
		SyncStatus:     types.StatusDeleted,
		DeletedAtCycle: s.Cycle(types.SideA),
		DeletedOn:      types.SideA,
	})

	// Side B polling much faster must not shorten the grace period of a
	// deletion observed on side A.
	for i := 0; i < 5; i++ {
		s.ReplaceBaseline(types.SideB, nil)
	}
	if n := s.EvictExpired(); n != 0 {
		t.Fatalf("side B polls evicted a deletion observed on side A (%d entries)", n)
	}

	s.ReplaceBaseline(types.SideA, nil) // A cycle 2: grace cycle
	if n := s.EvictExpired(); n != 0 {
		t.Fatalf("evicted during side A's grace cycle (%d entries)", n)
	}

	s.ReplaceBaseline(types.SideA, nil) // A cycle 3: grace elapsed
	if n := s.EvictExpired(); n != 1 {
		t.Fatalf("expected 1 eviction after side A's grace elapsed, got %d", n)
	}
}

func TestEntriesSorted(t *testing.T) {
	s := New()
	s.Put(types.SyncEntry{FileID: "a-2", Name: "b.txt", Path: "/b.txt", LastModified: time.Now()})
	s.Put(types.SyncEntry{FileID: "a-1", Name: "a.txt", Path: "/a.txt", LastModified: time.Now()})

	entries := s.Entries()
	if len(entries) != 2 || entries[0].Path != "/a.txt" || entries[1].Path != "/b.txt" {
		t.Errorf("expected path-sorted entries, got %+v", entries)
	}
}
