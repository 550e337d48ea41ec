package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/syncbridge/syncbridge/internal/recordstore"
	"github.com/syncbridge/syncbridge/pkg/types"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func sampleEntry(id string) types.SyncEntry {
	return types.SyncEntry{
		FileID:      id,
		Counterpart: "cp-" + id,
		Name:        id + ".pdf",
		Path:        "/" + id + ".pdf",
		Size:        1024,
		SyncStatus:  types.StatusSynced,
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)

	j.Record("propagate_A_to_B", sampleEntry("f1"))
	j.Record("delete_A_to_B", sampleEntry("f2"))

	recent, err := j.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 log rows, got %d", len(recent))
	}
	// Most recent first.
	if recent[0].Action != "delete_A_to_B" || recent[1].Action != "propagate_A_to_B" {
		t.Errorf("unexpected order: %s, %s", recent[0].Action, recent[1].Action)
	}
	if recent[1].FileID != "f1" || recent[1].Path != "/f1.pdf" || recent[1].Status != "synced" {
		t.Errorf("log row lost fields: %+v", recent[1])
	}
}

func TestOutboxDrainAndMark(t *testing.T) {
	j := openTestJournal(t)

	for _, id := range []string{"f1", "f2", "f3"} {
		j.Record("propagate_A_to_B", sampleEntry(id))
	}

	events, err := j.UnpublishedEvents(100)
	if err != nil {
		t.Fatalf("UnpublishedEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 unpublished events, got %d", len(events))
	}
	if events[0].ID >= events[1].ID {
		t.Error("outbox must drain oldest first")
	}

	if err := j.MarkPublished([]int64{events[0].ID, events[1].ID}); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	remaining, err := j.UnpublishedEvents(100)
	if err != nil {
		t.Fatalf("UnpublishedEvents after mark: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != events[2].ID {
		t.Errorf("expected only the unmarked event to remain, got %+v", remaining)
	}
}

func TestStateSnapshotRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	store := recordstore.New()
	e := sampleEntry("f1")
	e.LastModified = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store.Put(e)
	store.ReplaceBaseline(types.SideA, []types.FileRecord{
		{ID: "f1", Name: "f1.pdf", Path: "/f1.pdf", Size: 1024, ModifiedAt: e.LastModified},
	})

	if err := j.SaveState(store.Export()); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	st, err := j.LoadState()
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	restored := recordstore.New()
	restored.Restore(st)

	got, ok := restored.EntryByA("f1")
	if !ok {
		t.Fatal("restored store lost the entry")
	}
	if got.Counterpart != "cp-f1" || !got.LastModified.Equal(e.LastModified) {
		t.Errorf("restored entry differs: %+v", got)
	}
	if _, ok := restored.EntryByB("cp-f1"); !ok {
		t.Error("restored store lost the counterpart index")
	}
	if base := restored.Snapshot(types.SideA); len(base) != 1 || base["f1"].Size != 1024 {
		t.Errorf("restored baseline differs: %+v", base)
	}
}

func TestLoadStateWithoutSnapshot(t *testing.T) {
	j := openTestJournal(t)
	if _, err := j.LoadState(); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}
