package watcher

import (
	"testing"
	"time"

	"github.com/syncbridge/syncbridge/pkg/types"
)

func rec(id, path string, size int64, mod time.Time) types.FileRecord {
	return types.FileRecord{ID: id, Name: path[1:], Path: path, Size: size, ModifiedAt: mod}
}

func TestDiff_Created(t *testing.T) {
	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cached := map[string]types.FileRecord{}
	current := []types.FileRecord{rec("a-1", "/new.pdf", 100, mod)}

	events := Diff(types.SideA, cached, current)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != types.ChangeCreated || ev.FileID != "a-1" || ev.Source != types.SideA {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.ID == "" {
		t.Error("event must carry a unique id")
	}
}

func TestDiff_Deleted(t *testing.T) {
	mod := time.Now().UTC()
	cached := map[string]types.FileRecord{
		"a-1": rec("a-1", "/gone.txt", 10, mod),
	}

	events := Diff(types.SideA, cached, nil)
	if len(events) != 1 || events[0].Type != types.ChangeDeleted {
		t.Fatalf("expected single deleted event, got %+v", events)
	}
}

func TestDiff_DeletedSkipsAlreadyMarked(t *testing.T) {
	mod := time.Now().UTC()
	prev := rec("a-1", "/gone.txt", 10, mod)
	prev.Deleted = true
	cached := map[string]types.FileRecord{"a-1": prev}

	if events := Diff(types.SideA, cached, nil); len(events) != 0 {
		t.Errorf("already-marked deletion must not re-emit, got %+v", events)
	}
}

func TestDiff_UpdatedOnSizeOrModTime(t *testing.T) {
	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cached := map[string]types.FileRecord{
		"a-1": rec("a-1", "/same.txt", 10, mod),
		"a-2": rec("a-2", "/bigger.txt", 10, mod),
		"a-3": rec("a-3", "/newer.txt", 10, mod),
	}
	current := []types.FileRecord{
		rec("a-1", "/same.txt", 10, mod),
		rec("a-2", "/bigger.txt", 20, mod),
		rec("a-3", "/newer.txt", 10, mod.Add(time.Minute)),
	}

	events := Diff(types.SideB, cached, current)
	if len(events) != 2 {
		t.Fatalf("expected 2 updated events, got %d: %+v", len(events), events)
	}
	for _, ev := range events {
		if ev.Type != types.ChangeUpdated {
			t.Errorf("expected updated, got %s for %s", ev.Type, ev.FileID)
		}
		if ev.FileID == "a-1" {
			t.Error("unchanged record must not emit an event")
		}
	}
}

func TestDiff_MoveCarriesOldAndNewPath(t *testing.T) {
	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cached := map[string]types.FileRecord{
		"a-1": rec("a-1", "/old/name.txt", 10, mod),
	}
	current := []types.FileRecord{rec("a-1", "/new/name.txt", 10, mod.Add(time.Second))}

	events := Diff(types.SideA, cached, current)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].OldPath != "/old/name.txt" || events[0].NewPath != "/new/name.txt" {
		t.Errorf("expected move paths, got old=%q new=%q", events[0].OldPath, events[0].NewPath)
	}
}

// The emitted set must exactly partition: created = current∖cached,
// deleted = cached∖current (minus already-deleted), updated = changed pairs.
func TestDiff_Partition(t *testing.T) {
	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cached := map[string]types.FileRecord{
		"keep":    rec("keep", "/keep.txt", 1, mod),
		"change":  rec("change", "/change.txt", 1, mod),
		"remove":  rec("remove", "/remove.txt", 1, mod),
		"removed": {ID: "removed", Name: "removed.txt", Path: "/removed.txt", Deleted: true, ModifiedAt: mod},
	}
	current := []types.FileRecord{
		rec("keep", "/keep.txt", 1, mod),
		rec("change", "/change.txt", 2, mod),
		rec("add", "/add.txt", 1, mod),
	}

	events := Diff(types.SideA, cached, current)

	got := map[types.ChangeType][]string{}
	for _, ev := range events {
		got[ev.Type] = append(got[ev.Type], ev.FileID)
	}

	if len(got[types.ChangeCreated]) != 1 || got[types.ChangeCreated][0] != "add" {
		t.Errorf("created = %v, want [add]", got[types.ChangeCreated])
	}
	if len(got[types.ChangeUpdated]) != 1 || got[types.ChangeUpdated][0] != "change" {
		t.Errorf("updated = %v, want [change]", got[types.ChangeUpdated])
	}
	if len(got[types.ChangeDeleted]) != 1 || got[types.ChangeDeleted][0] != "remove" {
		t.Errorf("deleted = %v, want [remove]", got[types.ChangeDeleted])
	}
}

func TestDiff_EmissionOrder(t *testing.T) {
	mod := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cached := map[string]types.FileRecord{
		"upd": rec("upd", "/upd.txt", 1, mod),
		"del": rec("del", "/del.txt", 1, mod),
	}
	current := []types.FileRecord{
		rec("new", "/new.txt", 1, mod),
		rec("upd", "/upd.txt", 2, mod),
	}

	events := Diff(types.SideA, cached, current)
	want := []types.ChangeType{types.ChangeCreated, types.ChangeUpdated, types.ChangeDeleted}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], ev.Type)
		}
	}
}
