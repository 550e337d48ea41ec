package watcher

import (
	"errors"
	"testing"
	"time"

	"github.com/syncbridge/syncbridge/internal/recordstore"
	"github.com/syncbridge/syncbridge/internal/storage"
	"github.com/syncbridge/syncbridge/pkg/types"
)

func newTestWatcher(t *testing.T, adapter storage.Adapter) (*Watcher, *recordstore.Store, chan types.ChangeEvent) {
	t.Helper()
	store := recordstore.New()
	events := make(chan types.ChangeEvent, 64)
	w := New(Config{
		Adapter:   adapter,
		Store:     store,
		Events:    events,
		Interval:  time.Hour, // ticks driven manually via Poll in tests
		Recursive: true,
	})
	return w, store, events
}

func TestPoll_EmitsCreatedForSeed(t *testing.T) {
	sim := storage.NewSimAdapter(types.SideA, storage.DefaultSeed(types.SideA))
	w, store, events := newTestWatcher(t, sim)

	n := w.Poll()
	if n != 3 {
		t.Fatalf("expected 3 events on first poll, got %d", n)
	}
	for i := 0; i < 3; i++ {
		ev := <-events
		if ev.Type != types.ChangeCreated {
			t.Errorf("expected created, got %s", ev.Type)
		}
	}

	if got := len(store.Snapshot(types.SideA)); got != 3 {
		t.Errorf("expected baseline of 3 records, got %d", got)
	}
}

func TestPoll_SecondPassQuiet(t *testing.T) {
	sim := storage.NewSimAdapter(types.SideA, storage.DefaultSeed(types.SideA))
	w, _, events := newTestWatcher(t, sim)

	w.Poll()
	for len(events) > 0 {
		<-events
	}

	if n := w.Poll(); n != 0 {
		t.Errorf("expected quiet second poll, got %d events", n)
	}
}

func TestPoll_DetectsExternalDeletion(t *testing.T) {
	sim := storage.NewSimAdapter(types.SideA, storage.DefaultSeed(types.SideA))
	w, _, events := newTestWatcher(t, sim)

	w.Poll()
	for len(events) > 0 {
		<-events
	}

	sim.Remove("sim-a-2")

	if n := w.Poll(); n != 1 {
		t.Fatalf("expected exactly 1 deleted event, got %d", n)
	}
	ev := <-events
	if ev.Type != types.ChangeDeleted || ev.FileID != "sim-a-2" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestPoll_ListingFailureKeepsBaseline(t *testing.T) {
	sim := storage.NewSimAdapter(types.SideA, storage.DefaultSeed(types.SideA))
	w, store, events := newTestWatcher(t, sim)

	w.Poll()
	for len(events) > 0 {
		<-events
	}
	before := store.Cycle(types.SideA)

	sim.SetError(errListFailed)
	if n := w.Poll(); n != 0 {
		t.Errorf("expected no events on failed poll, got %d", n)
	}
	if store.Cycle(types.SideA) != before {
		t.Error("failed poll must not advance the baseline")
	}

	// Recovery: next poll picks up exactly where it left off.
	sim.SetError(nil)
	if n := w.Poll(); n != 0 {
		t.Errorf("expected quiet poll after recovery, got %d events", n)
	}
}

var errListFailed = errors.New("listing failed")
