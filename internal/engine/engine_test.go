package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/pkg/types"
)

func simConfig() *config.Config {
	return &config.Config{
		Port: 8080,
		SideA: config.SideConfig{
			Mode:            "simulated",
			TargetRoot:      "sync/",
			PollingInterval: 20 * time.Millisecond,
			WatchSubfolders: true,
		},
		SideB: config.SideConfig{
			Mode:            "simulated",
			TargetRoot:      "/",
			PollingInterval: 20 * time.Millisecond,
			WatchSubfolders: true,
		},
		SyncMode:           config.ModeBidirectional,
		ConflictResolution: config.ConflictLatestWins,
		AutoRetry:          true,
		CallTimeout:        5 * time.Second,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %s: %s", timeout, msg)
}

func TestSimulatedEngineConverges(t *testing.T) {
	cfg := simConfig()
	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.Start()
	defer e.Stop()

	// Both sides seed the same three paths, so the engine first resolves the
	// startup collisions and then settles.
	waitFor(t, 5*time.Second, func() bool {
		m := e.Metrics()
		return m.TotalFiles == 3 && m.SyncedFiles == 3
	}, "all seed files synced")

	for _, entry := range e.Entries() {
		if entry.SyncStatus != types.StatusSynced {
			t.Errorf("entry %s is %s after convergence", entry.Path, entry.SyncStatus)
		}
		if entry.FileID == "" || entry.Counterpart == "" {
			t.Errorf("entry %s not linked on both sides: %+v", entry.Path, entry)
		}
	}

	report := e.Health(context.Background())
	if report.Status != "healthy" {
		t.Errorf("health = %+v, want healthy", report)
	}
	if !report.Components["source_a"] || !report.Components["source_b"] || !report.Components["orchestrator"] {
		t.Errorf("unexpected component states: %+v", report.Components)
	}
	if !e.Running() {
		t.Error("engine must report running after Start")
	}
}

func TestForceSyncOnSettledEngine(t *testing.T) {
	e, err := New(context.Background(), simConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Start()
	defer e.Stop()

	waitFor(t, 5*time.Second, func() bool {
		m := e.Metrics()
		return m.TotalFiles == 3 && m.SyncedFiles == 3
	}, "engine settled")

	// A settled engine has nothing to observe or retry.
	observed, retried := e.ForceSync(context.Background())
	if observed != 0 || retried != 0 {
		t.Errorf("force sync on settled engine: observed=%d retried=%d, want 0/0", observed, retried)
	}
}

func TestJournalPersistsAcrossRestart(t *testing.T) {
	cfg := simConfig()
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Start()
	waitFor(t, 5*time.Second, func() bool {
		m := e.Metrics()
		return m.TotalFiles == 3 && m.SyncedFiles == 3
	}, "engine settled before shutdown")
	e.Stop()

	// A restarted engine resumes from the persisted state instead of
	// rediscovering everything.
	restarted, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer restarted.Stop()
	entries := restarted.Entries()
	if len(entries) != 3 {
		t.Fatalf("restored %d entries, want 3", len(entries))
	}
	for _, entry := range entries {
		if entry.SyncStatus != types.StatusSynced {
			t.Errorf("restored entry %s lost its status: %s", entry.Path, entry.SyncStatus)
		}
	}

	history, err := restarted.History(50)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) == 0 {
		t.Error("journal lost the reconciliation history")
	}
}
