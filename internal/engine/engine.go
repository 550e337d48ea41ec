// Package engine assembles the sync service: two storage adapters, a watcher
// per side, the orchestrator, the enrichment pipeline, and the optional
// journal and audit publisher. The HTTP layer talks only to the engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/conflict"
	"github.com/syncbridge/syncbridge/internal/enrich"
	"github.com/syncbridge/syncbridge/internal/events"
	"github.com/syncbridge/syncbridge/internal/journal"
	"github.com/syncbridge/syncbridge/internal/orchestrator"
	"github.com/syncbridge/syncbridge/internal/recordstore"
	"github.com/syncbridge/syncbridge/internal/storage"
	"github.com/syncbridge/syncbridge/internal/watcher"
	"github.com/syncbridge/syncbridge/pkg/types"
)

// snapshotInterval is how often the record store is persisted to the journal
// snapshot file. A snapshot is also taken on shutdown.
const snapshotInterval = 30 * time.Second

// Engine owns every long-running component of the sync service.
type Engine struct {
	cfg      *config.Config
	store    *recordstore.Store
	adapters map[types.Side]storage.Adapter
	watchers map[types.Side]*watcher.Watcher
	orch     *orchestrator.Orchestrator
	pipeline *enrich.Pipeline
	journal  *journal.Journal
	pub      *events.Publisher

	pg *storage.PostgresAdapter // non-nil only in live B mode, for Close

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New builds the engine from configuration. Live adapters are constructed
// only for sides configured live; everything else runs simulated.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		store:    recordstore.New(),
		adapters: make(map[types.Side]storage.Adapter, 2),
		watchers: make(map[types.Side]*watcher.Watcher, 2),
		stop:     make(chan struct{}),
	}

	if cfg.SideA.Mode == "live" {
		a, err := storage.NewS3Adapter(storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			TargetRoot:      cfg.SideA.TargetRoot,
		})
		if err != nil {
			return nil, fmt.Errorf("side A adapter: %w", err)
		}
		e.adapters[types.SideA] = a
	} else {
		e.adapters[types.SideA] = storage.NewSimAdapter(types.SideA, storage.DefaultSeed(types.SideA))
	}

	if cfg.SideB.Mode == "live" {
		b, err := storage.NewPostgresAdapter(ctx, cfg.DatabaseURL, cfg.SideB.TargetRoot)
		if err != nil {
			return nil, fmt.Errorf("side B adapter: %w", err)
		}
		e.adapters[types.SideB] = b
		e.pg = b
	} else {
		e.adapters[types.SideB] = storage.NewSimAdapter(types.SideB, storage.DefaultSeed(types.SideB))
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		e.journal = j

		st, err := j.LoadState()
		switch {
		case err == nil:
			e.store.Restore(st)
			log.Printf("engine: restored %d entries from state snapshot", len(st.Entries))
		case errors.Is(err, journal.ErrNoSnapshot):
		default:
			log.Printf("engine: state snapshot unreadable, starting fresh: %v", err)
		}
	}

	var ocrClient *enrich.Client
	if cfg.OCREnabled {
		ocrClient = enrich.NewClient(cfg.OCRBaseURL, cfg.OCRAPIKey, cfg.CallTimeout)
	}
	e.pipeline = enrich.New(enrich.Config{
		Enabled:     cfg.OCREnabled,
		Client:      ocrClient,
		Store:       e.store,
		Adapters:    e.adapters,
		CallTimeout: cfg.CallTimeout,
	})

	strategy, err := conflict.FromName(cfg.ConflictResolution)
	if err != nil {
		return nil, err
	}

	eventCh := make(chan types.ChangeEvent, 256)

	var orchJournal orchestrator.Journal
	if e.journal != nil {
		orchJournal = e.journal
	}
	e.orch = orchestrator.New(orchestrator.Config{
		Store:       e.store,
		Adapters:    e.adapters,
		Strategy:    strategy,
		Pipeline:    e.pipeline,
		Events:      eventCh,
		Journal:     orchJournal,
		SyncMode:    cfg.SyncMode,
		AutoRetry:   cfg.AutoRetry,
		CallTimeout: cfg.CallTimeout,
	})

	for side, sc := range map[types.Side]config.SideConfig{
		types.SideA: cfg.SideA,
		types.SideB: cfg.SideB,
	} {
		e.watchers[side] = watcher.New(watcher.Config{
			Adapter:     e.adapters[side],
			Store:       e.store,
			Events:      eventCh,
			Interval:    sc.PollingInterval,
			Recursive:   sc.WatchSubfolders,
			CallTimeout: cfg.CallTimeout,
		})
	}

	if cfg.NATSURL != "" {
		if e.journal == nil {
			return nil, fmt.Errorf("audit publishing requires SYNCBRIDGE_JOURNAL_PATH")
		}
		pub, err := events.NewPublisher(cfg.NATSURL, "syncbridge", e.journal)
		if err != nil {
			return nil, fmt.Errorf("audit publisher: %w", err)
		}
		e.pub = pub
	}

	return e, nil
}

// Start brings up every component and runs an immediate first poll so the
// initial state converges without waiting for the first tick.
func (e *Engine) Start() {
	e.orch.Start()
	for _, w := range e.watchers {
		w.Start()
	}
	e.pipeline.Start()
	if e.pub != nil {
		e.pub.Start()
	}

	if e.journal != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			ticker := time.NewTicker(snapshotInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := e.journal.SaveState(e.store.Export()); err != nil {
						log.Printf("engine: state snapshot failed: %v", err)
					}
				case <-e.stop:
					return
				}
			}
		}()
	}

	e.running.Store(true)
	go func() {
		e.watchers[types.SideA].Poll()
		e.watchers[types.SideB].Poll()
	}()
	log.Printf("engine: started (A=%s, B=%s, mode=%s)", e.cfg.SideA.Mode, e.cfg.SideB.Mode, e.cfg.SyncMode)
}

// Stop shuts everything down in dependency order and persists a final state
// snapshot.
func (e *Engine) Stop() {
	e.running.Store(false)
	close(e.stop)

	for _, w := range e.watchers {
		w.Stop()
	}
	e.orch.Stop()
	e.pipeline.Stop()
	if e.pub != nil {
		e.pub.Stop()
	}
	e.wg.Wait()

	if e.journal != nil {
		if err := e.journal.SaveState(e.store.Export()); err != nil {
			log.Printf("engine: final state snapshot failed: %v", err)
		}
		e.journal.Close()
	}
	if e.pg != nil {
		e.pg.Close()
	}
	log.Printf("engine: stopped")
}

// ForceSync polls both sides immediately and sweeps unsynced entries.
// Returns the number of change events observed and the number of entries
// retried.
func (e *Engine) ForceSync(ctx context.Context) (observed, retried int) {
	for _, side := range []types.Side{types.SideA, types.SideB} {
		if n := e.watchers[side].Poll(); n > 0 {
			observed += n
		}
	}
	retried = e.orch.RetryErrored(ctx)
	return observed, retried
}

// Health probes every component. Overall status is "healthy" only when all
// components report healthy, "unhealthy" otherwise.
func (e *Engine) Health(ctx context.Context) types.HealthReport {
	components := map[string]bool{
		"source_a":     e.adapters[types.SideA].HealthCheck(ctx),
		"source_b":     e.adapters[types.SideB].HealthCheck(ctx),
		"orchestrator": e.orch.Running(),
		"ocr":          e.pipeline.Healthy(ctx),
	}
	if e.pub != nil {
		components["audit_stream"] = e.pub.Connected()
	}

	status := "healthy"
	for _, ok := range components {
		if !ok {
			status = "unhealthy"
			break
		}
	}
	return types.HealthReport{Status: status, Components: components}
}

// Metrics returns the current sync counters.
func (e *Engine) Metrics() types.SyncMetrics {
	return e.orch.Metrics()
}

// EnrichmentStats returns the OCR pipeline counters.
func (e *Engine) EnrichmentStats() types.EnrichmentStats {
	return e.pipeline.Stats()
}

// Entries returns every tracked entry.
func (e *Engine) Entries() []types.SyncEntry {
	return e.store.Entries()
}

// ResolveConflict settles a frozen conflict in favor of the given side.
func (e *Engine) ResolveConflict(fileID string, winner types.Side) error {
	return e.orch.ResolveConflict(fileID, winner)
}

// ProcessBacklog drains the enrichment queue now.
func (e *Engine) ProcessBacklog(ctx context.Context) int {
	return e.pipeline.ProcessBacklog(ctx)
}

// History returns recent journal rows, or nil when no journal is configured.
func (e *Engine) History(limit int) ([]journal.LogEntry, error) {
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.Recent(limit)
}

// Config returns the redacted configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg.Redacted()
}

// Running reports whether Start has been called and Stop has not.
func (e *Engine) Running() bool {
	return e.running.Load()
}
