// Package watcher polls one storage adapter on a fixed interval, diffs the
// fresh listing against the record store baseline, and emits typed change
// events. One watcher instance runs per side.
package watcher

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syncbridge/syncbridge/internal/metrics"
	"github.com/syncbridge/syncbridge/internal/recordstore"
	"github.com/syncbridge/syncbridge/internal/storage"
	"github.com/syncbridge/syncbridge/pkg/types"
)

// Config configures a per-side watcher.
type Config struct {
	Adapter     storage.Adapter
	Store       *recordstore.Store
	Events      chan<- types.ChangeEvent
	Interval    time.Duration
	Recursive   bool
	CallTimeout time.Duration // bound on the listing call, default 45s
}

// Watcher runs the Idle → Polling → Diffing loop for one side.
type Watcher struct {
	adapter   storage.Adapter
	store     *recordstore.Store
	events    chan<- types.ChangeEvent
	interval  time.Duration
	recursive bool
	timeout   time.Duration

	inFlight atomic.Bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a watcher. It does not start polling until Start is called.
func New(cfg Config) *Watcher {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Watcher{
		adapter:   cfg.Adapter,
		store:     cfg.Store,
		events:    cfg.Events,
		interval:  cfg.Interval,
		recursive: cfg.Recursive,
		timeout:   timeout,
		stop:      make(chan struct{}),
	}
}

// Start begins the polling loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Poll()
			case <-w.stop:
				return
			}
		}
	}()
	log.Printf("watcher: side %s started (interval=%s, recursive=%v)", w.adapter.Side(), w.interval, w.recursive)
}

// Stop stops the polling loop. An in-flight poll is allowed to finish; its
// events are discarded if nobody is reading the channel anymore.
func (w *Watcher) Stop() {
	close(w.stop)
	w.wg.Wait()
}

// Poll runs one list-and-diff pass. If a poll is already in flight the call
// is skipped: at most one poll per side at any time. Returns the number of
// events emitted, or -1 if the tick was skipped.
func (w *Watcher) Poll() int {
	if !w.inFlight.CompareAndSwap(false, true) {
		log.Printf("watcher: side %s poll still in flight, skipping tick", w.adapter.Side())
		return -1
	}
	defer w.inFlight.Store(false)

	side := w.adapter.Side()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	current, err := w.adapter.List(ctx, w.recursive)
	if err != nil {
		// The baseline is left untouched; the next tick re-detects whatever
		// this pass missed.
		metrics.PollErrorsTotal.WithLabelValues(string(side)).Inc()
		log.Printf("watcher: side %s listing failed: %v", side, err)
		return 0
	}

	cached := w.store.Snapshot(side)
	events := Diff(side, cached, current)

	// The fresh listing becomes the new baseline regardless of whether
	// downstream reconciliation succeeds; failed reconciliations are retried
	// through syncStatus=error, not by re-diffing.
	w.store.ReplaceBaseline(side, current)

	for _, ev := range events {
		metrics.ChangeEventsTotal.WithLabelValues(string(side), string(ev.Type)).Inc()
		select {
		case w.events <- ev:
		case <-w.stop:
			metrics.PollDuration.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())
			return len(events)
		}
	}

	metrics.PollDuration.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())
	return len(events)
}
