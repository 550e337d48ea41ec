// Package orchestrator turns change events from both watchers into mutations
// on the opposite side's adapter, keeping the SyncEntry model and the sync
// metrics consistent. It is the single writer of the record store.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/conflict"
	"github.com/syncbridge/syncbridge/internal/enrich"
	"github.com/syncbridge/syncbridge/internal/metrics"
	"github.com/syncbridge/syncbridge/internal/recordstore"
	"github.com/syncbridge/syncbridge/internal/storage"
	"github.com/syncbridge/syncbridge/pkg/types"
)

// Journal receives a record of every applied reconciliation action. A nil
// journal disables persistence.
type Journal interface {
	Record(action string, e types.SyncEntry)
}

// Config wires the orchestrator's dependencies.
type Config struct {
	Store    *recordstore.Store
	Adapters map[types.Side]storage.Adapter
	Strategy conflict.Strategy
	Pipeline *enrich.Pipeline
	Events   <-chan types.ChangeEvent
	Journal  Journal                 // optional
	Audit    func(types.ChangeEvent) // optional, called for every consumed event

	SyncMode    string // config.ModeBidirectional / ModeAToB / ModeBToA
	AutoRetry   bool
	CallTimeout time.Duration
	// RetryInterval is how often errored entries are swept when AutoRetry
	// is on, default 60s.
	RetryInterval time.Duration
	// MetricsInterval is how often the derived counters are recomputed
	// between reconciliations, default 30s.
	MetricsInterval time.Duration
}

// Orchestrator consumes change events strictly sequentially and applies the
// corresponding adapter calls.
type Orchestrator struct {
	store    *recordstore.Store
	adapters map[types.Side]storage.Adapter
	strategy conflict.Strategy
	pipeline *enrich.Pipeline
	events   <-chan types.ChangeEvent
	journal  Journal
	audit    func(types.ChangeEvent)

	mode            string
	autoRetry       bool
	timeout         time.Duration
	retryInterval   time.Duration
	metricsInterval time.Duration

	mu      sync.Mutex
	metrics types.SyncMetrics

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New creates the orchestrator.
func New(cfg Config) *Orchestrator {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = 60 * time.Second
	}
	refresh := cfg.MetricsInterval
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &Orchestrator{
		store:           cfg.Store,
		adapters:        cfg.Adapters,
		strategy:        cfg.Strategy,
		pipeline:        cfg.Pipeline,
		events:          cfg.Events,
		journal:         cfg.Journal,
		audit:           cfg.Audit,
		mode:            cfg.SyncMode,
		autoRetry:       cfg.AutoRetry,
		timeout:         timeout,
		retryInterval:   retry,
		metricsInterval: refresh,
		stop:            make(chan struct{}),
	}
}

// Start begins consuming change events.
func (o *Orchestrator) Start() {
	o.running.Store(true)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case ev := <-o.events:
				batch := []types.ChangeEvent{ev}
				// Drain whatever else is already queued: one batch is one
				// reconciliation window for conflict detection.
			drain:
				for {
					select {
					case next := <-o.events:
						batch = append(batch, next)
					default:
						break drain
					}
				}
				o.ReconcileBatch(batch)
			case <-o.stop:
				return
			}
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(o.metricsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				o.refreshMetrics()
			case <-o.stop:
				return
			}
		}
	}()

	if o.autoRetry {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			ticker := time.NewTicker(o.retryInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := o.RetryErrored(context.Background()); n > 0 {
						log.Printf("orchestrator: retried %d unsynced entries", n)
					}
				case <-o.stop:
					return
				}
			}
		}()
	}

	log.Printf("orchestrator: started (mode=%s, strategy=%s, autoRetry=%v)", o.mode, o.strategy.Name(), o.autoRetry)
}

// Stop stops event consumption. In-flight adapter calls complete but their
// results are discarded by the stopped loop.
func (o *Orchestrator) Stop() {
	o.running.Store(false)
	close(o.stop)
	o.wg.Wait()
}

// Running reports whether the reconciliation loop is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Metrics returns a copy of the current counters.
func (o *Orchestrator) Metrics() types.SyncMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

// ReconcileBatch processes one batch of change events. Events inside a batch
// are grouped per logical file; a group touched by both sides is a conflict
// and goes through the configured strategy with both records still intact.
func (o *Orchestrator) ReconcileBatch(events []types.ChangeEvent) {
	ctx := context.Background()

	type group struct {
		key    string
		events []types.ChangeEvent
	}
	var order []string
	groups := make(map[string]*group)

	for _, ev := range events {
		if o.audit != nil {
			o.audit(ev)
		}
		if o.passive(ev.Source) {
			continue // one-directional mode ignores the passive side
		}
		key := o.entryKeyFor(ev)
		g, ok := groups[key]
		if !ok {
			g = &group{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.events = append(g.events, ev)
	}

	for _, key := range order {
		g := groups[key]
		if a, b, ok := conflictPair(g.events); ok {
			o.resolveConflict(ctx, key, a, b)
			continue
		}
		for _, ev := range g.events {
			o.reconcile(ctx, ev)
		}
	}

	o.store.EvictExpired()
	o.refreshMetrics()
	o.markSyncTime()
}

// passive reports whether events from this side are ignored under the
// configured sync mode.
func (o *Orchestrator) passive(side types.Side) bool {
	switch o.mode {
	case config.ModeAToB:
		return side == types.SideB
	case config.ModeBToA:
		return side == types.SideA
	default:
		return false
	}
}

// entryKeyFor maps an event onto its logical entry, linking by side id
// first and by path second.
func (o *Orchestrator) entryKeyFor(ev types.ChangeEvent) string {
	if e, ok := o.store.EntryBySide(ev.Source, ev.FileID); ok {
		if e.FileID != "" {
			return e.FileID
		}
		return "b:" + e.Counterpart
	}
	if e, ok := o.store.EntryByPath(ev.Record.Path); ok {
		if e.FileID != "" {
			return e.FileID
		}
		return "b:" + e.Counterpart
	}
	// Unlinked events group by path, so the same file appearing on both
	// sides within one batch lands in one group.
	if ev.Record.Path != "" {
		return "p:" + ev.Record.Path
	}
	if ev.Source == types.SideA {
		return ev.FileID
	}
	return "b:" + ev.FileID
}

// conflictPair reports whether a group contains write events from both
// sides, returning the two sides' records.
func conflictPair(events []types.ChangeEvent) (a, b types.FileRecord, ok bool) {
	var haveA, haveB bool
	for _, ev := range events {
		if ev.Type == types.ChangeDeleted {
			continue
		}
		switch ev.Source {
		case types.SideA:
			a, haveA = ev.Record, true
		case types.SideB:
			b, haveB = ev.Record, true
		}
	}
	return a, b, haveA && haveB
}

// reconcile applies one event.
func (o *Orchestrator) reconcile(ctx context.Context, ev types.ChangeEvent) {
	entry, exists := o.lookup(ev)

	if exists && entry.SyncStatus == types.StatusConflict {
		// Manual conflicts are frozen until resolved externally.
		return
	}

	switch ev.Type {
	case types.ChangeCreated, types.ChangeUpdated:
		o.reconcileWrite(ctx, entry, exists, ev)
	case types.ChangeDeleted:
		o.reconcileDelete(ctx, entry, exists, ev)
	}
}

func (o *Orchestrator) lookup(ev types.ChangeEvent) (types.SyncEntry, bool) {
	if e, ok := o.store.EntryBySide(ev.Source, ev.FileID); ok {
		return e, true
	}
	if e, ok := o.store.EntryByPath(ev.Record.Path); ok {
		return e, true
	}
	return types.SyncEntry{}, false
}

func (o *Orchestrator) reconcileWrite(ctx context.Context, entry types.SyncEntry, exists bool, ev types.ChangeEvent) {
	r := ev.Record
	src := ev.Source

	if !exists {
		entry = o.newEntry(ev)
		o.store.Put(entry)
	} else {
		// Replay guard: an event describing exactly the state we already
		// synced produces no adapter calls and no metric drift.
		if entry.SyncStatus == types.StatusSynced &&
			o.sideID(entry, src) == r.ID &&
			entry.LastModified.Equal(r.ModifiedAt) && entry.Size == r.Size {
			return
		}

		// A write stamped before our last propagation may have been
		// concurrent with the change we already pushed. It is only a
		// conflict when the counterpart actually diverged: a counterpart
		// still holding our own propagated copy must not outrank an
		// incoming write just because the backend's clock lags ours.
		if entry.SyncStatus == types.StatusSynced && !entry.LastPropagatedAt.IsZero() &&
			!r.ModifiedAt.After(entry.LastPropagatedAt) && o.counterpartID(entry, src) != "" {
			peer := o.peerRecord(entry, src.Opposite())
			if peerDiverged(entry, peer) {
				if src == types.SideA {
					o.resolveConflict(ctx, recordKey(entry), r, peer)
				} else {
					o.resolveConflict(ctx, recordKey(entry), peer, r)
				}
				return
			}
		}

		// Adopt the side id if the entry was linked by path.
		entry = o.adoptID(entry, src, r.ID)
	}

	o.propagate(ctx, entry, src, r)
}

// propagate copies the source side's bytes to the opposite adapter and
// settles the entry.
func (o *Orchestrator) propagate(ctx context.Context, entry types.SyncEntry, src types.Side, r types.FileRecord) {
	dst := src.Opposite()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	data, err := o.adapters[src].Download(callCtx, r.ID)
	if err != nil {
		o.fail(entry, "download", src, err)
		return
	}

	uploaded, err := o.adapters[dst].Upload(callCtx, data, r.Name, path.Dir(r.Path))
	if err != nil {
		o.fail(entry, "upload", dst, err)
		return
	}

	// Replacing the counterpart may assign a new id; retire the old record
	// so it neither lingers nor echoes back as a deletion.
	if old := o.counterpartID(entry, src); old != "" && old != uploaded.ID {
		if _, err := o.adapters[dst].Delete(callCtx, old); err != nil {
			log.Printf("orchestrator: failed to retire replaced record %s on side %s: %v", old, dst, err)
		}
		o.store.MarkRecordDeleted(dst, old)
	}

	entry = o.adoptID(entry, src, r.ID)
	entry = o.adoptID(entry, dst, uploaded.ID)
	entry.Name = r.Name
	entry.Path = r.Path
	entry.Size = r.Size
	entry.FileType = r.MimeType
	entry.LastModified = r.ModifiedAt
	entry.SyncStatus = types.StatusSynced
	entry.LastPropagatedAt = time.Now().UTC()
	o.store.Put(entry)

	// The propagated write must not come back as a fresh change on the
	// destination's next diff.
	o.store.UpsertRecord(dst, *uploaded)

	o.countOp("write", "success")
	if o.journal != nil {
		o.journal.Record("propagate_"+string(src)+"_to_"+string(dst), entry)
	}

	// Safe to call unconditionally: the pipeline gates eligibility itself.
	if o.pipeline != nil {
		o.pipeline.ScheduleAnalysis(entry, enrich.DefaultPriority)
	}
}

func (o *Orchestrator) reconcileDelete(ctx context.Context, entry types.SyncEntry, exists bool, ev types.ChangeEvent) {
	if !exists || entry.SyncStatus == types.StatusDeleted {
		return // unknown or already settled: idempotent no-op
	}

	src := ev.Source
	dst := src.Opposite()

	if _, isManual := o.strategy.(conflict.Manual); isManual {
		// Manual strategy intercepts deletions too: flag the side, freeze
		// the entry, wait for an external call.
		entry = setDeleted(entry, src)
		entry.SyncStatus = types.StatusConflict
		o.store.Put(entry)
		metrics.ConflictsTotal.Inc()
		o.mu.Lock()
		o.metrics.ConflictsCount++
		o.mu.Unlock()
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if id := o.counterpartID(entry, src); id != "" {
		if _, err := o.adapters[dst].Delete(callCtx, id); err != nil {
			o.fail(entry, "delete", dst, err)
			return
		}
		o.store.MarkRecordDeleted(dst, id)
	}

	entry.DeletedInA = true
	entry.DeletedInB = true
	entry.SyncStatus = types.StatusDeleted
	entry.DeletedAtCycle = o.store.Cycle(src)
	entry.DeletedOn = src
	o.store.Put(entry)

	o.countOp("delete", "success")
	if o.journal != nil {
		o.journal.Record("delete_"+string(src)+"_to_"+string(dst), entry)
	}
}

// resolveConflict runs the configured strategy over the two sides' records
// and applies the outcome.
func (o *Orchestrator) resolveConflict(ctx context.Context, key string, a, b types.FileRecord) {
	entry, exists := o.entryForKey(key)
	if !exists {
		entry = types.SyncEntry{
			FileID:      a.ID,
			Counterpart: b.ID,
			Name:        a.Name,
			Path:        a.Path,
			Size:        a.Size,
			FileType:    a.MimeType,
			SyncStatus:  types.StatusPending,
		}
		o.store.Put(entry)
	}

	metrics.ConflictsTotal.Inc()
	o.mu.Lock()
	o.metrics.ConflictsCount++
	o.mu.Unlock()

	outcome := o.strategy.Resolve(a, b)
	log.Printf("orchestrator: conflict on %s resolved as %s (strategy=%s)", entry.Path, outcome, o.strategy.Name())

	switch outcome {
	case conflict.WinnerA:
		// A previously propagated copy on B is superseded by B's own
		// conflicting record; retire it so the path holds one file.
		if old := entry.Counterpart; old != "" && old != b.ID {
			o.retire(ctx, types.SideB, old)
		}
		entry = o.adoptID(entry, types.SideB, b.ID)
		o.propagate(ctx, entry, types.SideA, a)
	case conflict.WinnerB:
		if old := entry.FileID; old != "" && old != a.ID {
			o.retire(ctx, types.SideA, old)
		}
		entry = o.adoptID(entry, types.SideA, a.ID)
		o.propagate(ctx, entry, types.SideB, b)
	case conflict.KeepBoth:
		o.keepBoth(ctx, entry, a, b)
	case conflict.Unresolved:
		entry.SyncStatus = types.StatusConflict
		o.store.Put(entry)
	}
}

// keepBoth renames the earlier version into a new, unrelated file on its own
// side, then propagates the later version over the original path. The
// renamed copy is deliberately not suppressed from the baseline so the next
// poll picks it up as a fresh create and syncs it across.
func (o *Orchestrator) keepBoth(ctx context.Context, entry types.SyncEntry, a, b types.FileRecord) {
	winSide, winRec := types.SideA, a
	loseSide, loseRec := types.SideB, b
	if b.ModifiedAt.After(a.ModifiedAt) {
		winSide, winRec = types.SideB, b
		loseSide, loseRec = types.SideA, a
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	data, err := o.adapters[loseSide].Download(callCtx, loseRec.ID)
	if err != nil {
		log.Printf("orchestrator: keep_both could not recover losing copy %s: %v", loseRec.Path, err)
	} else {
		renamed := conflictCopyName(loseRec.Name, loseSide)
		if _, err := o.adapters[loseSide].Upload(callCtx, data, renamed, path.Dir(loseRec.Path)); err != nil {
			log.Printf("orchestrator: keep_both failed to preserve %s as %s: %v", loseRec.Path, renamed, err)
		} else {
			log.Printf("orchestrator: keep_both preserved losing copy as %s on side %s", renamed, loseSide)
		}
	}

	if old := o.sideID(entry, loseSide); old != "" && old != loseRec.ID {
		o.retire(ctx, loseSide, old)
	}
	entry = o.adoptID(entry, loseSide, loseRec.ID)
	o.propagate(ctx, entry, winSide, winRec)
}

// retire deletes a superseded record and suppresses its echo event.
func (o *Orchestrator) retire(ctx context.Context, side types.Side, id string) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if _, err := o.adapters[side].Delete(callCtx, id); err != nil {
		log.Printf("orchestrator: failed to retire superseded record %s on side %s: %v", id, side, err)
		return
	}
	o.store.MarkRecordDeleted(side, id)
}

// conflictCopyName derives the rename for a preserved losing copy, e.g.
// "report.pdf" -> "report (conflicted copy B 2025-06-01 a1b2c3d4).pdf".
func conflictCopyName(name string, side types.Side) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamp := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s (conflicted copy %s %s %s)%s", stem, side, stamp, uuid.NewString()[:8], ext)
}

// ResolveConflict settles a manually-frozen entry: the chosen winner side's
// current content propagates to the other side. If the winner side no longer
// has the file, the deletion propagates instead.
func (o *Orchestrator) ResolveConflict(key string, winner types.Side) error {
	entry, ok := o.entryForKey(key)
	if !ok {
		return fmt.Errorf("no entry for %q", key)
	}
	if entry.SyncStatus != types.StatusConflict {
		return fmt.Errorf("entry %q is %s, not in conflict", key, entry.SyncStatus)
	}

	ctx := context.Background()
	id := o.sideID(entry, winner)
	rec, present := o.store.Snapshot(winner)[id]

	if id == "" || !present || rec.Deleted {
		// Winner side has no live copy: the resolution is a delete.
		entry.SyncStatus = types.StatusPending
		o.store.Put(entry)
		o.reconcileDeleteForced(ctx, entry, winner.Opposite())
	} else {
		entry.SyncStatus = types.StatusPending
		o.store.Put(entry)
		o.propagate(ctx, entry, winner, rec)
	}
	o.refreshMetrics()
	o.markSyncTime()

	settled, _ := o.entryForKey(key)
	if settled.SyncStatus == types.StatusError {
		return fmt.Errorf("resolution of %q failed, entry left in error state", key)
	}
	return nil
}

// reconcileDeleteForced propagates a delete to one side regardless of
// strategy, used by external conflict resolution.
func (o *Orchestrator) reconcileDeleteForced(ctx context.Context, entry types.SyncEntry, dst types.Side) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if id := o.sideID(entry, dst); id != "" {
		if _, err := o.adapters[dst].Delete(callCtx, id); err != nil {
			o.fail(entry, "delete", dst, err)
			return
		}
		o.store.MarkRecordDeleted(dst, id)
	}
	entry.DeletedInA = true
	entry.DeletedInB = true
	entry.SyncStatus = types.StatusDeleted
	entry.DeletedAtCycle = o.store.Cycle(dst)
	entry.DeletedOn = dst
	o.store.Put(entry)
	o.countOp("delete", "success")
}

// RetryErrored re-attempts propagation for entries stuck in error or pending
// state, using the current baselines as the source of truth. Returns the
// number of entries retried.
func (o *Orchestrator) RetryErrored(ctx context.Context) int {
	retried := 0
	for _, entry := range o.store.Entries() {
		if entry.SyncStatus != types.StatusError && entry.SyncStatus != types.StatusPending {
			continue
		}

		src, rec, ok := o.originRecord(entry)
		if !ok {
			continue
		}
		if o.passive(src) {
			continue
		}
		o.propagate(ctx, entry, src, rec)
		retried++
	}
	if retried > 0 {
		o.refreshMetrics()
		o.markSyncTime()
	}
	return retried
}

// originRecord picks the side to re-propagate from: the only side that has
// the file, or the later-modified one when both do.
func (o *Orchestrator) originRecord(entry types.SyncEntry) (types.Side, types.FileRecord, bool) {
	recA, okA := o.liveRecord(types.SideA, entry.FileID)
	recB, okB := o.liveRecord(types.SideB, entry.Counterpart)

	switch {
	case okA && okB:
		if recB.ModifiedAt.After(recA.ModifiedAt) {
			return types.SideB, recB, true
		}
		return types.SideA, recA, true
	case okA:
		return types.SideA, recA, true
	case okB:
		return types.SideB, recB, true
	default:
		return "", types.FileRecord{}, false
	}
}

func (o *Orchestrator) liveRecord(side types.Side, id string) (types.FileRecord, bool) {
	if id == "" {
		return types.FileRecord{}, false
	}
	rec, ok := o.store.Snapshot(side)[id]
	if !ok || rec.Deleted {
		return types.FileRecord{}, false
	}
	return rec, true
}

// peerDiverged reports whether the counterpart record changed since the last
// propagation. A record still matching the settled entry state is the
// orchestrator's own uploaded copy, not an independent write.
func peerDiverged(entry types.SyncEntry, peer types.FileRecord) bool {
	return peer.ModifiedAt.After(entry.LastPropagatedAt) || peer.Size != entry.Size
}

// peerRecord reconstructs the opposite side's view of the entry for conflict
// resolution, falling back to the entry's own fields when the baseline has
// no record.
func (o *Orchestrator) peerRecord(entry types.SyncEntry, side types.Side) types.FileRecord {
	if rec, ok := o.liveRecord(side, o.sideID(entry, side)); ok {
		return rec
	}
	return types.FileRecord{
		ID:         o.sideID(entry, side),
		Name:       entry.Name,
		Path:       entry.Path,
		Size:       entry.Size,
		MimeType:   entry.FileType,
		ModifiedAt: entry.LastModified,
	}
}

func (o *Orchestrator) newEntry(ev types.ChangeEvent) types.SyncEntry {
	r := ev.Record
	entry := types.SyncEntry{
		Name:         r.Name,
		Path:         r.Path,
		Size:         r.Size,
		FileType:     r.MimeType,
		LastModified: r.ModifiedAt,
		SyncStatus:   types.StatusPending,
	}
	if ev.Source == types.SideA {
		entry.FileID = r.ID
	} else {
		entry.Counterpart = r.ID
	}
	return entry
}

// sideID returns the entry's id on the given side.
func (o *Orchestrator) sideID(entry types.SyncEntry, side types.Side) string {
	if side == types.SideA {
		return entry.FileID
	}
	return entry.Counterpart
}

// counterpartID returns the entry's id on the side opposite the given one.
func (o *Orchestrator) counterpartID(entry types.SyncEntry, side types.Side) string {
	return o.sideID(entry, side.Opposite())
}

func (o *Orchestrator) adoptID(entry types.SyncEntry, side types.Side, id string) types.SyncEntry {
	if side == types.SideA {
		entry.FileID = id
	} else {
		entry.Counterpart = id
	}
	return entry
}

func recordKey(entry types.SyncEntry) string {
	if entry.FileID != "" {
		return entry.FileID
	}
	return "b:" + entry.Counterpart
}

func (o *Orchestrator) entryForKey(key string) (types.SyncEntry, bool) {
	switch {
	case strings.HasPrefix(key, "p:"):
		return o.store.EntryByPath(strings.TrimPrefix(key, "p:"))
	case strings.HasPrefix(key, "b:"):
		return o.store.EntryByB(strings.TrimPrefix(key, "b:"))
	default:
		return o.store.EntryByA(key)
	}
}

func setDeleted(entry types.SyncEntry, side types.Side) types.SyncEntry {
	if side == types.SideA {
		entry.DeletedInA = true
	} else {
		entry.DeletedInB = true
	}
	return entry
}

// fail converts an adapter failure into entry state: syncStatus=error, the
// errors counter bumped, and nothing thrown. The retry sweep or the next
// poll picks the entry up again.
func (o *Orchestrator) fail(entry types.SyncEntry, op string, side types.Side, err error) {
	log.Printf("orchestrator: %s on side %s failed for %s: %v", op, side, entry.Path, err)
	entry.SyncStatus = types.StatusError
	o.store.Put(entry)

	o.mu.Lock()
	o.metrics.ErrorsCount++
	o.mu.Unlock()
	o.countOp(op, "failure")
}

func (o *Orchestrator) countOp(op, result string) {
	metrics.SyncOperationsTotal.WithLabelValues(op, result).Inc()
}

// refreshMetrics recomputes the derived counters from the entry model under
// one lock, so readers never observe a partially updated set.
func (o *Orchestrator) refreshMetrics() {
	entries := o.store.Entries()

	var total, synced, pending int
	for _, e := range entries {
		if e.SyncStatus == types.StatusDeleted {
			continue
		}
		total++
		switch e.SyncStatus {
		case types.StatusSynced:
			synced++
		case types.StatusPending, types.StatusError:
			pending++
		}
	}

	var usedA, usedB int64
	for _, r := range o.store.Snapshot(types.SideA) {
		if !r.Deleted {
			usedA += r.Size
		}
	}
	for _, r := range o.store.Snapshot(types.SideB) {
		if !r.Deleted {
			usedB += r.Size
		}
	}

	o.mu.Lock()
	o.metrics.TotalFiles = total
	o.metrics.SyncedFiles = synced
	o.metrics.PendingOperations = pending
	o.metrics.StorageUsedA = usedA
	o.metrics.StorageUsedB = usedB
	if total > 0 {
		o.metrics.SuccessRate = float64(synced) / float64(total)
	} else {
		o.metrics.SuccessRate = 1.0
	}
	o.mu.Unlock()

	metrics.FilesTracked.Set(float64(total))
}

// markSyncTime stamps LastSyncAt. Called after applying reconciliation
// actions, not by the periodic refresh, so the field reflects actual sync
// activity.
func (o *Orchestrator) markSyncTime() {
	o.mu.Lock()
	o.metrics.LastSyncAt = time.Now().UTC()
	o.mu.Unlock()
}
