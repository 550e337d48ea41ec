// Package enrich runs newly-seen documents through an external OCR service:
// an eligibility gate, a priority queue, and strictly serial backlog
// processing so the OCR dependency is never hit concurrently.
package enrich

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/syncbridge/syncbridge/internal/metrics"
	"github.com/syncbridge/syncbridge/internal/recordstore"
	"github.com/syncbridge/syncbridge/internal/storage"
	"github.com/syncbridge/syncbridge/pkg/types"
)

// MaxFileSize is the size ceiling for OCR eligibility.
const MaxFileSize = 50 << 20 // 50MB

// DefaultPriority is used when the caller has no ordering preference.
// Lower values run first.
const DefaultPriority = 5

var eligibleMimes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
	"image/bmp":       true,
	"image/gif":       true,
}

// Result is the structured outcome of one OCR analysis. Failures are
// results, not errors: the caller never sees the underlying fault.
type Result struct {
	FileID     string         `json:"fileId"`
	Success    bool           `json:"success"`
	Text       string         `json:"text,omitempty"`
	Confidence float64        `json:"confidence"`
	Language   string         `json:"language,omitempty"`
	Data       *ExtractedData `json:"extractedData,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type task struct {
	priority int
	seq      int
	side     types.Side
	id       string
	index    int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Config configures the enrichment pipeline.
type Config struct {
	Enabled     bool
	Client      *Client // required when Enabled
	Store       *recordstore.Store
	Adapters    map[types.Side]storage.Adapter
	CallTimeout time.Duration
	// Interval between automatic backlog drains, default 30s.
	Interval time.Duration
}

// Pipeline owns the enrichment queue and statistics.
type Pipeline struct {
	enabled  bool
	client   *Client
	store    *recordstore.Store
	adapters map[types.Side]storage.Adapter
	timeout  time.Duration
	interval time.Duration

	mu     sync.Mutex
	queue  taskHeap
	queued map[string]bool
	seq    int
	stats  types.EnrichmentStats

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates the pipeline. A disabled pipeline accepts every call and does
// nothing, so callers never branch on the enabled flag.
func New(cfg Config) *Pipeline {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Pipeline{
		enabled:  cfg.Enabled,
		client:   cfg.Client,
		store:    cfg.Store,
		adapters: cfg.Adapters,
		timeout:  timeout,
		interval: interval,
		queued:   make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// Enabled reports whether enrichment is configured on.
func (p *Pipeline) Enabled() bool { return p.enabled }

// Start begins the periodic backlog drain.
func (p *Pipeline) Start() {
	if !p.enabled {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.ProcessBacklog(context.Background())
			case <-p.stop:
				return
			}
		}
	}()
	log.Printf("enrich: pipeline started (interval=%s)", p.interval)
}

// Stop stops the backlog drain loop.
func (p *Pipeline) Stop() {
	if !p.enabled {
		return
	}
	close(p.stop)
	p.wg.Wait()
}

// Eligible reports whether an entry qualifies for OCR: pipeline enabled,
// size within the ceiling, a supported document/image type, and not already
// enriched.
func (p *Pipeline) Eligible(e types.SyncEntry) bool {
	if !p.enabled || e.Enriched {
		return false
	}
	if e.Size > MaxFileSize {
		return false
	}
	return eligibleMimes[e.FileType]
}

// ScheduleAnalysis queues an entry for OCR. Ineligible or already-queued
// entries are silently skipped, so the orchestrator calls this
// unconditionally after every create.
func (p *Pipeline) ScheduleAnalysis(e types.SyncEntry, priority int) {
	if !p.Eligible(e) {
		return
	}

	side, id := originOf(e)
	if id == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queued[id] {
		return
	}
	p.queued[id] = true
	p.seq++
	heap.Push(&p.queue, &task{priority: priority, seq: p.seq, side: side, id: id})
	metrics.OCRQueueDepth.Set(float64(len(p.queue)))
}

// originOf picks the side to download the bytes from: the side the file was
// first observed on.
func originOf(e types.SyncEntry) (types.Side, string) {
	if e.FileID != "" {
		return types.SideA, e.FileID
	}
	return types.SideB, e.Counterpart
}

// ProcessFile downloads the entry's bytes and runs one OCR analysis. It
// always returns a Result; service and transport failures become failure
// results and leave the entry unenriched so it can be rescheduled.
func (p *Pipeline) ProcessFile(ctx context.Context, e types.SyncEntry) Result {
	side, id := originOf(e)

	fail := func(msg string) Result {
		p.mu.Lock()
		p.stats.TotalProcessed++
		p.stats.Failed++
		p.mu.Unlock()
		metrics.OCRProcessedTotal.WithLabelValues("failure").Inc()
		log.Printf("enrich: analysis of %s failed: %s", e.Name, msg)
		return Result{FileID: id, Success: false, Error: msg}
	}

	adapter, ok := p.adapters[side]
	if !ok {
		return fail("no adapter for origin side")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := adapter.Download(callCtx, id)
	if err != nil {
		return fail("download: " + err.Error())
	}

	resp, err := p.client.Analyze(callCtx, data, languageHint(e.Name))
	if err != nil {
		return fail(err.Error())
	}
	if !resp.Success {
		return fail(resp.Error)
	}

	p.store.Annotate(side, id, resp.Text)

	p.mu.Lock()
	p.stats.TotalProcessed++
	p.stats.Successful++
	// Incremental average: avg = (avg*(n-1) + new) / n
	n := float64(p.stats.Successful)
	p.stats.AvgConfidence = (p.stats.AvgConfidence*(n-1) + resp.Confidence) / n
	p.mu.Unlock()
	metrics.OCRProcessedTotal.WithLabelValues("success").Inc()

	log.Printf("enrich: analyzed %s (confidence=%.2f, language=%s)", e.Name, resp.Confidence, resp.LanguageDetected)

	return Result{
		FileID:     id,
		Success:    true,
		Text:       resp.Text,
		Confidence: resp.Confidence,
		Language:   resp.LanguageDetected,
		Data:       resp.ExtractedData,
	}
}

// ProcessBacklog drains the queue strictly in priority order, one item at a
// time, to bound load on the OCR service. Returns the number of items
// processed.
func (p *Pipeline) ProcessBacklog(ctx context.Context) int {
	processed := 0
	for {
		select {
		case <-ctx.Done():
			return processed
		default:
		}

		p.mu.Lock()
		if p.queue.Len() == 0 {
			p.mu.Unlock()
			return processed
		}
		t := heap.Pop(&p.queue).(*task)
		delete(p.queued, t.id)
		metrics.OCRQueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		e, ok := p.store.EntryBySide(t.side, t.id)
		if !ok || e.Enriched || e.SoftDeleted() {
			continue // state moved on while the item sat in the queue
		}

		p.ProcessFile(ctx, e)
		processed++
	}
}

// Stats returns a copy of the running statistics.
func (p *Pipeline) Stats() types.EnrichmentStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stats
	out.QueueDepth = len(p.queue)
	return out
}

// Healthy reports OCR service reachability. A disabled pipeline is always
// healthy: unreachability only counts as degradation when enrichment is on.
func (p *Pipeline) Healthy(ctx context.Context) bool {
	if !p.enabled {
		return true
	}
	return p.client.Health(ctx)
}
