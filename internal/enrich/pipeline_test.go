package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syncbridge/syncbridge/internal/recordstore"
	"github.com/syncbridge/syncbridge/internal/storage"
	"github.com/syncbridge/syncbridge/pkg/types"
)

func ocrServer(t *testing.T, calls *atomic.Int32, resp OCRResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/analyze":
			if calls != nil {
				calls.Add(1)
			}
			var req OCRRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad OCR request body: %v", err)
			}
			if req.Image == "" {
				t.Error("OCR request must carry base64 image data")
			}
			json.NewEncoder(w).Encode(resp)
		case "/health":
			json.NewEncoder(w).Encode(OCRHealth{Status: "healthy", ModelLoaded: true, Device: "cpu"})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestPipeline(t *testing.T, srvURL string) (*Pipeline, *recordstore.Store, *storage.SimAdapter) {
	t.Helper()
	store := recordstore.New()
	simA := storage.NewSimAdapter(types.SideA, storage.DefaultSeed(types.SideA))
	simB := storage.NewSimAdapter(types.SideB, nil)

	p := New(Config{
		Enabled: true,
		Client:  NewClient(srvURL, "", 5*time.Second),
		Store:   store,
		Adapters: map[types.Side]storage.Adapter{
			types.SideA: simA,
			types.SideB: simB,
		},
	})
	return p, store, simA
}

func pdfEntry(id string, size int64) types.SyncEntry {
	return types.SyncEntry{
		FileID:     id,
		Name:       "invoice-2025-001.pdf",
		Path:       "/invoice-2025-001.pdf",
		Size:       size,
		FileType:   "application/pdf",
		SyncStatus: types.StatusSynced,
	}
}

func TestEligibilityGate(t *testing.T) {
	p, _, _ := newTestPipeline(t, "http://unused")

	tests := []struct {
		name  string
		entry types.SyncEntry
		want  bool
	}{
		{"eligible pdf", pdfEntry("a-1", 200*1024), true},
		{"over size ceiling", pdfEntry("a-1", MaxFileSize+1), false},
		{"at size ceiling", pdfEntry("a-1", MaxFileSize), true},
		{"unsupported mime", types.SyncEntry{FileID: "a-1", Size: 10, FileType: "text/plain"}, false},
		{"already enriched", func() types.SyncEntry {
			e := pdfEntry("a-1", 10)
			e.Enriched = true
			return e
		}(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Eligible(tt.entry); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisabledPipelineNeverSchedules(t *testing.T) {
	p := New(Config{Enabled: false, Store: recordstore.New()})

	p.ScheduleAnalysis(pdfEntry("a-1", 10), DefaultPriority)
	if depth := p.Stats().QueueDepth; depth != 0 {
		t.Errorf("disabled pipeline queued %d items", depth)
	}
	if !p.Healthy(context.Background()) {
		t.Error("disabled pipeline must report healthy")
	}
}

func TestScheduleAnalysisDeduplicates(t *testing.T) {
	p, _, _ := newTestPipeline(t, "http://unused")

	e := pdfEntry("sim-a-1", 1024)
	p.ScheduleAnalysis(e, DefaultPriority)
	p.ScheduleAnalysis(e, DefaultPriority)
	p.ScheduleAnalysis(e, 1)

	if depth := p.Stats().QueueDepth; depth != 1 {
		t.Errorf("expected 1 queued item after duplicate schedules, got %d", depth)
	}
}

func TestProcessFileSuccessAnnotatesStore(t *testing.T) {
	srv := ocrServer(t, nil, OCRResponse{Success: true, Text: "Invoice #42", Confidence: 0.93})
	defer srv.Close()

	p, store, _ := newTestPipeline(t, srv.URL)
	e := pdfEntry("sim-a-1", 1024)
	store.Put(e)

	res := p.ProcessFile(context.Background(), e)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("confidence out of range: %f", res.Confidence)
	}

	got, _ := store.EntryByA("sim-a-1")
	if !got.Enriched || got.ExtractedText != "Invoice #42" {
		t.Errorf("store not annotated: %+v", got)
	}

	stats := p.Stats()
	if stats.TotalProcessed != 1 || stats.Successful != 1 || stats.Failed != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.AvgConfidence != 0.93 {
		t.Errorf("expected avg confidence 0.93, got %f", stats.AvgConfidence)
	}
}

func TestProcessFileFailureIsResultNotError(t *testing.T) {
	srv := ocrServer(t, nil, OCRResponse{Success: false, Error: "model overloaded"})
	defer srv.Close()

	p, store, _ := newTestPipeline(t, srv.URL)
	e := pdfEntry("sim-a-1", 1024)
	store.Put(e)

	res := p.ProcessFile(context.Background(), e)
	if res.Success {
		t.Fatal("expected failure result")
	}
	if res.Error != "model overloaded" {
		t.Errorf("expected service error surfaced, got %q", res.Error)
	}

	got, _ := store.EntryByA("sim-a-1")
	if got.Enriched {
		t.Error("failed analysis must leave the entry unenriched for rescheduling")
	}

	stats := p.Stats()
	if stats.Failed != 1 || stats.Successful != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestProcessBacklogPriorityOrder(t *testing.T) {
	// Each document name carries a distinct language token, so the sequence
	// of language hints received by the service reveals the drain order.
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OCRRequest
		json.NewDecoder(r.Body).Decode(&req)
		order = append(order, req.Language)
		json.NewEncoder(w).Encode(OCRResponse{Success: true, Text: "ok", Confidence: 0.9})
	}))
	defer srv.Close()

	p, store, simA := newTestPipeline(t, srv.URL)

	docs := []struct {
		id   string
		lang string
		prio int
	}{
		{"doc-1", "de", 9},
		{"doc-2", "fr", 1},
		{"doc-3", "es", 5},
	}
	for _, d := range docs {
		name := "doc_" + d.lang + ".pdf"
		simA.Put(types.FileRecord{ID: d.id, Name: name, Path: "/" + name, Size: 10, MimeType: "application/pdf"}, []byte("x"))
		e := types.SyncEntry{FileID: d.id, Name: name, Path: "/" + name, Size: 10, FileType: "application/pdf"}
		store.Put(e)
		p.ScheduleAnalysis(e, d.prio)
	}

	processed := p.ProcessBacklog(context.Background())
	if processed != 3 {
		t.Fatalf("expected 3 processed, got %d", processed)
	}
	want := []string{"fr", "es", "de"} // priority 1, 5, 9
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("drain order = %v, want %v", order, want)
		}
	}
	if depth := p.Stats().QueueDepth; depth != 0 {
		t.Errorf("queue not drained, depth %d", depth)
	}
}

func TestProcessBacklogSkipsStaleItems(t *testing.T) {
	var calls atomic.Int32
	srv := ocrServer(t, &calls, OCRResponse{Success: true, Text: "ok", Confidence: 0.8})
	defer srv.Close()

	p, store, _ := newTestPipeline(t, srv.URL)
	e := pdfEntry("sim-a-1", 1024)
	store.Put(e)
	p.ScheduleAnalysis(e, DefaultPriority)

	// The entry gets enriched while the item waits in the queue.
	store.Annotate(types.SideA, "sim-a-1", "already done")

	if processed := p.ProcessBacklog(context.Background()); processed != 0 {
		t.Errorf("stale item should be skipped, processed %d", processed)
	}
	if calls.Load() != 0 {
		t.Errorf("OCR service must not be called for stale items, got %d calls", calls.Load())
	}
}

func TestWeightedAverageConfidence(t *testing.T) {
	confidences := []float64{0.9, 0.7, 0.8}
	idx := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OCRResponse{Success: true, Text: "ok", Confidence: confidences[idx]})
		idx++
	}))
	defer srv.Close()

	p, store, simA := newTestPipeline(t, srv.URL)
	for i, id := range []string{"d1", "d2", "d3"} {
		simA.Put(types.FileRecord{ID: id, Name: id + ".pdf", Path: "/" + id + ".pdf", Size: 10, MimeType: "application/pdf"}, []byte("x"))
		e := types.SyncEntry{FileID: id, Name: id + ".pdf", Size: 10, FileType: "application/pdf"}
		store.Put(e)
		p.ScheduleAnalysis(e, i)
	}

	p.ProcessBacklog(context.Background())

	// avg1 = 0.9; avg2 = (0.9 + 0.7)/2 = 0.8; avg3 = (0.8*2 + 0.8)/3 = 0.8
	stats := p.Stats()
	if diff := stats.AvgConfidence - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg confidence = %f, want 0.8", stats.AvgConfidence)
	}
}

func TestLanguageHint(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"rechnung_de_2025.pdf", "de"},
		{"invoice-french-fr.pdf", "fr"},
		{"scan english copy.png", "en"},
		{"invoice.pdf", ""},
		{"denver_report.pdf", ""},
	}
	for _, tt := range tests {
		if got := languageHint(tt.name); got != tt.want {
			t.Errorf("languageHint(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
