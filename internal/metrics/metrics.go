package metrics

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync engine metrics
var (
	FilesTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncbridge_files_tracked",
			Help: "Number of tracked logical files",
		},
	)

	SyncOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_sync_operations_total",
			Help: "Total reconciliation operations",
		},
		[]string{"type", "result"},
	)

	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "syncbridge_conflicts_total",
			Help: "Total cross-side conflicts detected",
		},
	)

	ChangeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_change_events_total",
			Help: "Change events emitted by the watchers",
		},
		[]string{"side", "type"},
	)

	PollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncbridge_poll_duration_seconds",
			Help:    "Time for one list-and-diff poll cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"side"},
	)

	PollErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_poll_errors_total",
			Help: "Listing failures during poll cycles",
		},
		[]string{"side"},
	)
)

// Enrichment pipeline metrics
var (
	OCRProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_ocr_processed_total",
			Help: "OCR analyses by result",
		},
		[]string{"result"},
	)

	OCRQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncbridge_ocr_queue_depth",
			Help: "Items waiting in the enrichment queue",
		},
	)
)

// HTTP surface metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		FilesTracked,
		SyncOperationsTotal,
		ConflictsTotal,
		ChangeEventsTotal,
		PollDuration,
		PollErrorsTotal,
		OCRProcessedTotal,
		OCRQueueDepth,
		HTTPRequestsTotal,
	)
}

// Handler returns an HTTP handler for the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			return err
		}
	}
}

// StartMetricsServer starts a standalone HTTP server serving /metrics on the
// given address.
func StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("metrics: server stopped: %v", err)
		}
	}()
	return srv
}
