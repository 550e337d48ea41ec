// Package api exposes the sync engine over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/syncbridge/syncbridge/internal/auth"
	"github.com/syncbridge/syncbridge/internal/engine"
	"github.com/syncbridge/syncbridge/internal/metrics"
	"github.com/syncbridge/syncbridge/pkg/types"
)

// Server holds the API server dependencies.
type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
}

// NewServer creates the API server with all routes configured.
func NewServer(eng *engine.Engine, apiKey string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		engine: eng,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Health check and Prometheus scrape (no auth)
	e.GET("/health", s.health)
	e.GET("/metrics/prometheus", echo.WrapHandler(metrics.Handler()))

	// API routes (with auth)
	api := e.Group("")
	api.Use(auth.APIKeyMiddleware(apiKey))

	api.GET("/metrics", s.syncMetrics)
	api.GET("/config", s.config)
	api.GET("/entries", s.entries)
	api.GET("/history", s.history)

	api.POST("/sync/force", s.forceSync)
	api.POST("/ocr/backlog", s.processBacklog)
	api.POST("/conflicts/:id/resolve", s.resolveConflict)

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.echo.Close()
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) health(c echo.Context) error {
	report := s.engine.Health(c.Request().Context())
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, report)
}

// metricsResponse bundles the sync counters with the enrichment counters the
// way dashboards consume them.
type metricsResponse struct {
	Sync       types.SyncMetrics     `json:"sync"`
	Enrichment types.EnrichmentStats `json:"enrichment"`
}

func (s *Server) syncMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, metricsResponse{
		Sync:       s.engine.Metrics(),
		Enrichment: s.engine.EnrichmentStats(),
	})
}

func (s *Server) config(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Config())
}

func (s *Server) entries(c echo.Context) error {
	entries := s.engine.Entries()

	if status := c.QueryParam("status"); status != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if string(e.SyncStatus) == status {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) history(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	rows, err := s.engine.History(limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"history": rows,
		"count":   len(rows),
	})
}

func (s *Server) forceSync(c echo.Context) error {
	observed, retried := s.engine.ForceSync(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{
		"eventsObserved": observed,
		"entriesRetried": retried,
	})
}

func (s *Server) processBacklog(c echo.Context) error {
	processed := s.engine.ProcessBacklog(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{"processed": processed})
}

type resolveRequest struct {
	Winner string `json:"winner"` // "A" or "B"
}

func (s *Server) resolveConflict(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var winner types.Side
	switch req.Winner {
	case string(types.SideA):
		winner = types.SideA
	case string(types.SideB):
		winner = types.SideB
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "winner must be \"A\" or \"B\""})
	}

	if err := s.engine.ResolveConflict(c.Param("id"), winner); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "resolved"})
}
