package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/syncbridge/syncbridge/internal/api"
	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/engine"
	"github.com/syncbridge/syncbridge/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	eng.Start()
	defer eng.Stop()

	// Standalone Prometheus endpoint, separate from the API port so scrapes
	// bypass API auth.
	if cfg.MetricsAddr != "" {
		srv := metrics.StartMetricsServer(cfg.MetricsAddr)
		defer srv.Close()
		log.Printf("syncbridge: metrics server on %s", cfg.MetricsAddr)
	}

	server := api.NewServer(eng, cfg.APIKey)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("syncbridge: starting server on %s (A=%s, B=%s, mode=%s, strategy=%s)",
		addr, cfg.SideA.Mode, cfg.SideB.Mode, cfg.SyncMode, cfg.ConflictResolution)

	go func() {
		if err := server.Start(addr); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("syncbridge: shutting down...")
	if err := server.Close(); err != nil {
		log.Printf("error closing server: %v", err)
	}
}
