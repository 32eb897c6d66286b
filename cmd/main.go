// swift-fix-pro matching service
//
// Vendor matching and assignment engine for the maintenance marketplace:
//   - findBestProviders(jobId) — ranked provider recommendations
//   - autoAssignJob(jobId)     — one-click best-match assignment
//   - job lifecycle mutations  — provider response, quotes, cancellation
//
// Publishes EVENT_JOB_ASSIGNED / EVENT_JOB_STATUS_CHANGED to Redis for the
// gateway's SSE forwarding. A cron sweeper re-runs auto-assignment for jobs
// stuck in PENDING.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Le520407/swift-fix-pro-sub002/internal/api"
	"github.com/Le520407/swift-fix-pro-sub002/internal/config"
	"github.com/Le520407/swift-fix-pro-sub002/internal/db"
	"github.com/Le520407/swift-fix-pro-sub002/internal/lifecycle"
	"github.com/Le520407/swift-fix-pro-sub002/internal/matching"
	"github.com/Le520407/swift-fix-pro-sub002/internal/scheduler"
	"github.com/Le520407/swift-fix-pro-sub002/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[matching-service] Config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[matching-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[matching-service] PostgreSQL: %v", err)
	}
	defer pool.Close()
	log.Println("[matching-service] PostgreSQL connected ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[matching-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[matching-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[matching-service] Redis connected ✓")

	// ── Services ─────────────────────────────────────────────────────────────
	pg := store.New(pool)
	jobs := lifecycle.NewService(pg, rdb, logger)
	aggregator := matching.NewAggregator(pg, pg, logger)
	matcher := matching.NewService(pg, pg, aggregator, jobs, logger)

	// ── Assignment sweeper ───────────────────────────────────────────────────
	sweeper := scheduler.New(pg, matcher, cfg.SweepIntervalMinutes, cfg.SweepStaleAge, logger)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("[matching-service] Sweeper: %v", err)
	}
	defer sweeper.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := api.NewHandler(matcher, jobs, logger)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second, // must outlive the 30s matching deadline
	}

	go func() {
		log.Printf("[matching-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[matching-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[matching-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[matching-service] Shutdown error: %v", err)
	}
	log.Println("[matching-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "matching-service",
		"version": version,
	})
}
