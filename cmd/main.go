// recruitment-pipeline-service
//
// Tracks candidates through the hiring pipeline. Exposes a REST API used
// by the gateway to implement:
//   - job postings (create/list)
//   - candidate profiles (create/list)
//   - applications: create (uniqueness-guarded), stage transitions
//     (state machine + atomic history/audit trail), detail with metrics
//   - global audit trail reads
//
// Publishes EVENT_STAGE_CHANGED / EVENT_APPLICATION_CREATED to Redis for
// gateway SSE forwarding. A cron job logs a periodic pipeline summary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"recruitment/pipeline-service/internal/config"
	"recruitment/pipeline-service/internal/db"
	"recruitment/pipeline-service/internal/httpapi"
	"recruitment/pipeline-service/internal/pipeline"
	"recruitment/pipeline-service/internal/scheduler"
	"recruitment/pipeline-service/internal/store"
	"recruitment/pipeline-service/pkg/logging"
	"recruitment/pipeline-service/pkg/shutdown"
)

const version = "1.0.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("postgres connect failed", "err", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatal("schema migration failed", "err", err)
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("redis connect failed", "err", err)
	}
	defer rdb.Close()
	log.Info("redis connected")

	// ── Wiring ───────────────────────────────────────────────────────────────
	repo := store.New(pool)
	svc := pipeline.NewService(repo, rdb, pipeline.DefaultRules(), log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	httpapi.NewHandler(svc, log).RegisterRoutes(mux)

	sched := scheduler.New(pool, cfg.SummaryIntervalHours, log)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("scheduler start failed", "err", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("pipeline service listening", "version", version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", "err", err)
		}
	}()

	// Stop accepting requests before halting the summary loop.
	shutdown.Graceful([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, 10*time.Second, log, srv, sched)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "pipeline-service",
		"version": version,
	})
}
