// Package scheduler wires up the cron job that periodically logs a
// pipeline summary: application counts per stage and the number of
// active applications that have not moved in a while. Operational
// visibility only — it never writes to the store.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"recruitment/pipeline-service/pkg/logging"
)

// staleAfter is how long an active application may sit in one stage
// before the summary counts it as stale.
const staleAfter = 14 * 24 * time.Hour

// Scheduler wraps robfig/cron and manages the summary loop.
type Scheduler struct {
	cron *cron.Cron
	pool *pgxpool.Pool
	spec string // cron spec, e.g. "@every 6h"
	log  *logging.Logger
}

// New creates a Scheduler that fires every intervalHours hours.
func New(pool *pgxpool.Pool, intervalHours int, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cron.DefaultLogger)),
		pool: pool,
		spec: fmt.Sprintf("@every %dh", intervalHours),
		log:  log,
	}
}

// Start registers the job and starts the scheduler. Also reports once
// immediately so a fresh deployment logs its state without waiting for
// the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.report(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("pipeline summary scheduler started", "spec", s.spec)

	go s.report(ctx)
	return nil
}

// Shutdown halts the cron loop, waiting for a running job to finish or
// for ctx to expire. It implements shutdown.Stoppable.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) report(ctx context.Context) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		s.log.Warn("pipeline summary query failed", "err", err)
		return
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var stage string
		var n int64
		if err := rows.Scan(&stage, &n); err != nil {
			s.log.Warn("pipeline summary scan failed", "err", err)
			return
		}
		counts[stage] = n
	}

	var stale int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications
		 WHERE status NOT IN ('hired', 'rejected') AND last_transition_at < $1`,
		time.Now().UTC().Add(-staleAfter),
	).Scan(&stale); err != nil {
		s.log.Warn("pipeline stale count failed", "err", err)
		return
	}

	s.log.Info("pipeline summary", "countsByStage", counts, "staleActive", stale)
}
