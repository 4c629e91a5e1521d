// Package shutdown blocks until a termination signal arrives, then stops
// the given components, in order, within a shared timeout.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"time"

	"recruitment/pipeline-service/pkg/logging"
)

type Stoppable interface {
	Shutdown(ctx context.Context) error
}

// Graceful waits for one of signals, then calls Shutdown on each
// component in the order given. Later components still run when an
// earlier one fails.
func Graceful(signals []os.Signal, timeout time.Duration, log *logging.Logger, components ...Stoppable) {
	sigCtx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	<-sigCtx.Done()
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clean := true
	for _, c := range components {
		if err := c.Shutdown(ctx); err != nil {
			clean = false
			log.Warn("component shutdown error", "err", err)
		}
	}
	if clean {
		log.Info("graceful shutdown completed successfully")
	} else {
		log.Warn("graceful shutdown completed with errors")
	}
}
