// Package schedule has the in-process ParseScheduler used when no queue
// broker is configured. Each scheduled digest runs on its own goroutine,
// detached from the ingest request context.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mshevelev/docvault/internal/core/ports"
)

type Local struct {
	runner  ports.ParseRunner
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewLocal(runner ports.ParseRunner, timeout time.Duration, logger *slog.Logger) *Local {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{runner: runner, timeout: timeout, logger: logger}
}

func (l *Local) Schedule(ctx context.Context, digest string) error {
	// The run must outlive the ingest request, so only the values on ctx
	// carry over.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()
		if err := l.runner.Run(runCtx, digest); err != nil {
			l.logger.Error("scheduled parse run failed", "digest", digest, "error", err)
		}
	}()
	return nil
}

// Wait blocks until all scheduled runs have returned. Shutdown calls it
// after the runner's context is cancelled.
func (l *Local) Wait() {
	l.wg.Wait()
}
