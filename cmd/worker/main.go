package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mshevelev/docvault/internal/bootstrap"
	"github.com/mshevelev/docvault/internal/config"
	"github.com/mshevelev/docvault/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("docvault-worker", cfg.LogLevel)
	logging.Install(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	go serveMetrics(ctx, app, logger)
	go requeueStalePending(ctx, app, logger)

	if app.Queue == nil {
		logger.Info("no queue configured, serving in-process schedules only")
		<-ctx.Done()
		return
	}

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeParseRequested(ctx, func(handlerCtx context.Context, digest string) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, cfg.ParseRunTimeout)
		defer cancel()

		app.Metrics.StartParse()
		start := time.Now()
		runErr := app.Runner.Run(runCtx, digest)

		status := "done"
		if runErr != nil {
			status = "error"
		}
		app.Metrics.FinishParse("docvault", status, time.Since(start))
		return runErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func serveMetrics(ctx context.Context, app *bootstrap.App, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())

	srv := &http.Server{
		Addr:    ":" + app.Config.WorkerMetricsPort,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}

// requeueStalePending periodically reschedules digests stuck in pending, so
// a schedule lost to a queue outage is retried instead of stranding content.
func requeueStalePending(ctx context.Context, app *bootstrap.App, logger *slog.Logger) {
	ticker := time.NewTicker(app.Config.StaleRequeueEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		digests, err := app.Contents.ListStalePending(ctx, app.Config.StalePendingAfter, 100)
		if err != nil {
			logger.Error("list stale pending failed", "error", err)
			continue
		}
		for _, digest := range digests {
			if err := app.Scheduler.Schedule(ctx, digest); err != nil {
				logger.Warn("requeue stale pending failed", "digest", digest, "error", err)
			}
		}
		if len(digests) > 0 {
			logger.Info("requeued stale pending content", "count", len(digests))
		}
	}
}
