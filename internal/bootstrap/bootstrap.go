package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mshevelev/docvault/internal/config"
	"github.com/mshevelev/docvault/internal/core/domain"
	"github.com/mshevelev/docvault/internal/core/ports"
	"github.com/mshevelev/docvault/internal/core/usecase"
	"github.com/mshevelev/docvault/internal/infrastructure/parser/local"
	"github.com/mshevelev/docvault/internal/infrastructure/parser/remote"
	"github.com/mshevelev/docvault/internal/infrastructure/queue/nats"
	"github.com/mshevelev/docvault/internal/infrastructure/repository/postgres"
	"github.com/mshevelev/docvault/internal/infrastructure/resilience"
	"github.com/mshevelev/docvault/internal/infrastructure/schedule"
	"github.com/mshevelev/docvault/internal/infrastructure/storage/localfs"
	"github.com/mshevelev/docvault/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Contents    ports.ContentRepository
	Attachments ports.AttachmentRepository
	Blobs       ports.BlobStore

	Ingestor      ports.Ingestor
	AttachmentSvc ports.AttachmentService
	Runner        ports.ParseRunner
	Scheduler     ports.ParseScheduler

	// Queue is nil when the in-process scheduler is used instead of NATS.
	Queue   *nats.Queue
	Metrics *metrics.PipelineMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	contents := postgres.NewContentRepository(db, cfg.ParseMaxTextBytes)
	if err := contents.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure content schema: %w", err)
	}
	attachments := postgres.NewAttachmentRepository(db)
	if err := attachments.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure attachment schema: %w", err)
	}

	blobs, err := localfs.New(cfg.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	var parser ports.ParseService
	switch strings.ToLower(cfg.ParserMode) {
	case "remote":
		parser = remote.New(cfg.ParserURL, remote.Options{
			APIKey:          cfg.ParserAPIKey,
			RequestTimeout:  cfg.ParserTimeout,
			SubmitPerSecond: cfg.ParserSubmitRPS,
			SubmitBurst:     cfg.ParserSubmitBurst,
			Executor:        executor,
		})
	case "local", "":
		parser = local.New()
	default:
		return nil, fmt.Errorf("unknown parser mode %q", cfg.ParserMode)
	}

	runner := usecase.NewParseOrchestrator(contents, blobs, parser, usecase.OrchestratorConfig{
		PollInterval:     cfg.ParsePollInterval,
		MaxPollAttempts:  cfg.ParseMaxAttempts,
		SkipMimePrefixes: cfg.SkipMimePrefixes,
	})

	var (
		queue     *nats.Queue
		scheduler ports.ParseScheduler
		localSch  *schedule.Local
	)
	if cfg.NATSURL != "" {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init parse queue: %w", err)
		}
		scheduler = queue
	} else {
		localSch = schedule.NewLocal(runner, cfg.ParseRunTimeout, logger)
		scheduler = localSch
	}

	pipelineMetrics := metrics.NewPipelineMetrics("docvault")
	ingestor := usecase.NewIngestCoordinator(contents, attachments, blobs, scheduler)
	attachmentSvc := usecase.NewAttachmentUseCase(contents, attachments)

	return &App{
		Config: cfg,

		Contents:    contents,
		Attachments: attachments,
		Blobs:       blobs,

		Ingestor:      &instrumentedIngestor{next: ingestor, metrics: pipelineMetrics},
		AttachmentSvc: attachmentSvc,
		Runner:        runner,
		Scheduler:     scheduler,

		Queue:   queue,
		Metrics: pipelineMetrics,

		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			if localSch != nil {
				localSch.Wait()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

type instrumentedIngestor struct {
	next    ports.Ingestor
	metrics *metrics.PipelineMetrics
}

func (i *instrumentedIngestor) Ingest(ctx context.Context, req ports.IngestRequest) (*domain.IngestResult, error) {
	result, err := i.next.Ingest(ctx, req)
	newContent := err == nil && result.NewContent
	i.metrics.RecordIngest("docvault", newContent, err)
	return result, err
}
