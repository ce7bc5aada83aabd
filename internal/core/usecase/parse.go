package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mshevelev/docvault/internal/core/domain"
	"github.com/mshevelev/docvault/internal/core/ports"
)

// OrchestratorConfig bounds one parse run. With the defaults a run gives up
// after roughly a minute of polling.
type OrchestratorConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	// SkipMimePrefixes lists declared content types the parser deliberately
	// does not process; matching content goes straight to skipped.
	SkipMimePrefixes []string
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PollInterval:     2 * time.Second,
		MaxPollAttempts:  30,
		SkipMimePrefixes: []string{"image/"},
	}
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	out := c
	def := DefaultOrchestratorConfig()
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.MaxPollAttempts <= 0 {
		out.MaxPollAttempts = def.MaxPollAttempts
	}
	return out
}

// ParseOrchestrator turns pending content into ready/failed/skipped without
// ever propagating an error to the uploader. One run owns one digest; a
// second request for a digest already in flight is a no-op.
type ParseOrchestrator struct {
	contents ports.ContentRepository
	blobs    ports.BlobStore
	parser   ports.ParseService
	cfg      OrchestratorConfig

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewParseOrchestrator(
	contents ports.ContentRepository,
	blobs ports.BlobStore,
	parser ports.ParseService,
	cfg OrchestratorConfig,
) *ParseOrchestrator {
	return &ParseOrchestrator{
		contents: contents,
		blobs:    blobs,
		parser:   parser,
		cfg:      cfg.normalize(),
		inFlight: make(map[string]struct{}),
	}
}

func (o *ParseOrchestrator) Run(ctx context.Context, digest string) error {
	if !o.acquire(digest) {
		slog.Debug("parse run already in flight", "digest", digest)
		return nil
	}
	defer o.release(digest)

	rec, err := o.contents.GetByDigest(ctx, digest)
	if err != nil {
		return fmt.Errorf("load content for parse: %w", err)
	}
	if rec.ParseStatus.Terminal() {
		// Queue redelivery or a stale requeue after completion.
		return nil
	}

	if o.skippable(rec.MimeType) {
		if err := o.contents.UpdateParseResult(ctx, digest, domain.ParseSkipped, nil, ""); err != nil {
			return fmt.Errorf("mark content skipped: %w", err)
		}
		return nil
	}

	text, runErr := o.extract(ctx, rec)
	if runErr != nil {
		o.markFailed(ctx, digest, runErr)
		return runErr
	}

	if err := o.contents.UpdateParseResult(ctx, digest, domain.ParseReady, &text, ""); err != nil {
		return fmt.Errorf("store parse result: %w", err)
	}
	return nil
}

// extract drives the external job: submit, bounded polling, result fetch.
// Transport-level retries live inside the ParseService adapter; here an error
// from any call is final.
func (o *ParseOrchestrator) extract(ctx context.Context, rec *domain.ContentRecord) (string, error) {
	blob, err := o.blobs.Get(ctx, rec.BlobKey)
	if err != nil {
		return "", fmt.Errorf("open blob %s: %w", rec.BlobKey, err)
	}
	defer blob.Close()

	handle, err := o.parser.Submit(ctx, blob, rec.MimeType)
	if err != nil {
		return "", fmt.Errorf("submit parse job: %w", err)
	}

	state, err := o.awaitJob(ctx, handle)
	if err != nil {
		return "", err
	}
	if state != ports.ParseJobSuccess {
		return "", fmt.Errorf("parse job %s reported failure", handle)
	}

	text, err := o.parser.FetchResult(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("fetch parse result: %w", err)
	}
	return text, nil
}

func (o *ParseOrchestrator) awaitJob(ctx context.Context, handle string) (ports.ParseJobState, error) {
	for attempt := 1; attempt <= o.cfg.MaxPollAttempts; attempt++ {
		state, err := o.parser.PollStatus(ctx, handle)
		if err != nil {
			return "", fmt.Errorf("poll parse job: %w", err)
		}
		if state != ports.ParseJobPending {
			return state, nil
		}

		timer := time.NewTimer(o.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("await parse job: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return "", fmt.Errorf("parse job %s did not complete within %d attempts", handle, o.cfg.MaxPollAttempts)
}

// markFailed records the terminal failed state. The attachment stays usable
// with raw-bytes access only; nothing escalates to the original caller.
func (o *ParseOrchestrator) markFailed(ctx context.Context, digest string, cause error) {
	// The run context may already be dead (worker timeout); the terminal
	// transition still has to land.
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := o.contents.UpdateParseResult(ctx, digest, domain.ParseFailed, nil, cause.Error()); err != nil {
		slog.Error("failed to record parse failure", "digest", digest, "error", err, "cause", cause)
	}
}

func (o *ParseOrchestrator) skippable(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	for _, prefix := range o.cfg.SkipMimePrefixes {
		if prefix != "" && strings.HasPrefix(mt, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func (o *ParseOrchestrator) acquire(digest string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inFlight[digest]; running {
		return false
	}
	o.inFlight[digest] = struct{}{}
	return true
}

func (o *ParseOrchestrator) release(digest string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, digest)
}
