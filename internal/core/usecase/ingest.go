package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mshevelev/docvault/internal/core/domain"
	"github.com/mshevelev/docvault/internal/core/ports"
)

// IngestCoordinator is the pipeline façade: hash, dedup, blob write,
// attachment creation, async parse kickoff. The synchronous part is short;
// parsing never blocks the caller.
type IngestCoordinator struct {
	contents    ports.ContentRepository
	attachments ports.AttachmentRepository
	blobs       ports.BlobStore
	scheduler   ports.ParseScheduler

	// mu guards creating; concurrent ingests of the same brand-new digest
	// serialize here so exactly one performs the blob write and record
	// creation, the rest read the record it created.
	mu       sync.Mutex
	creating map[string]chan struct{}
}

func NewIngestCoordinator(
	contents ports.ContentRepository,
	attachments ports.AttachmentRepository,
	blobs ports.BlobStore,
	scheduler ports.ParseScheduler,
) *IngestCoordinator {
	return &IngestCoordinator{
		contents:    contents,
		attachments: attachments,
		blobs:       blobs,
		scheduler:   scheduler,
		creating:    make(map[string]chan struct{}),
	}
}

func (c *IngestCoordinator) Ingest(ctx context.Context, req ports.IngestRequest) (*domain.IngestResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read upload body", errors.New("empty file"))
	}
	digest := domain.Digest(raw)

	rec, created, err := c.ensureContent(ctx, digest, req.MimeType, raw)
	if err != nil {
		return nil, err
	}

	att, err := c.attach(ctx, req, digest)
	if err != nil {
		return nil, err
	}

	if created {
		// Fire and forget: parse failures surface on the content record,
		// never on this call. A lost schedule is picked up by the stale
		// pending requeue loop.
		if err := c.scheduler.Schedule(ctx, digest); err != nil {
			slog.Warn("parse schedule failed, content stays pending",
				"digest", digest, "error", err)
		}
	}

	return &domain.IngestResult{
		Attachment: att,
		Content:    rec,
		NewContent: created,
	}, nil
}

// ensureContent makes the digest durably known: for unseen content the blob
// is written before the record so a storage failure commits nothing. The
// insert itself is atomic; if a concurrent caller wins, the redundant blob
// write was idempotent and this caller proceeds with the surviving record.
func (c *IngestCoordinator) ensureContent(ctx context.Context, digest, mimeType string, raw []byte) (*domain.ContentRecord, bool, error) {
	release := c.lockDigest(digest)
	defer release()

	existing, err := c.contents.GetByDigest(ctx, digest)
	if err == nil {
		return existing, false, nil
	}
	if !domain.IsKind(err, domain.ErrContentNotFound) {
		return nil, false, fmt.Errorf("check content existence: %w", err)
	}

	if err := c.blobs.Put(ctx, digest, bytes.NewReader(raw)); err != nil {
		return nil, false, domain.WrapError(domain.ErrStorageWrite, "persist blob", err)
	}

	now := time.Now().UTC()
	rec, created, err := c.contents.CreateIfAbsent(ctx, &domain.ContentRecord{
		Digest:      digest,
		BlobKey:     digest,
		MimeType:    mimeType,
		ByteSize:    int64(len(raw)),
		ParseStatus: domain.ParsePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create content record: %w", err)
	}
	return rec, created, nil
}

func (c *IngestCoordinator) attach(ctx context.Context, req ports.IngestRequest, digest string) (*domain.Attachment, error) {
	now := time.Now().UTC()
	att := &domain.Attachment{
		ID:          uuid.NewString(),
		ContainerID: req.ContainerID,
		Digest:      digest,
		DisplayName: req.Filename,
		Tags:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, duplicate, err := c.attachments.Attach(ctx, att, req.ForceOnDuplicate)
	if err != nil {
		return nil, domain.WrapError(domain.ErrAttachmentCreate, "create attachment", err)
	}
	if duplicate {
		return nil, &domain.DuplicateAttachmentError{
			ContainerID: req.ContainerID,
			Digest:      digest,
			ExistingID:  stored.ID,
		}
	}
	return stored, nil
}

// lockDigest blocks until this process holds the creation slot for digest.
// The returned func releases it. Cross-process races fall back to the store's
// atomic insert; the redundant blob write in that window is idempotent.
func (c *IngestCoordinator) lockDigest(digest string) func() {
	c.mu.Lock()
	for {
		done, held := c.creating[digest]
		if !held {
			break
		}
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	done := make(chan struct{})
	c.creating[digest] = done
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.creating, digest)
		c.mu.Unlock()
		close(done)
	}
}

func validateRequest(req ports.IngestRequest) error {
	switch {
	case strings.TrimSpace(req.ContainerID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "validate ingest request", errors.New("container id is required"))
	case strings.TrimSpace(req.Filename) == "":
		return domain.WrapError(domain.ErrInvalidInput, "validate ingest request", errors.New("filename is required"))
	case req.Body == nil:
		return domain.WrapError(domain.ErrInvalidInput, "validate ingest request", errors.New("body is required"))
	}
	return nil
}
