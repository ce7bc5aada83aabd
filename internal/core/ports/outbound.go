package ports

import (
	"context"
	"io"
	"time"

	"github.com/mshevelev/docvault/internal/core/domain"
)

// ContentRepository is the content-addressed metadata store: one row per
// digest, the unit of deduplication.
type ContentRepository interface {
	GetByDigest(ctx context.Context, digest string) (*domain.ContentRecord, error)
	// ListStalePending returns digests stuck in pending longer than olderThan,
	// oldest first. The worker requeues them so a lost schedule never strands
	// content in pending forever.
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
	// CreateIfAbsent atomically inserts the record unless the digest already
	// exists. Under a race on a brand-new digest exactly one caller observes
	// created=true; every caller gets back the surviving record.
	CreateIfAbsent(ctx context.Context, rec *domain.ContentRecord) (*domain.ContentRecord, bool, error)
	// UpdateParseResult moves pending content to a terminal parse state.
	// Implementations truncate text to their configured cap before storing.
	UpdateParseResult(ctx context.Context, digest string, status domain.ParseStatus, text *string, parseErr string) error
}

// AttachmentRepository persists per-container uses of content records.
type AttachmentRepository interface {
	// Attach inserts att unless the container already holds an active
	// attachment for the same digest. On a duplicate without force it returns
	// the existing attachment and true, writing nothing. With force it always
	// inserts. The check-and-insert is atomic: two racing duplicate uploads
	// cannot both create active rows.
	Attach(ctx context.Context, att *domain.Attachment, force bool) (*domain.Attachment, bool, error)
	GetByID(ctx context.Context, id string) (*domain.Attachment, error)
	ListByContainer(ctx context.Context, containerID string, includeRemoved bool) ([]domain.Attachment, error)
	UpdateMetadata(ctx context.Context, id string, update domain.MetadataUpdate) (*domain.Attachment, error)
	Remove(ctx context.Context, id string) error
}

// BlobStore stores raw file bytes keyed by digest. Writes are idempotent:
// putting the same key twice with the same bytes is harmless.
type BlobStore interface {
	Put(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ParseJobState is the externally observable state of a submitted parse job.
type ParseJobState string

const (
	ParseJobPending ParseJobState = "pending"
	ParseJobSuccess ParseJobState = "success"
	ParseJobError   ParseJobState = "error"
)

// ParseService is the external text-extraction provider.
type ParseService interface {
	Submit(ctx context.Context, content io.Reader, mimeType string) (string, error)
	PollStatus(ctx context.Context, jobHandle string) (ParseJobState, error)
	FetchResult(ctx context.Context, jobHandle string) (string, error)
}

// ParseScheduler kicks off one orchestration run for a newly created digest.
// Implementations may spawn a goroutine or publish to a queue; either way the
// ingest caller never blocks on parsing.
type ParseScheduler interface {
	Schedule(ctx context.Context, digest string) error
}
