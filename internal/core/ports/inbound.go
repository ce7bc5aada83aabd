package ports

import (
	"context"
	"io"

	"github.com/mshevelev/docvault/internal/core/domain"
)

// IngestRequest carries one file submission into the pipeline.
type IngestRequest struct {
	ContainerID string
	Filename    string
	MimeType    string
	Body        io.Reader
	// ForceOnDuplicate creates a second attachment even when the container
	// already holds one for the same digest.
	ForceOnDuplicate bool
}

// Ingestor is the inbound contract the web layer calls for uploads.
type Ingestor interface {
	Ingest(ctx context.Context, req IngestRequest) (*domain.IngestResult, error)
}

// AttachmentService is the inbound read/edit surface for attachments.
type AttachmentService interface {
	GetStatus(ctx context.Context, attachmentID string) (*domain.AttachmentStatus, error)
	List(ctx context.Context, containerID string, includeRemoved bool) ([]domain.Attachment, error)
	UpdateMetadata(ctx context.Context, attachmentID string, update domain.MetadataUpdate) (*domain.Attachment, error)
	Remove(ctx context.Context, attachmentID string) error
}

// ParseRunner drives one digest from pending to a terminal parse state.
// Queue consumers and the in-process scheduler both call through it.
type ParseRunner interface {
	Run(ctx context.Context, digest string) error
}
