package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/mshevelev/docvault/internal/core/domain"
	"github.com/mshevelev/docvault/internal/core/ports"
)

// AttachmentUseCase serves reads and user edits on attachments. Removing an
// attachment never touches the content record it references.
type AttachmentUseCase struct {
	contents    ports.ContentRepository
	attachments ports.AttachmentRepository
}

func NewAttachmentUseCase(contents ports.ContentRepository, attachments ports.AttachmentRepository) *AttachmentUseCase {
	return &AttachmentUseCase{
		contents:    contents,
		attachments: attachments,
	}
}

// GetStatus is the polling view: parse status plus extracted text once ready.
func (uc *AttachmentUseCase) GetStatus(ctx context.Context, attachmentID string) (*domain.AttachmentStatus, error) {
	att, err := uc.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	rec, err := uc.contents.GetByDigest(ctx, att.Digest)
	if err != nil {
		return nil, fmt.Errorf("fetch content for attachment %s: %w", attachmentID, err)
	}
	return &domain.AttachmentStatus{
		AttachmentID: att.ID,
		Digest:       att.Digest,
		ParseStatus:  rec.ParseStatus,
		ParsedText:   rec.ParsedText,
		ParseError:   rec.ParseError,
	}, nil
}

func (uc *AttachmentUseCase) List(ctx context.Context, containerID string, includeRemoved bool) ([]domain.Attachment, error) {
	atts, err := uc.attachments.ListByContainer(ctx, containerID, includeRemoved)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return atts, nil
}

func (uc *AttachmentUseCase) UpdateMetadata(ctx context.Context, attachmentID string, update domain.MetadataUpdate) (*domain.Attachment, error) {
	if update.Empty() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update attachment metadata", errors.New("no fields to update"))
	}
	att, err := uc.attachments.UpdateMetadata(ctx, attachmentID, update)
	if err != nil {
		return nil, fmt.Errorf("update attachment metadata: %w", err)
	}
	return att, nil
}

func (uc *AttachmentUseCase) Remove(ctx context.Context, attachmentID string) error {
	if err := uc.attachments.Remove(ctx, attachmentID); err != nil {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}
