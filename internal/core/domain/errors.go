package domain

import (
	"errors"
	"fmt"
)

var (
	ErrContentNotFound     = errors.New("content not found")
	ErrAttachmentNotFound  = errors.New("attachment not found")
	ErrDuplicateAttachment = errors.New("duplicate attachment")
	ErrStorageWrite        = errors.New("blob storage write failed")
	ErrAttachmentCreate    = errors.New("attachment create failed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
)

// DuplicateAttachmentError signals that the target container already holds an
// active attachment for the digest. It is a decision point, not a failure:
// callers either surface the existing attachment or retry with force.
type DuplicateAttachmentError struct {
	ContainerID string
	Digest      string
	ExistingID  string
}

func (e *DuplicateAttachmentError) Error() string {
	return fmt.Sprintf("container %s already holds attachment %s for digest %s",
		e.ContainerID, e.ExistingID, e.Digest)
}

func (e *DuplicateAttachmentError) Is(target error) bool {
	return target == ErrDuplicateAttachment
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
