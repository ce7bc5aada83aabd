package domain

import "time"

// Attachment is one named use of a content record inside a container
// (a report, a case file). Many attachments may point at the same digest;
// removing one never affects the content record or its siblings.
type Attachment struct {
	ID          string    `json:"id"`
	ContainerID string    `json:"container_id"`
	Digest      string    `json:"digest"`
	DisplayName string    `json:"display_name"`
	Notes       string    `json:"notes,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Removed     bool      `json:"removed,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MetadataUpdate is a partial edit of user-editable attachment fields.
// Nil fields are left unchanged.
type MetadataUpdate struct {
	DisplayName *string
	Notes       *string
	Tags        []string
}

func (u MetadataUpdate) Empty() bool {
	return u.DisplayName == nil && u.Notes == nil && u.Tags == nil
}

// IngestResult is what the coordinator hands back immediately after the
// synchronous part of an ingestion. Content.ParseStatus is usually still
// pending; callers poll attachment status to observe the terminal state.
type IngestResult struct {
	Attachment *Attachment    `json:"attachment"`
	Content    *ContentRecord `json:"content"`
	// NewContent reports whether this call was the first sight of the digest
	// and therefore the one that wrote the blob and scheduled parsing.
	NewContent bool `json:"new_content"`
}

// AttachmentStatus is the polling view joined from an attachment and its
// content record.
type AttachmentStatus struct {
	AttachmentID string      `json:"attachment_id"`
	Digest       string      `json:"digest"`
	ParseStatus  ParseStatus `json:"parse_status"`
	ParsedText   *string     `json:"parsed_text,omitempty"`
	ParseError   string      `json:"parse_error,omitempty"`
}
