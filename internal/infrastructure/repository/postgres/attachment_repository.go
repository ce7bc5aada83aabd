package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mshevelev/docvault/internal/core/domain"
)

type AttachmentRepository struct {
	db *sql.DB
}

func NewAttachmentRepository(db *sql.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083102)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	container_id TEXT NOT NULL,
	digest TEXT NOT NULL REFERENCES content_records(digest),
	display_name TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	removed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_container ON attachments(container_id, created_at);
CREATE INDEX IF NOT EXISTS idx_attachments_active_use ON attachments(container_id, digest) WHERE NOT removed;
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Attach serializes same (container, digest) attempts on a transaction-scoped
// advisory lock, so two racing duplicate uploads cannot both insert. Force
// skips the duplicate check but not the lock.
func (r *AttachmentRepository) Attach(ctx context.Context, att *domain.Attachment, force bool) (*domain.Attachment, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin attach tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		att.ContainerID+"\x00"+att.Digest,
	); err != nil {
		return nil, false, fmt.Errorf("acquire attach lock: %w", err)
	}

	if !force {
		row := tx.QueryRowContext(ctx, `
SELECT id, container_id, digest, display_name, notes, tags, removed, created_at, updated_at
FROM attachments
WHERE container_id = $1 AND digest = $2 AND NOT removed
ORDER BY created_at ASC
LIMIT 1
`, att.ContainerID, att.Digest)
		existing, err := scanAttachment(row)
		if err == nil {
			if commitErr := tx.Commit(); commitErr != nil {
				return nil, false, fmt.Errorf("commit attach tx: %w", commitErr)
			}
			return existing, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("check duplicate attachment: %w", err)
		}
	}

	tagsJSON, err := json.Marshal(att.Tags)
	if err != nil {
		return nil, false, fmt.Errorf("marshal tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO attachments (
	id, container_id, digest, display_name, notes, tags, removed, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7,$8)
`,
		att.ID, att.ContainerID, att.Digest, att.DisplayName, att.Notes, tagsJSON,
		att.CreatedAt, att.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("insert attachment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit attach tx: %w", err)
	}
	cp := *att
	return &cp, false, nil
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, container_id, digest, display_name, notes, tags, removed, created_at, updated_at
FROM attachments
WHERE id = $1
`, id)
	att, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAttachmentNotFound, "get attachment", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return att, nil
}

func (r *AttachmentRepository) ListByContainer(ctx context.Context, containerID string, includeRemoved bool) ([]domain.Attachment, error) {
	query := `
SELECT id, container_id, digest, display_name, notes, tags, removed, created_at, updated_at
FROM attachments
WHERE container_id = $1
`
	if !includeRemoved {
		query += "AND NOT removed\n"
	}
	query += "ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, containerID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var atts []domain.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		atts = append(atts, *att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return atts, nil
}

func (r *AttachmentRepository) UpdateMetadata(ctx context.Context, id string, update domain.MetadataUpdate) (*domain.Attachment, error) {
	var tagsJSON any
	if update.Tags != nil {
		raw, err := json.Marshal(update.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		tagsJSON = raw
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE attachments
SET display_name = COALESCE($2, display_name),
	notes = COALESCE($3, notes),
	tags = COALESCE($4::jsonb, tags),
	updated_at = $5
WHERE id = $1
RETURNING id, container_id, digest, display_name, notes, tags, removed, created_at, updated_at
`, id, update.DisplayName, update.Notes, tagsJSON, time.Now().UTC())

	att, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAttachmentNotFound, "update attachment metadata", fmt.Errorf("id %s", id))
		}
		return nil, err
	}
	return att, nil
}

func (r *AttachmentRepository) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE attachments
SET removed = TRUE, updated_at = $2
WHERE id = $1
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("remove attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove attachment rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrAttachmentNotFound, "remove attachment", fmt.Errorf("id %s", id))
	}
	return nil
}

func scanAttachment(row rowScanner) (*domain.Attachment, error) {
	var att domain.Attachment
	var tagsRaw []byte

	err := row.Scan(
		&att.ID, &att.ContainerID, &att.Digest, &att.DisplayName, &att.Notes,
		&tagsRaw, &att.Removed, &att.CreatedAt, &att.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tagsRaw, &att.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return &att, nil
}
