package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mshevelev/docvault/internal/core/domain"
)

// ContentRepository is the content-addressed side of the metadata store:
// one row per digest, insert-if-absent is the pipeline's atomic primitive.
type ContentRepository struct {
	db         *sql.DB
	maxTextLen int
}

func NewContentRepository(db *sql.DB, maxTextLen int) *ContentRepository {
	return &ContentRepository{db: db, maxTextLen: maxTextLen}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ContentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS content_records (
	digest TEXT PRIMARY KEY,
	blob_key TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	byte_size BIGINT NOT NULL,
	parsed_text TEXT,
	parse_status TEXT NOT NULL,
	parse_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_records_pending ON content_records(updated_at) WHERE parse_status = 'pending';
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ContentRepository) GetByDigest(ctx context.Context, digest string) (*domain.ContentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT digest, blob_key, mime_type, byte_size, parsed_text, parse_status, parse_error, created_at, updated_at
FROM content_records
WHERE digest = $1
`, digest)
	return scanContentRecord(row, digest)
}

// CreateIfAbsent relies on the digest primary key: the losing side of a race
// inserts nothing and reads back the row the winner created.
func (r *ContentRepository) CreateIfAbsent(ctx context.Context, rec *domain.ContentRecord) (*domain.ContentRecord, bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO content_records (
	digest, blob_key, mime_type, byte_size, parsed_text, parse_status, parse_error, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (digest) DO NOTHING
`,
		rec.Digest, rec.BlobKey, rec.MimeType, rec.ByteSize, rec.ParsedText,
		string(rec.ParseStatus), rec.ParseError, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert content record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert content record rows: %w", err)
	}
	if affected == 1 {
		cp := *rec
		return &cp, true, nil
	}

	existing, err := r.GetByDigest(ctx, rec.Digest)
	if err != nil {
		return nil, false, fmt.Errorf("read back conflicting content record: %w", err)
	}
	return existing, false, nil
}

func (r *ContentRepository) UpdateParseResult(ctx context.Context, digest string, status domain.ParseStatus, text *string, parseErr string) error {
	var stored *string
	if text != nil {
		truncated := domain.TruncateParsedText(*text, r.maxTextLen)
		stored = &truncated
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE content_records
SET parse_status = $2, parsed_text = $3, parse_error = $4, updated_at = $5
WHERE digest = $1
`, digest, string(status), stored, parseErr, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update parse result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update parse result rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrContentNotFound, "update parse result", fmt.Errorf("digest %s", digest))
	}
	return nil
}

func (r *ContentRepository) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT digest
FROM content_records
WHERE parse_status = 'pending' AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2
`, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()

	var digests []string
	for rows.Next() {
		var digest string
		if err := rows.Scan(&digest); err != nil {
			return nil, fmt.Errorf("scan stale pending digest: %w", err)
		}
		digests = append(digests, digest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale pending: %w", err)
	}
	return digests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentRecord(row rowScanner, digest string) (*domain.ContentRecord, error) {
	var rec domain.ContentRecord
	var status string

	err := row.Scan(
		&rec.Digest, &rec.BlobKey, &rec.MimeType, &rec.ByteSize,
		&rec.ParsedText, &status, &rec.ParseError, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrContentNotFound, "get content record", fmt.Errorf("digest %s", digest))
		}
		return nil, fmt.Errorf("scan content record: %w", err)
	}
	rec.ParseStatus = domain.ParseStatus(status)
	return &rec, nil
}
