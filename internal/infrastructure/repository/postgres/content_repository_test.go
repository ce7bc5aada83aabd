package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mshevelev/docvault/internal/core/domain"
)

func newContentRepoWithMock(t *testing.T, maxTextLen int) (*ContentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ContentRepository{db: db, maxTextLen: maxTextLen}, mock, func() { _ = db.Close() }
}

func TestCreateIfAbsentInsertsNewDigest(t *testing.T) {
	repo, mock, done := newContentRepoWithMock(t, 100)
	defer done()

	mock.ExpectExec("INSERT INTO content_records").
		WithArgs("d1", "d1", "text/plain", int64(5), nil, "pending", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	rec, created, err := repo.CreateIfAbsent(context.Background(), &domain.ContentRecord{
		Digest:      "d1",
		BlobKey:     "d1",
		MimeType:    "text/plain",
		ByteSize:    5,
		ParseStatus: domain.ParsePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if !created {
		t.Fatalf("expected created=true on fresh digest")
	}
	if rec.Digest != "d1" || rec.ParseStatus != domain.ParsePending {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateIfAbsentReadsBackOnConflict(t *testing.T) {
	repo, mock, done := newContentRepoWithMock(t, 100)
	defer done()

	mock.ExpectExec("INSERT INTO content_records").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT digest, blob_key, mime_type").
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{
			"digest", "blob_key", "mime_type", "byte_size", "parsed_text", "parse_status", "parse_error", "created_at", "updated_at",
		}).AddRow("d1", "d1", "text/plain", int64(5), nil, "ready", "", time.Now(), time.Now()))

	now := time.Now().UTC()
	rec, created, err := repo.CreateIfAbsent(context.Background(), &domain.ContentRecord{
		Digest:      "d1",
		BlobKey:     "d1",
		MimeType:    "text/plain",
		ByteSize:    5,
		ParseStatus: domain.ParsePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	if created {
		t.Fatalf("conflict must report created=false")
	}
	if rec.ParseStatus != domain.ParseReady {
		t.Fatalf("expected winner's record, got %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByDigestReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newContentRepoWithMock(t, 100)
	defer done()

	mock.ExpectQuery("SELECT digest, blob_key, mime_type").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByDigest(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrContentNotFound) {
		t.Fatalf("expected ErrContentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateParseResultTruncatesBeforeStoring(t *testing.T) {
	repo, mock, done := newContentRepoWithMock(t, 10)
	defer done()

	mock.ExpectExec("UPDATE content_records").
		WithArgs("d1", string(domain.ParseReady), strings.Repeat("x", 10), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	text := strings.Repeat("x", 50)
	err := repo.UpdateParseResult(context.Background(), "d1", domain.ParseReady, &text, "")
	if err != nil {
		t.Fatalf("UpdateParseResult() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateParseResultReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newContentRepoWithMock(t, 10)
	defer done()

	mock.ExpectExec("UPDATE content_records").
		WithArgs("missing", string(domain.ParseFailed), nil, "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateParseResult(context.Background(), "missing", domain.ParseFailed, nil, "boom")
	if !domain.IsKind(err, domain.ErrContentNotFound) {
		t.Fatalf("expected ErrContentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListStalePending(t *testing.T) {
	repo, mock, done := newContentRepoWithMock(t, 10)
	defer done()

	mock.ExpectQuery("SELECT digest").
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(sqlmock.NewRows([]string{"digest"}).AddRow("d1").AddRow("d2"))

	digests, err := repo.ListStalePending(context.Background(), time.Minute, 50)
	if err != nil {
		t.Fatalf("ListStalePending() error = %v", err)
	}
	if len(digests) != 2 || digests[0] != "d1" || digests[1] != "d2" {
		t.Fatalf("unexpected digests: %v", digests)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
