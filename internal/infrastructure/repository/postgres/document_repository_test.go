package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

func newDocRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

var documentRows = []string{
	"id", "batch_id", "mandant_id", "filename", "mime_type", "size_bytes", "fingerprint",
	"storage_key", "status", "progress", "duplicate_of", "error_message", "created_at", "updated_at",
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, batch_id, mandant_id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByFingerprintExcludesErrorRows(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, batch_id, mandant_id").
		WithArgs("m-1", "abc123", string(domain.DocumentError)).
		WillReturnRows(sqlmock.NewRows(documentRows).AddRow(
			"doc-1", "b-1", "m-1", "rechnung.pdf", "application/pdf", int64(1024), "abc123",
			"1000/2024-03/rechnung.pdf", string(domain.DocumentSuccess), 100, "", "", now, now,
		))

	doc, err := repo.FindByFingerprint(context.Background(), "m-1", "abc123")
	if err != nil {
		t.Fatalf("FindByFingerprint() error = %v", err)
	}
	if doc.ID != "doc-1" || doc.Status != domain.DocumentSuccess {
		t.Fatalf("unexpected document %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFindByFingerprintNotFound(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, batch_id, mandant_id").
		WithArgs("m-1", "fresh", string(domain.DocumentError)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByFingerprint(context.Background(), "m-1", "fresh")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newDocRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.DocumentUploading), 80, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.DocumentUploading, 80, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
