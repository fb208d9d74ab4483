package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, batch_id, mandant_id, filename, mime_type, size_bytes, fingerprint, storage_key, status, progress, duplicate_of, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.BatchID, doc.MandantID, doc.Filename, doc.MimeType, doc.SizeBytes, doc.Fingerprint,
		doc.StorageKey, string(doc.Status), doc.Progress, doc.DuplicateOf, doc.ErrorMessage, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, batch_id, mandant_id, filename, mime_type, size_bytes, fingerprint, storage_key, status, progress, duplicate_of, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// FindByFingerprint returns the newest registered file with this content hash
// for the mandant. Error-state rows do not count as registrations.
func (r *DocumentRepository) FindByFingerprint(ctx context.Context, mandantID, fingerprint string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, batch_id, mandant_id, filename, mime_type, size_bytes, fingerprint, storage_key, status, progress, duplicate_of, error_message, created_at, updated_at
FROM documents
WHERE mandant_id = $1 AND fingerprint = $2 AND status <> $3
ORDER BY created_at DESC, id DESC
LIMIT 1
`, mandantID, fingerprint, string(domain.DocumentError))

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "find by fingerprint", errors.New("no registered file"))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByBatch(ctx context.Context, batchID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, batch_id, mandant_id, filename, mime_type, size_bytes, fingerprint, storage_key, status, progress, duplicate_of, error_message, created_at, updated_at
FROM documents
WHERE batch_id = $1
ORDER BY created_at ASC, id ASC
`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, progress int, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, progress = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, id, string(status), progress, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update document status", fmt.Errorf("id=%s", id))
	}
	return nil
}

type documentScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row documentScanner) (domain.Document, error) {
	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID,
		&doc.BatchID,
		&doc.MandantID,
		&doc.Filename,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.Fingerprint,
		&doc.StorageKey,
		&status,
		&doc.Progress,
		&doc.DuplicateOf,
		&doc.ErrorMessage,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Status = domain.DocumentStatus(status)
	return doc, nil
}
