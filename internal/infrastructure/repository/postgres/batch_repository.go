package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO batches (id, mandant_id, mandant_number, uploader_id, file_count, status, error_message, forwarded_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, batch.ID, batch.MandantID, batch.MandantNumber, batch.UploaderID, batch.FileCount,
		string(batch.Status), batch.ErrorMessage, batch.ForwardedAt, batch.CreatedAt, batch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, mandant_id, mandant_number, uploader_id, file_count, status, error_message, forwarded_at, created_at, updated_at
FROM batches
WHERE id = $1
`, id)

	var batch domain.Batch
	var status string
	err := row.Scan(
		&batch.ID, &batch.MandantID, &batch.MandantNumber, &batch.UploaderID, &batch.FileCount,
		&status, &batch.ErrorMessage, &batch.ForwardedAt, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get batch", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	batch.Status = domain.BatchStatus(status)
	return &batch, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE batches
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update batch status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *BatchRepository) MarkForwarded(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE batches
SET status = $2, forwarded_at = $3, error_message = '', updated_at = $3
WHERE id = $1
`, id, string(domain.BatchForwarded), at)
	if err != nil {
		return fmt.Errorf("mark batch forwarded: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark batch forwarded rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "mark batch forwarded", fmt.Errorf("id=%s", id))
	}
	return nil
}
