package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type ExportRepository struct {
	db *sql.DB
}

func NewExportRepository(db *sql.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

func (r *ExportRepository) Create(ctx context.Context, batch *domain.ExportBatch) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO export_batches (id, mandant_id, storage_key, entry_count, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, batch.ID, batch.MandantID, batch.StorageKey, batch.EntryCount, string(batch.Status), batch.CreatedBy, batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert export batch: %w", err)
	}
	return nil
}

func (r *ExportRepository) GetByID(ctx context.Context, id string) (*domain.ExportBatch, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, mandant_id, storage_key, entry_count, status, created_by, created_at
FROM export_batches
WHERE id = $1
`, id)

	var batch domain.ExportBatch
	var status string
	err := row.Scan(&batch.ID, &batch.MandantID, &batch.StorageKey, &batch.EntryCount, &status, &batch.CreatedBy, &batch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get export batch", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan export batch: %w", err)
	}
	batch.Status = domain.ExportBatchStatus(status)
	return &batch, nil
}
