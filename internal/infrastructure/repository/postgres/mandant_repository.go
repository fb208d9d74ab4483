package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type MandantRepository struct {
	db *sql.DB
}

func NewMandantRepository(db *sql.DB) *MandantRepository {
	return &MandantRepository{db: db}
}

func (r *MandantRepository) Create(ctx context.Context, mandant *domain.Mandant) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO mandanten (id, number, name, created_at)
VALUES ($1,$2,$3,$4)
`, mandant.ID, mandant.Number, mandant.Name, mandant.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert mandant: %w", err)
	}
	return nil
}

func (r *MandantRepository) GetByID(ctx context.Context, id string) (*domain.Mandant, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, number, name, created_at
FROM mandanten
WHERE id = $1
`, id)

	var mandant domain.Mandant
	err := row.Scan(&mandant.ID, &mandant.Number, &mandant.Name, &mandant.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get mandant", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan mandant: %w", err)
	}
	return &mandant, nil
}

func (r *MandantRepository) List(ctx context.Context) ([]domain.Mandant, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, number, name, created_at
FROM mandanten
ORDER BY number ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list mandanten: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Mandant, 0)
	for rows.Next() {
		var mandant domain.Mandant
		if err := rows.Scan(&mandant.ID, &mandant.Number, &mandant.Name, &mandant.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mandant: %w", err)
		}
		out = append(out, mandant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mandanten: %w", err)
	}
	return out, nil
}
