package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, display_name, password_hash, role, approval, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, user.ID, user.Email, user.DisplayName, user.PasswordHash, string(user.Role), string(user.Approval), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = $1
`, id)
	return scanUserRow(row, fmt.Sprintf("id=%s", id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = $1
`, email)
	return scanUserRow(row, "by email")
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
ORDER BY created_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		var role, approval string
		if err := rows.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &role, &approval, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Role = domain.Role(role)
		user.Approval = domain.ApprovalStatus(approval)
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func (r *UserRepository) UpdateApproval(ctx context.Context, id string, approval domain.ApprovalStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE users
SET approval = $2, updated_at = $3
WHERE id = $1
`, id, string(approval), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user approval: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user approval rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update user approval", fmt.Errorf("id=%s", id))
	}
	return nil
}

func scanUserRow(row *sql.Row, ref string) (*domain.User, error) {
	var user domain.User
	var role, approval string
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &role, &approval, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get user", errors.New(ref))
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Role = domain.Role(role)
	user.Approval = domain.ApprovalStatus(approval)
	return &user, nil
}
