package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/core/ports"
)

// AccountUseCase covers signup, login, and the admin approval workflow. New
// accounts stay pending until an admin decides; notification mails are
// fire-and-forget and never fail the triggering operation.
type AccountUseCase struct {
	users  ports.UserRepository
	mail   ports.MailNotifier
	logger *slog.Logger
}

func NewAccountUseCase(users ports.UserRepository, mail ports.MailNotifier, logger *slog.Logger) *AccountUseCase {
	return &AccountUseCase{users: users, mail: mail, logger: logger}
}

func (uc *AccountUseCase) Register(ctx context.Context, email, displayName, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("invalid email"))
	}
	if len(password) < 8 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("password too short"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		Approval:     domain.ApprovalPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := uc.mail.NotifySignup(ctx, *user); err != nil {
		uc.logger.Warn("signup notification failed", "user_id", user.ID, "error", err)
	}
	return user, nil
}

func (uc *AccountUseCase) Login(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := uc.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrUnauthorized, "login", errors.New("unknown email or wrong password"))
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.WrapError(domain.ErrUnauthorized, "login", errors.New("unknown email or wrong password"))
	}
	return user, nil
}

func (uc *AccountUseCase) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := uc.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return user, nil
}

func (uc *AccountUseCase) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := uc.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Decide records an admin's approval decision and notifies the user.
func (uc *AccountUseCase) Decide(ctx context.Context, userID string, approval domain.ApprovalStatus) error {
	if approval != domain.ApprovalApproved && approval != domain.ApprovalRejected {
		return domain.WrapError(domain.ErrInvalidInput, "approval decision", fmt.Errorf("invalid decision %q", approval))
	}
	if err := uc.users.UpdateApproval(ctx, userID, approval); err != nil {
		return fmt.Errorf("update approval: %w", err)
	}

	user, err := uc.users.GetByID(ctx, userID)
	if err != nil {
		uc.logger.Warn("fetch user after approval decision", "user_id", userID, "error", err)
		return nil
	}
	if err := uc.mail.NotifyApprovalDecision(ctx, *user); err != nil {
		uc.logger.Warn("approval notification failed", "user_id", userID, "error", err)
	}
	return nil
}
