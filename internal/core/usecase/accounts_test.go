package usecase

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type userRepoFake struct {
	users     map[string]*domain.User
	byEmail   map[string]*domain.User
	approvals map[string]domain.ApprovalStatus
}

func newUserRepoFake() *userRepoFake {
	return &userRepoFake{
		users:     map[string]*domain.User{},
		byEmail:   map[string]*domain.User{},
		approvals: map[string]domain.ApprovalStatus{},
	}
}

func (f *userRepoFake) Create(_ context.Context, user *domain.User) error {
	f.users[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *userRepoFake) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get user", errors.New("no record"))
	}
	return user, nil
}

func (f *userRepoFake) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "find user", errors.New("no record"))
	}
	return user, nil
}

func (f *userRepoFake) List(context.Context) ([]domain.User, error) {
	return nil, errors.New("not implemented")
}

func (f *userRepoFake) UpdateApproval(_ context.Context, id string, approval domain.ApprovalStatus) error {
	f.approvals[id] = approval
	if user, ok := f.users[id]; ok {
		user.Approval = approval
	}
	return nil
}

type mailFake struct {
	signups   []string
	decisions []string
	err       error
}

func (f *mailFake) NotifySignup(_ context.Context, user domain.User) error {
	if f.err != nil {
		return f.err
	}
	f.signups = append(f.signups, user.Email)
	return nil
}

func (f *mailFake) NotifyApprovalDecision(_ context.Context, user domain.User) error {
	if f.err != nil {
		return f.err
	}
	f.decisions = append(f.decisions, user.Email)
	return nil
}

func TestRegisterCreatesPendingUser(t *testing.T) {
	users := newUserRepoFake()
	mail := &mailFake{}
	uc := NewAccountUseCase(users, mail, testLogger())

	user, err := uc.Register(context.Background(), "  Anna@Example.COM ", "Anna", "correct horse")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.Email != "anna@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != domain.RoleUser || user.Approval != domain.ApprovalPending {
		t.Fatalf("new accounts must be pending regular users, got %+v", user)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")); err != nil {
		t.Fatalf("stored hash must verify the password: %v", err)
	}
	if len(mail.signups) != 1 {
		t.Fatalf("expected signup notification, got %v", mail.signups)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	uc := NewAccountUseCase(newUserRepoFake(), &mailFake{}, testLogger())

	if _, err := uc.Register(context.Background(), "not-an-email", "X", "longenough"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for email, got %v", err)
	}
	if _, err := uc.Register(context.Background(), "a@b.de", "X", "short"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for password, got %v", err)
	}
}

func TestRegisterSurvivesMailOutage(t *testing.T) {
	uc := NewAccountUseCase(newUserRepoFake(), &mailFake{err: errors.New("smtp down")}, testLogger())

	if _, err := uc.Register(context.Background(), "a@b.de", "X", "longenough"); err != nil {
		t.Fatalf("mail outage must not fail registration: %v", err)
	}
}

func TestLoginUniformError(t *testing.T) {
	users := newUserRepoFake()
	uc := NewAccountUseCase(users, &mailFake{}, testLogger())

	registered, err := uc.Register(context.Background(), "a@b.de", "X", "longenough")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	unknownErr := func() error {
		_, err := uc.Login(context.Background(), "nobody@b.de", "whatever")
		return err
	}()
	wrongErr := func() error {
		_, err := uc.Login(context.Background(), "a@b.de", "wrong password")
		return err
	}()
	for _, err := range []error{unknownErr, wrongErr} {
		if !domain.IsKind(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	}
	// Unknown email and wrong password must be indistinguishable.
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("login errors leak account existence: %q vs %q", unknownErr, wrongErr)
	}

	user, err := uc.Login(context.Background(), "A@B.de", "longenough")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("expected the registered user back, got %+v", user)
	}
}

func TestDecideValidatesAndNotifies(t *testing.T) {
	users := newUserRepoFake()
	mail := &mailFake{}
	uc := NewAccountUseCase(users, mail, testLogger())

	user, _ := uc.Register(context.Background(), "a@b.de", "X", "longenough")

	if err := uc.Decide(context.Background(), user.ID, domain.ApprovalPending); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("pending is not a decision, got %v", err)
	}
	if err := uc.Decide(context.Background(), user.ID, domain.ApprovalApproved); err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if users.approvals[user.ID] != domain.ApprovalApproved {
		t.Fatalf("expected approval persisted, got %v", users.approvals)
	}
	if len(mail.decisions) != 1 {
		t.Fatalf("expected decision notification, got %v", mail.decisions)
	}
}
