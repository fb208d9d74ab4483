package token

import (
	"testing"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	mgr, err := NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	user := &domain.User{ID: "u-1", Role: domain.RoleAdmin, Approval: domain.ApprovalApproved}
	signed, err := mgr.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := mgr.Verify(signed)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "u-1" || claims.Role != "admin" || claims.Approval != "approved" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer, _ := NewManager("secret-a", time.Hour)
	verifier, _ := NewManager("secret-b", time.Hour)

	signed, err := issuer.Issue(&domain.User{ID: "u-1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := verifier.Verify(signed); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	mgr, _ := NewManager("test-secret", time.Hour)
	mgr.expiry = -time.Minute

	signed, err := mgr.Issue(&domain.User{ID: "u-1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := mgr.Verify(signed); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
