package flowhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

// Mailer posts account events to the mail automation webhook, which renders
// and sends the actual mails. Callers treat failures as non-fatal.
type Mailer struct {
	signupURL   string
	decisionURL string
	httpClient  *http.Client
}

func NewMailer(signupURL, decisionURL string) *Mailer {
	return &Mailer{
		signupURL:   signupURL,
		decisionURL: decisionURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type mailEvent struct {
	Event       string    `json:"event"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Approval    string    `json:"approval,omitempty"`
	At          time.Time `json:"at"`
}

func (m *Mailer) NotifySignup(ctx context.Context, user domain.User) error {
	return m.post(ctx, m.signupURL, mailEvent{
		Event:       "signup",
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		At:          time.Now().UTC(),
	})
}

func (m *Mailer) NotifyApprovalDecision(ctx context.Context, user domain.User) error {
	return m.post(ctx, m.decisionURL, mailEvent{
		Event:       "approval-decision",
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Approval:    string(user.Approval),
		At:          time.Now().UTC(),
	})
}

func (m *Mailer) post(ctx context.Context, url string, event mailEvent) error {
	if url == "" {
		// Mail webhooks are optional; an unset URL disables the notification.
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal mail event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  event.Event,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	return nil
}
