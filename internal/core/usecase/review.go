package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/core/ports"
)

// ReviewUseCase backs the review/approval screen: list with combined filters,
// approve, reject, save corrections, and the admin-only cascading delete.
// Every write is a single attempt; there is no optimistic local state to roll
// back, so a failed write leaves store and caller consistent.
type ReviewUseCase struct {
	bookings ports.BookingRepository
	queue    ports.MessageQueue
	logger   *slog.Logger
}

func NewReviewUseCase(bookings ports.BookingRepository, queue ports.MessageQueue, logger *slog.Logger) *ReviewUseCase {
	return &ReviewUseCase{bookings: bookings, queue: queue, logger: logger}
}

func (uc *ReviewUseCase) List(ctx context.Context, filter domain.BookingFilter) ([]domain.BookingEntry, error) {
	entries, err := uc.bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list booking entries: %w", err)
	}
	return entries, nil
}

// Approve moves an entry to approved, records the reviewer action, and puts
// the entry on the export queue.
func (uc *ReviewUseCase) Approve(ctx context.Context, actorID, bookingID string) error {
	entry, err := uc.transition(ctx, actorID, bookingID, domain.BookingApproved, "approve")
	if err != nil {
		return err
	}
	if err := uc.bookings.Enqueue(ctx, bookingID); err != nil {
		return fmt.Errorf("enqueue for export: %w", err)
	}
	uc.publishChange(ctx, entry, "approve")
	return nil
}

func (uc *ReviewUseCase) Reject(ctx context.Context, actorID, bookingID string) error {
	entry, err := uc.transition(ctx, actorID, bookingID, domain.BookingRejected, "reject")
	if err != nil {
		return err
	}
	uc.publishChange(ctx, entry, "reject")
	return nil
}

// Save persists a reviewer's correction of one row and marks it corrected.
func (uc *ReviewUseCase) Save(ctx context.Context, actorID string, entry domain.BookingEntry) error {
	current, err := uc.bookings.GetByID(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("fetch booking entry: %w", err)
	}
	if current.Status == domain.BookingExported {
		return domain.WrapError(domain.ErrInvalidInput, "save booking", errors.New("exported entries are immutable"))
	}

	entry.MandantID = current.MandantID
	entry.DocumentID = current.DocumentID
	entry.Status = domain.BookingCorrected
	entry.UpdatedAt = time.Now().UTC()
	if err := uc.bookings.Update(ctx, &entry); err != nil {
		return fmt.Errorf("update booking entry: %w", err)
	}

	uc.appendHistory(ctx, actorID, entry.ID, "correct", current.Status, domain.BookingCorrected)
	uc.publishChange(ctx, &entry, "correct")
	return nil
}

// Delete removes an entry and its dependents (export-queue rows, history
// rows) in one transaction, dependents first.
func (uc *ReviewUseCase) Delete(ctx context.Context, actorID, bookingID string) error {
	entry, err := uc.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("fetch booking entry: %w", err)
	}
	if err := uc.bookings.DeleteCascade(ctx, bookingID); err != nil {
		return fmt.Errorf("cascade delete booking entry: %w", err)
	}
	uc.logger.Info("booking entry deleted", "booking_id", bookingID, "actor_id", actorID)
	uc.publishChange(ctx, entry, "delete")
	return nil
}

// RecordClassification accepts a result row from the external classifier.
// Rows arrive as loose JSON; everything is validated here and malformed rows
// are rejected instead of trusted downstream.
func (uc *ReviewUseCase) RecordClassification(ctx context.Context, entry domain.BookingEntry) (*domain.BookingEntry, error) {
	if err := validateClassification(&entry); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry.ID = uuid.NewString()
	entry.Status = domain.BookingPending
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := uc.bookings.Insert(ctx, &entry); err != nil {
		return nil, fmt.Errorf("insert booking entry: %w", err)
	}
	uc.publishChange(ctx, &entry, "create")
	return &entry, nil
}

func (uc *ReviewUseCase) transition(ctx context.Context, actorID, bookingID string, to domain.BookingStatus, action string) (*domain.BookingEntry, error) {
	entry, err := uc.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("fetch booking entry: %w", err)
	}
	if !transitionAllowed(entry.Status, to) {
		return nil, domain.WrapError(domain.ErrInvalidInput, action,
			fmt.Errorf("transition %s -> %s not allowed", entry.Status, to))
	}
	if err := uc.bookings.UpdateStatus(ctx, bookingID, to); err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	uc.appendHistory(ctx, actorID, bookingID, action, entry.Status, to)
	entry.Status = to
	return entry, nil
}

func transitionAllowed(from, to domain.BookingStatus) bool {
	if from == domain.BookingExported {
		return false
	}
	switch to {
	case domain.BookingApproved:
		return from != domain.BookingApproved
	case domain.BookingRejected:
		return from != domain.BookingRejected
	default:
		return false
	}
}

func (uc *ReviewUseCase) appendHistory(ctx context.Context, actorID, bookingID, action string, from, to domain.BookingStatus) {
	err := uc.bookings.AppendHistory(ctx, domain.HistoryEntry{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: from,
		NewStatus: to,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		uc.logger.Error("append booking history", "booking_id", bookingID, "action", action, "error", err)
	}
}

func (uc *ReviewUseCase) publishChange(ctx context.Context, entry *domain.BookingEntry, action string) {
	err := uc.queue.PublishChange(ctx, domain.ChangeEvent{
		Kind:      "booking",
		EntityID:  entry.ID,
		MandantID: entry.MandantID,
		Action:    action,
		At:        time.Now().UTC(),
	})
	if err != nil {
		uc.logger.Warn("publish booking change", "booking_id", entry.ID, "error", err)
	}
}

func validateClassification(entry *domain.BookingEntry) error {
	switch {
	case strings.TrimSpace(entry.MandantID) == "" || entry.MandantID == domain.MandantAll:
		return domain.WrapError(domain.ErrInvalidInput, "record classification", errors.New("mandant reference missing"))
	case strings.TrimSpace(entry.SourceName) == "":
		return domain.WrapError(domain.ErrInvalidInput, "record classification", errors.New("source document name missing"))
	case entry.Confidence < 0 || entry.Confidence > 100:
		return domain.WrapError(domain.ErrInvalidInput, "record classification", fmt.Errorf("confidence %v out of range", entry.Confidence))
	case entry.BookingDate.IsZero():
		return domain.WrapError(domain.ErrInvalidInput, "record classification", errors.New("booking date missing"))
	}
	return nil
}
