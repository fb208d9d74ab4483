package ports

import (
	"context"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

// BatchIngestor is the inbound contract for upload intake orchestration.
type BatchIngestor interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)
}

// DuplicateChecker answers advisory fingerprint pre-checks.
type DuplicateChecker interface {
	CheckFingerprints(ctx context.Context, mandantID string, fingerprints []string) (map[string]domain.DuplicateCheck, error)
}

// BatchDispatcher forwards a stored batch to the automation platform.
type BatchDispatcher interface {
	DispatchByID(ctx context.Context, batchID string) error
}

// BookingReviewer is the inbound contract for the review/approval screen.
type BookingReviewer interface {
	List(ctx context.Context, filter domain.BookingFilter) ([]domain.BookingEntry, error)
	Approve(ctx context.Context, actorID, bookingID string) error
	Reject(ctx context.Context, actorID, bookingID string) error
	Save(ctx context.Context, actorID string, entry domain.BookingEntry) error
	Delete(ctx context.Context, actorID, bookingID string) error
	RecordClassification(ctx context.Context, entry domain.BookingEntry) (*domain.BookingEntry, error)
}

// Exporter assembles approved entries into downloadable export batches.
type Exporter interface {
	CreateExport(ctx context.Context, actorID, mandantID string) (*domain.ExportBatch, error)
	DownloadURL(ctx context.Context, exportID string) (string, error)
}

// AccountService covers signup, login, and admin approval decisions.
type AccountService interface {
	Register(ctx context.Context, email, displayName, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	Decide(ctx context.Context, userID string, approval domain.ApprovalStatus) error
}
