package ports

import (
	"context"
	"io"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

// DocumentRepository persists registry records for uploaded files.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	FindByFingerprint(ctx context.Context, mandantID, fingerprint string) (*domain.Document, error)
	ListByBatch(ctx context.Context, batchID string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, progress int, errMessage string) error
}

// BatchRepository persists upload batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMessage string) error
	MarkForwarded(ctx context.Context, id string, at time.Time) error
}

// BookingRepository persists booking entries and their dependent rows.
type BookingRepository interface {
	Insert(ctx context.Context, entry *domain.BookingEntry) error
	GetByID(ctx context.Context, id string) (*domain.BookingEntry, error)
	List(ctx context.Context, filter domain.BookingFilter) ([]domain.BookingEntry, error)
	Update(ctx context.Context, entry *domain.BookingEntry) error
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error
	AppendHistory(ctx context.Context, entry domain.HistoryEntry) error
	Enqueue(ctx context.Context, bookingID string) error
	// DeleteCascade removes export-queue rows and history rows before the
	// entry itself, all inside one transaction.
	DeleteCascade(ctx context.Context, id string) error
	ListQueued(ctx context.Context, mandantID string) ([]domain.BookingEntry, error)
	MarkExported(ctx context.Context, bookingIDs []string, exportBatchID string) error
}

// ExportRepository persists generated export batches.
type ExportRepository interface {
	Create(ctx context.Context, batch *domain.ExportBatch) error
	GetByID(ctx context.Context, id string) (*domain.ExportBatch, error)
}

// MandantRepository reads and writes bookkeeping clients.
type MandantRepository interface {
	Create(ctx context.Context, mandant *domain.Mandant) error
	GetByID(ctx context.Context, id string) (*domain.Mandant, error)
	List(ctx context.Context) ([]domain.Mandant, error)
}

// UserRepository persists staff accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateApproval(ctx context.Context, id string, approval domain.ApprovalStatus) error
}

// ObjectStorage stores source documents and generated export artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// MessageQueue decouples intake from webhook dispatch and feeds the SSE stream.
type MessageQueue interface {
	PublishBatchStored(ctx context.Context, batchID string) error
	SubscribeBatchStored(ctx context.Context, handler func(context.Context, string) error) error
	PublishChange(ctx context.Context, change domain.ChangeEvent) error
	SubscribeChanges(ctx context.Context, handler func(context.Context, domain.ChangeEvent)) (func(), error)
}

// AutomationWebhook forwards batch manifests to the external workflow platform.
type AutomationWebhook interface {
	ForwardBatch(ctx context.Context, manifest domain.BatchManifest) error
}

// MailNotifier fires signup and approval-decision notifications.
// Failures are logged, never propagated into the triggering operation.
type MailNotifier interface {
	NotifySignup(ctx context.Context, user domain.User) error
	NotifyApprovalDecision(ctx context.Context, user domain.User) error
}
