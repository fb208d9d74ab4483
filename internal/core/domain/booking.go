package domain

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingApproved  BookingStatus = "approved"
	BookingRejected  BookingStatus = "rejected"
	BookingReady     BookingStatus = "ready"
	BookingExported  BookingStatus = "exported"
	BookingCorrected BookingStatus = "corrected"
)

// BookingEntry is a proposed accounting transaction derived from a document by
// the external classifier. Reviewers approve, reject, or correct it.
type BookingEntry struct {
	ID           string        `json:"id"`
	MandantID    string        `json:"mandant_id"`
	DocumentID   string        `json:"document_id,omitempty"`
	SourceName   string        `json:"source_document_name"`
	BookingDate  time.Time     `json:"booking_date"`
	AmountCents  int64         `json:"amount_cents"`
	Description  string        `json:"description"`
	AccountCode  string        `json:"account_code"`
	TaxRateLabel string        `json:"tax_rate_label"`
	Confidence   float64       `json:"confidence"`
	Status       BookingStatus `json:"status"`
	Hints        []string      `json:"hints,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type ConfidenceBucket string

const (
	ConfidenceAny    ConfidenceBucket = ""
	ConfidenceHigh   ConfidenceBucket = "high"
	ConfidenceMedium ConfidenceBucket = "medium"
	ConfidenceLow    ConfidenceBucket = "low"
)

// Bucket sorts a 0-100 confidence score into the review UI's three bands.
func Bucket(confidence float64) ConfidenceBucket {
	switch {
	case confidence >= 90:
		return ConfidenceHigh
	case confidence >= 70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// BookingFilter combines the two independent review-list filters with AND.
type BookingFilter struct {
	MandantID  string
	Status     BookingStatus
	Confidence ConfidenceBucket
	SortColumn string
	SortDesc   bool
}

// HistoryEntry records one reviewer action against a booking entry. History
// rows are dependents of the entry and are removed by the cascading delete.
type HistoryEntry struct {
	ID        string        `json:"id"`
	BookingID string        `json:"booking_id"`
	ActorID   string        `json:"actor_id"`
	Action    string        `json:"action"`
	OldStatus BookingStatus `json:"old_status"`
	NewStatus BookingStatus `json:"new_status"`
	CreatedAt time.Time     `json:"created_at"`
}

type ExportBatchStatus string

const (
	ExportGenerated ExportBatchStatus = "generated"
	ExportFailed    ExportBatchStatus = "failed"
)

// ExportBatch bundles approved entries into one generated workbook.
type ExportBatch struct {
	ID         string            `json:"id"`
	MandantID  string            `json:"mandant_id"`
	StorageKey string            `json:"storage_key"`
	EntryCount int               `json:"entry_count"`
	Status     ExportBatchStatus `json:"status"`
	CreatedBy  string            `json:"created_by"`
	CreatedAt  time.Time         `json:"created_at"`
}
