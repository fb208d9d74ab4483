package domain

import "time"

type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentUploading DocumentStatus = "uploading"
	DocumentSuccess   DocumentStatus = "success"
	DocumentError     DocumentStatus = "error"
)

// Document is the durable registry record for one uploaded file. It is created
// during intake and joined against classification results later.
type Document struct {
	ID           string         `json:"id"`
	BatchID      string         `json:"batch_id"`
	MandantID    string         `json:"mandant_id"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mime_type"`
	SizeBytes    int64          `json:"size_bytes"`
	Fingerprint  string         `json:"fingerprint"`
	StorageKey   string         `json:"storage_key"`
	Status       DocumentStatus `json:"status"`
	Progress     int            `json:"progress"`
	DuplicateOf  string         `json:"duplicate_of,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// FileOffer is one candidate file presented to the validator before any
// network step. Content is the full payload; intake batches are capped well
// below a size where buffering would hurt.
type FileOffer struct {
	Filename string
	MimeType string
	Size     int64
	Content  []byte
}

// Rejection describes why an offered file was turned away. Reason is a class,
// not free text: callers emit one notification per class.
type Rejection struct {
	Filename string          `json:"filename"`
	Reason   RejectionReason `json:"reason"`
}

type RejectionReason string

const (
	RejectUnsupportedType RejectionReason = "unsupported-type"
	RejectTooLarge        RejectionReason = "too-large"
	RejectTooMany         RejectionReason = "too-many-files"
	RejectNotAPDF         RejectionReason = "not-a-pdf"
	RejectDuplicate       RejectionReason = "duplicate"
)
