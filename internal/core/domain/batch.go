package domain

import "time"

type BatchStatus string

const (
	BatchRegistering BatchStatus = "registering"
	BatchStored      BatchStatus = "stored"
	BatchForwarded   BatchStatus = "forwarded"
	BatchFailed      BatchStatus = "failed"
)

// Batch groups the files of one intake request. The worker forwards a stored
// batch to the automation webhook as a single manifest.
type Batch struct {
	ID            string      `json:"id"`
	MandantID     string      `json:"mandant_id"`
	MandantNumber string      `json:"mandant_number"`
	UploaderID    string      `json:"uploader_id"`
	FileCount     int         `json:"file_count"`
	Status        BatchStatus `json:"status"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ForwardedAt   *time.Time  `json:"forwarded_at,omitempty"`
}

// BatchManifest is the payload forwarded to the automation platform: batch
// metadata plus every successfully registered file with its raw bytes.
type BatchManifest struct {
	BatchID       string
	MandantID     string
	MandantNumber string
	UploaderID    string
	UploadedAt    time.Time
	Files         []ManifestFile
}

type ManifestFile struct {
	RegistryID string
	StorageKey string
	Filename   string
	MimeType   string
	SizeBytes  int64
	Content    []byte
}
