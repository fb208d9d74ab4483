package usecase

import (
	"bytes"

	"github.com/ledongthuc/pdf"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

const (
	// MaxFileSize is the per-file byte ceiling (10 MiB).
	MaxFileSize = 10 << 20
	// MaxBatchFiles caps the candidate count of one batch.
	MaxBatchFiles = 10
)

var acceptedMimeTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
}

// Validator enforces type, size, and count constraints before any network
// call. It is pure: re-running it over an already-accepted list produces no
// new rejections and no side effects.
type Validator struct {
	maxFileSize   int64
	maxBatchFiles int
}

func NewValidator() *Validator {
	return &Validator{
		maxFileSize:   MaxFileSize,
		maxBatchFiles: MaxBatchFiles,
	}
}

// ValidateBatch filters newly offered files against the constraints, given how
// many candidates the batch already holds. Files beyond the count cap are
// rejected first-come: the first (cap - accepted) valid offers pass, the rest
// are turned away as too-many-files rather than silently dropped.
func (v *Validator) ValidateBatch(alreadyAccepted int, offers []domain.FileOffer) ([]domain.FileOffer, []domain.Rejection) {
	accepted := make([]domain.FileOffer, 0, len(offers))
	var rejections []domain.Rejection

	remaining := v.maxBatchFiles - alreadyAccepted
	if remaining < 0 {
		remaining = 0
	}

	for _, offer := range offers {
		if reason, ok := v.checkOffer(offer); !ok {
			rejections = append(rejections, domain.Rejection{Filename: offer.Filename, Reason: reason})
			continue
		}
		if len(accepted) >= remaining {
			rejections = append(rejections, domain.Rejection{Filename: offer.Filename, Reason: domain.RejectTooMany})
			continue
		}
		accepted = append(accepted, offer)
	}
	return accepted, rejections
}

func (v *Validator) checkOffer(offer domain.FileOffer) (domain.RejectionReason, bool) {
	if _, ok := acceptedMimeTypes[offer.MimeType]; !ok {
		return domain.RejectUnsupportedType, false
	}
	if offer.Size > v.maxFileSize {
		return domain.RejectTooLarge, false
	}
	if offer.MimeType == "application/pdf" && !isReadablePDF(offer.Content) {
		return domain.RejectNotAPDF, false
	}
	return "", true
}

// isReadablePDF opens the payload as a PDF so a mislabeled body is caught
// before it reaches the hasher or the network. The pdf package panics on
// malformed cross-reference tables instead of returning an error, so a
// recover treats any panic as "not a PDF".
func isReadablePDF(content []byte) (ok bool) {
	if len(content) == 0 {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return false
	}
	return reader.NumPage() >= 1
}

// RejectionClasses collapses per-file rejections into one entry per reason so
// callers can notify once per class instead of flooding per file.
func RejectionClasses(rejections []domain.Rejection) []domain.RejectionReason {
	seen := make(map[domain.RejectionReason]struct{}, len(rejections))
	var classes []domain.RejectionReason
	for _, r := range rejections {
		if _, ok := seen[r.Reason]; ok {
			continue
		}
		seen[r.Reason] = struct{}{}
		classes = append(classes, r.Reason)
	}
	return classes
}
