package usecase

import (
	"context"
	"log/slog"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/core/ports"
)

// DuplicateService answers advisory fingerprint lookups against the registry.
// A transport failure is surfaced as "unknown" and never blocks intake: the
// check fails open so a network blip cannot stop legitimate uploads.
type DuplicateService struct {
	documents ports.DocumentRepository
	logger    *slog.Logger
}

func NewDuplicateService(documents ports.DocumentRepository, logger *slog.Logger) *DuplicateService {
	return &DuplicateService{documents: documents, logger: logger}
}

func (s *DuplicateService) CheckFingerprints(ctx context.Context, mandantID string, fingerprints []string) (map[string]domain.DuplicateCheck, error) {
	out := make(map[string]domain.DuplicateCheck, len(fingerprints))
	for _, fp := range fingerprints {
		out[fp] = s.checkOne(ctx, mandantID, fp)
	}
	return out, nil
}

func (s *DuplicateService) checkOne(ctx context.Context, mandantID, fingerprint string) domain.DuplicateCheck {
	doc, err := s.documents.FindByFingerprint(ctx, mandantID, fingerprint)
	switch {
	case err == nil:
		return domain.DuplicateCheck{Duplicate: true, DocumentID: doc.ID}
	case domain.IsKind(err, domain.ErrNotFound):
		return domain.DuplicateCheck{}
	default:
		s.logger.Warn("duplicate check failed open",
			"mandant_id", mandantID,
			"fingerprint", fingerprint,
			"error", err,
		)
		return domain.DuplicateCheck{Unknown: true}
	}
}
