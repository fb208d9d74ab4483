package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/core/ports"
)

// IngestUseCase is the upload orchestrator. Files are processed sequentially:
// fingerprint, duplicate check, storage put, registry insert. A failure in one
// file isolates to that file; the batch continues. Forwarding to the
// automation webhook happens off this path, in the worker, via the queue.
type IngestUseCase struct {
	validator *Validator
	dedup     *DuplicateService
	documents ports.DocumentRepository
	batches   ports.BatchRepository
	mandants  ports.MandantRepository
	storage   ports.ObjectStorage
	queue     ports.MessageQueue
	logger    *slog.Logger
}

func NewIngestUseCase(
	validator *Validator,
	dedup *DuplicateService,
	documents ports.DocumentRepository,
	batches ports.BatchRepository,
	mandants ports.MandantRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	logger *slog.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		validator: validator,
		dedup:     dedup,
		documents: documents,
		batches:   batches,
		mandants:  mandants,
		storage:   storage,
		queue:     queue,
		logger:    logger,
	}
}

func (uc *IngestUseCase) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	// Hard gate: uploads need a concrete mandant, never the "all" sentinel.
	if req.MandantID == "" || req.MandantID == domain.MandantAll {
		return nil, domain.WrapError(domain.ErrMandantRequired, "ingest", errors.New("no mandant selected"))
	}
	if len(req.Offers) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest", errors.New("no files offered"))
	}

	mandant, err := uc.mandants.GetByID(ctx, req.MandantID)
	if err != nil {
		return nil, fmt.Errorf("resolve mandant: %w", err)
	}

	accepted, rejections := uc.validator.ValidateBatch(0, req.Offers)
	if len(accepted) == 0 {
		return &domain.IngestResult{Rejections: rejections}, nil
	}

	now := time.Now().UTC()
	batch := &domain.Batch{
		ID:            uuid.NewString(),
		MandantID:     mandant.ID,
		MandantNumber: mandant.Number,
		UploaderID:    req.UploaderID,
		FileCount:     len(accepted),
		Status:        domain.BatchRegistering,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	files := make([]domain.Document, 0, len(accepted))
	stored := 0
	for _, offer := range accepted {
		doc, skip := uc.ingestFile(ctx, batch, mandant, offer, req.AllowDuplicates)
		if skip != nil {
			rejections = append(rejections, *skip)
			continue
		}
		files = append(files, *doc)
		if doc.Status != domain.DocumentError {
			stored++
		}
	}

	switch {
	case stored == 0:
		batch.Status = domain.BatchFailed
		batch.ErrorMessage = "no files stored"
		if err := uc.batches.UpdateStatus(ctx, batch.ID, batch.Status, batch.ErrorMessage); err != nil {
			uc.logger.Error("mark batch failed", "batch_id", batch.ID, "error", err)
		}
	default:
		batch.Status = domain.BatchStored
		if err := uc.batches.UpdateStatus(ctx, batch.ID, batch.Status, ""); err != nil {
			return nil, fmt.Errorf("mark batch stored: %w", err)
		}
		if err := uc.queue.PublishBatchStored(ctx, batch.ID); err != nil {
			// The batch is durable; dispatch just will not start on its own.
			batch.Status = domain.BatchFailed
			batch.ErrorMessage = "dispatch publish failed"
			if markErr := uc.batches.UpdateStatus(ctx, batch.ID, batch.Status, batch.ErrorMessage); markErr != nil {
				uc.logger.Error("mark batch failed after publish error", "batch_id", batch.ID, "error", markErr)
			}
			return nil, fmt.Errorf("publish batch stored: %w", err)
		}
	}

	return &domain.IngestResult{Batch: batch, Files: files, Rejections: rejections}, nil
}

// ingestFile walks one candidate through fingerprint, duplicate check,
// storage put, and registry insert. Every accepted candidate ends up with a
// registry row: successful uploads after the bytes are durably stored, failed
// ones as error rows that dedup lookups ignore. It returns a rejection only
// for a disallowed duplicate; every other failure comes back as an
// error-state file.
func (uc *IngestUseCase) ingestFile(
	ctx context.Context,
	batch *domain.Batch,
	mandant *domain.Mandant,
	offer domain.FileOffer,
	allowDuplicates bool,
) (*domain.Document, *domain.Rejection) {
	now := time.Now().UTC()
	doc := &domain.Document{
		ID:        uuid.NewString(),
		BatchID:   batch.ID,
		MandantID: mandant.ID,
		Filename:  offer.Filename,
		MimeType:  offer.MimeType,
		SizeBytes: offer.Size,
		Status:    domain.DocumentUploading,
		Progress:  30,
		CreatedAt: now,
		UpdatedAt: now,
	}

	fingerprint, err := Fingerprint(bytes.NewReader(offer.Content))
	if err != nil {
		doc.Status = domain.DocumentError
		doc.ErrorMessage = fmt.Sprintf("fingerprint: %v", err)
		uc.recordFailedFile(ctx, doc)
		return doc, nil
	}
	doc.Fingerprint = fingerprint

	check := uc.dedup.checkOne(ctx, mandant.ID, fingerprint)
	if check.Duplicate && !allowDuplicates {
		return nil, &domain.Rejection{Filename: offer.Filename, Reason: domain.RejectDuplicate}
	}
	doc.DuplicateOf = check.DocumentID

	doc.StorageKey = StorageKey(mandant.Number, offer.Filename, now)
	if err := uc.storage.Save(ctx, doc.StorageKey, bytes.NewReader(offer.Content), offer.Size, offer.MimeType); err != nil {
		uc.logger.Error("storage upload", "batch_id", batch.ID, "filename", offer.Filename, "error", err)
		doc.Status = domain.DocumentError
		doc.ErrorMessage = "storage upload failed"
		uc.recordFailedFile(ctx, doc)
		return doc, nil
	}
	doc.Progress = 60

	if err := uc.documents.Create(ctx, doc); err != nil {
		// Bytes are stored but unregistered; the key is logged for cleanup.
		uc.logger.Error("create registry record", "batch_id", batch.ID, "storage_key", doc.StorageKey, "error", err)
		doc.Status = domain.DocumentError
		doc.ErrorMessage = "registry insert failed"
		return doc, nil
	}

	// Registered. 80 is the last step the orchestrator owns; the worker takes
	// the file to 100 after the webhook forward.
	doc.Progress = 80
	if err := uc.documents.UpdateStatus(ctx, doc.ID, doc.Status, doc.Progress, ""); err != nil {
		uc.logger.Error("update file progress", "document_id", doc.ID, "error", err)
	}
	return doc, nil
}

// recordFailedFile writes an error-state registry row so the batch detail view
// accounts for every accepted candidate, not only the stored ones. Dedup stays
// unaffected: fingerprint lookups skip error rows, so a failed upload never
// blocks a retry of the same file.
func (uc *IngestUseCase) recordFailedFile(ctx context.Context, doc *domain.Document) {
	if err := uc.documents.Create(ctx, doc); err != nil {
		uc.logger.Error("record failed file", "batch_id", doc.BatchID, "filename", doc.Filename, "error", err)
	}
}

// StorageKey builds the object key {mandantNumber}/{YYYY-MM}/{base}_{ms}_{rand}.{ext}.
// The random suffix keeps two same-named uploads in the same millisecond from
// colliding.
func StorageKey(mandantNumber, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := sanitizeBaseName(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s/%s/%s_%d_%s%s", mandantNumber, now.Format("2006-01"), base, now.UnixMilli(), suffix, ext)
}

// sanitizeBaseName strips everything that is not alphanumeric, collapsing
// whitespace and hyphen runs to single underscores, capped at 50 characters.
func sanitizeBaseName(base string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.IsSpace(r), r == '-', r == '_':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "dokument"
	}
	if len(out) > 50 {
		out = out[:50]
	}
	return strings.TrimRight(out, "_")
}
