package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/core/ports"
)

// DispatchUseCase forwards a stored batch to the automation webhook: one
// multipart manifest per batch, rebuilt from durable rows so a failed batch
// can be dispatched again. The webhook outcome is batch-wide by contract: on
// success every registered file reaches success/100, on terminal failure every
// registered file is marked error even though its bytes and registry row
// remain intact server-side.
type DispatchUseCase struct {
	batches   ports.BatchRepository
	documents ports.DocumentRepository
	storage   ports.ObjectStorage
	webhook   ports.AutomationWebhook
	logger    *slog.Logger
}

func NewDispatchUseCase(
	batches ports.BatchRepository,
	documents ports.DocumentRepository,
	storage ports.ObjectStorage,
	webhook ports.AutomationWebhook,
	logger *slog.Logger,
) *DispatchUseCase {
	return &DispatchUseCase{
		batches:   batches,
		documents: documents,
		storage:   storage,
		webhook:   webhook,
		logger:    logger,
	}
}

func (uc *DispatchUseCase) DispatchByID(ctx context.Context, batchID string) error {
	batch, err := uc.batches.GetByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("fetch batch: %w", err)
	}
	if batch.Status == domain.BatchForwarded {
		// Queue redelivery after a successful forward is a no-op.
		return nil
	}

	manifest, docs, err := uc.buildManifest(ctx, batch)
	if err != nil {
		if markErr := uc.batches.UpdateStatus(ctx, batch.ID, domain.BatchFailed, err.Error()); markErr != nil {
			uc.logger.Error("mark batch failed", "batch_id", batch.ID, "error", markErr)
		}
		return err
	}

	if err := uc.webhook.ForwardBatch(ctx, manifest); err != nil {
		uc.markAll(ctx, docs, domain.DocumentError, "batch forward failed")
		if markErr := uc.batches.UpdateStatus(ctx, batch.ID, domain.BatchFailed, "webhook forward failed"); markErr != nil {
			uc.logger.Error("mark batch failed", "batch_id", batch.ID, "error", markErr)
		}
		return fmt.Errorf("forward batch %s: %w", batch.ID, err)
	}

	// Record the forward before touching the files: once the webhook has
	// accepted the manifest, a queue redelivery must hit the no-op guard
	// above rather than post the same batch twice.
	if err := uc.batches.MarkForwarded(ctx, batch.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark batch forwarded: %w", err)
	}
	uc.markAll(ctx, docs, domain.DocumentSuccess, "")
	return nil
}

func (uc *DispatchUseCase) buildManifest(ctx context.Context, batch *domain.Batch) (domain.BatchManifest, []domain.Document, error) {
	docs, err := uc.documents.ListByBatch(ctx, batch.ID)
	if err != nil {
		return domain.BatchManifest{}, nil, fmt.Errorf("list batch files: %w", err)
	}

	forwardable := make([]domain.Document, 0, len(docs))
	files := make([]domain.ManifestFile, 0, len(docs))
	for _, doc := range docs {
		if doc.Status == domain.DocumentError || doc.StorageKey == "" {
			continue
		}
		content, err := uc.readObject(ctx, doc.StorageKey)
		if err != nil {
			return domain.BatchManifest{}, nil, fmt.Errorf("read stored file %s: %w", doc.ID, err)
		}
		files = append(files, domain.ManifestFile{
			RegistryID: doc.ID,
			StorageKey: doc.StorageKey,
			Filename:   doc.Filename,
			MimeType:   doc.MimeType,
			SizeBytes:  doc.SizeBytes,
			Content:    content,
		})
		forwardable = append(forwardable, doc)
	}
	if len(files) == 0 {
		return domain.BatchManifest{}, nil, errors.New("batch has no forwardable files")
	}

	return domain.BatchManifest{
		BatchID:       batch.ID,
		MandantID:     batch.MandantID,
		MandantNumber: batch.MandantNumber,
		UploaderID:    batch.UploaderID,
		UploadedAt:    batch.CreatedAt,
		Files:         files,
	}, forwardable, nil
}

func (uc *DispatchUseCase) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (uc *DispatchUseCase) markAll(ctx context.Context, docs []domain.Document, status domain.DocumentStatus, message string) {
	progress := 100
	if status == domain.DocumentError {
		progress = 80
	}
	for _, doc := range docs {
		if err := uc.documents.UpdateStatus(ctx, doc.ID, status, progress, message); err != nil {
			uc.logger.Error("update file after dispatch", "document_id", doc.ID, "status", status, "error", err)
		}
	}
}
