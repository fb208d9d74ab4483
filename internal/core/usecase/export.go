package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/core/ports"
)

const exportURLExpiry = time.Hour

// ExportUseCase bundles approved, queued booking entries into a DATEV-style
// workbook, stores the artifact, and marks the entries exported.
type ExportUseCase struct {
	bookings      ports.BookingRepository
	exports       ports.ExportRepository
	storage       ports.ObjectStorage
	queue         ports.MessageQueue
	accountLabels map[string]string
	logger        *slog.Logger
}

func NewExportUseCase(
	bookings ports.BookingRepository,
	exports ports.ExportRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	accountLabels map[string]string,
	logger *slog.Logger,
) *ExportUseCase {
	return &ExportUseCase{
		bookings:      bookings,
		exports:       exports,
		storage:       storage,
		queue:         queue,
		accountLabels: accountLabels,
		logger:        logger,
	}
}

func (uc *ExportUseCase) CreateExport(ctx context.Context, actorID, mandantID string) (*domain.ExportBatch, error) {
	if mandantID == "" || mandantID == domain.MandantAll {
		return nil, domain.WrapError(domain.ErrMandantRequired, "create export", errors.New("no mandant selected"))
	}

	entries, err := uc.bookings.ListQueued(ctx, mandantID)
	if err != nil {
		return nil, fmt.Errorf("list queued entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create export", errors.New("export queue is empty"))
	}

	workbook, err := uc.buildWorkbook(entries)
	if err != nil {
		return nil, fmt.Errorf("build export workbook: %w", err)
	}

	now := time.Now().UTC()
	batch := &domain.ExportBatch{
		ID:         uuid.NewString(),
		MandantID:  mandantID,
		StorageKey: fmt.Sprintf("exports/%s/%s_%s.xlsx", mandantID, now.Format("2006-01-02"), uuid.NewString()[:8]),
		EntryCount: len(entries),
		Status:     domain.ExportGenerated,
		CreatedBy:  actorID,
		CreatedAt:  now,
	}
	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if err := uc.storage.Save(ctx, batch.StorageKey, bytes.NewReader(workbook), int64(len(workbook)), contentType); err != nil {
		return nil, fmt.Errorf("store export workbook: %w", err)
	}
	if err := uc.exports.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create export batch: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	if err := uc.bookings.MarkExported(ctx, ids, batch.ID); err != nil {
		return nil, fmt.Errorf("mark entries exported: %w", err)
	}

	uc.publishChange(ctx, batch)
	return batch, nil
}

func (uc *ExportUseCase) DownloadURL(ctx context.Context, exportID string) (string, error) {
	batch, err := uc.exports.GetByID(ctx, exportID)
	if err != nil {
		return "", fmt.Errorf("fetch export batch: %w", err)
	}
	url, err := uc.storage.PresignedGetURL(ctx, batch.StorageKey, exportURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presign export download: %w", err)
	}
	return url, nil
}

var exportHeader = []string{
	"Belegdatum", "Betrag EUR", "Konto", "Kontobezeichnung", "Steuersatz", "Buchungstext", "Beleg", "Konfidenz",
}

func (uc *ExportUseCase) buildWorkbook(entries []domain.BookingEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Buchungen"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, entry := range entries {
		row := []any{
			entry.BookingDate.Format("02.01.2006"),
			float64(entry.AmountCents) / 100,
			entry.AccountCode,
			uc.accountLabel(entry.AccountCode),
			entry.TaxRateLabel,
			entry.Description,
			entry.SourceName,
			entry.Confidence,
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (uc *ExportUseCase) accountLabel(code string) string {
	if label, ok := uc.accountLabels[code]; ok {
		return label
	}
	return ""
}

func (uc *ExportUseCase) publishChange(ctx context.Context, batch *domain.ExportBatch) {
	err := uc.queue.PublishChange(ctx, domain.ChangeEvent{
		Kind:      "export",
		EntityID:  batch.ID,
		MandantID: batch.MandantID,
		Action:    "create",
		At:        time.Now().UTC(),
	})
	if err != nil {
		uc.logger.Warn("publish export change", "export_id", batch.ID, "error", err)
	}
}
