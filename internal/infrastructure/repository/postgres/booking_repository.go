package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, mandant_id, document_id, source_name, booking_date, amount_cents, description, account_code, tax_rate_label, confidence, status, hints, created_at, updated_at`

func (r *BookingRepository) Insert(ctx context.Context, entry *domain.BookingEntry) error {
	hintsJSON, err := json.Marshal(entry.Hints)
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO bookings (`+bookingColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		entry.ID, entry.MandantID, entry.DocumentID, entry.SourceName, entry.BookingDate, entry.AmountCents,
		entry.Description, entry.AccountCode, entry.TaxRateLabel, entry.Confidence, string(entry.Status),
		hintsJSON, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.BookingEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+bookingColumns+`
FROM bookings
WHERE id = $1
`, id)

	entry, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get booking", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	return &entry, nil
}

// sortColumns whitelists the review screen's sortable columns so the filter
// can never smuggle arbitrary SQL into ORDER BY.
var sortColumns = map[string]string{
	"booking_date": "booking_date",
	"amount":       "amount_cents",
	"confidence":   "confidence",
	"status":       "status",
	"created_at":   "created_at",
}

// List applies the mandant, status, and confidence filters with AND. The
// created_at/id tie-break keeps the order stable across equal sort keys.
func (r *BookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.BookingEntry, error) {
	query := "SELECT " + bookingColumns + "\nFROM bookings\nWHERE 1=1\n"
	args := make([]any, 0, 4)

	if filter.MandantID != "" && filter.MandantID != domain.MandantAll {
		args = append(args, filter.MandantID)
		query += fmt.Sprintf("AND mandant_id = $%d\n", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf("AND status = $%d\n", len(args))
	}
	switch filter.Confidence {
	case domain.ConfidenceHigh:
		query += "AND confidence >= 90\n"
	case domain.ConfidenceMedium:
		query += "AND confidence >= 70 AND confidence < 90\n"
	case domain.ConfidenceLow:
		query += "AND confidence < 70\n"
	}

	column, ok := sortColumns[filter.SortColumn]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf("ORDER BY %s %s, created_at ASC, id ASC", column, direction)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.BookingEntry, 0)
	for rows.Next() {
		entry, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return out, nil
}

func (r *BookingRepository) Update(ctx context.Context, entry *domain.BookingEntry) error {
	hintsJSON, err := json.Marshal(entry.Hints)
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE bookings
SET source_name = $2, booking_date = $3, amount_cents = $4, description = $5, account_code = $6,
    tax_rate_label = $7, confidence = $8, status = $9, hints = $10, updated_at = $11
WHERE id = $1
`,
		entry.ID, entry.SourceName, entry.BookingDate, entry.AmountCents, entry.Description,
		entry.AccountCode, entry.TaxRateLabel, entry.Confidence, string(entry.Status), hintsJSON, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update booking", fmt.Errorf("id=%s", entry.ID))
	}
	return nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE bookings
SET status = $2, updated_at = $3
WHERE id = $1
`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "update booking status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *BookingRepository) AppendHistory(ctx context.Context, entry domain.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO booking_history (id, booking_id, actor_id, action, old_status, new_status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, entry.ID, entry.BookingID, entry.ActorID, entry.Action, string(entry.OldStatus), string(entry.NewStatus), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert booking history: %w", err)
	}
	return nil
}

func (r *BookingRepository) Enqueue(ctx context.Context, bookingID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO export_queue (booking_id, queued_at)
VALUES ($1, $2)
ON CONFLICT (booking_id) DO NOTHING
`, bookingID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueue booking for export: %w", err)
	}
	return nil
}

// DeleteCascade removes the dependent rows first, then the entry, all in one
// transaction so a partial delete can never leave orphans.
func (r *BookingRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM export_queue WHERE booking_id = $1`, id); err != nil {
		return fmt.Errorf("delete export queue rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_history WHERE booking_id = $1`, id); err != nil {
		return fmt.Errorf("delete history rows: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete booking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, "delete booking", fmt.Errorf("id=%s", id))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

func (r *BookingRepository) ListQueued(ctx context.Context, mandantID string) ([]domain.BookingEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT b.id, b.mandant_id, b.document_id, b.source_name, b.booking_date, b.amount_cents, b.description, b.account_code, b.tax_rate_label, b.confidence, b.status, b.hints, b.created_at, b.updated_at
FROM bookings b
JOIN export_queue q ON q.booking_id = b.id
WHERE b.mandant_id = $1
ORDER BY q.queued_at ASC, b.id ASC
`, mandantID)
	if err != nil {
		return nil, fmt.Errorf("list queued bookings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.BookingEntry, 0)
	for rows.Next() {
		entry, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued bookings: %w", err)
	}
	return out, nil
}

// MarkExported flips the entries to exported and clears their queue rows in
// one transaction.
func (r *BookingRepository) MarkExported(ctx context.Context, bookingIDs []string, exportBatchID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, id := range bookingIDs {
		if _, err := tx.ExecContext(ctx, `
UPDATE bookings SET status = $2, export_batch_id = $3, updated_at = $4 WHERE id = $1
`, id, string(domain.BookingExported), exportBatchID, now); err != nil {
			return fmt.Errorf("mark booking exported: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM export_queue WHERE booking_id = $1`, id); err != nil {
			return fmt.Errorf("clear export queue row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export tx: %w", err)
	}
	return nil
}

type bookingScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row bookingScanner) (domain.BookingEntry, error) {
	var entry domain.BookingEntry
	var status string
	var hintsRaw []byte
	err := row.Scan(
		&entry.ID,
		&entry.MandantID,
		&entry.DocumentID,
		&entry.SourceName,
		&entry.BookingDate,
		&entry.AmountCents,
		&entry.Description,
		&entry.AccountCode,
		&entry.TaxRateLabel,
		&entry.Confidence,
		&status,
		&hintsRaw,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return domain.BookingEntry{}, err
	}
	if len(hintsRaw) > 0 {
		if err := json.Unmarshal(hintsRaw, &entry.Hints); err != nil {
			return domain.BookingEntry{}, fmt.Errorf("unmarshal hints: %w", err)
		}
	}
	entry.Status = domain.BookingStatus(status)
	return entry, nil
}
