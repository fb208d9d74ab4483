package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all tables idempotently. The advisory lock serializes
// bootstrap DDL across concurrent api/worker startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026090101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS mandanten (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	approval TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	mandant_id TEXT NOT NULL REFERENCES mandanten(id),
	mandant_number TEXT NOT NULL,
	uploader_id TEXT,
	file_count INTEGER NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	forwarded_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES batches(id),
	mandant_id TEXT NOT NULL REFERENCES mandanten(id),
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	fingerprint TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	duplicate_of TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	mandant_id TEXT NOT NULL REFERENCES mandanten(id),
	document_id TEXT,
	source_name TEXT NOT NULL,
	booking_date TIMESTAMPTZ NOT NULL,
	amount_cents BIGINT NOT NULL,
	description TEXT,
	account_code TEXT,
	tax_rate_label TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	hints JSONB NOT NULL DEFAULT '[]'::jsonb,
	export_batch_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS booking_history (
	id TEXT PRIMARY KEY,
	booking_id TEXT NOT NULL REFERENCES bookings(id),
	actor_id TEXT,
	action TEXT NOT NULL,
	old_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS export_queue (
	booking_id TEXT PRIMARY KEY REFERENCES bookings(id),
	queued_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS export_batches (
	id TEXT PRIMARY KEY,
	mandant_id TEXT NOT NULL REFERENCES mandanten(id),
	storage_key TEXT NOT NULL,
	entry_count INTEGER NOT NULL,
	status TEXT NOT NULL,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_fingerprint ON documents(mandant_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_documents_batch ON documents(batch_id);
CREATE INDEX IF NOT EXISTS idx_bookings_mandant_status ON bookings(mandant_id, status);
CREATE INDEX IF NOT EXISTS idx_booking_history_booking ON booking_history(booking_id);
CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
