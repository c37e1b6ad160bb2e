package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Folio store (PostgreSQL).
var Migrations = migrate.NewGroup("folio")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_folio_invoices",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS folio_invoices (
    id               TEXT PRIMARY KEY,
    reference_number TEXT NOT NULL,
    customer_name    TEXT NOT NULL DEFAULT '',
    customer_email   TEXT NOT NULL DEFAULT '',
    customer_phone   TEXT NOT NULL DEFAULT '',
    customer_address TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'Pending',
    total_cents      BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT 'usd',
    items            JSONB NOT NULL DEFAULT '[]',
    created_by       TEXT NOT NULL DEFAULT '',
    paid_at          TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_folio_invoices_reference ON folio_invoices (reference_number);
CREATE INDEX IF NOT EXISTS idx_folio_invoices_status ON folio_invoices (status);
CREATE INDEX IF NOT EXISTS idx_folio_invoices_created_at ON folio_invoices (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS folio_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_folio_transactions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS folio_transactions (
    id               TEXT PRIMARY KEY,
    invoice_id       TEXT NOT NULL REFERENCES folio_invoices (id) ON DELETE CASCADE,
    transaction_type TEXT NOT NULL,
    amount_cents     BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT 'usd',
    description      TEXT NOT NULL DEFAULT '',
    transaction_date TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_by       TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_folio_txns_invoice_type ON folio_transactions (invoice_id, transaction_type);
CREATE INDEX IF NOT EXISTS idx_folio_txns_invoice ON folio_transactions (invoice_id);
CREATE INDEX IF NOT EXISTS idx_folio_txns_date ON folio_transactions (transaction_date);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS folio_transactions`)
				return err
			},
		},
	)
}
