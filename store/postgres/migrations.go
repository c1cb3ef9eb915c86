package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store.
var Migrations = migrate.NewGroup("tally")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tally_accounts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_accounts (
    id                   TEXT PRIMARY KEY,
    email                TEXT NOT NULL,
    credits              BIGINT NOT NULL DEFAULT 0,
    tier                 TEXT NOT NULL DEFAULT 'free',
    subscription_ref     TEXT NOT NULL DEFAULT '',
    subscription_active  BOOLEAN NOT NULL DEFAULT FALSE,
    total_spent_cents    BIGINT NOT NULL DEFAULT 0,
    total_spent_currency TEXT NOT NULL DEFAULT '',
    last_purchase_at     TIMESTAMPTZ,
    last_payment_at      TIMESTAMPTZ,
    cancelled_at         TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_accounts_email ON tally_accounts (email);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tally_transactions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tally_transactions (
    id              TEXT PRIMARY KEY,
    email           TEXT NOT NULL DEFAULT '',
    reference       TEXT NOT NULL DEFAULT '',
    amount_cents    BIGINT NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    credits_added   BIGINT NOT NULL DEFAULT 0,
    kind            TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'completed',
    occurred_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tally_txns_reference ON tally_transactions (reference) WHERE reference != '';
CREATE INDEX IF NOT EXISTS idx_tally_txns_email ON tally_transactions (email, occurred_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tally_transactions`)
				return err
			},
		},
	)
}
