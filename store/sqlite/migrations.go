package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tally store (SQLite).
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
    email                TEXT NOT NULL DEFAULT '',
    credits              INTEGER NOT NULL DEFAULT 0,
    tier                 TEXT NOT NULL DEFAULT 'free',
    subscription_ref     TEXT NOT NULL DEFAULT '',
    subscription_active  INTEGER NOT NULL DEFAULT 0,
    total_spent_cents    INTEGER NOT NULL DEFAULT 0,
    total_spent_currency TEXT NOT NULL DEFAULT '',
    last_purchase_at     TEXT,
    last_payment_at      TEXT,
    cancelled_at         TEXT,
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
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
    amount_cents    INTEGER NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    credits_added   INTEGER NOT NULL DEFAULT 0,
    kind            TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'completed',
    occurred_at     TEXT NOT NULL DEFAULT (datetime('now')),
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
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
