package postgres

import (
	"context"

	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the "pg" migration executor
	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subvault store.
var Migrations = migrate.NewGroup("subvault")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_subvault_counters",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_counters (
    name  TEXT PRIMARY KEY,
    value BIGINT NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_counters`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_subscriptions",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_subscriptions (
    id                     BIGINT PRIMARY KEY,
    subscriber             TEXT NOT NULL,
    merchant               TEXT NOT NULL,
    amount                 BIGINT NOT NULL CHECK (amount > 0),
    interval_seconds       BIGINT NOT NULL CHECK (interval_seconds > 0),
    last_payment_timestamp BIGINT NOT NULL,
    status                 TEXT NOT NULL,
    prepaid_balance        BIGINT NOT NULL DEFAULT 0 CHECK (prepaid_balance >= 0),
    usage_enabled          BOOLEAN NOT NULL DEFAULT FALSE,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subvault_subscriptions_status ON subvault_subscriptions (status);
CREATE INDEX IF NOT EXISTS idx_subvault_subscriptions_subscriber ON subvault_subscriptions (subscriber);
CREATE INDEX IF NOT EXISTS idx_subvault_subscriptions_merchant ON subvault_subscriptions (merchant);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_settings",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_settings (
    id               BIGINT PRIMARY KEY CHECK (id = 1),
    token            TEXT NOT NULL,
    admin            TEXT NOT NULL,
    min_topup        BIGINT NOT NULL CHECK (min_topup >= 0),
    billing_service  TEXT NOT NULL DEFAULT '',
    metering_service TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_settings`)
				return err
			},
		},
	)
}
