package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Tables mirror the exchange download shape: spot executions and
// derivative closed-PnL rows are the authoritative event history, keyed
// by the exchange's own IDs so re-downloads never duplicate. The price
// series is unique per (asset, fiat, timestamp) so gap re-fetches are
// idempotent as well.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		api_key TEXT NOT NULL DEFAULT '',
		api_secret TEXT NOT NULL DEFAULT '',
		fiat TEXT NOT NULL DEFAULT 'EUR',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS spot_executions (
		exec_id TEXT PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		base TEXT NOT NULL,
		quote TEXT NOT NULL,
		side TEXT NOT NULL,
		qty NUMERIC NOT NULL,
		price NUMERIC NOT NULL,
		fees NUMERIC NOT NULL DEFAULT 0,
		ts TIMESTAMPTZ NOT NULL,
		is_manual BOOLEAN NOT NULL DEFAULT FALSE,
		seq BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_spot_executions_account_ts
		ON spot_executions (account_id, ts)`,
	`CREATE TABLE IF NOT EXISTS derivative_closed_pnls (
		pnl_id TEXT PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		symbol TEXT NOT NULL,
		base TEXT NOT NULL,
		quote TEXT NOT NULL,
		side TEXT NOT NULL,
		qty NUMERIC NOT NULL,
		closed_pnl NUMERIC NOT NULL DEFAULT 0,
		fees NUMERIC NOT NULL DEFAULT 0,
		ts TIMESTAMPTZ NOT NULL,
		seq BIGSERIAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_derivative_pnls_account_ts
		ON derivative_closed_pnls (account_id, ts)`,
	`CREATE TABLE IF NOT EXISTS historical_fiat_prices (
		id BIGSERIAL PRIMARY KEY,
		asset TEXT NOT NULL,
		fiat TEXT NOT NULL,
		price NUMERIC NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		UNIQUE (asset, fiat, ts)
	)`,
}

// Migrate creates missing tables. Safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
