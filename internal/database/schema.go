package database

import (
	"context"
	"fmt"
)

// migrations are applied in order; each is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		username VARCHAR(15) NOT NULL,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		suspicion_score BIGINT NOT NULL DEFAULT 0,
		banned BOOLEAN NOT NULL DEFAULT FALSE,
		ban_reason TEXT,
		device_fingerprint TEXT NOT NULL DEFAULT '',
		last_known_address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT accounts_username_key UNIQUE (username)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_records (
		id UUID PRIMARY KEY,
		source_id UUID NOT NULL REFERENCES accounts(id),
		destination_id UUID NOT NULL REFERENCES accounts(id),
		operator_id UUID REFERENCES accounts(id),
		amount BIGINT NOT NULL CHECK (amount >= 0),
		fee BIGINT NOT NULL DEFAULT 0 CHECK (fee >= 0 AND fee <= amount),
		net_amount BIGINT NOT NULL,
		kind VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		flag_reason TEXT NOT NULL DEFAULT '',
		same_device BOOLEAN NOT NULL DEFAULT FALSE,
		same_address BOOLEAN NOT NULL DEFAULT FALSE,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_records_source ON ledger_records(source_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_records_destination ON ledger_records(destination_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_records_created_at ON ledger_records(created_at DESC)`,
	`CREATE OR REPLACE FUNCTION reject_ledger_mutation()
	RETURNS TRIGGER AS $$
	BEGIN
		RAISE EXCEPTION 'ledger_records is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_ledger_records_append_only ON ledger_records`,
	`CREATE TRIGGER trg_ledger_records_append_only
		BEFORE UPDATE OR DELETE ON ledger_records
		FOR EACH ROW
		EXECUTE FUNCTION reject_ledger_mutation()`,
	`CREATE TABLE IF NOT EXISTS play_sessions (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duration_seconds BIGINT NOT NULL DEFAULT 0,
		tokens_earned BIGINT NOT NULL DEFAULT 0,
		xp_gained DOUBLE PRECISION NOT NULL DEFAULT 0,
		food_eaten BIGINT NOT NULL DEFAULT 0,
		movement_variance DOUBLE PRECISION NOT NULL DEFAULT 0,
		afk_time BIGINT NOT NULL DEFAULT 0,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		flags JSONB NOT NULL DEFAULT '[]',
		flag_reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_play_sessions_open ON play_sessions(account_id) WHERE end_time IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_play_sessions_flagged ON play_sessions(flagged) WHERE flagged`,
	`CREATE TABLE IF NOT EXISTS ban_records (
		id UUID PRIMARY KEY,
		account_id UUID NOT NULL REFERENCES accounts(id),
		operator_id UUID NOT NULL REFERENCES accounts(id),
		reason TEXT NOT NULL,
		duration_ms BIGINT CHECK (duration_ms IS NULL OR duration_ms > 0),
		banned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ban_records_account ON ban_records(account_id, banned_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ban_records_expiry ON ban_records(expires_at) WHERE active AND expires_at IS NOT NULL`,
}

// Migrate creates tables, indexes and triggers if they don't exist
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	log.WithField("statements", len(migrations)).Info("schema initialized")
	return nil
}
