package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/models"
)

const (
	accountColumns = `id, username, balance, suspicion_score, banned, ban_reason,
		device_fingerprint, last_known_address, created_at`
	recordColumns = `id, source_id, destination_id, operator_id, amount, fee, net_amount,
		kind, status, flagged, flag_reason, same_device, same_address, note, created_at`
	sessionColumns = `id, account_id, start_time, end_time, duration_seconds, tokens_earned,
		xp_gained, food_eaten, movement_variance, afk_time, flagged, flags`
	banColumns = `id, account_id, operator_id, reason, duration_ms, banned_at, expires_at, active`
)

// CreateAccount inserts a new account
func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	err := db.QueryRowxContext(ctx,
		`INSERT INTO accounts (id, username, balance, device_fingerprint, last_known_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		account.ID, account.Username, account.Balance, account.DeviceFingerprint, account.LastKnownAddress,
	).Scan(&account.CreatedAt)
	if isUniqueViolation(err, "") {
		return apperr.ErrDuplicateAccount
	}
	return mapError("create account", err)
}

// GetAccount loads an account by id
func (db *DB) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := db.GetContext(ctx, &a, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, mapError("get account", err)
	}
	return &a, nil
}

// GetAccountByUsername loads an account by its unique handle
func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var a models.Account
	err := db.GetContext(ctx, &a, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrAccountNotFound
	}
	if err != nil {
		return nil, mapError("get account by username", err)
	}
	return &a, nil
}

// ListAccounts pages through accounts, newest first
func (db *DB) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	accounts := []models.Account{}
	err := db.SelectContext(ctx, &accounts,
		`SELECT `+accountColumns+` FROM accounts
		ORDER BY created_at DESC, username ASC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, mapError("list accounts", err)
	}
	return accounts, nil
}

// GetSession loads a play session by id
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.PlaySession, error) {
	var s models.PlaySession
	err := db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM play_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrSessionNotFound
	}
	if err != nil {
		return nil, mapError("get session", err)
	}
	return &s, nil
}

// ListRecordsForAccount returns the account's ledger history, newest first
func (db *DB) ListRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerRecord, error) {
	records := []models.LedgerRecord{}
	err := db.SelectContext(ctx, &records,
		`SELECT `+recordColumns+` FROM ledger_records
		WHERE source_id = $1 OR destination_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, mapError("list account records", err)
	}
	return records, nil
}

// ListRecords returns the most recent ledger records
func (db *DB) ListRecords(ctx context.Context, limit int) ([]models.LedgerRecord, error) {
	records := []models.LedgerRecord{}
	err := db.SelectContext(ctx, &records,
		`SELECT `+recordColumns+` FROM ledger_records ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, mapError("list records", err)
	}
	return records, nil
}

// ListBans returns an account's ban history, newest first
func (db *DB) ListBans(ctx context.Context, accountID uuid.UUID) ([]models.BanRecord, error) {
	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID); err != nil {
		return nil, mapError("check account", err)
	}
	if !exists {
		return nil, apperr.ErrAccountNotFound
	}

	bans := []models.BanRecord{}
	err := db.SelectContext(ctx, &bans,
		`SELECT `+banColumns+` FROM ban_records WHERE account_id = $1 ORDER BY banned_at DESC`, accountID)
	if err != nil {
		return nil, mapError("list bans", err)
	}
	return bans, nil
}

// ListExpiredBans returns active timed bans whose expiry has passed
func (db *DB) ListExpiredBans(ctx context.Context, now time.Time) ([]models.BanRecord, error) {
	bans := []models.BanRecord{}
	err := db.SelectContext(ctx, &bans,
		`SELECT `+banColumns+` FROM ban_records
		WHERE active AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at`, now)
	if err != nil {
		return nil, mapError("list expired bans", err)
	}
	return bans, nil
}

// TopBalances ranks non-banned accounts by balance
func (db *DB) TopBalances(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := db.QueryxContext(ctx,
		`SELECT id, username, balance FROM accounts
		WHERE NOT banned
		ORDER BY balance DESC, username ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, mapError("top balances", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Username, &e.Balance); err != nil {
			return nil, mapError("scan top balances", err)
		}
		e.Rank = int64(len(entries) + 1)
		entries = append(entries, e)
	}
	return entries, mapError("iterate top balances", rows.Err())
}

// Stats aggregates platform-wide figures
func (db *DB) Stats(ctx context.Context, since time.Time) (*models.PlatformStats, error) {
	var stats models.PlatformStats
	err := db.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM accounts) AS total_accounts,
			(SELECT COUNT(*) FROM accounts WHERE banned) AS banned_accounts,
			(SELECT COALESCE(SUM(balance), 0) FROM accounts) AS total_tokens,
			(SELECT COALESCE(SUM(amount), 0) FROM ledger_records
				WHERE kind = 'transfer' AND status = 'completed' AND created_at >= $1) AS daily_transfer_volume,
			(SELECT COALESCE(SUM(fee), 0) FROM ledger_records
				WHERE kind = 'transfer' AND status = 'completed' AND created_at >= $1) AS daily_fees_collected,
			(SELECT COUNT(*) FROM play_sessions WHERE flagged) AS flagged_sessions`, since)
	if err != nil {
		return nil, mapError("stats", err)
	}
	return &stats, nil
}
