package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/models"
)

type pgTx struct {
	tx *sqlx.Tx
}

// LockAccounts takes row locks in ascending id order so concurrent units
// touching the same accounts cannot deadlock.
func (t *pgTx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	keys := make([]string, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			keys = append(keys, id.String())
		}
	}
	sort.Strings(keys)

	var accounts []models.Account
	err := t.tx.SelectContext(ctx, &accounts,
		`SELECT `+accountColumns+` FROM accounts
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE`, pq.StringArray(keys))
	if err != nil {
		return nil, mapError("lock accounts", err)
	}
	if len(accounts) != len(keys) {
		return nil, apperr.ErrAccountNotFound
	}

	out := make(map[uuid.UUID]*models.Account, len(accounts))
	for i := range accounts {
		out[accounts[i].ID] = &accounts[i]
	}
	return out, nil
}

func (t *pgTx) SetBalance(ctx context.Context, accountID uuid.UUID, balance int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = $2 WHERE id = $1`, accountID, balance)
	return expectOne("set balance", res, err, apperr.ErrAccountNotFound)
}

func (t *pgTx) AddSuspicion(ctx context.Context, accountID uuid.UUID, delta int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET suspicion_score = suspicion_score + $2 WHERE id = $1`, accountID, delta)
	return expectOne("add suspicion", res, err, apperr.ErrAccountNotFound)
}

func (t *pgTx) SetBanState(ctx context.Context, accountID uuid.UUID, banned bool, reason *string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET banned = $2, ban_reason = $3 WHERE id = $1`, accountID, banned, reason)
	return expectOne("set ban state", res, err, apperr.ErrAccountNotFound)
}

func (t *pgTx) InsertRecord(ctx context.Context, r *models.LedgerRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	err := t.tx.QueryRowxContext(ctx,
		`INSERT INTO ledger_records (id, source_id, destination_id, operator_id, amount, fee, net_amount,
			kind, status, flagged, flag_reason, same_device, same_address, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`,
		r.ID, r.SourceID, r.DestinationID, r.OperatorID, r.Amount, r.Fee, r.NetAmount,
		string(r.Kind), string(r.Status), r.Flagged, r.FlagReason, r.SameDevice, r.SameAddress, r.Note,
	).Scan(&r.CreatedAt)
	return mapError("insert record", err)
}

func (t *pgTx) InsertSession(ctx context.Context, s *models.PlaySession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO play_sessions (id, account_id, start_time) VALUES ($1, $2, $3)`,
		s.ID, s.AccountID, s.StartTime)
	if isUniqueViolation(err, "idx_play_sessions_open") {
		return apperr.ErrSessionOpen
	}
	return mapError("insert session", err)
}

func (t *pgTx) FindOpenSession(ctx context.Context, accountID uuid.UUID) (*models.PlaySession, error) {
	var s models.PlaySession
	err := t.tx.GetContext(ctx, &s,
		`SELECT `+sessionColumns+` FROM play_sessions WHERE account_id = $1 AND end_time IS NULL`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("find open session", err)
	}
	return &s, nil
}

func (t *pgTx) LockSession(ctx context.Context, sessionID uuid.UUID) (*models.PlaySession, error) {
	var s models.PlaySession
	err := t.tx.GetContext(ctx, &s,
		`SELECT `+sessionColumns+` FROM play_sessions WHERE id = $1 FOR UPDATE`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrSessionNotFound
	}
	if err != nil {
		return nil, mapError("lock session", err)
	}
	return &s, nil
}

func (t *pgTx) SaveSession(ctx context.Context, s *models.PlaySession) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE play_sessions SET
			end_time = $2, duration_seconds = $3, tokens_earned = $4, xp_gained = $5,
			food_eaten = $6, movement_variance = $7, afk_time = $8,
			flagged = $9, flags = $10, flag_reason = $11
		WHERE id = $1`,
		s.ID, s.EndTime, s.DurationSeconds, s.TokensEarned, s.XPGained,
		s.FoodEaten, s.MovementVariance, s.AFKTime,
		s.Flagged, s.Flags, s.FlagReason())
	return expectOne("save session", res, err, apperr.ErrSessionNotFound)
}

func (t *pgTx) InsertBan(ctx context.Context, b *models.BanRecord) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.BannedAt.IsZero() {
		b.BannedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ban_records (`+banColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.AccountID, b.OperatorID, b.Reason, b.DurationMs, b.BannedAt, b.ExpiresAt, b.Active)
	return mapError("insert ban", err)
}

func (t *pgTx) ListActiveBans(ctx context.Context, accountID uuid.UUID) ([]models.BanRecord, error) {
	bans := []models.BanRecord{}
	err := t.tx.SelectContext(ctx, &bans,
		`SELECT `+banColumns+` FROM ban_records WHERE account_id = $1 AND active ORDER BY banned_at DESC`, accountID)
	if err != nil {
		return nil, mapError("list active bans", err)
	}
	return bans, nil
}

func (t *pgTx) DeactivateBans(ctx context.Context, accountID uuid.UUID) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE ban_records SET active = FALSE WHERE account_id = $1 AND active`, accountID)
	if err != nil {
		return 0, mapError("deactivate bans", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("deactivate bans", err)
	}
	return n, nil
}

func expectOne(op string, res sql.Result, err error, notFound error) error {
	if err != nil {
		return mapError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return notFound
	}
	if n > 1 {
		return apperr.Internal(fmt.Errorf("%s: %d rows affected", op, n))
	}
	return nil
}
