package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/store"
)

// AdjustRequest sets an account's balance on an operator's authority
type AdjustRequest struct {
	TargetID   uuid.UUID
	OperatorID uuid.UUID
	NewBalance int64
	Note       string
}

// AdminAdjust overwrites the target balance without a funds check. The audit
// record carries the new balance as its amount and no fee.
func (e *Engine) AdminAdjust(ctx context.Context, req AdjustRequest) (*models.LedgerRecord, error) {
	if req.NewBalance < 0 {
		return nil, apperr.Validation("balance", "balance must not be negative")
	}

	var (
		record *models.LedgerRecord
		target *models.Account
	)
	err := e.run(ctx, "admin_adjust", func(tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, req.TargetID, req.OperatorID)
		if err != nil {
			return err
		}
		target = accounts[req.TargetID]
		previous := target.Balance

		note := req.Note
		if note == "" {
			note = fmt.Sprintf("balance set to %d (was %d)", req.NewBalance, previous)
		}
		record = &models.LedgerRecord{
			SourceID:      req.OperatorID,
			DestinationID: req.TargetID,
			OperatorID:    uuid.NullUUID{UUID: req.OperatorID, Valid: true},
			Amount:        req.NewBalance,
			NetAmount:     req.NewBalance,
			Kind:          models.KindAdminAdjustment,
			Status:        models.StatusCompleted,
			Note:          note,
		}

		target.Balance = req.NewBalance
		if err := tx.SetBalance(ctx, target.ID, target.Balance); err != nil {
			return err
		}
		return tx.InsertRecord(ctx, record)
	})
	if err != nil {
		return nil, e.fail("admin adjust", err, logrus.Fields{
			"target_id":   req.TargetID,
			"operator_id": req.OperatorID,
		})
	}

	e.metrics.AdminAdjusted()
	e.rank(ctx, target)
	e.log.WithFields(logrus.Fields{
		"record_id":   record.ID,
		"target_id":   req.TargetID,
		"operator_id": req.OperatorID,
		"balance":     req.NewBalance,
	}).Info("balance adjusted by operator")

	return record, nil
}

// History returns the latest records involving the account.
func (e *Engine) History(ctx context.Context, accountID uuid.UUID) ([]models.LedgerRecord, error) {
	records, err := e.store.ListRecordsForAccount(ctx, accountID, e.policy.HistoryLimit)
	if err != nil {
		return nil, e.fail("history", err, logrus.Fields{"account_id": accountID})
	}
	return records, nil
}

// RecentRecords returns the operator audit log.
func (e *Engine) RecentRecords(ctx context.Context) ([]models.LedgerRecord, error) {
	records, err := e.store.ListRecords(ctx, e.policy.AuditLogLimit)
	if err != nil {
		return nil, e.fail("recent records", err, nil)
	}
	return records, nil
}

// Stats summarizes the platform over the trailing day.
func (e *Engine) Stats(ctx context.Context) (*models.PlatformStats, error) {
	stats, err := e.store.Stats(ctx, e.now().Add(-24*time.Hour))
	if err != nil {
		return nil, e.fail("stats", err, nil)
	}
	return stats, nil
}

// Balance returns the account snapshot.
func (e *Engine) Balance(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, e.fail("balance", err, logrus.Fields{"account_id": accountID})
	}
	return account, nil
}

// Leaderboard returns the top accounts by balance. The cache is consulted
// first; when it is empty or unavailable the store answers and the cache is
// reseeded.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if e.leaderboard != nil {
		top, err := e.leaderboard.TopTokenHolders(ctx, limit)
		if err == nil && len(top) > 0 {
			return top, nil
		}
		if err != nil {
			e.log.WithError(err).Warn("leaderboard cache unavailable, reading store")
		}
	}

	top, err := e.store.TopBalances(ctx, limit)
	if err != nil {
		return nil, e.fail("leaderboard", err, nil)
	}
	if e.leaderboard != nil && len(top) > 0 {
		if err := e.SyncLeaderboard(ctx); err != nil {
			e.log.WithError(err).Warn("leaderboard reseed failed")
		}
	}
	return top, nil
}

// Rank returns the account's 1-based leaderboard position, or 0 when it is
// unranked or no leaderboard cache is configured.
func (e *Engine) Rank(ctx context.Context, accountID uuid.UUID) int64 {
	if e.leaderboard == nil {
		return 0
	}
	rank, err := e.leaderboard.TokenRank(ctx, accountID)
	if err != nil {
		e.log.WithError(err).WithField("account_id", accountID).Warn("leaderboard rank unavailable")
		return 0
	}
	return rank
}

// SyncLeaderboard rebuilds the leaderboard cache from the store.
func (e *Engine) SyncLeaderboard(ctx context.Context) error {
	if e.leaderboard == nil {
		return nil
	}
	entries, err := e.store.TopBalances(ctx, leaderboardSnapshotSize)
	if err != nil {
		return err
	}
	return e.leaderboard.RebuildLeaderboard(ctx, entries)
}
