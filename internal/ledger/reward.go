package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/store"
)

// RewardRequest credits tokens earned in play
type RewardRequest struct {
	AccountID uuid.UUID
	Amount    int64
	Note      string
}

// RewardResult describes a committed reward credit
type RewardResult struct {
	Record     *models.LedgerRecord `json:"transaction"`
	NewBalance int64                `json:"new_balance"`
}

// CreditReward adds play earnings to an account, bounded by the policy's
// per-credit cap. The credit and its reward record commit together.
func (e *Engine) CreditReward(ctx context.Context, req RewardRequest) (*RewardResult, error) {
	if err := validateAmount("tokensEarned", req.Amount, 1, e.policy.MaxReward); err != nil {
		return nil, err
	}

	var (
		record  *models.LedgerRecord
		account *models.Account
	)
	err := e.run(ctx, "reward", func(tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, req.AccountID)
		if err != nil {
			return err
		}
		account = accounts[req.AccountID]
		record = &models.LedgerRecord{
			SourceID:      account.ID,
			DestinationID: account.ID,
			Amount:        req.Amount,
			NetAmount:     req.Amount,
			Kind:          models.KindReward,
			Status:        models.StatusCompleted,
			Note:          req.Note,
		}
		account.Balance += req.Amount
		if err := tx.SetBalance(ctx, account.ID, account.Balance); err != nil {
			return err
		}
		return tx.InsertRecord(ctx, record)
	})
	if err != nil {
		return nil, e.fail("credit reward", err, logrus.Fields{"account_id": req.AccountID, "amount": req.Amount})
	}

	e.metrics.RewardCredited(req.Amount)
	e.rank(ctx, account)
	e.log.WithFields(logrus.Fields{
		"record_id":  record.ID,
		"account_id": account.ID,
		"amount":     req.Amount,
	}).Info("reward credited")

	return &RewardResult{Record: record, NewBalance: account.Balance}, nil
}

// Accounts pages through accounts for operators.
func (e *Engine) Accounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	accounts, err := e.store.ListAccounts(ctx, limit, offset)
	if err != nil {
		return nil, e.fail("list accounts", err, nil)
	}
	return accounts, nil
}
