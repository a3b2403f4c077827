package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/catalog"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/store"
)

// GrantFunc performs the inventory side of a purchase inside the same unit
// of work as the debit. Returning an error aborts both.
type GrantFunc func(ctx context.Context, tx store.Tx) error

// PurchaseRequest debits Cost from AccountID
type PurchaseRequest struct {
	AccountID uuid.UUID
	Cost      int64
	Note      string
	Grant     GrantFunc
}

// PurchaseResult describes a committed purchase. Record is nil for free items.
type PurchaseResult struct {
	Record     *models.LedgerRecord `json:"transaction,omitempty"`
	Item       *catalog.Item        `json:"item,omitempty"`
	NewBalance int64                `json:"new_balance"`
}

// Purchase debits a single account and runs the grant in the same unit.
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.Cost < 0 {
		return nil, apperr.Validation("cost", "cost must not be negative")
	}

	var (
		record  *models.LedgerRecord
		account *models.Account
	)
	err := e.run(ctx, "purchase", func(tx store.Tx) error {
		record = nil
		accounts, err := tx.LockAccounts(ctx, req.AccountID)
		if err != nil {
			return err
		}
		account = accounts[req.AccountID]
		if account.Balance < req.Cost {
			return apperr.ErrInsufficientFunds
		}

		if req.Cost > 0 {
			record = &models.LedgerRecord{
				SourceID:      account.ID,
				DestinationID: account.ID,
				Amount:        req.Cost,
				NetAmount:     req.Cost,
				Kind:          models.KindPurchase,
				Status:        models.StatusCompleted,
				Note:          req.Note,
			}
			account.Balance -= req.Cost
			if err := tx.SetBalance(ctx, account.ID, account.Balance); err != nil {
				return err
			}
			if err := tx.InsertRecord(ctx, record); err != nil {
				return err
			}
		}
		if req.Grant != nil {
			return req.Grant(ctx, tx)
		}
		return nil
	})
	if err != nil {
		return nil, e.fail("purchase", err, logrus.Fields{"account_id": req.AccountID, "cost": req.Cost})
	}

	e.metrics.PurchaseCompleted()
	if record != nil {
		e.rank(ctx, account)
	}
	e.log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"cost":       req.Cost,
		"note":       req.Note,
	}).Info("purchase completed")

	return &PurchaseResult{Record: record, NewBalance: account.Balance}, nil
}

// BuyItem prices an item from the catalog and purchases it.
func (e *Engine) BuyItem(ctx context.Context, accountID uuid.UUID, itemType, itemName string, grant GrantFunc) (*PurchaseResult, error) {
	if e.pricer == nil {
		return nil, e.fail("buy item", errors.New("no catalog configured"), nil)
	}
	item, err := e.pricer.PriceOf(itemType, itemName)
	if err != nil {
		return nil, err
	}

	result, err := e.Purchase(ctx, PurchaseRequest{
		AccountID: accountID,
		Cost:      item.Price,
		Note:      itemType + ":" + itemName,
		Grant:     grant,
	})
	if err != nil {
		return nil, err
	}
	result.Item = &item
	return result, nil
}
