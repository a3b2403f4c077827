package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/fraud"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/notify"
	"github.com/omega-realm/economy/internal/store"
)

// TransferRequest moves Amount from SourceID to DestinationID. Origin is the
// network address the request came from.
type TransferRequest struct {
	SourceID      uuid.UUID
	DestinationID uuid.UUID
	Amount        int64
	Origin        string
}

// TransferResult describes a committed transfer
type TransferResult struct {
	Record     *models.LedgerRecord `json:"transaction"`
	NewBalance int64                `json:"new_balance"`
	Fee        int64                `json:"fee"`
}

// Transfer debits the source by the gross amount and credits the destination
// with the amount net of fee, recording both in one ledger record.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.SourceID == req.DestinationID {
		e.metrics.TransferRejected(apperr.ErrSelfTransfer.Code)
		return nil, apperr.ErrSelfTransfer
	}
	if err := validateAmount("amount", req.Amount, e.policy.MinTransfer, e.policy.MaxTransfer); err != nil {
		e.metrics.TransferRejected(apperr.CodeOf(err))
		return nil, err
	}

	fee := e.Fee(req.Amount)
	var (
		record   *models.LedgerRecord
		src, dst *models.Account
	)
	err := e.run(ctx, "transfer", func(tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, req.SourceID, req.DestinationID)
		if err != nil {
			return err
		}
		src, dst = accounts[req.SourceID], accounts[req.DestinationID]
		if src.Balance < req.Amount {
			return apperr.ErrInsufficientFunds
		}

		record = &models.LedgerRecord{
			SourceID:      src.ID,
			DestinationID: dst.ID,
			Amount:        req.Amount,
			Fee:           fee,
			NetAmount:     req.Amount - fee,
			Kind:          models.KindTransfer,
			Status:        models.StatusCompleted,
		}
		fraud.Evaluate(src, dst, req.Origin).Apply(record)

		src.Balance -= req.Amount
		dst.Balance += record.NetAmount
		if err := tx.SetBalance(ctx, src.ID, src.Balance); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, dst.ID, dst.Balance); err != nil {
			return err
		}
		return tx.InsertRecord(ctx, record)
	})
	if err != nil {
		e.metrics.TransferRejected(apperr.CodeOf(err))
		return nil, e.fail("transfer", err, logrus.Fields{
			"source_id":      req.SourceID,
			"destination_id": req.DestinationID,
			"amount":         req.Amount,
		})
	}

	e.metrics.TransferCompleted(record)
	e.rank(ctx, src, dst)

	log := e.log.WithFields(logrus.Fields{
		"record_id":      record.ID,
		"source_id":      src.ID,
		"destination_id": dst.ID,
		"amount":         record.Amount,
		"fee":            record.Fee,
	})
	if record.SameDevice || record.SameAddress {
		log.WithFields(logrus.Fields{
			"same_device":  record.SameDevice,
			"same_address": record.SameAddress,
		}).Warn("transfer carries correlated-identity signals")
	} else {
		log.Info("transfer completed")
	}

	notify.Send(ctx, e.publisher, e.log, notify.Event{
		Type:      notify.EventTokenTransfer,
		AccountID: dst.ID,
		Payload: map[string]any{
			"record_id": record.ID,
			"from":      src.Username,
			"from_id":   src.ID,
			"amount":    record.NetAmount,
		},
		Timestamp: e.now().UTC(),
	})

	return &TransferResult{Record: record, NewBalance: src.Balance, Fee: fee}, nil
}

// TransferToHandle resolves the recipient's username and transfers to it.
func (e *Engine) TransferToHandle(ctx context.Context, sourceID uuid.UUID, handle string, amount int64, origin string) (*TransferResult, error) {
	if err := validateHandle(handle); err != nil {
		return nil, err
	}
	if err := validateAmount("amount", amount, e.policy.MinTransfer, e.policy.MaxTransfer); err != nil {
		return nil, err
	}
	dst, err := e.store.GetAccountByUsername(ctx, handle)
	if err != nil {
		return nil, e.fail("resolve handle", err, logrus.Fields{"username": handle})
	}
	return e.Transfer(ctx, TransferRequest{
		SourceID:      sourceID,
		DestinationID: dst.ID,
		Amount:        amount,
		Origin:        origin,
	})
}

// RequestTokens records a pending request asking the holder of handle to pay
// the requester. No balance changes.
func (e *Engine) RequestTokens(ctx context.Context, requesterID uuid.UUID, handle string, amount int64) (*models.LedgerRecord, error) {
	if err := validateHandle(handle); err != nil {
		return nil, err
	}
	if err := validateAmount("amount", amount, e.policy.MinRequest, e.policy.MaxRequest); err != nil {
		return nil, err
	}
	payer, err := e.store.GetAccountByUsername(ctx, handle)
	if err != nil {
		return nil, e.fail("resolve handle", err, logrus.Fields{"username": handle})
	}
	if payer.ID == requesterID {
		return nil, apperr.ErrSelfTransfer
	}

	var (
		record    *models.LedgerRecord
		requester *models.Account
	)
	err = e.run(ctx, "request", func(tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, requesterID, payer.ID)
		if err != nil {
			return err
		}
		requester = accounts[requesterID]
		record = &models.LedgerRecord{
			SourceID:      payer.ID,
			DestinationID: requesterID,
			Amount:        amount,
			NetAmount:     amount,
			Kind:          models.KindRequest,
			Status:        models.StatusPending,
		}
		return tx.InsertRecord(ctx, record)
	})
	if err != nil {
		return nil, e.fail("request tokens", err, logrus.Fields{"requester_id": requesterID, "payer_id": payer.ID})
	}

	notify.Send(ctx, e.publisher, e.log, notify.Event{
		Type:      notify.EventTokenRequest,
		AccountID: payer.ID,
		Payload: map[string]any{
			"record_id": record.ID,
			"from":      requester.Username,
			"from_id":   requester.ID,
			"amount":    amount,
		},
		Timestamp: e.now().UTC(),
	})
	return record, nil
}
