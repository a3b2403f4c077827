// Package ledger moves tokens between accounts. Every balance change runs in
// one unit of work together with its audit record; notifications, metrics and
// leaderboard updates happen only after the unit commits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/catalog"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/metrics"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/notify"
	"github.com/omega-realm/economy/internal/store"
)

// leaderboardSnapshotSize bounds how many accounts are loaded when the
// leaderboard cache is rebuilt from the store.
const leaderboardSnapshotSize = 1000

// Leaderboard is the ranked balance cache kept alongside the store
type Leaderboard interface {
	SetTokenBalance(ctx context.Context, entry models.LeaderboardEntry) error
	RemoveFromLeaderboard(ctx context.Context, accountID uuid.UUID) error
	TopTokenHolders(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	TokenRank(ctx context.Context, accountID uuid.UUID) (int64, error)
	RebuildLeaderboard(ctx context.Context, entries []models.LeaderboardEntry) error
}

// Pricer resolves shop item prices
type Pricer interface {
	PriceOf(itemType, name string) (catalog.Item, error)
}

// Engine is the ledger engine
type Engine struct {
	store       store.Store
	policy      config.Policy
	feeRate     decimal.Decimal
	publisher   notify.Publisher
	leaderboard Leaderboard
	pricer      Pricer
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	now         func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

func WithPublisher(p notify.Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithLeaderboard(l Leaderboard) Option { return func(e *Engine) { e.leaderboard = l } }

func WithCatalog(p Pricer) Option { return func(e *Engine) { e.pricer = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l.WithField("component", "ledger") }
}

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates a ledger engine over s
func NewEngine(s store.Store, policy config.Policy, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		policy:    policy,
		feeRate:   decimal.NewFromFloat(policy.FeeRate),
		publisher: notify.Nop{},
		log:       logrus.WithField("component", "ledger"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fee returns floor(amount * feeRate).
func (e *Engine) Fee(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(e.feeRate).Floor().IntPart()
}

// run executes fn as one unit of work, retrying store conflicts.
func (e *Engine) run(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	return store.RetryOnConflict(ctx, e.policy.ConflictRetries, e.policy.ConflictBackoff(), func() error {
		err := e.store.WithTx(ctx, fn)
		if apperr.Retryable(err) {
			e.metrics.StoreConflict(op)
		}
		return err
	})
}

// fail logs failures that are not the caller's fault and normalizes errors
// outside the taxonomy to internal ones.
func (e *Engine) fail(op string, err error, fields logrus.Fields) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		err = apperr.Internal(err)
	}
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindUnavailable, apperr.KindStoreConflict:
		e.log.WithFields(fields).WithError(err).WithField("op", op).Error("ledger operation failed")
	}
	return err
}

// rank refreshes the leaderboard entry for each account. Banned accounts are
// never ranked.
func (e *Engine) rank(ctx context.Context, accounts ...*models.Account) {
	if e.leaderboard == nil {
		return
	}
	for _, a := range accounts {
		var err error
		if a.Banned {
			err = e.leaderboard.RemoveFromLeaderboard(ctx, a.ID)
		} else {
			err = e.leaderboard.SetTokenBalance(ctx, models.LeaderboardEntry{
				AccountID: a.ID,
				Username:  a.Username,
				Balance:   a.Balance,
			})
		}
		if err != nil {
			e.log.WithError(err).WithField("account_id", a.ID).Warn("leaderboard update failed")
		}
	}
}

func validateAmount(field string, amount, min, max int64) error {
	if amount < min || amount > max {
		return apperr.Validation(field, fmt.Sprintf("amount must be between %d and %d", min, max))
	}
	return nil
}

func validateHandle(handle string) error {
	if n := len(handle); n < 3 || n > 15 {
		return apperr.Validation("username", "username must be 3-15 characters")
	}
	return nil
}
