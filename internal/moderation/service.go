// Package moderation applies and lifts bans and keeps ban history consistent
// with account state. It maintains the truth value the boundary layer
// consults; it never gates ledger or session operations itself.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/metrics"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/notify"
	rediscache "github.com/omega-realm/economy/internal/redis"
	"github.com/omega-realm/economy/internal/store"
)

// Leaderboard is the part of the ranking cache moderation keeps in step with
// ban state
type Leaderboard interface {
	SetTokenBalance(ctx context.Context, entry models.LeaderboardEntry) error
	RemoveFromLeaderboard(ctx context.Context, accountID uuid.UUID) error
}

// StatusCache caches the banned flag for the boundary layer
type StatusCache interface {
	SetAccountStatus(ctx context.Context, status *rediscache.AccountStatus, ttl time.Duration) error
	FillAccountStatus(ctx context.Context, status *rediscache.AccountStatus, ttl time.Duration) (bool, error)
	GetAccountStatus(ctx context.Context, accountID uuid.UUID) (*rediscache.AccountStatus, error)
	InvalidateAccountStatus(ctx context.Context, accountID uuid.UUID) error
}

// Service implements ban, unban and ban history
type Service struct {
	store       store.Store
	policy      config.Policy
	publisher   notify.Publisher
	leaderboard Leaderboard
	cache       StatusCache
	cacheTTL    time.Duration
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	now         func() time.Time
}

// Option configures a Service
type Option func(*Service)

func WithPublisher(p notify.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithLeaderboard(l Leaderboard) Option { return func(s *Service) { s.leaderboard = l } }

// WithStatusCache enables the read-through banned-status cache.
func WithStatusCache(c StatusCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l.WithField("component", "moderation") }
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a moderation service over st
func NewService(st store.Store, policy config.Policy, opts ...Option) *Service {
	s := &Service{
		store:     st,
		policy:    policy,
		publisher: notify.Nop{},
		log:       logrus.WithField("component", "moderation"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BanRequest describes a ban. DurationMs nil or zero means indefinite.
type BanRequest struct {
	AccountID  uuid.UUID `json:"userId"`
	OperatorID uuid.UUID `json:"-"`
	Reason     string    `json:"reason"`
	DurationMs *int64    `json:"duration,omitempty"`
}

func (r *BanRequest) validate(minReason int) error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.AccountID == uuid.Nil {
		return apperr.Validation("userId", "userId is required")
	}
	if len([]rune(r.Reason)) < minReason {
		return apperr.Validation("reason", fmt.Sprintf("reason must be at least %d characters", minReason))
	}
	if r.DurationMs != nil && *r.DurationMs < 0 {
		return apperr.Validation("duration", "duration must not be negative")
	}
	return nil
}

func (s *Service) run(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	return store.RetryOnConflict(ctx, s.policy.ConflictRetries, s.policy.ConflictBackoff(), func() error {
		err := s.store.WithTx(ctx, fn)
		if apperr.Retryable(err) {
			s.metrics.StoreConflict(op)
		}
		return err
	})
}

func (s *Service) fail(op string, err error, fields logrus.Fields) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		err = apperr.Internal(err)
	}
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindUnavailable, apperr.KindStoreConflict:
		s.log.WithFields(fields).WithError(err).WithField("op", op).Error("moderation operation failed")
	}
	return err
}

// Ban marks the account banned and appends an active ban record in one unit.
func (s *Service) Ban(ctx context.Context, req BanRequest) (*models.BanRecord, error) {
	if err := req.validate(s.policy.MinBanReasonLength); err != nil {
		return nil, err
	}

	var (
		ban     *models.BanRecord
		account *models.Account
	)
	err := s.run(ctx, "ban", func(tx store.Tx) error {
		ban, account = nil, nil
		accounts, err := tx.LockAccounts(ctx, req.AccountID, req.OperatorID)
		if err != nil {
			return err
		}
		target := accounts[req.AccountID]
		if target.Banned {
			return apperr.ErrAlreadyBanned
		}

		now := s.now().UTC()
		b := &models.BanRecord{
			ID:         uuid.New(),
			AccountID:  req.AccountID,
			OperatorID: req.OperatorID,
			Reason:     req.Reason,
			BannedAt:   now,
			Active:     true,
		}
		if req.DurationMs != nil && *req.DurationMs > 0 {
			d := *req.DurationMs
			expires := now.Add(time.Duration(d) * time.Millisecond)
			b.DurationMs = &d
			b.ExpiresAt = &expires
		}

		reason := req.Reason
		if err := tx.SetBanState(ctx, req.AccountID, true, &reason); err != nil {
			return err
		}
		if err := tx.InsertBan(ctx, b); err != nil {
			return err
		}
		target.Banned = true
		target.BanReason = &reason
		ban, account = b, target
		return nil
	})
	if err != nil {
		return nil, s.fail("ban", err, logrus.Fields{"account_id": req.AccountID, "operator_id": req.OperatorID})
	}

	s.metrics.Moderation("ban")
	if s.leaderboard != nil {
		if err := s.leaderboard.RemoveFromLeaderboard(ctx, account.ID); err != nil {
			s.log.WithError(err).WithField("account_id", account.ID).Warn("leaderboard update failed")
		}
	}
	s.cacheStatus(ctx, account)

	s.log.WithFields(logrus.Fields{
		"account_id":  account.ID,
		"operator_id": req.OperatorID,
		"ban_id":      ban.ID,
		"indefinite":  ban.Indefinite(),
	}).Info("account banned")

	payload := map[string]any{"ban_id": ban.ID, "reason": ban.Reason}
	if ban.ExpiresAt != nil {
		payload["expires_at"] = ban.ExpiresAt
	}
	notify.Send(ctx, s.publisher, s.log, notify.Event{
		Type:      notify.EventAccountBanned,
		AccountID: account.ID,
		Payload:   payload,
		Timestamp: s.now().UTC(),
	})
	return ban, nil
}

// Unban clears the banned flag and deactivates every active ban record.
func (s *Service) Unban(ctx context.Context, accountID, operatorID uuid.UUID) error {
	var (
		account *models.Account
		lifted  int64
	)
	err := s.run(ctx, "unban", func(tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return err
		}
		a := accounts[accountID]
		if !a.Banned {
			return apperr.ErrNotBanned
		}
		if lifted, err = s.lift(ctx, tx, a); err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return s.fail("unban", err, logrus.Fields{"account_id": accountID, "operator_id": operatorID})
	}

	s.afterLift(ctx, account, lifted, logrus.Fields{"operator_id": operatorID})
	return nil
}

func (s *Service) lift(ctx context.Context, tx store.Tx, a *models.Account) (int64, error) {
	if err := tx.SetBanState(ctx, a.ID, false, nil); err != nil {
		return 0, err
	}
	n, err := tx.DeactivateBans(ctx, a.ID)
	if err != nil {
		return 0, err
	}
	a.Banned = false
	a.BanReason = nil
	return n, nil
}

func (s *Service) afterLift(ctx context.Context, account *models.Account, lifted int64, fields logrus.Fields) {
	s.metrics.Moderation("unban")
	if s.leaderboard != nil {
		err := s.leaderboard.SetTokenBalance(ctx, models.LeaderboardEntry{
			AccountID: account.ID,
			Username:  account.Username,
			Balance:   account.Balance,
		})
		if err != nil {
			s.log.WithError(err).WithField("account_id", account.ID).Warn("leaderboard update failed")
		}
	}
	s.cacheStatus(ctx, account)

	s.log.WithFields(fields).WithFields(logrus.Fields{
		"account_id":  account.ID,
		"bans_lifted": lifted,
	}).Info("account unbanned")

	notify.Send(ctx, s.publisher, s.log, notify.Event{
		Type:      notify.EventAccountUnbanned,
		AccountID: account.ID,
		Timestamp: s.now().UTC(),
	})
}

// ListBans returns the account's ban history, newest first.
func (s *Service) ListBans(ctx context.Context, accountID uuid.UUID) ([]models.BanRecord, error) {
	bans, err := s.store.ListBans(ctx, accountID)
	if err != nil {
		return nil, s.fail("list bans", err, logrus.Fields{"account_id": accountID})
	}
	return bans, nil
}
