// Package anticheat scores finished play sessions against heuristic
// thresholds and raises the owner's suspicion score. Flags are advisory; a
// flagged session is never rolled back or rewarded differently here.
package anticheat

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/metrics"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/notify"
	"github.com/omega-realm/economy/internal/store"
)

// Validate runs every heuristic against a closed session. Sessions no longer
// than MinSessionSeconds are exempt.
func Validate(p config.Policy, s *models.PlaySession) models.Flags {
	if s.DurationSeconds <= p.MinSessionSeconds {
		return nil
	}

	var flags models.Flags
	if s.XPGained > 0 {
		ratio := float64(s.TokensEarned) / s.XPGained
		if ratio > p.MaxTokenXPRatio {
			flags = append(flags, models.Flag{Code: models.FlagRatio, Value: ratio, Threshold: p.MaxTokenXPRatio})
		}
	}
	if s.MovementVariance < p.MinMovementVariance {
		flags = append(flags, models.Flag{Code: models.FlagBot, Value: s.MovementVariance, Threshold: p.MinMovementVariance})
	}
	if s.DurationSeconds > 0 {
		afk := float64(s.AFKTime) / float64(s.DurationSeconds)
		if afk > p.MaxAFKRatio {
			flags = append(flags, models.Flag{Code: models.FlagAFK, Value: afk, Threshold: p.MaxAFKRatio})
		}
	}
	return flags
}

// Evaluator owns the play-session lifecycle
type Evaluator struct {
	store     store.Store
	policy    config.Policy
	publisher notify.Publisher
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	now       func() time.Time
}

// Option configures an Evaluator
type Option func(*Evaluator)

func WithPublisher(p notify.Publisher) Option { return func(e *Evaluator) { e.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Evaluator) { e.metrics = m } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Evaluator) { e.log = l.WithField("component", "anticheat") }
}

func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

// NewEvaluator creates an evaluator over s
func NewEvaluator(s store.Store, policy config.Policy, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:     s,
		policy:    policy,
		publisher: notify.Nop{},
		log:       logrus.WithField("component", "anticheat"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateSession applies the configured thresholds to s.
func (e *Evaluator) ValidateSession(s *models.PlaySession) models.Flags {
	return Validate(e.policy, s)
}

func (e *Evaluator) run(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	return store.RetryOnConflict(ctx, e.policy.ConflictRetries, e.policy.ConflictBackoff(), func() error {
		err := e.store.WithTx(ctx, fn)
		if apperr.Retryable(err) {
			e.metrics.StoreConflict(op)
		}
		return err
	})
}

func (e *Evaluator) logFailure(op string, err error, fields logrus.Fields) {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindUnavailable, apperr.KindStoreConflict:
		e.log.WithFields(fields).WithError(err).WithField("op", op).Error("session operation failed")
	}
}

// StartSession opens a session for the account. If one is already open it
// is returned unchanged with resumed set.
func (e *Evaluator) StartSession(ctx context.Context, accountID uuid.UUID) (session *models.PlaySession, resumed bool, err error) {
	err = e.run(ctx, "session_start", func(tx store.Tx) error {
		session, resumed = nil, false
		if _, err := tx.LockAccounts(ctx, accountID); err != nil {
			return err
		}
		open, err := tx.FindOpenSession(ctx, accountID)
		if err != nil {
			return err
		}
		if open != nil {
			session, resumed = open, true
			return nil
		}
		session = &models.PlaySession{
			ID:        uuid.New(),
			AccountID: accountID,
			StartTime: e.now().UTC(),
		}
		return tx.InsertSession(ctx, session)
	})
	if err != nil {
		e.logFailure("start session", err, logrus.Fields{"account_id": accountID})
		return nil, false, err
	}
	return session, resumed, nil
}

// EndPayload is the client-reported summary of a session
type EndPayload struct {
	TokensEarned     int64   `json:"tokensEarned"`
	XPGained         float64 `json:"xpGained"`
	FoodEaten        int64   `json:"foodEaten"`
	MovementVariance float64 `json:"movementVariance"`
	AFKTime          int64   `json:"afkTime"`
}

// Validate range-checks the payload.
func (p EndPayload) Validate() error {
	switch {
	case p.TokensEarned < 0:
		return apperr.Validation("tokensEarned", "tokensEarned must not be negative")
	case p.XPGained < 0 || math.IsNaN(p.XPGained) || math.IsInf(p.XPGained, 0):
		return apperr.Validation("xpGained", "xpGained must be a non-negative number")
	case p.FoodEaten < 0:
		return apperr.Validation("foodEaten", "foodEaten must not be negative")
	case !(p.MovementVariance >= 0 && p.MovementVariance <= 1):
		return apperr.Validation("movementVariance", "movementVariance must be between 0 and 1")
	case p.AFKTime < 0:
		return apperr.Validation("afkTime", "afkTime must not be negative")
	}
	return nil
}

// FinalizeResult is the outcome of closing a session
type FinalizeResult struct {
	Session *models.PlaySession `json:"session"`
	Flagged bool                `json:"flagged"`
	Flags   models.Flags        `json:"flags,omitempty"`
	Reason  string              `json:"reason,omitempty"`
}

// FinalizeSession closes a session owned by accountID exactly once, scores it
// and adds one suspicion point per flag to the owner.
func (e *Evaluator) FinalizeSession(ctx context.Context, accountID, sessionID uuid.UUID, payload EndPayload) (*FinalizeResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var session *models.PlaySession
	err := e.run(ctx, "session_finalize", func(tx store.Tx) error {
		s, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.AccountID != accountID {
			return apperr.ErrSessionNotFound
		}
		if !s.Open() {
			return apperr.ErrAlreadyFinalized
		}

		end := e.now().UTC()
		if end.Before(s.StartTime) {
			end = s.StartTime
		}
		s.EndTime = &end
		s.DurationSeconds = int64(end.Sub(s.StartTime) / time.Second)
		s.TokensEarned = payload.TokensEarned
		s.XPGained = payload.XPGained
		s.FoodEaten = payload.FoodEaten
		s.MovementVariance = payload.MovementVariance
		s.AFKTime = payload.AFKTime

		s.Flags = Validate(e.policy, s)
		s.Flagged = len(s.Flags) > 0
		if s.Flagged {
			if err := tx.AddSuspicion(ctx, accountID, int64(len(s.Flags))); err != nil {
				return err
			}
		}
		session = s
		return tx.SaveSession(ctx, s)
	})
	if err != nil {
		e.logFailure("finalize session", err, logrus.Fields{"account_id": accountID, "session_id": sessionID})
		return nil, err
	}

	e.metrics.SessionFinalized(session.Flags)
	result := &FinalizeResult{
		Session: session,
		Flagged: session.Flagged,
		Flags:   session.Flags,
		Reason:  session.FlagReason(),
	}
	if !session.Flagged {
		return result, nil
	}

	e.log.WithFields(logrus.Fields{
		"account_id": accountID,
		"session_id": sessionID,
		"flags":      len(session.Flags),
		"reason":     result.Reason,
	}).Warn("session flagged")

	notify.Send(ctx, e.publisher, e.log, notify.Event{
		Type: notify.EventSessionFlagged,
		Payload: map[string]any{
			"account_id": accountID,
			"session_id": sessionID,
			"flags":      session.Flags,
			"reason":     result.Reason,
		},
		Timestamp: e.now().UTC(),
	})
	return result, nil
}

// Session returns a session owned by accountID.
func (e *Evaluator) Session(ctx context.Context, accountID, sessionID uuid.UUID) (*models.PlaySession, error) {
	s, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		e.logFailure("get session", err, logrus.Fields{"session_id": sessionID})
		return nil, err
	}
	if s.AccountID != accountID {
		return nil, apperr.ErrSessionNotFound
	}
	return s, nil
}
