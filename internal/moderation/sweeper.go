package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/store"
)

// SweepExpired lifts bans whose expiry has passed. An account is only
// unbanned when every one of its active bans has elapsed; an indefinite or
// still-running ban keeps it banned. It returns the accounts unbanned.
func (s *Service) SweepExpired(ctx context.Context) ([]uuid.UUID, error) {
	now := s.now().UTC()
	expired, err := s.store.ListExpiredBans(ctx, now)
	if err != nil {
		return nil, s.fail("list expired bans", err, nil)
	}

	seen := make(map[uuid.UUID]bool, len(expired))
	var lifted []uuid.UUID
	for _, b := range expired {
		if seen[b.AccountID] {
			continue
		}
		seen[b.AccountID] = true

		ok, err := s.sweepAccount(ctx, b.AccountID, now)
		if err != nil {
			return lifted, err
		}
		if ok {
			lifted = append(lifted, b.AccountID)
		}
	}
	return lifted, nil
}

func (s *Service) sweepAccount(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	var (
		account *models.Account
		n       int64
	)
	err := s.run(ctx, "sweep_bans", func(tx store.Tx) error {
		account, n = nil, 0
		accounts, err := tx.LockAccounts(ctx, accountID)
		if err != nil {
			return err
		}
		active, err := tx.ListActiveBans(ctx, accountID)
		if err != nil {
			return err
		}
		for i := range active {
			if !active[i].Elapsed(now) {
				return nil
			}
		}

		a := accounts[accountID]
		if !a.Banned {
			// stale records left behind by a direct flag update
			n, err = tx.DeactivateBans(ctx, accountID)
			return err
		}
		if n, err = s.lift(ctx, tx, a); err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return false, s.fail("sweep bans", err, logrus.Fields{"account_id": accountID})
	}
	if account == nil {
		return false, nil
	}
	s.afterLift(ctx, account, n, logrus.Fields{"reason": "expired"})
	return true, nil
}

// ExpirySweeper runs SweepExpired on a cron schedule
type ExpirySweeper struct {
	service *Service
	cron    *cron.Cron
	log     logrus.FieldLogger
}

// NewExpirySweeper schedules sweeps using a cron spec such as "@every 1m"
func NewExpirySweeper(service *Service, spec string) (*ExpirySweeper, error) {
	log := service.log.WithField("job", "ban_expiry")
	sw := &ExpirySweeper{
		service: service,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log)))),
		log:     log,
	}
	if _, err := sw.cron.AddFunc(spec, sw.tick); err != nil {
		return nil, fmt.Errorf("invalid ban sweep schedule %q: %w", spec, err)
	}
	return sw, nil
}

// Start begins running scheduled sweeps in the background.
func (sw *ExpirySweeper) Start() {
	sw.log.Info("ban expiry sweeper started")
	sw.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or for
// ctx to expire.
func (sw *ExpirySweeper) Stop(ctx context.Context) {
	done := sw.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	sw.log.Info("ban expiry sweeper stopped")
}

func (sw *ExpirySweeper) tick() {
	lifted, err := sw.service.SweepExpired(context.Background())
	if err != nil {
		sw.log.WithError(err).Error("ban expiry sweep failed")
		return
	}
	if len(lifted) > 0 {
		sw.log.WithField("accounts", len(lifted)).Info("expired bans lifted")
	}
}
