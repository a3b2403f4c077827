package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/omega-realm/economy/internal/models"
	rediscache "github.com/omega-realm/economy/internal/redis"
)

// Status is the moderation state of one account
type Status struct {
	Banned    bool
	BanReason string
}

// IsBanned reports the account's ban state. The status cache is consulted
// first; a miss or cache failure falls back to the store and refills it. The
// refill only writes an empty slot: a ban committing between the store read
// and the refill has already cached the newer status.
func (s *Service) IsBanned(ctx context.Context, accountID uuid.UUID) (Status, error) {
	if s.cache != nil {
		cached, err := s.cache.GetAccountStatus(ctx, accountID)
		switch {
		case err == nil:
			return Status{Banned: cached.Banned, BanReason: cached.BanReason}, nil
		case !errors.Is(err, rediscache.ErrCacheMiss):
			s.log.WithError(err).WithField("account_id", accountID).Warn("status cache read failed")
		}
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return Status{}, s.fail("status", err, nil)
	}
	s.fillStatus(ctx, account)

	st := Status{Banned: account.Banned}
	if account.BanReason != nil {
		st.BanReason = *account.BanReason
	}
	return st, nil
}

func toCached(account *models.Account, now time.Time) *rediscache.AccountStatus {
	status := &rediscache.AccountStatus{
		AccountID: account.ID,
		Banned:    account.Banned,
		CachedAt:  now.UTC(),
	}
	if account.BanReason != nil {
		status.BanReason = *account.BanReason
	}
	return status
}

// cacheStatus writes committed ban state, replacing whatever is cached.
func (s *Service) cacheStatus(ctx context.Context, account *models.Account) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetAccountStatus(ctx, toCached(account, s.now()), s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("account_id", account.ID).Warn("status cache write failed")
		if err := s.cache.InvalidateAccountStatus(ctx, account.ID); err != nil {
			s.log.WithError(err).WithField("account_id", account.ID).Warn("status cache invalidation failed")
		}
	}
}

func (s *Service) fillStatus(ctx context.Context, account *models.Account) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.FillAccountStatus(ctx, toCached(account, s.now()), s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("account_id", account.ID).Warn("status cache fill failed")
	}
}
