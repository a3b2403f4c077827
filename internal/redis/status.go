package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when no status is cached for an account
var ErrCacheMiss = errors.New("account status not cached")

// AccountStatus is the cached moderation state the boundary layer consults
type AccountStatus struct {
	AccountID uuid.UUID `json:"account_id"`
	Banned    bool      `json:"banned"`
	BanReason string    `json:"ban_reason,omitempty"`
	CachedAt  time.Time `json:"cached_at"`
}

func statusKey(accountID uuid.UUID) string {
	return fmt.Sprintf("account_status:%s", accountID)
}

// SetAccountStatus caches an account's moderation state with TTL
func (c *Client) SetAccountStatus(ctx context.Context, status *AccountStatus, ttl time.Duration) error {
	statusJSON, err := marshalStatus(status)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, statusKey(status.AccountID), statusJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set account status: %w", err)
	}
	return c.trackBanned(ctx, status)
}

// FillAccountStatus caches a status only when none is cached, so a stale read
// never replaces a status written after a commit. It reports whether the
// status was stored.
func (c *Client) FillAccountStatus(ctx context.Context, status *AccountStatus, ttl time.Duration) (bool, error) {
	statusJSON, err := marshalStatus(status)
	if err != nil {
		return false, err
	}
	stored, err := c.SetNX(ctx, statusKey(status.AccountID), statusJSON, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to fill account status: %w", err)
	}
	if !stored {
		return false, nil
	}
	return true, c.trackBanned(ctx, status)
}

func marshalStatus(status *AccountStatus) ([]byte, error) {
	if status.CachedAt.IsZero() {
		status.CachedAt = time.Now().UTC()
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account status: %w", err)
	}
	return statusJSON, nil
}

func (c *Client) trackBanned(ctx context.Context, status *AccountStatus) error {
	var err error
	if status.Banned {
		err = c.SAdd(ctx, bannedAccountsKey, status.AccountID.String()).Err()
	} else {
		err = c.SRem(ctx, bannedAccountsKey, status.AccountID.String()).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to update banned set: %w", err)
	}
	return nil
}

// GetAccountStatus retrieves a cached status
func (c *Client) GetAccountStatus(ctx context.Context, accountID uuid.UUID) (*AccountStatus, error) {
	statusJSON, err := c.Get(ctx, statusKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account status: %w", err)
	}

	var status AccountStatus
	if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account status: %w", err)
	}
	return &status, nil
}

// InvalidateAccountStatus drops a cached status
func (c *Client) InvalidateAccountStatus(ctx context.Context, accountID uuid.UUID) error {
	if err := c.Del(ctx, statusKey(accountID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate account status: %w", err)
	}
	return nil
}

const bannedAccountsKey = "banned_accounts"

// BannedAccountsCount returns the number of accounts cached as banned
func (c *Client) BannedAccountsCount(ctx context.Context) (int64, error) {
	count, err := c.SCard(ctx, bannedAccountsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get banned accounts count: %w", err)
	}
	return count, nil
}
