package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/omega-realm/economy/internal/models"
)

const (
	leaderboardTokensKey = "leaderboard:tokens"
	leaderboardNamesKey  = "leaderboard:names"
)

// SetTokenBalance records an account's current balance on the leaderboard
func (c *Client) SetTokenBalance(ctx context.Context, entry models.LeaderboardEntry) error {
	pipe := c.Pipeline()

	member := entry.AccountID.String()
	pipe.ZAdd(ctx, leaderboardTokensKey, redis.Z{
		Score:  float64(entry.Balance),
		Member: member,
	})
	pipe.HSet(ctx, leaderboardNamesKey, member, entry.Username)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set token balance: %w", err)
	}
	return nil
}

// RemoveFromLeaderboard drops an account, e.g. when it is banned
func (c *Client) RemoveFromLeaderboard(ctx context.Context, accountID uuid.UUID) error {
	pipe := c.Pipeline()

	member := accountID.String()
	pipe.ZRem(ctx, leaderboardTokensKey, member)
	pipe.HDel(ctx, leaderboardNamesKey, member)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove from leaderboard: %w", err)
	}
	return nil
}

// TopTokenHolders returns the top N accounts by balance
func (c *Client) TopTokenHolders(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	players, err := c.ZRevRangeWithScores(ctx, leaderboardTokensKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get top token holders: %w", err)
	}
	entries := make([]models.LeaderboardEntry, 0, len(players))
	if len(players) == 0 {
		return entries, nil
	}

	members := make([]string, len(players))
	for i, p := range players {
		members[i] = p.Member.(string)
	}
	names, err := c.HMGet(ctx, leaderboardNamesKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard names: %w", err)
	}

	for i, p := range players {
		id, err := uuid.Parse(members[i])
		if err != nil {
			continue
		}
		name, _ := names[i].(string)
		entries = append(entries, models.LeaderboardEntry{
			AccountID: id,
			Username:  name,
			Balance:   int64(p.Score),
			Rank:      int64(i + 1),
		})
	}
	return entries, nil
}

// TokenRank returns the 1-based rank of an account, or 0 if it is not ranked
func (c *Client) TokenRank(ctx context.Context, accountID uuid.UUID) (int64, error) {
	rank, err := c.ZRevRank(ctx, leaderboardTokensKey, accountID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get token rank: %w", err)
	}
	return rank + 1, nil
}

// LeaderboardSize returns the number of ranked accounts
func (c *Client) LeaderboardSize(ctx context.Context) (int64, error) {
	count, err := c.ZCard(ctx, leaderboardTokensKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get leaderboard size: %w", err)
	}
	return count, nil
}

// RebuildLeaderboard replaces the leaderboard with entries loaded from the store
func (c *Client) RebuildLeaderboard(ctx context.Context, entries []models.LeaderboardEntry) error {
	_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, leaderboardTokensKey, leaderboardNamesKey)
		for _, e := range entries {
			member := e.AccountID.String()
			pipe.ZAdd(ctx, leaderboardTokensKey, redis.Z{Score: float64(e.Balance), Member: member})
			pipe.HSet(ctx, leaderboardNamesKey, member, e.Username)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild leaderboard: %w", err)
	}
	return nil
}
