package config

import (
	"fmt"
	"time"
)

// Policy holds the tunable economy and anti-cheat thresholds
type Policy struct {
	FeeRate     float64 `toml:"fee_rate"`
	MinTransfer int64   `toml:"min_transfer"`
	MaxTransfer int64   `toml:"max_transfer"`
	MinRequest  int64   `toml:"min_request"`
	MaxRequest  int64   `toml:"max_request"`
	MaxReward   int64   `toml:"max_reward"`

	MinSessionSeconds   int64   `toml:"min_session_seconds"`
	MaxTokenXPRatio     float64 `toml:"max_token_xp_ratio"`
	MinMovementVariance float64 `toml:"min_movement_variance"`
	MaxAFKRatio         float64 `toml:"max_afk_ratio"`

	MinBanReasonLength int `toml:"min_ban_reason_length"`

	HistoryLimit  int `toml:"history_limit"`
	AuditLogLimit int `toml:"audit_log_limit"`

	ConflictRetries   int   `toml:"conflict_retries"`
	ConflictBackoffMs int64 `toml:"conflict_backoff_ms"`
}

// DefaultPolicy returns the production defaults
func DefaultPolicy() Policy {
	return Policy{
		FeeRate:             0.05,
		MinTransfer:         10,
		MaxTransfer:         50000,
		MinRequest:          10,
		MaxRequest:          10000,
		MaxReward:           5000,
		MinSessionSeconds:   60,
		MaxTokenXPRatio:     0.5,
		MinMovementVariance: 0.2,
		MaxAFKRatio:         0.5,
		MinBanReasonLength:  5,
		HistoryLimit:        50,
		AuditLogLimit:       100,
		ConflictRetries:     3,
		ConflictBackoffMs:   25,
	}
}

// ConflictBackoff is the base delay between retries of a conflicting unit.
func (p Policy) ConflictBackoff() time.Duration {
	return time.Duration(p.ConflictBackoffMs) * time.Millisecond
}

// Validate rejects policies that would break ledger invariants.
func (p Policy) Validate() error {
	if p.FeeRate < 0 || p.FeeRate >= 1 {
		return fmt.Errorf("fee_rate must be in [0, 1), got %v", p.FeeRate)
	}
	if p.MinTransfer < 1 || p.MaxTransfer < p.MinTransfer {
		return fmt.Errorf("transfer bounds invalid: min=%d max=%d", p.MinTransfer, p.MaxTransfer)
	}
	if p.MinRequest < 1 || p.MaxRequest < p.MinRequest {
		return fmt.Errorf("request bounds invalid: min=%d max=%d", p.MinRequest, p.MaxRequest)
	}
	if p.MaxReward < 1 {
		return fmt.Errorf("max_reward must be positive")
	}
	if p.MinSessionSeconds < 0 {
		return fmt.Errorf("min_session_seconds must be non-negative")
	}
	if p.MinBanReasonLength < 1 {
		return fmt.Errorf("min_ban_reason_length must be positive")
	}
	if p.HistoryLimit < 1 || p.AuditLogLimit < 1 {
		return fmt.Errorf("history limits must be positive")
	}
	if p.ConflictRetries < 0 || p.ConflictBackoffMs < 0 {
		return fmt.Errorf("conflict retry settings must be non-negative")
	}
	return nil
}
