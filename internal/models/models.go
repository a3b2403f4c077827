package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a player's economy state
type Account struct {
	ID                uuid.UUID `json:"id" db:"id"`
	Username          string    `json:"username" db:"username"`
	Balance           int64     `json:"balance" db:"balance"`
	SuspicionScore    int64     `json:"suspicion_score" db:"suspicion_score"`
	Banned            bool      `json:"banned" db:"banned"`
	BanReason         *string   `json:"ban_reason,omitempty" db:"ban_reason"`
	DeviceFingerprint string    `json:"-" db:"device_fingerprint"`
	LastKnownAddress  string    `json:"-" db:"last_known_address"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// RecordKind is the business reason for a ledger record
type RecordKind string

const (
	KindTransfer        RecordKind = "transfer"
	KindPurchase        RecordKind = "purchase"
	KindAdminAdjustment RecordKind = "admin_adjustment"
	KindReward          RecordKind = "reward"
	KindRequest         RecordKind = "request"
)

// RecordStatus is the lifecycle state of a ledger record
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusCompleted RecordStatus = "completed"
	StatusFailed    RecordStatus = "failed"
	StatusRefunded  RecordStatus = "refunded"
)

// LedgerRecord is an immutable audit entry for a balance-changing event.
// Rows are append-only; nothing updates or deletes them once inserted.
type LedgerRecord struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	SourceID      uuid.UUID     `json:"source_id" db:"source_id"`
	DestinationID uuid.UUID     `json:"destination_id" db:"destination_id"`
	OperatorID    uuid.NullUUID `json:"operator_id" db:"operator_id"`
	Amount        int64         `json:"amount" db:"amount"`
	Fee           int64         `json:"fee" db:"fee"`
	NetAmount     int64         `json:"net_amount" db:"net_amount"`
	Kind          RecordKind    `json:"kind" db:"kind"`
	Status        RecordStatus  `json:"status" db:"status"`
	Flagged       bool          `json:"flagged" db:"flagged"`
	FlagReason    string        `json:"flag_reason,omitempty" db:"flag_reason"`
	SameDevice    bool          `json:"same_device" db:"same_device"`
	SameAddress   bool          `json:"same_address" db:"same_address"`
	Note          string        `json:"note,omitempty" db:"note"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// Involves reports whether the account is the source or destination.
func (r *LedgerRecord) Involves(accountID uuid.UUID) bool {
	return r.SourceID == accountID || r.DestinationID == accountID
}

// PlaySession represents one game session and its anti-cheat evaluation
type PlaySession struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	AccountID        uuid.UUID  `json:"account_id" db:"account_id"`
	StartTime        time.Time  `json:"start_time" db:"start_time"`
	EndTime          *time.Time `json:"end_time" db:"end_time"`
	DurationSeconds  int64      `json:"duration_seconds" db:"duration_seconds"`
	TokensEarned     int64      `json:"tokens_earned" db:"tokens_earned"`
	XPGained         float64    `json:"xp_gained" db:"xp_gained"`
	FoodEaten        int64      `json:"food_eaten" db:"food_eaten"`
	MovementVariance float64    `json:"movement_variance" db:"movement_variance"`
	AFKTime          int64      `json:"afk_time" db:"afk_time"`
	Flagged          bool       `json:"flagged" db:"flagged"`
	Flags            Flags      `json:"flags" db:"flags"`
}

// Open reports whether the session has not been finalized yet.
func (s *PlaySession) Open() bool {
	return s.EndTime == nil
}

// FlagReason renders the session flags for display and storage.
func (s *PlaySession) FlagReason() string {
	return s.Flags.Reason()
}

// BanRecord is one entry of an account's moderation history
type BanRecord struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	AccountID  uuid.UUID  `json:"account_id" db:"account_id"`
	OperatorID uuid.UUID  `json:"operator_id" db:"operator_id"`
	Reason     string     `json:"reason" db:"reason"`
	DurationMs *int64     `json:"duration_ms" db:"duration_ms"`
	BannedAt   time.Time  `json:"banned_at" db:"banned_at"`
	ExpiresAt  *time.Time `json:"expires_at" db:"expires_at"`
	Active     bool       `json:"active" db:"active"`
}

// Indefinite reports whether the ban has no expiry.
func (b *BanRecord) Indefinite() bool {
	return b.ExpiresAt == nil
}

// Elapsed reports whether a timed ban's expiry has passed at now.
func (b *BanRecord) Elapsed(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// LeaderboardEntry is a single ranked balance
type LeaderboardEntry struct {
	AccountID uuid.UUID `json:"account_id"`
	Username  string    `json:"username"`
	Balance   int64     `json:"balance"`
	Rank      int64     `json:"rank"`
}

// PlatformStats summarizes the economy for operators
type PlatformStats struct {
	TotalAccounts       int64 `json:"total_accounts" db:"total_accounts"`
	BannedAccounts      int64 `json:"banned_accounts" db:"banned_accounts"`
	TokensInCirculation int64 `json:"total_tokens" db:"total_tokens"`
	DailyTransferVolume int64 `json:"daily_transfer_volume" db:"daily_transfer_volume"`
	DailyFeesCollected  int64 `json:"daily_fees_collected" db:"daily_fees_collected"`
	FlaggedSessions     int64 `json:"flagged_sessions" db:"flagged_sessions"`
}
