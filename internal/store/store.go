// Package store defines the persistence contract the economy services run
// against. Every balance-changing operation executes inside a single unit of
// work obtained from Store.WithTx; either all of its writes become visible or
// none do.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/omega-realm/economy/internal/models"
)

// Store is the top-level persistence handle.
type Store interface {
	// WithTx runs fn in one unit of work. A nil return commits, anything
	// else rolls back and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	// ListAccounts pages through accounts, newest first.
	ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.PlaySession, error)

	// ListRecordsForAccount returns records where the account is source or
	// destination, newest first.
	ListRecordsForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerRecord, error)
	ListRecords(ctx context.Context, limit int) ([]models.LedgerRecord, error)

	ListBans(ctx context.Context, accountID uuid.UUID) ([]models.BanRecord, error)
	// ListExpiredBans returns active timed bans whose expiry is at or before now.
	ListExpiredBans(ctx context.Context, now time.Time) ([]models.BanRecord, error)

	// TopBalances ranks non-banned accounts by balance.
	TopBalances(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
	Stats(ctx context.Context, since time.Time) (*models.PlatformStats, error)

	Ping(ctx context.Context) error
	Close() error
}

// Tx is a unit of work. Rows returned by the Lock methods stay exclusively
// held until the unit ends.
type Tx interface {
	// LockAccounts locks every listed account in ascending id order and
	// returns them keyed by id. A missing id yields apperr.ErrAccountNotFound.
	LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error)
	SetBalance(ctx context.Context, accountID uuid.UUID, balance int64) error
	// AddSuspicion increments the score atomically without requiring a lock.
	AddSuspicion(ctx context.Context, accountID uuid.UUID, delta int64) error
	SetBanState(ctx context.Context, accountID uuid.UUID, banned bool, reason *string) error

	InsertRecord(ctx context.Context, record *models.LedgerRecord) error

	InsertSession(ctx context.Context, session *models.PlaySession) error
	// FindOpenSession returns nil without error when the account has none.
	FindOpenSession(ctx context.Context, accountID uuid.UUID) (*models.PlaySession, error)
	LockSession(ctx context.Context, sessionID uuid.UUID) (*models.PlaySession, error)
	SaveSession(ctx context.Context, session *models.PlaySession) error

	InsertBan(ctx context.Context, ban *models.BanRecord) error
	ListActiveBans(ctx context.Context, accountID uuid.UUID) ([]models.BanRecord, error)
	DeactivateBans(ctx context.Context, accountID uuid.UUID) (int64, error)
}
