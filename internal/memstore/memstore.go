// Package memstore is an in-process implementation of store.Store used for
// local development and tests. Rows are guarded by per-row mutexes taken in
// ascending key order; writes are staged per unit and applied atomically at
// commit.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps all economy state in memory.
type Store struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]*models.Account
	usernames map[string]uuid.UUID
	records   []models.LedgerRecord
	sessions  map[uuid.UUID]*models.PlaySession
	open      map[uuid.UUID]uuid.UUID // account -> open session
	bans      []models.BanRecord

	rowsMu sync.Mutex
	rows   map[string]*sync.Mutex

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:  make(map[uuid.UUID]*models.Account),
		usernames: make(map[string]uuid.UUID),
		sessions:  make(map[uuid.UUID]*models.PlaySession),
		open:      make(map[uuid.UUID]uuid.UUID),
		rows:      make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

func (s *Store) rowLock(key string) *sync.Mutex {
	s.rowsMu.Lock()
	defer s.rowsMu.Unlock()
	m, ok := s.rows[key]
	if !ok {
		m = &sync.Mutex{}
		s.rows[key] = m
	}
	return m
}

// WithTx runs fn in a unit of work.
func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable(err)
	}
	tx := newTx(s)
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// CreateAccount inserts a new account. Usernames are unique.
func (s *Store) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if _, exists := s.accounts[account.ID]; exists {
		return apperr.ErrDuplicateAccount
	}
	if _, exists := s.usernames[account.Username]; exists {
		return apperr.ErrDuplicateAccount
	}
	if account.Balance < 0 {
		return apperr.Validation("balance", "balance must not be negative")
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now().UTC()
	}
	cp := *account
	s.accounts[cp.ID] = &cp
	s.usernames[cp.Username] = cp.ID
	return nil
}

// GetAccount returns a snapshot of an account.
func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, apperr.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAccountByUsername resolves a username to an account snapshot.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	s.mu.RLock()
	id, ok := s.usernames[username]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrAccountNotFound
	}
	return s.GetAccount(ctx, id)
}

// ListAccounts returns account snapshots, newest first.
func (s *Store) ListAccounts(_ context.Context, limit, offset int) ([]models.Account, error) {
	s.mu.RLock()
	all := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		all = append(all, *a)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Username < all[j].Username
	})
	if offset >= len(all) {
		return []models.Account{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetSession returns a snapshot of a session.
func (s *Store) GetSession(_ context.Context, id uuid.UUID) (*models.PlaySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	return copySession(sess), nil
}

// ListRecordsForAccount returns the account's records, newest first.
func (s *Store) ListRecordsForAccount(_ context.Context, accountID uuid.UUID, limit int) ([]models.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.LedgerRecord{}
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].Involves(accountID) {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

// ListRecords returns the most recent records across all accounts.
func (s *Store) ListRecords(_ context.Context, limit int) ([]models.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.LedgerRecord{}
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// ListBans returns an account's ban history, newest first.
func (s *Store) ListBans(_ context.Context, accountID uuid.UUID) ([]models.BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, apperr.ErrAccountNotFound
	}
	out := []models.BanRecord{}
	for i := len(s.bans) - 1; i >= 0; i-- {
		if s.bans[i].AccountID == accountID {
			out = append(out, s.bans[i])
		}
	}
	return out, nil
}

// ListExpiredBans returns active timed bans whose expiry has passed.
func (s *Store) ListExpiredBans(_ context.Context, now time.Time) ([]models.BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.BanRecord{}
	for _, b := range s.bans {
		if b.Active && b.Elapsed(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

// TopBalances ranks non-banned accounts by balance, ties broken by username.
func (s *Store) TopBalances(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.RLock()
	entries := make([]models.LeaderboardEntry, 0, len(s.accounts))
	for _, a := range s.accounts {
		if a.Banned {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{AccountID: a.ID, Username: a.Username, Balance: a.Balance})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Balance != entries[j].Balance {
			return entries[i].Balance > entries[j].Balance
		}
		return entries[i].Username < entries[j].Username
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries, nil
}

// Stats aggregates platform-wide figures. Transfer volume and fees cover
// completed transfers created at or after since.
func (s *Store) Stats(_ context.Context, since time.Time) (*models.PlatformStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.PlatformStats{TotalAccounts: int64(len(s.accounts))}
	for _, a := range s.accounts {
		stats.TokensInCirculation += a.Balance
		if a.Banned {
			stats.BannedAccounts++
		}
	}
	for _, r := range s.records {
		if r.Kind == models.KindTransfer && r.Status == models.StatusCompleted && !r.CreatedAt.Before(since) {
			stats.DailyTransferVolume += r.Amount
			stats.DailyFeesCollected += r.Fee
		}
	}
	for _, sess := range s.sessions {
		if sess.Flagged {
			stats.FlaggedSessions++
		}
	}
	return stats, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func copySession(sess *models.PlaySession) *models.PlaySession {
	cp := *sess
	if sess.EndTime != nil {
		end := *sess.EndTime
		cp.EndTime = &end
	}
	if sess.Flags != nil {
		cp.Flags = append(models.Flags(nil), sess.Flags...)
	}
	return &cp
}

func copyAccount(a *models.Account) *models.Account {
	cp := *a
	if a.BanReason != nil {
		r := *a.BanReason
		cp.BanReason = &r
	}
	return &cp
}

var errLockOrder = errors.New("row lock acquired out of order")
