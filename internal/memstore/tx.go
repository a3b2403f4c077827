package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/models"
)

type tx struct {
	s *Store

	held    map[string]*sync.Mutex
	lastKey string

	accounts  map[uuid.UUID]*models.Account // locked rows, staged values
	dirty     map[uuid.UUID]bool
	suspicion map[uuid.UUID]int64
	records   []models.LedgerRecord
	sessions  map[uuid.UUID]*models.PlaySession // locked or inserted, staged values
	inserted  map[uuid.UUID]bool
	bans      []models.BanRecord
	cleared   map[uuid.UUID]bool // accounts whose active bans are deactivated
}

func newTx(s *Store) *tx {
	return &tx{
		s:         s,
		held:      make(map[string]*sync.Mutex),
		accounts:  make(map[uuid.UUID]*models.Account),
		dirty:     make(map[uuid.UUID]bool),
		suspicion: make(map[uuid.UUID]int64),
		sessions:  make(map[uuid.UUID]*models.PlaySession),
		inserted:  make(map[uuid.UUID]bool),
		cleared:   make(map[uuid.UUID]bool),
	}
}

func accountKey(id uuid.UUID) string { return "acct:" + id.String() }
func sessionKey(id uuid.UUID) string { return "sess:" + id.String() }

// acquire takes the row lock for key. Keys must be acquired in ascending
// order; a key below one already held is only taken if free, otherwise the
// unit fails with a retryable conflict.
func (t *tx) acquire(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable(err)
	}
	m := t.s.rowLock(key)
	if key < t.lastKey {
		if !m.TryLock() {
			return apperr.StoreConflict(fmt.Errorf("%w: %s", errLockOrder, key))
		}
	} else {
		m.Lock()
		t.lastKey = key
	}
	t.held[key] = m
	return nil
}

func (t *tx) release() {
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = nil
}

func (t *tx) LockAccounts(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*models.Account, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return accountKey(sorted[i]) < accountKey(sorted[j]) })

	out := make(map[uuid.UUID]*models.Account, len(sorted))
	for _, id := range sorted {
		if err := t.acquire(ctx, accountKey(id)); err != nil {
			return nil, err
		}
		if staged, ok := t.accounts[id]; ok {
			out[id] = copyAccount(staged)
			continue
		}
		t.s.mu.RLock()
		a, ok := t.s.accounts[id]
		var cp *models.Account
		if ok {
			cp = copyAccount(a)
		}
		t.s.mu.RUnlock()
		if !ok {
			return nil, apperr.ErrAccountNotFound
		}
		t.accounts[id] = cp
		out[id] = copyAccount(cp)
	}
	return out, nil
}

func (t *tx) lockedAccount(id uuid.UUID) (*models.Account, error) {
	a, ok := t.accounts[id]
	if !ok {
		return nil, apperr.Internal(fmt.Errorf("account %s modified without lock", id))
	}
	return a, nil
}

func (t *tx) SetBalance(_ context.Context, accountID uuid.UUID, balance int64) error {
	a, err := t.lockedAccount(accountID)
	if err != nil {
		return err
	}
	if balance < 0 {
		return apperr.Internal(fmt.Errorf("balance of %s would become %d", accountID, balance))
	}
	a.Balance = balance
	t.dirty[accountID] = true
	return nil
}

func (t *tx) AddSuspicion(_ context.Context, accountID uuid.UUID, delta int64) error {
	t.s.mu.RLock()
	_, ok := t.s.accounts[accountID]
	t.s.mu.RUnlock()
	if !ok {
		return apperr.ErrAccountNotFound
	}
	t.suspicion[accountID] += delta
	return nil
}

func (t *tx) SetBanState(_ context.Context, accountID uuid.UUID, banned bool, reason *string) error {
	a, err := t.lockedAccount(accountID)
	if err != nil {
		return err
	}
	a.Banned = banned
	a.BanReason = nil
	if reason != nil {
		r := *reason
		a.BanReason = &r
	}
	t.dirty[accountID] = true
	return nil
}

func (t *tx) InsertRecord(_ context.Context, record *models.LedgerRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.s.now().UTC()
	}
	t.records = append(t.records, *record)
	return nil
}

func (t *tx) InsertSession(_ context.Context, session *models.PlaySession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if session.Open() {
		for _, staged := range t.sessions {
			if staged.AccountID == session.AccountID && staged.Open() {
				return apperr.ErrSessionOpen
			}
		}
		t.s.mu.RLock()
		_, exists := t.s.open[session.AccountID]
		t.s.mu.RUnlock()
		if exists {
			return apperr.ErrSessionOpen
		}
	}
	t.sessions[session.ID] = copySession(session)
	t.inserted[session.ID] = true
	return nil
}

func (t *tx) FindOpenSession(_ context.Context, accountID uuid.UUID) (*models.PlaySession, error) {
	for _, staged := range t.sessions {
		if staged.AccountID == accountID && staged.Open() {
			return copySession(staged), nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	id, ok := t.s.open[accountID]
	if !ok {
		return nil, nil
	}
	return copySession(t.s.sessions[id]), nil
}

func (t *tx) LockSession(ctx context.Context, sessionID uuid.UUID) (*models.PlaySession, error) {
	if staged, ok := t.sessions[sessionID]; ok {
		return copySession(staged), nil
	}
	if err := t.acquire(ctx, sessionKey(sessionID)); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	sess, ok := t.s.sessions[sessionID]
	var cp *models.PlaySession
	if ok {
		cp = copySession(sess)
	}
	t.s.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	t.sessions[sessionID] = cp
	return copySession(cp), nil
}

func (t *tx) SaveSession(_ context.Context, session *models.PlaySession) error {
	if _, ok := t.sessions[session.ID]; !ok {
		return apperr.Internal(fmt.Errorf("session %s saved without lock", session.ID))
	}
	t.sessions[session.ID] = copySession(session)
	return nil
}

func (t *tx) InsertBan(_ context.Context, ban *models.BanRecord) error {
	if ban.ID == uuid.Nil {
		ban.ID = uuid.New()
	}
	if ban.BannedAt.IsZero() {
		ban.BannedAt = t.s.now().UTC()
	}
	t.bans = append(t.bans, *ban)
	return nil
}

func (t *tx) ListActiveBans(_ context.Context, accountID uuid.UUID) ([]models.BanRecord, error) {
	out := []models.BanRecord{}
	if !t.cleared[accountID] {
		t.s.mu.RLock()
		for _, b := range t.s.bans {
			if b.AccountID == accountID && b.Active {
				out = append(out, b)
			}
		}
		t.s.mu.RUnlock()
	}
	for _, b := range t.bans {
		if b.AccountID == accountID && b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) DeactivateBans(ctx context.Context, accountID uuid.UUID) (int64, error) {
	active, err := t.ListActiveBans(ctx, accountID)
	if err != nil {
		return 0, err
	}
	for i := range t.bans {
		if t.bans[i].AccountID == accountID {
			t.bans[i].Active = false
		}
	}
	t.cleared[accountID] = true
	return int64(len(active)), nil
}

// commit applies every staged write under the data lock, so readers observe
// either none or all of them.
func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.inserted {
		sess := t.sessions[id]
		if !sess.Open() {
			continue
		}
		if other, ok := s.open[sess.AccountID]; ok && other != id {
			return apperr.ErrSessionOpen
		}
	}
	for id := range t.suspicion {
		if _, ok := s.accounts[id]; !ok {
			return apperr.ErrAccountNotFound
		}
	}

	for id := range t.dirty {
		a := t.accounts[id]
		cur := s.accounts[id]
		a.SuspicionScore = cur.SuspicionScore
		s.accounts[id] = copyAccount(a)
	}
	for id, delta := range t.suspicion {
		s.accounts[id].SuspicionScore += delta
	}
	s.records = append(s.records, t.records...)
	for id, sess := range t.sessions {
		s.sessions[id] = copySession(sess)
		if sess.Open() {
			s.open[sess.AccountID] = id
		} else if s.open[sess.AccountID] == id {
			delete(s.open, sess.AccountID)
		}
	}
	for i := range s.bans {
		if t.cleared[s.bans[i].AccountID] {
			s.bans[i].Active = false
		}
	}
	s.bans = append(s.bans, t.bans...)
	return nil
}
