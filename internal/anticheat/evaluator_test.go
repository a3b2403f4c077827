package anticheat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/memstore"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/notify"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *memstore.Store
	evaluator *Evaluator
	recorder  *notify.Recorder
	clock     *clock
	account   *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memstore.New(),
		recorder: &notify.Recorder{},
		clock:    &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.evaluator = NewEvaluator(f.store, config.DefaultPolicy(), WithPublisher(f.recorder), WithClock(f.clock.Now))
	f.account = &models.Account{Username: "runner", Balance: 100}
	require.NoError(t, f.store.CreateAccount(context.Background(), f.account))
	return f
}

func (f *fixture) suspicion(t *testing.T) int64 {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	return a.SuspicionScore
}

func TestValidate(t *testing.T) {
	p := config.DefaultPolicy()

	codes := func(fs models.Flags) []models.FlagCode {
		out := []models.FlagCode{}
		for _, f := range fs {
			out = append(out, f.Code)
		}
		return out
	}

	tests := []struct {
		name    string
		session models.PlaySession
		want    []models.FlagCode
	}{
		{
			name:    "should exempt sessions of exactly the minimum length",
			session: models.PlaySession{DurationSeconds: 60, TokensEarned: 1000, XPGained: 1, MovementVariance: 0, AFKTime: 60},
			want:    []models.FlagCode{},
		},
		{
			name:    "should pass a clean session",
			session: models.PlaySession{DurationSeconds: 61, TokensEarned: 50, XPGained: 100, MovementVariance: 0.5, AFKTime: 10},
			want:    []models.FlagCode{},
		},
		{
			name:    "should flag a token to xp ratio above the threshold",
			session: models.PlaySession{DurationSeconds: 61, TokensEarned: 51, XPGained: 100, MovementVariance: 0.5},
			want:    []models.FlagCode{models.FlagRatio},
		},
		{
			name:    "should skip the ratio check without xp",
			session: models.PlaySession{DurationSeconds: 120, TokensEarned: 500, XPGained: 0, MovementVariance: 0.5},
			want:    []models.FlagCode{},
		},
		{
			name:    "should flag low movement variance",
			session: models.PlaySession{DurationSeconds: 120, XPGained: 10, MovementVariance: 0.19},
			want:    []models.FlagCode{models.FlagBot},
		},
		{
			name:    "should not flag variance at the threshold",
			session: models.PlaySession{DurationSeconds: 120, XPGained: 10, MovementVariance: 0.2},
			want:    []models.FlagCode{},
		},
		{
			name:    "should flag a high afk ratio",
			session: models.PlaySession{DurationSeconds: 100, XPGained: 10, MovementVariance: 0.5, AFKTime: 51},
			want:    []models.FlagCode{models.FlagAFK},
		},
		{
			name:    "should report every heuristic in order",
			session: models.PlaySession{DurationSeconds: 100, TokensEarned: 90, XPGained: 100, MovementVariance: 0.1, AFKTime: 80},
			want:    []models.FlagCode{models.FlagRatio, models.FlagBot, models.FlagAFK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(Validate(p, &tt.session)))
		})
	}
}

func TestStartSession(t *testing.T) {
	t.Run("should open a new session", func(t *testing.T) {
		f := newFixture(t)
		s, resumed, err := f.evaluator.StartSession(context.Background(), f.account.ID)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.True(t, s.Open())
		assert.Equal(t, f.clock.Now(), s.StartTime)
	})

	t.Run("should resume the open session", func(t *testing.T) {
		f := newFixture(t)
		first, _, err := f.evaluator.StartSession(context.Background(), f.account.ID)
		require.NoError(t, err)
		second, resumed, err := f.evaluator.StartSession(context.Background(), f.account.ID)
		require.NoError(t, err)
		assert.True(t, resumed)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("should reject unknown accounts", func(t *testing.T) {
		f := newFixture(t)
		_, _, err := f.evaluator.StartSession(context.Background(), uuid.New())
		assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
	})

	t.Run("should open one session under concurrent starts", func(t *testing.T) {
		f := newFixture(t)
		var wg sync.WaitGroup
		ids := make(chan uuid.UUID, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s, _, err := f.evaluator.StartSession(context.Background(), f.account.ID)
				if err == nil {
					ids <- s.ID
				}
			}()
		}
		wg.Wait()
		close(ids)
		seen := map[uuid.UUID]bool{}
		for id := range ids {
			seen[id] = true
		}
		assert.Len(t, seen, 1)
	})
}

func TestFinalizeSession(t *testing.T) {
	ctx := context.Background()

	t.Run("should flag the ratio just past the exemption", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)
		f.clock.Advance(61*time.Second + 500*time.Millisecond)

		res, err := f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, EndPayload{
			TokensEarned: 51, XPGained: 100, MovementVariance: 0.5,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(61), res.Session.DurationSeconds)
		assert.True(t, res.Flagged)
		require.Len(t, res.Flags, 1)
		assert.Equal(t, models.FlagRatio, res.Flags[0].Code)
		assert.Equal(t, "RatioCheck: token/xp ratio 0.51 exceeds 0.5", res.Reason)
		assert.Equal(t, int64(1), f.suspicion(t))

		events := f.recorder.Events()
		require.Len(t, events, 1)
		assert.Equal(t, notify.EventSessionFlagged, events[0].Type)
		assert.True(t, events[0].ForOperators())
	})

	t.Run("should not flag a ratio at the threshold", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)
		f.clock.Advance(61 * time.Second)

		res, err := f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, EndPayload{
			TokensEarned: 50, XPGained: 100, MovementVariance: 0.5,
		})
		require.NoError(t, err)
		assert.False(t, res.Flagged)
		assert.Empty(t, res.Reason)
		assert.Equal(t, int64(0), f.suspicion(t))
		assert.Empty(t, f.recorder.Events())
	})

	t.Run("should add one suspicion point per flag", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)
		f.clock.Advance(100 * time.Second)

		res, err := f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, EndPayload{
			TokensEarned: 90, XPGained: 100, MovementVariance: 0.1, AFKTime: 80,
		})
		require.NoError(t, err)
		assert.Len(t, res.Flags, 3)
		assert.Equal(t, int64(3), f.suspicion(t))

		stored, err := f.store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, stored.Flagged)
		assert.Len(t, stored.Flags, 3)
	})

	t.Run("should finalize only once", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)

		payload := EndPayload{TokensEarned: 90, XPGained: 100, MovementVariance: 0.5}
		_, err = f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, payload)
		require.NoError(t, err)
		_, err = f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, payload)
		assert.ErrorIs(t, err, apperr.ErrAlreadyFinalized)
		assert.Equal(t, int64(1), f.suspicion(t))
	})

	t.Run("should finalize once under concurrent calls", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Minute)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			finalized int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, EndPayload{
					TokensEarned: 90, XPGained: 100, MovementVariance: 0.5,
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case apperr.CodeOf(err) == apperr.CodeOf(apperr.ErrAlreadyFinalized):
					finalized++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 7, finalized)
		assert.Equal(t, int64(1), f.suspicion(t))
	})

	t.Run("should hide sessions owned by another account", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)

		_, err = f.evaluator.FinalizeSession(ctx, uuid.New(), s.ID, EndPayload{})
		assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
		_, err = f.evaluator.Session(ctx, uuid.New(), s.ID)
		assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
	})

	t.Run("should reject unknown sessions", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.evaluator.FinalizeSession(ctx, f.account.ID, uuid.New(), EndPayload{})
		assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
	})

	t.Run("should reject out of range payloads", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)

		for _, p := range []EndPayload{
			{TokensEarned: -1},
			{XPGained: -1},
			{MovementVariance: 1.5},
			{AFKTime: -3},
		} {
			_, err := f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, p)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		}

		stored, err := f.store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, stored.Open())
	})

	t.Run("should allow a new session after finalizing", func(t *testing.T) {
		f := newFixture(t)
		s, _, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)
		_, err = f.evaluator.FinalizeSession(ctx, f.account.ID, s.ID, EndPayload{})
		require.NoError(t, err)

		next, resumed, err := f.evaluator.StartSession(ctx, f.account.ID)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.NotEqual(t, s.ID, next.ID)
	})
}
