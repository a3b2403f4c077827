package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omega-realm/economy/internal/apperr"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/memstore"
	"github.com/omega-realm/economy/internal/models"
	"github.com/omega-realm/economy/internal/notify"
	rediscache "github.com/omega-realm/economy/internal/redis"
	"github.com/omega-realm/economy/internal/store"
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
	store    *memstore.Store
	service  *Service
	recorder *notify.Recorder
	cache    *rediscache.Client
	redis    *miniredis.Miniredis
	clock    *clock
	operator *models.Account
	player   *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		store:    memstore.New(),
		recorder: &notify.Recorder{},
		cache:    rediscache.Wrap(rdb),
		redis:    mr,
		clock:    &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.service = NewService(f.store, config.DefaultPolicy(),
		WithPublisher(f.recorder),
		WithLeaderboard(f.cache),
		WithStatusCache(f.cache, time.Minute),
		WithClock(f.clock.Now),
	)

	ctx := context.Background()
	f.operator = &models.Account{Username: "warden"}
	f.player = &models.Account{Username: "griefer", Balance: 700}
	require.NoError(t, f.store.CreateAccount(ctx, f.operator))
	require.NoError(t, f.store.CreateAccount(ctx, f.player))
	require.NoError(t, f.cache.SetTokenBalance(ctx, models.LeaderboardEntry{
		AccountID: f.player.ID, Username: f.player.Username, Balance: f.player.Balance,
	}))
	return f
}

func (f *fixture) account(t *testing.T) *models.Account {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), f.player.ID)
	require.NoError(t, err)
	return a
}

func ms(v int64) *int64 { return &v }

func TestBan(t *testing.T) {
	ctx := context.Background()

	t.Run("should ban indefinitely without a duration", func(t *testing.T) {
		f := newFixture(t)
		ban, err := f.service.Ban(ctx, BanRequest{
			AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "  duping items  ",
		})
		require.NoError(t, err)
		assert.True(t, ban.Active)
		assert.True(t, ban.Indefinite())
		assert.Nil(t, ban.DurationMs)
		assert.Equal(t, "duping items", ban.Reason)

		a := f.account(t)
		assert.True(t, a.Banned)
		require.NotNil(t, a.BanReason)
		assert.Equal(t, "duping items", *a.BanReason)

		rank, err := f.cache.TokenRank(ctx, f.player.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rank)

		events := f.recorder.Events()
		require.Len(t, events, 1)
		assert.Equal(t, notify.EventAccountBanned, events[0].Type)
		assert.Equal(t, f.player.ID, events[0].AccountID)
	})

	t.Run("should treat a zero duration as indefinite", func(t *testing.T) {
		f := newFixture(t)
		ban, err := f.service.Ban(ctx, BanRequest{
			AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "spamming", DurationMs: ms(0),
		})
		require.NoError(t, err)
		assert.True(t, ban.Indefinite())
	})

	t.Run("should derive expiry from the duration", func(t *testing.T) {
		f := newFixture(t)
		ban, err := f.service.Ban(ctx, BanRequest{
			AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "spamming", DurationMs: ms(3_600_000),
		})
		require.NoError(t, err)
		require.NotNil(t, ban.ExpiresAt)
		assert.Equal(t, f.clock.Now().Add(time.Hour), *ban.ExpiresAt)
		assert.Equal(t, int64(3_600_000), *ban.DurationMs)
	})

	t.Run("should reject banning a banned account", func(t *testing.T) {
		f := newFixture(t)
		req := BanRequest{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "spamming"}
		_, err := f.service.Ban(ctx, req)
		require.NoError(t, err)
		_, err = f.service.Ban(ctx, req)
		assert.ErrorIs(t, err, apperr.ErrAlreadyBanned)

		bans, err := f.service.ListBans(ctx, f.player.ID)
		require.NoError(t, err)
		assert.Len(t, bans, 1)
	})

	t.Run("should validate input before touching the store", func(t *testing.T) {
		f := newFixture(t)
		for _, req := range []BanRequest{
			{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: " abc "},
			{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "spamming", DurationMs: ms(-1)},
			{OperatorID: f.operator.ID, Reason: "spamming"},
		} {
			_, err := f.service.Ban(ctx, req)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		}
		assert.False(t, f.account(t).Banned)
	})

	t.Run("should reject unknown accounts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Ban(ctx, BanRequest{AccountID: uuid.New(), OperatorID: f.operator.ID, Reason: "spamming"})
		assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
	})
}

func TestUnban(t *testing.T) {
	ctx := context.Background()

	t.Run("should clear the flag and deactivate bans", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Ban(ctx, BanRequest{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "spamming"})
		require.NoError(t, err)

		require.NoError(t, f.service.Unban(ctx, f.player.ID, f.operator.ID))

		a := f.account(t)
		assert.False(t, a.Banned)
		assert.Nil(t, a.BanReason)

		bans, err := f.service.ListBans(ctx, f.player.ID)
		require.NoError(t, err)
		require.Len(t, bans, 1)
		assert.False(t, bans[0].Active)

		rank, err := f.cache.TokenRank(ctx, f.player.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rank)

		events := f.recorder.Events()
		require.Len(t, events, 2)
		assert.Equal(t, notify.EventAccountUnbanned, events[1].Type)
	})

	t.Run("should reject unbanning an account that is not banned", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.Unban(ctx, f.player.ID, f.operator.ID)
		assert.ErrorIs(t, err, apperr.ErrNotBanned)
		assert.Empty(t, f.recorder.Events())
	})

	t.Run("should keep history across repeated bans", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 3; i++ {
			_, err := f.service.Ban(ctx, BanRequest{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "spamming"})
			require.NoError(t, err)
			f.clock.Advance(time.Minute)
			require.NoError(t, f.service.Unban(ctx, f.player.ID, f.operator.ID))
		}
		bans, err := f.service.ListBans(ctx, f.player.ID)
		require.NoError(t, err)
		assert.Len(t, bans, 3)
		for _, b := range bans {
			assert.False(t, b.Active)
		}
	})
}

func TestIsBanned(t *testing.T) {
	ctx := context.Background()

	t.Run("should fill the cache from the store", func(t *testing.T) {
		f := newFixture(t)
		st, err := f.service.IsBanned(ctx, f.player.ID)
		require.NoError(t, err)
		assert.False(t, st.Banned)

		cached, err := f.cache.GetAccountStatus(ctx, f.player.ID)
		require.NoError(t, err)
		assert.False(t, cached.Banned)
	})

	t.Run("should reflect bans through the cache", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.IsBanned(ctx, f.player.ID)
		require.NoError(t, err)
		_, err = f.service.Ban(ctx, BanRequest{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "botting"})
		require.NoError(t, err)

		st, err := f.service.IsBanned(ctx, f.player.ID)
		require.NoError(t, err)
		assert.True(t, st.Banned)
		assert.Equal(t, "botting", st.BanReason)

		count, err := f.cache.BannedAccountsCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("should fall back to the store when redis is down", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Ban(ctx, BanRequest{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "botting"})
		require.NoError(t, err)
		f.redis.Close()

		st, err := f.service.IsBanned(ctx, f.player.ID)
		require.NoError(t, err)
		assert.True(t, st.Banned)
	})

	t.Run("should keep a ban that commits during a cache refill", func(t *testing.T) {
		f := newFixture(t)
		slow := &pausingStore{Store: f.store, read: make(chan struct{}), resume: make(chan struct{})}
		reader := NewService(slow, config.DefaultPolicy(),
			WithStatusCache(f.cache, time.Minute),
			WithClock(f.clock.Now),
		)

		done := make(chan Status)
		go func() {
			st, err := reader.IsBanned(ctx, f.player.ID)
			assert.NoError(t, err)
			done <- st
		}()

		<-slow.read
		_, err := f.service.Ban(ctx, BanRequest{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "botting"})
		require.NoError(t, err)
		close(slow.resume)
		assert.False(t, (<-done).Banned)

		st, err := reader.IsBanned(ctx, f.player.ID)
		require.NoError(t, err)
		assert.True(t, st.Banned)
		assert.Equal(t, "botting", st.BanReason)
	})

	t.Run("should report unknown accounts", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.IsBanned(ctx, uuid.New())
		assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
	})
}

// pausingStore holds the first GetAccount after its snapshot is taken until
// resume is closed.
type pausingStore struct {
	*memstore.Store
	once   sync.Once
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account, err := p.Store.GetAccount(ctx, id)
	p.once.Do(func() {
		close(p.read)
		<-p.resume
	})
	return account, err
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("should lift elapsed bans", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Ban(ctx, BanRequest{
			AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "cool off", DurationMs: ms(1000),
		})
		require.NoError(t, err)

		lifted, err := f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Empty(t, lifted)
		assert.True(t, f.account(t).Banned)

		f.clock.Advance(2 * time.Second)
		lifted, err = f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{f.player.ID}, lifted)
		assert.False(t, f.account(t).Banned)

		lifted, err = f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Empty(t, lifted)
	})

	t.Run("should leave indefinite bans alone", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Ban(ctx, BanRequest{AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "permanent"})
		require.NoError(t, err)

		f.clock.Advance(24 * time.Hour)
		lifted, err := f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Empty(t, lifted)
		assert.True(t, f.account(t).Banned)
	})

	t.Run("should keep an account banned while another ban is running", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Ban(ctx, BanRequest{
			AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "cool off", DurationMs: ms(1000),
		})
		require.NoError(t, err)
		require.NoError(t, f.store.WithTx(ctx, func(tx store.Tx) error {
			return tx.InsertBan(ctx, &models.BanRecord{
				AccountID: f.player.ID, OperatorID: f.operator.ID, Reason: "appeal denied", Active: true,
			})
		}))

		f.clock.Advance(time.Minute)
		lifted, err := f.service.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Empty(t, lifted)
		assert.True(t, f.account(t).Banned)
	})
}

func TestNewExpirySweeper(t *testing.T) {
	f := newFixture(t)

	_, err := NewExpirySweeper(f.service, "not a schedule")
	assert.Error(t, err)

	sw, err := NewExpirySweeper(f.service, "@every 1h")
	require.NoError(t, err)
	sw.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sw.Stop(ctx)
}
