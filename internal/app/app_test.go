package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/models"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:  "memory",
		NotifyBackend: "none",
		LogLevel:      "info",
		LogFormat:     "text",
		Policy:        config.DefaultPolicy(),
	}
}

func useRedis(t *testing.T) *miniredis.Miniredis {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_HOST", mr.Host())
	t.Setenv("REDIS_PORT", mr.Port())
	return mr
}

func TestNewMemoryWithoutRedis(t *testing.T) {
	log, hook := test.NewNullLogger()
	a, err := New(context.Background(), memoryConfig(), log)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestNewWithRedisNotifier(t *testing.T) {
	useRedis(t)
	cfg := memoryConfig()
	cfg.RedisEnabled = true
	cfg.NotifyBackend = "redis"

	log, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Redis)

	ctx := context.Background()
	require.NoError(t, a.Store.CreateAccount(ctx, &models.Account{Username: "ada", Balance: 100}))

	a.WarmLeaderboard(ctx)
	size, err := a.Redis.LeaderboardSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestNewRedisNotifierRequiresRedis(t *testing.T) {
	mr := useRedis(t)
	mr.Close()

	cfg := memoryConfig()
	cfg.RedisEnabled = true
	cfg.NotifyBackend = "redis"

	log, _ := test.NewNullLogger()
	_, err := New(context.Background(), cfg, log)
	assert.Error(t, err)
}

func TestNewDegradesWithoutRedis(t *testing.T) {
	mr := useRedis(t)
	mr.Close()

	cfg := memoryConfig()
	cfg.RedisEnabled = true

	log, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Redis)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "sqlite"

	log, _ := test.NewNullLogger()
	_, err := New(context.Background(), cfg, log)
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetFormatter(&logrus.TextFormatter{})
	defer logrus.SetLevel(logrus.InfoLevel)

	cfg := memoryConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	require.NoError(t, SetupLogging(cfg))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	cfg.LogLevel = "loud"
	assert.Error(t, SetupLogging(cfg))
}
