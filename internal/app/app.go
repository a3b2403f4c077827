// Package app assembles the economy services from configuration. It is shared
// by the HTTP daemon and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/anticheat"
	"github.com/omega-realm/economy/internal/auth"
	"github.com/omega-realm/economy/internal/catalog"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/database"
	"github.com/omega-realm/economy/internal/handlers"
	"github.com/omega-realm/economy/internal/ledger"
	"github.com/omega-realm/economy/internal/memstore"
	"github.com/omega-realm/economy/internal/metrics"
	"github.com/omega-realm/economy/internal/moderation"
	"github.com/omega-realm/economy/internal/notify"
	rediscache "github.com/omega-realm/economy/internal/redis"
	"github.com/omega-realm/economy/internal/store"
)

// App holds the wired services
type App struct {
	Config     *config.Config
	Store      store.Store
	Redis      *rediscache.Client
	Catalog    *catalog.Catalog
	Metrics    *metrics.Metrics
	Issuer     *auth.Issuer
	Engine     *ledger.Engine
	Sessions   *anticheat.Evaluator
	Moderation *moderation.Service

	log     logrus.FieldLogger
	closers []func() error
}

// SetupLogging applies the configured level and format to the standard
// logrus logger.
func SetupLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// New connects the store and optional collaborators and builds the services.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.New(),
		Issuer:  auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL),
		log:     log,
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using the development default")
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openCatalog(); err != nil {
		a.Close()
		return nil, err
	}
	a.openRedis(ctx)

	publisher, err := a.openPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}
	publisher = notify.Observed(publisher, a.Metrics.NotificationFailed)

	engineOpts := []ledger.Option{
		ledger.WithPublisher(publisher),
		ledger.WithCatalog(a.Catalog),
		ledger.WithMetrics(a.Metrics),
		ledger.WithLogger(log),
	}
	modOpts := []moderation.Option{
		moderation.WithPublisher(publisher),
		moderation.WithMetrics(a.Metrics),
		moderation.WithLogger(log),
	}
	if a.Redis != nil {
		engineOpts = append(engineOpts, ledger.WithLeaderboard(a.Redis))
		modOpts = append(modOpts,
			moderation.WithLeaderboard(a.Redis),
			moderation.WithStatusCache(a.Redis, rediscache.LoadConfigFromEnv().StatusTTL))
	}

	a.Engine = ledger.NewEngine(a.Store, cfg.Policy, engineOpts...)
	a.Sessions = anticheat.NewEvaluator(a.Store, cfg.Policy,
		anticheat.WithPublisher(publisher),
		anticheat.WithMetrics(a.Metrics),
		anticheat.WithLogger(log))
	a.Moderation = moderation.NewService(a.Store, cfg.Policy, modOpts...)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreBackend {
	case "memory":
		a.log.Warn("using in-memory store, state is lost on exit")
		a.Store = memstore.New()
	case "postgres":
		db, err := database.NewConnection(ctx, database.LoadConfigFromEnv())
		if err != nil {
			return err
		}
		if a.Config.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return err
			}
		}
		a.Store = db
	default:
		return fmt.Errorf("unknown store backend %q", a.Config.StoreBackend)
	}
	a.closers = append(a.closers, a.Store.Close)
	return nil
}

func (a *App) openCatalog() error {
	var err error
	if a.Config.CatalogPath != "" {
		a.Catalog, err = catalog.Load(a.Config.CatalogPath)
	} else {
		a.Catalog, err = catalog.Default()
	}
	return err
}

// openRedis connects the cache. The economy runs without it: the leaderboard
// falls back to the store and ban checks read the store directly.
func (a *App) openRedis(ctx context.Context) {
	if !a.Config.RedisEnabled {
		return
	}
	client, err := rediscache.NewClient(ctx, rediscache.LoadConfigFromEnv())
	if err != nil {
		a.log.WithError(err).Warn("redis unavailable, continuing without cache")
		return
	}
	a.Redis = client
	a.closers = append(a.closers, client.Close)
}

func (a *App) openPublisher() (notify.Publisher, error) {
	switch a.Config.NotifyBackend {
	case "redis":
		if a.Redis == nil {
			return nil, errors.New("NOTIFY_BACKEND=redis requires a reachable redis")
		}
		return a.Redis.Notifier(), nil
	case "nats":
		pub, err := notify.ConnectNATS(notify.NATSConfig{
			URL:            a.Config.NATSURL,
			Name:           "omega-economy",
			ReconnectWait:  config.EnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
			MaxReconnects:  config.EnvInt("NATS_MAX_RECONNECTS", 60),
			ConnectTimeout: config.EnvDuration("NATS_CONNECT_TIMEOUT", 5*time.Second),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		return pub, nil
	default:
		return notify.Nop{}, nil
	}
}

// Migrate applies the schema when the store is backed by a database.
func (a *App) Migrate(ctx context.Context) error {
	m, ok := a.Store.(interface{ Migrate(context.Context) error })
	if !ok {
		a.log.Info("store has no schema to migrate")
		return nil
	}
	return m.Migrate(ctx)
}

// WarmLeaderboard seeds an empty leaderboard cache from the store.
func (a *App) WarmLeaderboard(ctx context.Context) {
	if a.Redis == nil {
		return
	}
	size, err := a.Redis.LeaderboardSize(ctx)
	if err != nil {
		a.log.WithError(err).Warn("leaderboard size unavailable")
		return
	}
	if size > 0 {
		return
	}
	if err := a.Engine.SyncLeaderboard(ctx); err != nil {
		a.log.WithError(err).Warn("leaderboard warmup failed")
		return
	}
	a.log.Info("leaderboard cache seeded from store")
}

// Handler builds the HTTP router.
func (a *App) Handler() http.Handler {
	return handlers.NewRouter(handlers.Deps{
		Engine:     a.Engine,
		Sessions:   a.Sessions,
		Moderation: a.Moderation,
		Catalog:    a.Catalog,
		Tokens:     a.Issuer,
		Store:      a.Store,
		Metrics:    a.Metrics,
		Log:        a.log,
	})
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
