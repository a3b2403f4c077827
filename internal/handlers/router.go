package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/anticheat"
	"github.com/omega-realm/economy/internal/catalog"
	"github.com/omega-realm/economy/internal/ledger"
	"github.com/omega-realm/economy/internal/metrics"
	"github.com/omega-realm/economy/internal/middleware"
	"github.com/omega-realm/economy/internal/moderation"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP boundary is built on
type Deps struct {
	Engine     *ledger.Engine
	Sessions   *anticheat.Evaluator
	Moderation *moderation.Service
	Catalog    *catalog.Catalog
	Tokens     middleware.TokenValidator
	Store      Pinger
	Metrics    *metrics.Metrics
	Log        logrus.FieldLogger
}

// NewRouter mounts every route on a chi router
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "server")

	transfers := NewTransferHandler(d.Engine, log)
	game := NewGameHandler(d.Sessions, d.Engine, log)
	leaderboard := NewLeaderboardHandler(d.Engine, log)
	shop := NewShopHandler(d.Engine, d.Catalog, log)
	admin := NewAdminHandler(d.Engine, d.Moderation, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Instrument(d.Metrics, log))
	r.Use(middleware.CORS)

	r.Get("/health", health(d.Store))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Tokens))
		r.Use(middleware.RejectBanned(d.Moderation, log))

		r.Route("/transfer", func(r chi.Router) {
			r.Post("/send", transfers.Send)
			r.Post("/request", transfers.Request)
			r.Get("/history", transfers.History)
		})

		r.Route("/game", func(r chi.Router) {
			r.Get("/me", game.Me)
			r.Post("/save", game.Save)
			r.Get("/leaderboard", leaderboard.GetLeaderboard)
			r.Post("/session/start", game.StartSession)
			r.Post("/session/end/{id}", game.EndSession)
		})

		r.Route("/shop", func(r chi.Router) {
			r.Get("/catalog", shop.Catalog)
			r.Post("/buy", shop.Buy)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Put("/user/{id}/balance", admin.SetBalance)
			r.Post("/ban", admin.Ban)
			r.Delete("/unban/{id}", admin.Unban)
			r.Get("/bans/{id}", admin.Bans)
			r.Get("/users", admin.Users)
			r.Get("/stats", admin.Stats)
			r.Get("/transactions", admin.Transactions)
		})
	})

	return r
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				status, code = "unhealthy", http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
