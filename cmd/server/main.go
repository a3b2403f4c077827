package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/app"
	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/moderation"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	if err := app.SetupLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}
	log := logrus.WithField("component", "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("store", cfg.StoreBackend).Info("initializing services")
	a, err := app.New(ctx, cfg, logrus.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("failed to initialize services")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("error closing connections")
		}
	}()
	a.WarmLeaderboard(ctx)

	var sweeper *moderation.ExpirySweeper
	if cfg.BanExpirySweep {
		sweeper, err = moderation.NewExpirySweeper(a.Moderation, cfg.BanSweepSpec)
		if err != nil {
			log.WithError(err).Fatal("invalid ban sweep schedule")
		}
		sweeper.Start()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.WithError(err).Error("server failed")
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	log.Info("server stopped")
}
