// Package database is the PostgreSQL implementation of store.Store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/config"
	"github.com/omega-realm/economy/internal/store"
)

var _ store.Store = (*DB)(nil)

var log = logrus.WithField("component", "database")

// DB wraps the database connection
type DB struct {
	*sqlx.DB
}

// Config holds database configuration
type Config struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv loads database configuration from environment variables
func LoadConfigFromEnv() *Config {
	return &Config{
		Host:            config.Env("DB_HOST", "localhost"),
		Port:            config.Env("DB_PORT", "5432"),
		User:            config.Env("DB_USER", "omega"),
		Password:        config.Env("DB_PASSWORD", "omega_password"),
		DBName:          config.Env("DB_NAME", "omega_economy"),
		SSLMode:         config.Env("DB_SSLMODE", "disable"),
		MaxOpenConns:    config.EnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    config.EnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: config.EnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: config.EnvDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
	}
}

// DSN renders the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// NewConnection creates a new database connection with the provided configuration
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.DBName,
		"max_open": cfg.MaxOpenConns,
		"max_idle": cfg.MaxIdleConns,
	}).Info("connected")

	return &DB{db}, nil
}

// New wraps an existing handle, e.g. one produced by sqlmock.
func New(db *sql.DB) *DB {
	return &DB{sqlx.NewDb(db, "postgres")}
}

// WithTx runs fn inside a database transaction.
func (db *DB) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return mapError("ping", db.PingContext(ctx))
}
