package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/omega-realm/economy/internal/config"
)

// Client wraps the Redis client
type Client struct {
	*redis.Client
}

// Config holds Redis configuration
type Config struct {
	Host        string
	Port        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	StatusTTL   time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	return &Config{
		Host:        config.Env("REDIS_HOST", "localhost"),
		Port:        config.Env("REDIS_PORT", "6379"),
		Password:    config.Env("REDIS_PASSWORD", ""),
		DB:          config.EnvInt("REDIS_DB", 0),
		PoolSize:    config.EnvInt("REDIS_POOL_SIZE", 10),
		DialTimeout: config.EnvDuration("REDIS_DIAL_TIMEOUT", 10*time.Second),
		StatusTTL:   config.EnvDuration("REDIS_STATUS_TTL", 5*time.Minute),
	}
}

// NewClient creates a new Redis client with the provided configuration
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolTimeout:  30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"component": "redis",
		"addr":      addr,
		"db":        cfg.DB,
		"pool_size": cfg.PoolSize,
	}).Info("connected")

	return &Client{rdb}, nil
}

// Wrap adapts an existing go-redis client.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb}
}
