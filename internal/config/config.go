// Package config loads runtime configuration from the environment and an
// optional TOML policy file.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds process-level configuration
type Config struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	StoreBackend string // postgres | memory
	AutoMigrate  bool
	CatalogPath  string

	LogLevel  string
	LogFormat string // text | json

	JWTSecret      string
	AccessTokenTTL time.Duration

	NotifyBackend string // none | redis | nats
	NATSURL       string
	RedisEnabled  bool

	BanExpirySweep bool
	BanSweepSpec   string

	Policy Policy
}

type fileConfig struct {
	Policy Policy `toml:"policy"`
}

// Load reads configuration. Values from ECONOMY_CONFIG (a TOML file) seed the
// policy; environment variables override both file and defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            Env("PORT", "8080"),
		ReadTimeout:     EnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    EnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     EnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: EnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		StoreBackend:    Env("STORE_BACKEND", "postgres"),
		AutoMigrate:     EnvBool("DB_AUTO_MIGRATE", true),
		CatalogPath:     Env("CATALOG_PATH", ""),
		LogLevel:        Env("LOG_LEVEL", "info"),
		LogFormat:       Env("LOG_FORMAT", "text"),
		JWTSecret:       Env("JWT_SECRET", ""),
		AccessTokenTTL:  EnvDuration("JWT_ACCESS_TTL", 24*time.Hour),
		NotifyBackend:   Env("NOTIFY_BACKEND", "none"),
		NATSURL:         Env("NATS_URL", "nats://localhost:4222"),
		RedisEnabled:    EnvBool("REDIS_ENABLED", true),
		BanExpirySweep:  EnvBool("BAN_EXPIRY_SWEEP", false),
		BanSweepSpec:    Env("BAN_SWEEP_SPEC", "@every 1m"),
		Policy:          DefaultPolicy(),
	}

	if path := Env("ECONOMY_CONFIG", ""); path != "" {
		fc := fileConfig{Policy: cfg.Policy}
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		cfg.Policy = fc.Policy
	}
	cfg.Policy = policyFromEnv(cfg.Policy)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func policyFromEnv(p Policy) Policy {
	p.FeeRate = EnvFloat("TRANSFER_FEE_RATE", p.FeeRate)
	p.MinTransfer = EnvInt64("TRANSFER_MIN", p.MinTransfer)
	p.MaxTransfer = EnvInt64("TRANSFER_MAX", p.MaxTransfer)
	p.MinRequest = EnvInt64("REQUEST_MIN", p.MinRequest)
	p.MaxRequest = EnvInt64("REQUEST_MAX", p.MaxRequest)
	p.MaxReward = EnvInt64("REWARD_MAX", p.MaxReward)
	p.MinSessionSeconds = EnvInt64("ANTICHEAT_MIN_SESSION_SECONDS", p.MinSessionSeconds)
	p.MaxTokenXPRatio = EnvFloat("ANTICHEAT_MAX_TOKEN_XP_RATIO", p.MaxTokenXPRatio)
	p.MinMovementVariance = EnvFloat("ANTICHEAT_MIN_MOVEMENT_VARIANCE", p.MinMovementVariance)
	p.MaxAFKRatio = EnvFloat("ANTICHEAT_MAX_AFK_RATIO", p.MaxAFKRatio)
	p.MinBanReasonLength = EnvInt("BAN_MIN_REASON_LENGTH", p.MinBanReasonLength)
	p.HistoryLimit = EnvInt("HISTORY_LIMIT", p.HistoryLimit)
	p.AuditLogLimit = EnvInt("AUDIT_LOG_LIMIT", p.AuditLogLimit)
	p.ConflictRetries = EnvInt("STORE_CONFLICT_RETRIES", p.ConflictRetries)
	p.ConflictBackoffMs = EnvInt64("STORE_CONFLICT_BACKOFF_MS", p.ConflictBackoffMs)
	return p
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.NotifyBackend {
	case "none", "redis", "nats":
	default:
		return fmt.Errorf("unknown NOTIFY_BACKEND %q", c.NotifyBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}
