package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Env returns the value of key, or defaultValue when unset or empty
func Env(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// EnvInt parses key as an integer, falling back to defaultValue
func EnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid integer value %q, using default %d", valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// EnvInt64 parses key as a 64-bit integer, falling back to defaultValue
func EnvInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid integer value %q, using default %d", valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// EnvFloat parses key as a float, falling back to defaultValue
func EnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid float value %q, using default %v", valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// EnvBool parses key as a boolean, falling back to defaultValue
func EnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid boolean value %q, using default %t", valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// EnvDuration parses key as a time.Duration, falling back to defaultValue
func EnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid duration value %q, using default %s", valueStr, defaultValue)
		return defaultValue
	}
	return value
}
