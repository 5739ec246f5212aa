package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Empty infrastructure URLs mean "not configured": the server
// falls back to in-memory stores, the log notification sink, and an
// in-process sweep lock.
type Config struct {
	Addr          string
	JWTSigningKey string

	PostgresURL string
	RedisURL    string

	KafkaBrokers      []string
	NotificationTopic string

	AIValidatorURL     string
	AIValidatorTimeout time.Duration

	SweepInterval    time.Duration
	StalenessWindow  time.Duration
	ShutdownDeadline time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:               envOr("ATTEST_ADDR", ":8080"),
		JWTSigningKey:      envOr("ATTEST_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresURL:        os.Getenv("ATTEST_POSTGRES_URL"),
		RedisURL:           os.Getenv("ATTEST_REDIS_URL"),
		NotificationTopic:  envOr("ATTEST_NOTIFICATION_TOPIC", "attest.notifications"),
		AIValidatorURL:     os.Getenv("ATTEST_AI_VALIDATOR_URL"),
		AIValidatorTimeout: envDuration("ATTEST_AI_VALIDATOR_TIMEOUT", 30*time.Second),
		SweepInterval:      envDuration("ATTEST_SWEEP_INTERVAL", 5*time.Minute),
		StalenessWindow:    envDuration("ATTEST_STALENESS_WINDOW", 24*time.Hour),
		ShutdownDeadline:   envDuration("ATTEST_SHUTDOWN_DEADLINE", 10*time.Second),
	}
	if brokers := os.Getenv("ATTEST_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are read as seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
