package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "idsync/pkg/platform/strings"
)

// Config captures everything the server needs from the environment so main
// stays lean. Durations are parsed with time.ParseDuration; malformed values
// fall back to defaults rather than failing startup.
type Config struct {
	Addr string

	PostgresURL string
	Redis       RedisConfig

	JWT      JWTConfig
	Webhook  WebhookConfig
	Provider ProviderConfig
	Kafka    KafkaConfig

	// SessionCacheTTL bounds how long a validation result may be served
	// without re-verification. Keep this short: a ban applied after a cache
	// write is invisible until the entry expires.
	SessionCacheTTL time.Duration

	// EventRetention is how long processed-event markers are kept. Re-delivery
	// after expiry is harmless because the upsert is idempotent on content.
	EventRetention time.Duration
}

// RedisConfig holds connection settings for the shared Redis instance backing
// both the dedup ledger and the session cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// JWTConfig configures the session credential verifier.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// WebhookConfig configures inbound event signature verification.
type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

// ProviderConfig points at the identity provider's query API, used only for
// just-in-time provisioning.
type ProviderConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// KafkaConfig configures the audit event publisher. Empty Brokers disables
// publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        envOr("IDSYNC_ADDR", ":8080"),
		PostgresURL: os.Getenv("IDSYNC_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("IDSYNC_REDIS_URL"),
			PoolSize:     envInt("IDSYNC_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("IDSYNC_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("IDSYNC_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("IDSYNC_REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: envDuration("IDSYNC_REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		JWT: JWTConfig{
			SigningKey: envOr("IDSYNC_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     envOr("IDSYNC_JWT_ISSUER", "idsync"),
			Audience:   envOr("IDSYNC_JWT_AUDIENCE", "internal"),
		},
		Webhook: WebhookConfig{
			Secret:    os.Getenv("IDSYNC_WEBHOOK_SECRET"),
			Tolerance: envDuration("IDSYNC_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Provider: ProviderConfig{
			BaseURL: os.Getenv("IDSYNC_PROVIDER_BASE_URL"),
			Token:   os.Getenv("IDSYNC_PROVIDER_TOKEN"),
			Timeout: envDuration("IDSYNC_PROVIDER_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("IDSYNC_KAFKA_BROKERS"),
			Topic:   envOr("IDSYNC_KAFKA_TOPIC", "idsync.audit"),
		},
		SessionCacheTTL: envDuration("IDSYNC_SESSION_CACHE_TTL", time.Minute),
		EventRetention:  envDuration("IDSYNC_EVENT_RETENTION", 24*time.Hour),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return pstrings.DedupeAndTrim(strings.Split(v, ","))
}
