// Package config builds process configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the resolution engine needs at startup.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// BatchLimit caps how many staged records one process-batch invocation
	// pulls when the caller does not say otherwise.
	BatchLimit int
	// BatchWorkers bounds concurrent per-record processing inside a batch.
	BatchWorkers int
}

// RedisConfig configures the optional Redis-backed suppression store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional audit outbox publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv reads configuration from environment variables, applying defaults
// suitable for local development.
func FromEnv() Config {
	cfg := Config{
		Addr:         envOr("TRAPPER_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		BatchLimit:   envIntOr("TRAPPER_BATCH_LIMIT", 500),
		BatchWorkers: envIntOr("TRAPPER_BATCH_WORKERS", 4),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: envOr("AUDIT_KAFKA_TOPIC", "trapper.audit"),
		},
	}
	if brokers := os.Getenv("AUDIT_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
