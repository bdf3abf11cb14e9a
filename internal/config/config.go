// Package config loads the production service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mes-platform/production-service/pkg/kafka"
	"github.com/mes-platform/production-service/pkg/mongodb"
)

// Catalog sources
const (
	CatalogSourceMongoDB = "mongodb"
	CatalogSourceFile    = "file"
)

// Config holds application configuration
type Config struct {
	ServerAddr     string
	Environment    string
	LogLevel       string
	MongoDB        *mongodb.Config
	Kafka          *kafka.Config
	KafkaEnabled   bool
	TracingEnabled bool
	OTLPEndpoint   string
	CatalogSource  string
	CatalogFile    string
	PurgeSchedule  string
	OutboxInterval time.Duration

	// IdempotencyRetention is how long create responses can be replayed;
	// zero disables Idempotency-Key handling
	IdempotencyRetention   time.Duration
	IdempotencyLockTimeout time.Duration
}

// loadEnvFiles loads .env.local then .env; missing files are ignored
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads the configuration after applying any .env files
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	mongoCfg := mongodb.DefaultConfig()
	mongoCfg.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoCfg.Database = getEnv("MONGODB_DATABASE", "production_db")

	kafkaCfg := kafka.DefaultConfig()
	kafkaCfg.Brokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))

	cfg := &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MongoDB:        mongoCfg,
		Kafka:          kafkaCfg,
		KafkaEnabled:   getBool("KAFKA_ENABLED", true),
		TracingEnabled: getBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		CatalogSource:  strings.ToLower(getEnv("CATALOG_SOURCE", CatalogSourceMongoDB)),
		CatalogFile:    getEnv("CATALOG_FILE", "config/catalog.yaml"),
		PurgeSchedule:  getEnv("PURGE_SCHEDULE", ""),
		OutboxInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second),

		IdempotencyRetention:   getDuration("IDEMPOTENCY_RETENTION", 24*time.Hour),
		IdempotencyLockTimeout: getDuration("IDEMPOTENCY_LOCK_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have a fixed set of options
func (c *Config) Validate() error {
	switch c.CatalogSource {
	case CatalogSourceMongoDB, CatalogSourceFile:
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", CatalogSourceMongoDB, CatalogSourceFile, c.CatalogSource)
	}
	if c.CatalogSource == CatalogSourceFile && c.CatalogFile == "" {
		return fmt.Errorf("CATALOG_FILE is required when CATALOG_SOURCE=%s", CatalogSourceFile)
	}
	if c.OutboxInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive")
	}
	if c.IdempotencyRetention > 0 && c.IdempotencyLockTimeout <= 0 {
		return fmt.Errorf("IDEMPOTENCY_LOCK_TIMEOUT must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, defaultValue.String()))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
