package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tair/stock-ledger/internal/catalog"
)

// Config holds the full service configuration.
type Config struct {
	ServiceName string
	Environment string
	LogLevel    string
	HTTPPort    string

	DatabasePath string

	KafkaEnabled bool
	KafkaBrokers []string

	FetchCooldown  time.Duration
	FetchWaitBound time.Duration

	// one marketplace API token per platform; empty means the platform
	// is never fetched
	Tokens map[catalog.Platform]string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:    getEnv("OTEL_SERVICE_NAME", "ledger-service"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HTTPPort:       getEnv("HTTP_PORT", "8086"),
		DatabasePath:   getEnv("DB_PATH", "stock-ledger.db"),
		KafkaEnabled:   getEnv("KAFKA_ENABLED", "false") == "true",
		KafkaBrokers:   strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		FetchCooldown:  getDuration("FETCH_COOLDOWN", 5*time.Minute),
		FetchWaitBound: getDuration("FETCH_WAIT_BOUND", 2*time.Minute),
		Tokens: map[catalog.Platform]string{
			catalog.PlatformEbay:   os.Getenv("EBAY_API_TOKEN"),
			catalog.PlatformAmazon: os.Getenv("AMAZON_API_TOKEN"),
			catalog.PlatformEtsy:   os.Getenv("ETSY_API_TOKEN"),
		},
	}
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// EnvCredentialStore gates platforms on the configured API tokens.
type EnvCredentialStore struct {
	tokens map[catalog.Platform]string
}

// NewEnvCredentialStore builds a credential store from the config.
func NewEnvCredentialStore(cfg *Config) *EnvCredentialStore {
	return &EnvCredentialStore{tokens: cfg.Tokens}
}

// HasValidToken implements fetch.CredentialStore.
func (s *EnvCredentialStore) HasValidToken(p catalog.Platform) bool {
	return s.tokens[p] != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
