package gateway

import (
	"os"
	"strconv"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/keycache"
)

type Config struct {
	IssuerURL  string   // Base URL of the credential issuer (for JWKS)
	IssuerName string   // Expected iss claim
	Audience   []string // Expected aud claims (empty disables the check)
	Algorithm  string   // JWT signing algorithm the issuer uses (default: ES256)

	OrdersURL   string // Upstream base URL for /orders
	PaymentsURL string // Upstream base URL for /payments

	KeyCacheTTL time.Duration // How long fetched signing keys are trusted (default: 5m)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8000)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		IssuerURL:           getEnvOrDefault("GATEWAY_ISSUER_URL", "http://localhost:8080"),
		IssuerName:          getEnvOrDefault("GATEWAY_ISSUER_NAME", "vouchsafe-issuer"),
		Audience:            nil,
		Algorithm:           getEnvOrDefault("GATEWAY_ALGORITHM", "ES256"),
		OrdersURL:           getEnvOrDefault("GATEWAY_ORDERS_URL", "http://localhost:8081"),
		PaymentsURL:         getEnvOrDefault("GATEWAY_PAYMENTS_URL", "http://localhost:8082"),
		KeyCacheTTL:         getEnvDurationOrDefault("GATEWAY_KEY_CACHE_TTL", keycache.DefaultTTL),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8000),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
