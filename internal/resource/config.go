package resource

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/keycache"
)

type Config struct {
	IssuerURL  string   // Base URL of the credential issuer (for JWKS)
	IssuerName string   // Expected iss claim
	Audience   []string // Expected aud claims (empty disables the check)
	Algorithm  string   // JWT signing algorithm the issuer uses (default: ES256)

	KeyCacheTTL time.Duration // How long fetched signing keys are trusted (default: 5m)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

// LoadConfig reads the environment using the service's own prefix, so the
// orders and payments processes can run side by side from one environment
// file. For example the orders service reads ORDERS_ISSUER_URL and
// ORDERS_PORT.
func LoadConfig(serviceName string, defaultPort int) Config {
	prefix := strings.ToUpper(serviceName) + "_"

	return Config{
		IssuerURL:           getEnvOrDefault(prefix+"ISSUER_URL", "http://localhost:8080"),
		IssuerName:          getEnvOrDefault(prefix+"ISSUER_NAME", "vouchsafe-issuer"),
		Audience:            nil,
		Algorithm:           getEnvOrDefault(prefix+"ALGORITHM", "ES256"),
		KeyCacheTTL:         getEnvDurationOrDefault(prefix+"KEY_CACHE_TTL", keycache.DefaultTTL),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault(prefix+"PORT", defaultPort),
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
