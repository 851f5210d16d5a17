package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
)

type Config struct {
	Issuer   string   // Issuer claim (iss) minted into tokens
	Audience []string // Audience claims (aud) minted into tokens

	Algorithm      string        // JWT signing algorithm (RS256, ES256) (default: ES256)
	RSABits        int           // RSA key size for RS256 (default: 2048)
	KeyGracePeriod time.Duration // How long rotated-out keys stay published (default: 30m)

	AccessTokenTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Refresh token lifetime (default: 30 days)

	BootstrapToken string // Optional: token required to perform bootstrap

	DatabaseFile         string        // Path to SQLite database file (default: ./issuer.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	TokenRetention       time.Duration // How long dead token records are kept (default: 30 days)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               getEnvOrDefault("ISSUER_NAME", "vouchsafe-issuer"),
		Audience:             parseAudience(os.Getenv("ISSUER_AUDIENCE")),
		Algorithm:            getEnvOrDefault("ISSUER_ALGORITHM", jwtx.AlgorithmES256),
		KeyGracePeriod:       getEnvDurationOrDefault("ISSUER_KEY_GRACE_PERIOD", jwtx.DefaultRetireGrace),
		AccessTokenTTL:       getEnvDurationOrDefault("ISSUER_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL:      getEnvDurationOrDefault("ISSUER_REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),
		BootstrapToken:       os.Getenv("BOOTSTRAP_TOKEN"), // Optional: if set, required to perform bootstrap
		DatabaseFile:         getEnvOrDefault("ISSUER_DATABASE_FILE", "issuer.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		TokenRetention:       getEnvDurationOrDefault("TOKEN_RETENTION", 30*24*time.Hour),
	}

	// Parse RSA bits (only relevant for RS256)
	if rsaBitsStr := os.Getenv("ISSUER_RSA_BITS"); rsaBitsStr != "" {
		if bits, err := strconv.Atoi(rsaBitsStr); err == nil {
			cfg.RSABits = bits
		}
		// If parsing fails, RSABits remains 0 (will use default in KeyManager)
	}

	return cfg
}

// parseAudience splits a comma-separated audience list. An empty value
// means no audience validation.
func parseAudience(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
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

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
