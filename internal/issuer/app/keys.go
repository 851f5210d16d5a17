package app

import (
	"fmt"
	"log/slog"

	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
)

// InitIssuerKeys creates the KeyManager with a freshly generated signing
// key. Keys are ephemeral: they only exist in memory, so every token
// becomes invalid when the issuer restarts and verifiers pick up the new
// key through the JWKS endpoint.
func InitIssuerKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyManager, error) {
	logger.Info("initializing ephemeral key manager",
		"algorithm", cfg.Algorithm,
		"grace_period", cfg.KeyGracePeriod,
	)

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm:   cfg.Algorithm,
		Issuer:      cfg.Issuer,
		Audience:    cfg.Audience,
		RSABits:     cfg.RSABits,
		RetireGrace: cfg.KeyGracePeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}

	logger.Info("generated ephemeral signing key",
		"algorithm", keyManager.Algorithm(),
		"kid", keyManager.ActiveKID(),
		"issuer", cfg.Issuer,
	)
	logger.Warn("all previously issued tokens are now invalid")

	return keyManager, nil
}
