package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
	"github.com/redletterlabs/vouchsafe/internal/issuer/store"
	"github.com/redletterlabs/vouchsafe/pkg/cryptox"
	"github.com/redletterlabs/vouchsafe/pkg/idx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

var (
	ErrBootstrapAlready            = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized       = errors.New("unauthorized bootstrap attempt")
	ErrBootstrapInvalidPolicy      = errors.New("unknown rate limit policy")
	ErrBootstrapFailedToMakeClient = errors.New("failed to create client")
	ErrBootstrapFailedToMakeSecret = errors.New("failed to generate client secret")
)

type BootstrapService struct {
	Store store.Store
	Token string // Pre-configured bootstrap token
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Clients().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates the initial, protected machine client. It only works
// while the client store is empty and with the pre-configured bootstrap
// token, so a live deployment cannot be tricked into minting extra
// credentials. The generated secret is returned exactly once and only its
// hash is stored.
func (s *BootstrapService) Bootstrap(
	ctx context.Context,
	token string,
	req domain.BootstrapData,
) (clientID, clientSecret string, err error) {
	l := slogx.FromContext(ctx)

	// 1. Check if already bootstrapped
	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		return "", "", err
	}
	if bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return "", "", ErrBootstrapAlready
	}

	// 2. Validate provided token
	if token != s.Token {
		l.Warn("unauthorized bootstrap attempt")
		return "", "", ErrBootstrapUnauthorized
	}

	// 3. Default and validate the rate limit policy
	policy := req.RateLimitPolicy
	if policy == "" {
		policy = domain.RatePolicyStandard
	}
	if !domain.ValidRatePolicy(policy) {
		return "", "", ErrBootstrapInvalidPolicy
	}

	// 4. Generate client secret
	clientSecret, err = cryptox.GenerateToken(cryptox.ClientSecretSize)
	if err != nil {
		l.Error("failed to generate client secret", slog.Any("error", err))
		return "", "", ErrBootstrapFailedToMakeSecret
	}

	secretHash, err := cryptox.HashSecret(clientSecret)
	if err != nil {
		l.Error("failed to hash client secret", slog.Any("error", err))
		return "", "", ErrBootstrapFailedToMakeSecret
	}

	// 5. Create the client
	clientID = idx.New().String()
	err = s.Store.Clients().CreateClient(ctx, domain.Client{
		ID:              clientID,
		Name:            req.ClientName,
		SecretHash:      secretHash,
		AllowedScopes:   req.ClientScopes,
		RateLimitPolicy: policy,
		Active:          true,
		Protected:       true, // the bootstrap client cannot be deleted
	})
	if err != nil {
		l.Error("failed to create bootstrap client",
			slog.String("client_id", clientID),
			slog.Any("error", err),
		)
		return "", "", ErrBootstrapFailedToMakeClient
	}

	l.Info("bootstrap complete",
		slog.String("client_id", clientID),
		slog.String("client_name", req.ClientName),
	)

	return clientID, clientSecret, nil
}
