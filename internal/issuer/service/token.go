package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
	"github.com/redletterlabs/vouchsafe/internal/issuer/store"
	"github.com/redletterlabs/vouchsafe/pkg/cryptox"
	"github.com/redletterlabs/vouchsafe/pkg/idx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

var (
	ErrInvalidClient  = errors.New("invalid_client")
	ErrInvalidScope   = errors.New("invalid_scope")
	ErrInvalidRefresh = errors.New("invalid_refresh_token")
	ErrRefreshExpired = errors.New("refresh_token_expired")
	ErrReuseDetected  = errors.New("refresh_token_reuse_detected")
)

// errLostRotationRace signals that a concurrent request consumed the token
// between our read and our conditional revoke. Internal to the service; the
// caller is treated as a reuse presenter.
var errLostRotationRace = errors.New("lost rotation race")

type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ExchangeClientCredentials implements the OAuth2 client_credentials grant.
//
// The client authenticates as itself with id+secret and receives a fresh
// session: a short-lived access token plus the session's first refresh
// token, so workloads can keep running without holding the secret.
func (s *TokenService) ExchangeClientCredentials(
	ctx context.Context,
	clientID, clientSecret string,
	requestedScopes []string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()

	c, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	effective, err := resolveScopes(requestedScopes, c.AllowedScopes)
	if err != nil {
		return nil, err
	}

	// A fresh grant starts a fresh session
	sessionID := idx.New().String()

	accessToken, jti, err := s.signAccess(c, sessionID, effective, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		return nil, err
	}

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		ClientID:  c.ID,
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		SessionID: sessionID,
		Scopes:    effective,
		ExpiresAt: now.Add(s.RefreshTTL),
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
		Scope:        strings.Join(effective, " "),
		JTI:          jti,
	}, nil
}

// ExchangeRefreshToken implements the OAuth2 refresh_token grant with
// single-use rotation.
//
// An active token is atomically consumed and replaced: the old record is
// revoked with a link to its successor in the same transaction that creates
// the successor, so no interleaving can yield two live descendants.
// Presenting an already-consumed token is treated as theft and revokes the
// whole session; presenting an expired one merely fails.
func (s *TokenService) ExchangeRefreshToken(
	ctx context.Context,
	clientID, clientSecret, refreshOpaque string,
	requestedScopes []string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	c, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	// 1. Validate any requested scopes against the client's policy before
	// touching the token, so a bad scope request never consumes it.
	var effective []string
	if len(requestedScopes) > 0 {
		effective, err = resolveScopes(requestedScopes, c.AllowedScopes)
		if err != nil {
			return nil, err
		}
	}

	// 2. Lookup the persisted refresh row by token fingerprint, scoped to
	// the authenticated client.
	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, c.ID, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	// An empty scope request carries the session's scopes forward.
	if effective == nil {
		effective = rt.Scopes
	}

	// 3. A revoked token being presented again is the theft signal. Cascade
	// before reporting; the cascade is idempotent so repeated presentations
	// are harmless.
	if rt.Revoked() {
		if err := s.Store.RefreshTokens().RevokeSession(ctx, rt.SessionID, now); err != nil {
			return nil, err
		}
		l.Warn("refresh token reuse detected, session revoked",
			"client_id", c.ID,
			"session_id", rt.SessionID,
			"token_id", rt.ID,
		)
		return nil, ErrReuseDetected
	}

	// 4. Expiry is not theft: mark this record revoked so history reads
	// cleanly, but leave the rest of the session alone.
	if rt.Expired(now) {
		if _, err := s.Store.RefreshTokens().RevokeIfActive(ctx, rt.ID, "", now); err != nil {
			return nil, err
		}
		return nil, ErrRefreshExpired
	}

	// 5. Rotate: revoke-if-active and create the successor atomically. The
	// conditional revoke arbitrates concurrent presentations; the loser of
	// the race is indistinguishable from a thief and is treated as one.
	newOpaque, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		return nil, err
	}
	newFP := cryptox.FingerprintToken(newOpaque)

	newRT := domain.RefreshToken{
		ID:        idx.New().String(),
		ClientID:  c.ID,
		TokenHash: newFP,
		SessionID: rt.SessionID, // session persists across rotations
		Scopes:    effective,
		ExpiresAt: now.Add(s.RefreshTTL),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		won, err := tx.RefreshTokens().RevokeIfActive(ctx, rt.ID, newFP, now)
		if err != nil {
			return err
		}
		if !won {
			return errLostRotationRace
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, newRT)
	})
	if err != nil {
		if errors.Is(err, errLostRotationRace) {
			if err := s.Store.RefreshTokens().RevokeSession(ctx, rt.SessionID, now); err != nil {
				return nil, err
			}
			l.Warn("concurrent refresh detected, session revoked",
				"client_id", c.ID,
				"session_id", rt.SessionID,
			)
			return nil, ErrReuseDetected
		}
		return nil, err
	}

	accessToken, jti, err := s.signAccess(c, rt.SessionID, effective, now)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
		Scope:        strings.Join(effective, " "),
		JTI:          jti,
	}, nil
}

// Revoke revokes the session a refresh token belongs to. Unknown or
// already-revoked tokens are not an error: the end state the caller asked
// for already holds.
func (s *TokenService) Revoke(ctx context.Context, clientID, clientSecret, refreshOpaque string) error {
	now := time.Now().UTC()

	c, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}

	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, c.ID, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	return s.Store.RefreshTokens().RevokeSession(ctx, rt.SessionID, now)
}

// authenticateClient loads and verifies a client. Unknown id, wrong secret
// and deactivated client all collapse into ErrInvalidClient so the response
// doesn't leak which check failed.
func (s *TokenService) authenticateClient(
	ctx context.Context,
	clientID, clientSecret string,
) (domain.Client, error) {
	l := slogx.FromContext(ctx)

	c, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}

	if !c.Active {
		l.Info("deactivated client attempted authentication", "client_id", clientID)
		return domain.Client{}, ErrInvalidClient
	}

	if clientSecret == "" || cryptox.VerifySecret(clientSecret, c.SecretHash) != nil {
		l.Info("client secret verification failed", "client_id", clientID)
		return domain.Client{}, ErrInvalidClient
	}

	return c, nil
}

func (s *TokenService) signAccess(
	c domain.Client,
	sessionID string,
	scopes []string,
	now time.Time,
) (token, jti string, err error) {
	claims := jwtx.NewAccessClaims(
		c.ID,                    // subject = client_id
		sessionID,               // session ID
		c.ID,                    // client_id claim
		scopes,                  // granted scopes
		c.RateLimitPolicy,       // gateway throttling tier
		s.AccessTTL,             // token lifetime
		s.KeyManager.Issuer(),   // issuer
		s.KeyManager.Audience(), // audience
		now,                     // current time
	)

	signed, err := s.KeyManager.ActiveSigner().Sign(claims)
	if err != nil {
		return "", "", err
	}
	return signed, claims.ID, nil
}

// resolveScopes computes the granted scope set. An empty request grants
// everything the client is allowed; any requested scope outside the allowed
// set rejects the whole request rather than silently narrowing it.
func resolveScopes(requested, allowed []string) ([]string, error) {
	if len(requested) == 0 {
		return dedupe(allowed), nil
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := allowedSet[s]; !ok {
			return nil, ErrInvalidScope
		}
	}
	return dedupe(requested), nil
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
