package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
	"github.com/redletterlabs/vouchsafe/internal/issuer/store"
	"github.com/redletterlabs/vouchsafe/internal/issuer/store/drivers/sqlite"
	"github.com/redletterlabs/vouchsafe/pkg/cryptox"
	"github.com/redletterlabs/vouchsafe/pkg/idx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestResolveScopes(t *testing.T) {
	t.Parallel()

	allowed := []string{"orders.read", "orders.write", "payments.read"}

	t.Run("empty request grants everything allowed", func(t *testing.T) {
		scopes, err := resolveScopes(nil, allowed)
		require.NoError(t, err)
		require.Equal(t, allowed, scopes)
	})

	t.Run("subset request granted as requested", func(t *testing.T) {
		scopes, err := resolveScopes([]string{"orders.read"}, allowed)
		require.NoError(t, err)
		require.Equal(t, []string{"orders.read"}, scopes)
	})

	t.Run("any scope outside allowed rejects the request", func(t *testing.T) {
		_, err := resolveScopes([]string{"orders.read", "admin.keys"}, allowed)
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("duplicates are removed", func(t *testing.T) {
		scopes, err := resolveScopes([]string{"orders.read", "orders.read"}, allowed)
		require.NoError(t, err)
		require.Equal(t, []string{"orders.read"}, scopes)
	})
}

const testClientSecret = "test-client-secret"

// newTestService spins up an in-memory store with one registered client and
// a TokenService around it.
func newTestService(t *testing.T) (*TokenService, domain.Client) {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())

	secretHash, err := cryptox.HashSecret(testClientSecret)
	require.NoError(t, err)

	client := domain.Client{
		ID:              idx.New().String(),
		Name:            "billing-worker",
		SecretHash:      secretHash,
		AllowedScopes:   []string{"orders.read", "payments.write"},
		RateLimitPolicy: domain.RatePolicyPremium,
		Active:          true,
	}
	require.NoError(t, st.Clients().CreateClient(ctx, client))

	keyManager, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    "test-issuer",
		Audience:  []string{"platform"},
	})
	require.NoError(t, err)

	svc := &TokenService{
		KeyManager: keyManager,
		Store:      st,
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}

	return svc, client
}

func TestExchangeClientCredentials(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	t.Run("issues access and refresh tokens", func(t *testing.T) {
		pair, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
		require.NotEmpty(t, pair.RefreshToken)
		require.NotEmpty(t, pair.JTI)
		require.Equal(t, "Bearer", pair.TokenType)
		require.Equal(t, "orders.read payments.write", pair.Scope)
	})

	t.Run("access token carries the expected claims", func(t *testing.T) {
		pair, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, []string{"orders.read"})
		require.NoError(t, err)

		keyset := jwtx.NewKeySet()
		require.NoError(t, keyset.ResetFromJWKS(svc.KeyManager.PublicJWKS()))
		verifier := jwtx.NewVerifierES256(keyset, "test-issuer", []string{"platform"})

		claims, err := verifier.Verify(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, client.ID, claims.Subject)
		require.Equal(t, client.ID, claims.ClientID)
		require.NotEmpty(t, claims.SID)
		require.Equal(t, "orders.read", claims.Scope)
		require.Equal(t, domain.RatePolicyPremium, claims.RateLimitPolicy)
		require.Equal(t, pair.JTI, claims.ID)
	})

	t.Run("each grant starts a distinct session", func(t *testing.T) {
		a, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
		require.NoError(t, err)
		b, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
		require.NoError(t, err)
		require.NotEqual(t, a.RefreshToken, b.RefreshToken)
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		_, err := svc.ExchangeClientCredentials(ctx, client.ID, "wrong-secret", nil)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("rejects unknown client", func(t *testing.T) {
		_, err := svc.ExchangeClientCredentials(ctx, "no-such-client", testClientSecret, nil)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("rejects scope outside allowed set", func(t *testing.T) {
		_, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, []string{"admin.keys"})
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("rejects deactivated client", func(t *testing.T) {
		require.NoError(t, svc.Store.Clients().SetClientActive(ctx, client.ID, false))
		_, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
		require.ErrorIs(t, err, ErrInvalidClient)
		require.NoError(t, svc.Store.Clients().SetClientActive(ctx, client.ID, true))
	})
}

func TestExchangeRefreshTokenRotation(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	pair, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, []string{"orders.read"})
	require.NoError(t, err)

	rotated, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, pair.RefreshToken, nil)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.Equal(t, "orders.read", rotated.Scope)

	t.Run("old record links to its successor", func(t *testing.T) {
		old, err := svc.Store.RefreshTokens().GetRefreshTokenByHash(
			ctx, client.ID, cryptox.FingerprintToken(pair.RefreshToken))
		require.NoError(t, err)
		require.True(t, old.Rotated())
		require.Equal(t, cryptox.FingerprintToken(rotated.RefreshToken), old.ReplacedByHash)
	})

	t.Run("successor keeps the session id", func(t *testing.T) {
		old, err := svc.Store.RefreshTokens().GetRefreshTokenByHash(
			ctx, client.ID, cryptox.FingerprintToken(pair.RefreshToken))
		require.NoError(t, err)
		next, err := svc.Store.RefreshTokens().GetRefreshTokenByHash(
			ctx, client.ID, cryptox.FingerprintToken(rotated.RefreshToken))
		require.NoError(t, err)
		require.Equal(t, old.SessionID, next.SessionID)
	})

	t.Run("refresh can narrow the granted scopes", func(t *testing.T) {
		narrowed, err := svc.ExchangeRefreshToken(
			ctx, client.ID, testClientSecret, rotated.RefreshToken, []string{"orders.read"})
		require.NoError(t, err)
		require.Equal(t, "orders.read", narrowed.Scope)
		rotated = narrowed
	})

	t.Run("scope outside the client policy rejects without consuming", func(t *testing.T) {
		_, err := svc.ExchangeRefreshToken(
			ctx, client.ID, testClientSecret, rotated.RefreshToken, []string{"admin.keys"})
		require.ErrorIs(t, err, ErrInvalidScope)

		// The bad scope request must not have burned the token
		again, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, rotated.RefreshToken, nil)
		require.NoError(t, err)
		rotated = again
	})

	t.Run("unknown token is rejected without side effects", func(t *testing.T) {
		_, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, "never-issued", nil)
		require.ErrorIs(t, err, ErrInvalidRefresh)

		// The live token still works afterwards
		again, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, rotated.RefreshToken, nil)
		require.NoError(t, err)
		rotated = again
	})
}

func TestRefreshTokenReuseRevokesSession(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	// Build a chain: grant -> rotate -> rotate
	first, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
	require.NoError(t, err)
	second, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, first.RefreshToken, nil)
	require.NoError(t, err)
	third, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, second.RefreshToken, nil)
	require.NoError(t, err)

	// Present the consumed first token: theft signal
	_, err = svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, first.RefreshToken, nil)
	require.ErrorIs(t, err, ErrReuseDetected)

	t.Run("cascade kills the live tail of the chain", func(t *testing.T) {
		_, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, third.RefreshToken, nil)
		require.ErrorIs(t, err, ErrReuseDetected)
	})

	t.Run("repeat presentation stays rejected", func(t *testing.T) {
		_, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, first.RefreshToken, nil)
		require.ErrorIs(t, err, ErrReuseDetected)
	})

	t.Run("rotation links survive the cascade", func(t *testing.T) {
		rec, err := svc.Store.RefreshTokens().GetRefreshTokenByHash(
			ctx, client.ID, cryptox.FingerprintToken(first.RefreshToken))
		require.NoError(t, err)
		require.Equal(t, cryptox.FingerprintToken(second.RefreshToken), rec.ReplacedByHash)

		tokens, err := svc.Store.RefreshTokens().ListSessionTokens(ctx, rec.SessionID)
		require.NoError(t, err)
		require.Len(t, tokens, 3)
		for _, tok := range tokens {
			require.True(t, tok.Revoked())
			require.NotNil(t, tok.SessionRevokedAt)
		}
	})

	t.Run("other sessions are untouched", func(t *testing.T) {
		fresh, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
		require.NoError(t, err)
		_, err = svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, fresh.RefreshToken, nil)
		require.NoError(t, err)
	})
}

func TestReuseDetectionSurvivesHousekeeping(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	// Seed a rotation that happened long ago: the consumed head is well past
	// expiry, its successor is still live.
	headOpaque, err := cryptox.GenerateToken(32)
	require.NoError(t, err)
	tailOpaque, err := cryptox.GenerateToken(32)
	require.NoError(t, err)

	sessionID := idx.New().String()
	old := time.Now().UTC().Add(-72 * time.Hour)

	head := domain.RefreshToken{
		ID:        idx.New().String(),
		ClientID:  client.ID,
		TokenHash: cryptox.FingerprintToken(headOpaque),
		SessionID: sessionID,
		Scopes:    []string{"orders.read"},
		ExpiresAt: old,
	}
	require.NoError(t, svc.Store.RefreshTokens().CreateRefreshToken(ctx, head))
	won, err := svc.Store.RefreshTokens().RevokeIfActive(
		ctx, head.ID, cryptox.FingerprintToken(tailOpaque), old)
	require.NoError(t, err)
	require.True(t, won)

	tail := domain.RefreshToken{
		ID:        idx.New().String(),
		ClientID:  client.ID,
		TokenHash: cryptox.FingerprintToken(tailOpaque),
		SessionID: sessionID,
		Scopes:    []string{"orders.read"},
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, svc.Store.RefreshTokens().CreateRefreshToken(ctx, tail))

	// A sweep with a retention far shorter than the head's age must keep the
	// head anyway, because its session still has a live member.
	require.NoError(t, svc.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, 24*time.Hour))

	_, err = svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, headOpaque, nil)
	require.ErrorIs(t, err, ErrReuseDetected)

	t.Run("cascade reached the live successor", func(t *testing.T) {
		_, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, tailOpaque, nil)
		require.ErrorIs(t, err, ErrReuseDetected)
	})
}

func TestExpiredRefreshTokenDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	// Issue with an already-passed TTL so the token is born expired
	svc.RefreshTTL = -time.Minute
	pair, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
	require.NoError(t, err)
	svc.RefreshTTL = time.Hour

	_, err = svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, pair.RefreshToken, nil)
	require.ErrorIs(t, err, ErrRefreshExpired)

	t.Run("record is closed without a successor link", func(t *testing.T) {
		rec, err := svc.Store.RefreshTokens().GetRefreshTokenByHash(
			ctx, client.ID, cryptox.FingerprintToken(pair.RefreshToken))
		require.NoError(t, err)
		require.True(t, rec.Revoked())
		require.Empty(t, rec.ReplacedByHash)
	})

	t.Run("expiry again is not a theft signal", func(t *testing.T) {
		// A second presentation hits the revoked state now, which is
		// indistinguishable from reuse. Only the first presentation of an
		// expired token reports expiry.
		_, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, pair.RefreshToken, nil)
		require.ErrorIs(t, err, ErrReuseDetected)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	pair, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
	require.NoError(t, err)

	t.Run("revokes the whole session", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, client.ID, testClientSecret, pair.RefreshToken))

		_, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, pair.RefreshToken, nil)
		require.ErrorIs(t, err, ErrReuseDetected)
	})

	t.Run("unknown token succeeds", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, client.ID, testClientSecret, "never-issued"))
	})

	t.Run("repeat revocation succeeds", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, client.ID, testClientSecret, pair.RefreshToken))
	})

	t.Run("requires valid client credentials", func(t *testing.T) {
		err := svc.Revoke(ctx, client.ID, "wrong-secret", pair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidClient)
	})
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	pair, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
	require.NoError(t, err)

	rec, err := svc.Store.RefreshTokens().GetRefreshTokenByHash(
		ctx, client.ID, cryptox.FingerprintToken(pair.RefreshToken))
	require.NoError(t, err)

	now := time.Now().UTC()

	// The conditional revoke is the arbiter: only the first caller sees an
	// affected row, every later one loses.
	won, err := svc.Store.RefreshTokens().RevokeIfActive(ctx, rec.ID, "successor-a", now)
	require.NoError(t, err)
	require.True(t, won)

	won, err = svc.Store.RefreshTokens().RevokeIfActive(ctx, rec.ID, "successor-b", now)
	require.NoError(t, err)
	require.False(t, won)

	t.Run("loser presents as reuse", func(t *testing.T) {
		_, err := svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, pair.RefreshToken, nil)
		require.ErrorIs(t, err, ErrReuseDetected)
	})
}

func TestConcurrentRefreshExchangeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	pair, err := svc.ExchangeClientCredentials(ctx, client.ID, testClientSecret, nil)
	require.NoError(t, err)

	// Two callers race the full exchange with the same token
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ExchangeRefreshToken(ctx, client.ID, testClientSecret, pair.RefreshToken, nil)
		}(i)
	}
	wg.Wait()

	var wins, reuses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrReuseDetected):
			reuses++
		default:
			t.Fatalf("unexpected exchange error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, reuses)

	t.Run("losing race revokes the whole session", func(t *testing.T) {
		rec, err := svc.Store.RefreshTokens().GetRefreshTokenByHash(
			ctx, client.ID, cryptox.FingerprintToken(pair.RefreshToken))
		require.NoError(t, err)

		tokens, err := svc.Store.RefreshTokens().ListSessionTokens(ctx, rec.SessionID)
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		for _, tok := range tokens {
			require.True(t, tok.Revoked())
		}
	})
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	svc := &BootstrapService{Store: st, Token: "setup-token"}

	t.Run("rejects a wrong bootstrap token", func(t *testing.T) {
		_, _, err := svc.Bootstrap(ctx, "guessed-token", domain.BootstrapData{ClientName: "intruder"})
		require.ErrorIs(t, err, ErrBootstrapUnauthorized)
	})

	clientID, clientSecret, err := svc.Bootstrap(ctx, "setup-token", domain.BootstrapData{
		ClientName:      "initial-client",
		ClientScopes:    []string{"orders.read", "admin.keys"},
		RateLimitPolicy: domain.RatePolicyStrict,
	})
	require.NoError(t, err)
	require.NotEmpty(t, clientID)
	require.NotEmpty(t, clientSecret)

	t.Run("stores only the secret hash", func(t *testing.T) {
		c, err := st.Clients().GetClientByID(ctx, clientID)
		require.NoError(t, err)
		require.NotEqual(t, clientSecret, c.SecretHash)
		require.NoError(t, cryptox.VerifySecret(clientSecret, c.SecretHash))
		require.True(t, c.Protected)
		require.Equal(t, domain.RatePolicyStrict, c.RateLimitPolicy)
	})

	t.Run("second bootstrap is rejected", func(t *testing.T) {
		_, _, err := svc.Bootstrap(ctx, "setup-token", domain.BootstrapData{ClientName: "another"})
		require.ErrorIs(t, err, ErrBootstrapAlready)
	})
}

func TestStoreRefreshTokenFingerprintUnique(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	rt := domain.RefreshToken{
		ID:        idx.New().String(),
		ClientID:  client.ID,
		TokenHash: cryptox.FingerprintToken("same-token"),
		SessionID: idx.New().String(),
		Scopes:    []string{"orders.read"},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, svc.Store.RefreshTokens().CreateRefreshToken(ctx, rt))

	dup := rt
	dup.ID = idx.New().String()
	err := svc.Store.RefreshTokens().CreateRefreshToken(ctx, dup)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}
