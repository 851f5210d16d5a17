package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
	"github.com/redletterlabs/vouchsafe/internal/issuer/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	return st
}

func seedClient(t *testing.T, st *Store, id string) domain.Client {
	t.Helper()

	c := domain.Client{
		ID:              id,
		Name:            "client-" + id,
		SecretHash:      "$argon2id$not-a-real-hash",
		AllowedScopes:   []string{"orders.read"},
		RateLimitPolicy: domain.RatePolicyStandard,
		Active:          true,
	}
	require.NoError(t, st.Clients().CreateClient(context.Background(), c))
	return c
}

func seedToken(t *testing.T, st *Store, clientID, id, hash, sessionID string) domain.RefreshToken {
	t.Helper()

	rt := domain.RefreshToken{
		ID:        id,
		ClientID:  clientID,
		TokenHash: hash,
		SessionID: sessionID,
		Scopes:    []string{"orders.read"},
		ExpiresAt: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(context.Background(), rt))
	return rt
}

func TestClientsRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	t.Run("store starts empty", func(t *testing.T) {
		empty, err := st.Clients().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)
	})

	c := seedClient(t, st, "c1")

	t.Run("round trips a client", func(t *testing.T) {
		got, err := st.Clients().GetClientByID(ctx, c.ID)
		require.NoError(t, err)
		require.Equal(t, c.Name, got.Name)
		require.Equal(t, c.AllowedScopes, got.AllowedScopes)
		require.Equal(t, domain.RatePolicyStandard, got.RateLimitPolicy)
		require.True(t, got.Active)
	})

	t.Run("unknown id maps to ErrNotFound", func(t *testing.T) {
		_, err := st.Clients().GetClientByID(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate id maps to ErrAlreadyExists", func(t *testing.T) {
		err := st.Clients().CreateClient(ctx, c)
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("deactivation sticks", func(t *testing.T) {
		require.NoError(t, st.Clients().SetClientActive(ctx, c.ID, false))
		got, err := st.Clients().GetClientByID(ctx, c.ID)
		require.NoError(t, err)
		require.False(t, got.Active)
	})
}

func TestRevokeIfActiveIsSingleShot(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedClient(t, st, "c1")
	rt := seedToken(t, st, "c1", "t1", "hash-1", "s1")

	now := time.Now().UTC()

	won, err := st.RefreshTokens().RevokeIfActive(ctx, rt.ID, "hash-2", now)
	require.NoError(t, err)
	require.True(t, won)

	// Second attempt finds no active row
	won, err = st.RefreshTokens().RevokeIfActive(ctx, rt.ID, "hash-3", now)
	require.NoError(t, err)
	require.False(t, won)

	// The first writer's successor link is preserved
	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "c1", "hash-1")
	require.NoError(t, err)
	require.Equal(t, "hash-2", got.ReplacedByHash)
	require.NotNil(t, got.RevokedAt)
}

func TestRevokeSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedClient(t, st, "c1")
	seedToken(t, st, "c1", "t1", "hash-1", "s1")
	seedToken(t, st, "c1", "t2", "hash-2", "s1")
	seedToken(t, st, "c1", "t3", "hash-3", "other-session")

	// t1 was rotated into t2 before the cascade
	first := time.Now().Add(-time.Minute).UTC()
	won, err := st.RefreshTokens().RevokeIfActive(ctx, "t1", "hash-2", first)
	require.NoError(t, err)
	require.True(t, won)

	cascade := time.Now().UTC()
	require.NoError(t, st.RefreshTokens().RevokeSession(ctx, "s1", cascade))
	require.NoError(t, st.RefreshTokens().RevokeSession(ctx, "s1", time.Now().Add(time.Minute).UTC()))

	tokens, err := st.RefreshTokens().ListSessionTokens(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	for _, tok := range tokens {
		require.NotNil(t, tok.RevokedAt)
		// Every member carries the time of the first cascade
		require.NotNil(t, tok.SessionRevokedAt)
		require.True(t, tok.SessionRevokedAt.Equal(cascade))
	}

	// Records are never deleted by revocation, and the rotation link of the
	// earlier revocation survives repeated cascades
	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "c1", "hash-1")
	require.NoError(t, err)
	require.Equal(t, "hash-2", got.ReplacedByHash)
	require.True(t, got.RevokedAt.Equal(first))

	// Other sessions stay live and unmarked
	other, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "c1", "hash-3")
	require.NoError(t, err)
	require.Nil(t, other.RevokedAt)
	require.Nil(t, other.SessionRevokedAt)
}

func TestGetRefreshTokenScopedToClient(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedClient(t, st, "c1")
	seedClient(t, st, "c2")
	seedToken(t, st, "c1", "t1", "hash-1", "s1")

	// A different client cannot look up another client's token
	_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "c2", "hash-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteExpiredRefreshTokensHonorsRetention(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedClient(t, st, "c1")

	longDead := domain.RefreshToken{
		ID:        "t-old",
		ClientID:  "c1",
		TokenHash: "hash-old",
		SessionID: "s-old",
		Scopes:    []string{"orders.read"},
		ExpiresAt: time.Now().Add(-48 * time.Hour).UTC(),
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, longDead))

	recentlyExpired := domain.RefreshToken{
		ID:        "t-recent",
		ClientID:  "c1",
		TokenHash: "hash-recent",
		SessionID: "s-recent",
		Scopes:    []string{"orders.read"},
		ExpiresAt: time.Now().Add(-time.Hour).UTC(),
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, recentlyExpired))

	require.NoError(t, st.RefreshTokens().DeleteExpiredRefreshTokens(ctx, 24*time.Hour))

	_, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "c1", "hash-old")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Still inside the retention window
	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "c1", "hash-recent")
	require.NoError(t, err)
}

func TestDeleteExpiredKeepsLiveSessionHistory(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedClient(t, st, "c1")

	// A long-running session: the rotated-away head is way past retention,
	// the tail is still live.
	head := domain.RefreshToken{
		ID:             "t-head",
		ClientID:       "c1",
		TokenHash:      "hash-head",
		SessionID:      "s-live",
		Scopes:         []string{"orders.read"},
		ExpiresAt:      time.Now().Add(-72 * time.Hour).UTC(),
		ReplacedByHash: "hash-tail",
	}
	require.NoError(t, st.RefreshTokens().CreateRefreshToken(ctx, head))
	won, err := st.RefreshTokens().RevokeIfActive(ctx, "t-head", "hash-tail", time.Now().Add(-72*time.Hour).UTC())
	require.NoError(t, err)
	require.True(t, won)

	seedToken(t, st, "c1", "t-tail", "hash-tail", "s-live")

	require.NoError(t, st.RefreshTokens().DeleteExpiredRefreshTokens(ctx, 24*time.Hour))

	// The head must survive: a stolen copy presented later has to match a
	// record for reuse detection to cascade the live tail.
	got, err := st.RefreshTokens().GetRefreshTokenByHash(ctx, "c1", "hash-head")
	require.NoError(t, err)
	require.Equal(t, "hash-tail", got.ReplacedByHash)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedClient(t, st, "c1")

	sentinel := store.ErrAlreadyExists
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID:        "t1",
			ClientID:  "c1",
			TokenHash: "hash-1",
			SessionID: "s1",
			Scopes:    []string{"orders.read"},
			ExpiresAt: time.Now().Add(time.Hour).UTC(),
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	// The insert was rolled back with the failed transaction
	_, err = st.RefreshTokens().GetRefreshTokenByHash(ctx, "c1", "hash-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}
