package resource

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/redletterlabs/vouchsafe/pkg/keycache"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "test-issuer"

// newTestResource stands up the orders service against a live JWKS endpoint
// backed by the given key manager, the same discovery path production uses.
func newTestResource(t *testing.T, km *jwtx.KeyManager) *httptest.Server {
	t.Helper()

	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, km.PublicJWKS())
	}))
	t.Cleanup(jwksSrv.Close)

	issuerClient := authsdk.NewSDKClient(jwksSrv.URL)
	cache := keycache.New(issuerClient.JWKSFetcher(), time.Minute)

	verifier := jwtx.NewVerifierES256(cache, testIssuer, nil)
	logger := slogx.New(slogx.Config{Service: "orders-test", Format: "text", Level: "error"})

	router := NewRouter(Orders(), verifier, cache, logger)
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func mintToken(t *testing.T, km *jwtx.KeyManager, scopes []string) string {
	t.Helper()

	claims := jwtx.NewAccessClaims(
		"client-1", "session-1", "client-1",
		scopes, "standard",
		time.Minute, testIssuer, nil, time.Now().UTC(),
	)
	token, err := km.ActiveSigner().Sign(claims)
	require.NoError(t, err)
	return token
}

func TestOrdersEndpoints(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    testIssuer,
	})
	require.NoError(t, err)

	srv := newTestResource(t, km)

	t.Run("list requires a token", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/orders")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("list with read scope returns the demo payload", func(t *testing.T) {
		resp := doAuthorized(t, srv, http.MethodGet, "/orders", mintToken(t, km, []string{"orders.read"}))
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var orders []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
		require.Len(t, orders, 1)
		require.Equal(t, "demo", orders[0]["item"])
	})

	t.Run("read scope cannot create", func(t *testing.T) {
		resp := doAuthorized(t, srv, http.MethodPost, "/orders", mintToken(t, km, []string{"orders.read"}))
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("create with write scope", func(t *testing.T) {
		resp := doAuthorized(t, srv, http.MethodPost, "/orders", mintToken(t, km, []string{"orders.write"}))
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "/orders/1", resp.Header.Get("Location"))
	})

	t.Run("scopes from another service are refused", func(t *testing.T) {
		resp := doAuthorized(t, srv, http.MethodGet, "/orders", mintToken(t, km, []string{"payments.read"}))
		defer resp.Body.Close()
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("health is public", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

// Tokens signed after a key rotation carry a kid the cache has never seen;
// the unknown kid must trigger a refetch so the new key is picked up
// without waiting out the TTL.
func TestRotatedKeyPickedUpViaRefetch(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    testIssuer,
	})
	require.NoError(t, err)

	srv := newTestResource(t, km)

	// Prime the cache with the pre-rotation key set
	resp := doAuthorized(t, srv, http.MethodGet, "/orders", mintToken(t, km, []string{"orders.read"}))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	oldToken := mintToken(t, km, []string{"orders.read"})

	_, err = km.Rotate()
	require.NoError(t, err)

	// New key, cache still holds the old set
	resp = doAuthorized(t, srv, http.MethodGet, "/orders", mintToken(t, km, []string{"orders.read"}))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Pre-rotation tokens keep verifying through the grace window
	resp = doAuthorized(t, srv, http.MethodGet, "/orders", oldToken)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func doAuthorized(t *testing.T, srv *httptest.Server, method, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
