package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), tag("outer"), tag("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestHasScope(t *testing.T) {
	granted := []string{"orders.read", "payments.write"}

	require.True(t, httpx.HasScope(granted, "orders.read"))
	require.False(t, httpx.HasScope(granted, "orders.write"))
	require.False(t, httpx.HasScope(nil, "orders.read"))

	t.Run("exact match only", func(t *testing.T) {
		require.False(t, httpx.HasScope([]string{"orders"}, "orders.read"))
		require.False(t, httpx.HasScope([]string{"orders.read:all"}, "orders.read"))
	})
}

func TestRequireScope(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("allows matching scope", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(req.Context(), httpx.CtxKeyScopes, []string{"orders.read"})
		rec := httptest.NewRecorder()

		httpx.RequireScope("orders.read")(ok).ServeHTTP(rec, req.WithContext(ctx))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects missing scope", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(req.Context(), httpx.CtxKeyScopes, []string{"orders.read"})
		rec := httptest.NewRecorder()

		httpx.RequireScope("payments.write")(ok).ServeHTTP(rec, req.WithContext(ctx))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")
	})

	t.Run("rejects when no scopes in context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.RequireScope("orders.read")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

type stubVerifier struct {
	claims jwtx.Claims
	err    error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (jwtx.Claims, error) {
	return s.claims, s.err
}

func TestAuthnMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.AuthnMiddleware(stubVerifier{})(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("rejects failed verification", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad-token")
		rec := httptest.NewRecorder()

		httpx.AuthnMiddleware(stubVerifier{err: errors.New("boom")})(ok).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("injects claims into context", func(t *testing.T) {
		claims := jwtx.Claims{
			ClientID:        "client-1",
			Scope:           "orders.read payments.write",
			RateLimitPolicy: "premium",
		}

		var gotClientID string
		var gotScopes []string
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotClientID = httpx.ClientIDFromContext(r.Context())
			gotScopes = httpx.ScopesFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		rec := httptest.NewRecorder()

		httpx.AuthnMiddleware(stubVerifier{claims: claims})(inner).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "client-1", gotClientID)
		require.Equal(t, []string{"orders.read", "payments.write"}, gotScopes)
	})
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.IPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.IPKeyExtractor(req))
	})
}

func TestFormFieldKeyExtractor(t *testing.T) {
	form := url.Values{}
	form.Set("client_id", "client-42")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	extractor := httpx.FormFieldKeyExtractor("client_id")
	require.Equal(t, "client-42", extractor(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	config := httpx.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := httpx.RateLimitByIP(config)(ok)

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("allows within budget then rejects", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
		require.Equal(t, http.StatusOK, do("10.0.0.1:1000"))
		require.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:1000"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do("10.0.0.2:1000"))
	})
}

func TestRateLimitByClientPolicy(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := httpx.RateLimitByClientPolicy()(ok)

	do := func(clientID, policy string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		claims := jwtx.Claims{ClientID: clientID, RateLimitPolicy: policy}
		ctx := context.WithValue(req.Context(), httpx.CtxKeyClaims, claims)
		ctx = context.WithValue(ctx, httpx.CtxKeyClientID, clientID)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req.WithContext(ctx))
		return rec.Code
	}

	t.Run("strict policy exhausts before standard", func(t *testing.T) {
		var strictRejected bool
		for range 11 {
			if do("strict-client", "strict") == http.StatusTooManyRequests {
				strictRejected = true
			}
		}
		require.True(t, strictRejected)

		// Standard client with the same request count is still inside budget
		for range 11 {
			require.Equal(t, http.StatusOK, do("standard-client", "standard"))
		}
	})

	t.Run("unknown policy falls back to standard", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do("odd-client", "platinum"))
	})
}
