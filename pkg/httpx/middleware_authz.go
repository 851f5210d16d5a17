package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// HasScope reports whether the granted scopes contain the required scope.
// Matching is exact; there is no wildcard or prefix expansion.
func HasScope(granted []string, required string) bool {
	return slices.Contains(granted, required)
}

// RequireScope rejects the request unless the caller holds the scope.
func RequireScope(required string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(ScopesFromContext(r.Context()), required) {
				writeBearerScopeError(w, http.StatusForbidden, required)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyScope the caller must have at least one of the provided scopes.
func RequireAnyScope(required ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := ScopesFromContext(r.Context())
			for _, s := range required {
				if HasScope(have, s) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeBearerScopeError(w, http.StatusForbidden, required...)
		})
	}
}

// RequireScopeByMethod picks the required scope from the request method:
// GET and HEAD need the read scope, everything else needs the write scope.
func RequireScopeByMethod(readScope, writeScope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			required := writeScope
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				required = readScope
			}
			if !HasScope(ScopesFromContext(r.Context()), required) {
				writeBearerScopeError(w, http.StatusForbidden, required)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer insufficient_scope.
func writeBearerScopeError(w http.ResponseWriter, code int, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	w.WriteHeader(code)
	_, _ = w.Write([]byte("insufficient_scope"))
}
