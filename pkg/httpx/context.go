package httpx

import (
	"context"

	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyClientID ctxKey = "client_id"
	CtxKeyScopes   ctxKey = "scopes"
	CtxKeyClaims   ctxKey = "claims" // full jwtx.Claims
)

// ScopesFromContext returns the granted scopes injected by AuthnMiddleware.
func ScopesFromContext(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}

// ClientIDFromContext returns the authenticated client id, or "".
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyClientID).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified token claims, if present.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}
