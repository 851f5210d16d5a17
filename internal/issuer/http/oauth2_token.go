package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
	"github.com/redletterlabs/vouchsafe/internal/issuer/service"
	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// TokenHandler serves POST /v1/oauth2/token
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	TokenService *service.TokenService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return
	}

	// 3. Handle the grant type
	grantType := r.Form.Get("grant_type")
	switch grantType {
	case "client_credentials":
		h.handleClientCredentialsGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

func (h *TokenHandler) handleClientCredentialsGrant(
	w http.ResponseWriter,
	r *http.Request,
	form url.Values,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID := strings.TrimSpace(form.Get("client_id"))
	clientSecret := form.Get("client_secret")
	scopeStr := strings.TrimSpace(form.Get("scope"))
	requested := httpx.ParseSpaceDelimitedFields(scopeStr)

	// Both client_id and client_secret are required for client_credentials grant
	if clientID == "" || clientSecret == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeClientCredentials(ctx, clientID, clientSecret, requested)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			authsdk.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidScope):
			authsdk.ErrInvalidScope.WriteError(w)
		default:
			log.Error("client_credentials grant failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair)
}

func writeTokenResponse(w http.ResponseWriter, pair *domain.TokenPair) {
	response := authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
		Scope:        strings.TrimSpace(pair.Scope),
		JTI:          pair.JTI,
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refresh := form.Get("refresh_token")
	clientID := strings.TrimSpace(form.Get("client_id"))
	clientSecret := form.Get("client_secret")
	scopeStr := strings.TrimSpace(form.Get("scope"))
	requested := httpx.ParseSpaceDelimitedFields(scopeStr)

	if clientID == "" || clientSecret == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if refresh == "" {
		authsdk.ErrMissingRefreshToken.WriteError(w)
		return
	}

	pair, err := h.TokenService.ExchangeRefreshToken(ctx, clientID, clientSecret, refresh, requested)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			authsdk.ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidScope):
			authsdk.ErrInvalidScope.WriteError(w)
		case errors.Is(err, service.ErrInvalidRefresh):
			authsdk.ErrInvalidRefreshToken.WriteError(w)
		case errors.Is(err, service.ErrRefreshExpired):
			authsdk.ErrRefreshTokenExpired.WriteError(w)
		case errors.Is(err, service.ErrReuseDetected):
			authsdk.ErrReuseDetected.WriteError(w)
		default:
			log.Error("refresh grant failed", "err", err)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	writeTokenResponse(w, pair)
}
