package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/redletterlabs/vouchsafe/internal/issuer/service"
	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// RevokeHandler serves POST /v1/oauth2/revoke following the RFC 7009 spec.
// Presenting any token of a session tears down the whole session, so a
// compromised credential chain dies in one call. Unknown tokens still get a
// 200 OK to prevent token scanning, but the caller must authenticate.
type RevokeHandler struct {
	TokenService *service.TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

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

	token := r.Form.Get("token")
	clientID := strings.TrimSpace(r.Form.Get("client_id"))
	clientSecret := r.Form.Get("client_secret")

	if token == "" || clientID == "" || clientSecret == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	// 3. Revoke the session the token belongs to. Unknown tokens are a
	// silent success per RFC 7009.
	if err := h.TokenService.Revoke(ctx, clientID, clientSecret, token); err != nil {
		if errors.Is(err, service.ErrInvalidClient) {
			authsdk.ErrInvalidClient.WriteError(w)
			return
		}
		log.Error("revoke failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokeResponse{Revoked: true})
}
