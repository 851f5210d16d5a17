package http

import (
	"net/http"

	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery. The
// set always includes the active signing key and any rotated-out keys
// still inside their grace window.
func JWKSHandler(keyManager *jwtx.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(keyManager.PublicJWKS()))
	}
}
