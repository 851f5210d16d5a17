package http

import (
	"net/http"

	"github.com/redletterlabs/vouchsafe/internal/issuer/service"
	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// KeyRotationHandler rotates the issuer's signing key on demand. Requires
// the admin.keys scope.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

// HandleRotate handles POST /v1/keys/rotate
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	kid, err := h.KeyRotationService.Rotate(ctx)
	if err != nil {
		log.Error("key rotation failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RotateKeysResponse{KID: kid})
}
