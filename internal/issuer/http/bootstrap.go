package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/redletterlabs/vouchsafe/internal/issuer/domain"
	"github.com/redletterlabs/vouchsafe/internal/issuer/service"
	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// BootstrapHandler creates the initial machine client. It requires the
// pre-configured bootstrap token and only works while the client store is
// empty, after which the endpoint permanently refuses.
type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := slogx.FromContext(r.Context())
	l.Info("Starting to bootstrap")

	// 1. Check if enabled
	if h.BootstrapService.Token == "" {
		httpx.WriteJSON(w, http.StatusNotFound, authsdk.ErrorResponse{
			Error:            "not_found",
			ErrorDescription: "Bootstrap endpoint is not enabled",
		})
		return
	}

	// 2. Require bootstrap token header
	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		httpx.WriteJSON(w, http.StatusUnauthorized, authsdk.ErrorResponse{
			Error:            "unauthorized",
			ErrorDescription: "Bootstrap token is required in X-Bootstrap-Token header",
		})
		return
	}

	// 3. Parse request body and validate
	var req authsdk.BootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Request body must be valid JSON",
		})
		return
	}
	if strings.TrimSpace(req.ClientName) == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "client_name is required",
		})
		return
	}

	// 4. Perform bootstrap
	clientID, clientSecret, err := h.BootstrapService.Bootstrap(
		r.Context(),
		token,
		domain.BootstrapData{
			ClientName:      strings.TrimSpace(req.ClientName),
			ClientScopes:    req.ClientScopes,
			RateLimitPolicy: strings.TrimSpace(req.RateLimitPolicy),
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBootstrapAlready):
			httpx.WriteJSON(
				w,
				http.StatusConflict,
				authsdk.ErrorResponse{
					Error:            "already_bootstrapped",
					ErrorDescription: "System has already been bootstrapped",
				},
			)
		case errors.Is(err, service.ErrBootstrapUnauthorized):
			httpx.WriteJSON(
				w,
				http.StatusUnauthorized,
				authsdk.ErrorResponse{
					Error:            "unauthorized",
					ErrorDescription: "Invalid bootstrap token",
				},
			)
		case errors.Is(err, service.ErrBootstrapInvalidPolicy):
			httpx.WriteJSON(
				w,
				http.StatusBadRequest,
				authsdk.ErrorResponse{
					Error:            "invalid_request",
					ErrorDescription: "rate_limit_policy must be standard, premium or strict",
				},
			)
		default:
			httpx.WriteJSON(
				w,
				http.StatusInternalServerError,
				authsdk.ErrorResponse{
					Error:            "server_error",
					ErrorDescription: "An internal error occurred",
				},
			)
		}
		return
	}

	// 5. Respond with the created client id and secret (only shown once)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}
