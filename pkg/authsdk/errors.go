package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/redletterlabs/vouchsafe/pkg/httpx"
)

// ============================================================================
// OAuth2 Error Codes (RFC 6749 plus rotation-specific extensions)
// ============================================================================

const (
	// OAuth2 error codes per RFC 6749
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeServerError          = "server_error"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeInsufficientScope    = "insufficient_scope"

	// Refresh-rotation error codes. More specific than RFC 6749's
	// invalid_grant so clients can tell theft detection apart from
	// ordinary expiry.
	ErrorCodeMissingRefreshToken = "missing_refresh_token"
	ErrorCodeInvalidRefreshToken = "invalid_refresh_token"
	ErrorCodeRefreshTokenExpired = "refresh_token_expired"
	ErrorCodeReuseDetected       = "refresh_token_reuse_detected"
	ErrorCodeTemporarilyUnavail  = "temporarily_unavailable"
)

// ============================================================================
// OAuth2Error - Standard OAuth2 error type
// ============================================================================

// OAuth2Error represents a standard OAuth2 error response per RFC 6749.
// It implements the error interface and can be used both by the server
// (to write HTTP responses) and by the SDK client (to represent errors).
type OAuth2Error struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the OAuth2 error code (e.g., "invalid_request", "invalid_refresh_token")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this OAuth2Error to an HTTP response writer.
// This is used by HTTP handlers to return OAuth2-compliant error responses.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// ============================================================================
// Predefined OAuth2 Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned when the request is missing a required parameter,
	// includes an invalid parameter value, or is otherwise malformed.
	ErrInvalidRequest = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidClient is returned when client authentication failed: unknown
	// client, wrong secret, or a deactivated client. Deliberately the same
	// response for all three so callers can't tell which part was wrong.
	ErrInvalidClient = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidClient,
		Description: "invalid client",
	}

	// ErrUnsupportedGrantType is returned when the grant type is not
	// client_credentials or refresh_token.
	ErrUnsupportedGrantType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeUnsupportedGrantType,
		Description: "grant type not supported",
	}

	// ErrInvalidScope is returned when the requested scope exceeds what the
	// client is allowed.
	ErrInvalidScope = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidScope,
		Description: "requested scope is invalid",
	}

	// ErrMissingRefreshToken is returned when the refresh_token grant omits
	// the refresh_token parameter.
	ErrMissingRefreshToken = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMissingRefreshToken,
		Description: "refresh_token parameter is required",
	}

	// ErrInvalidRefreshToken is returned when the presented refresh token is
	// unknown or revoked.
	ErrInvalidRefreshToken = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidRefreshToken,
		Description: "refresh token is invalid or revoked",
	}

	// ErrRefreshTokenExpired is returned when the presented refresh token has
	// passed its expiry. Unlike reuse this does not revoke the session.
	ErrRefreshTokenExpired = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeRefreshTokenExpired,
		Description: "refresh token has expired",
	}

	// ErrReuseDetected is returned when an already-rotated refresh token is
	// presented again. The whole session has been revoked.
	ErrReuseDetected = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeReuseDetected,
		Description: "refresh token reuse detected, session revoked",
	}

	// ErrServerError is returned when the issuer encountered an unexpected
	// condition that prevented it from fulfilling the request.
	ErrServerError = &OAuth2Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrTemporarilyUnavailable is returned when a dependency (such as the
	// token store) is unreachable and the request should be retried.
	ErrTemporarilyUnavailable = &OAuth2Error{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeTemporarilyUnavail,
		Description: "service temporarily unavailable, retry later",
	}

	// ErrMethodNotAllowed is returned when the HTTP method is not allowed.
	ErrMethodNotAllowed = &OAuth2Error{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}

	// ErrInvalidContentType is returned when the Content-Type header is not
	// application/x-www-form-urlencoded as required by OAuth2 spec.
	ErrInvalidContentType = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "content-type must be application/x-www-form-urlencoded",
	}

	// ErrInvalidFormBody is returned when the form body cannot be parsed.
	ErrInvalidFormBody = &OAuth2Error{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "invalid form body",
	}

	// ErrInvalidToken is returned when the access token is missing, invalid, expired or revoked.
	ErrInvalidToken = &OAuth2Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	// ErrInsufficientScope is returned when the access token lacks required scopes.
	ErrInsufficientScope = &OAuth2Error{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientScope,
		Description: "the access token does not have the required scopes",
	}
)

// NewOAuth2Error creates a new OAuth2Error with the given status code, error code, and description.
// This is useful when you need to create custom error messages while maintaining OAuth2 compliance.
func NewOAuth2Error(statusCode int, code, description string) *OAuth2Error {
	return &OAuth2Error{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// ============================================================================
// Error Parsing Helpers
// ============================================================================

// parseErrorResponse attempts to parse an HTTP error response into a typed error.
// Returns nil if the response indicates success (2xx status code).
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Try parsing as standard OAuth2 error
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &OAuth2Error{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	// Fallback: create generic error from status code
	return &OAuth2Error{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
