package authsdk

import (
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
)

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses.
// Client code should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_refresh_token")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// This is returned from the POST /v1/oauth2/token endpoint for both
// client_credentials and refresh_token grant types.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token used to obtain new access
	// tokens. Each refresh rotates it; the previous value becomes unusable.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`

	// JTI is the unique identifier of the issued access token, handy for
	// correlating audit logs with a specific token.
	JTI string `json:"jti,omitempty"`
}

// RevokeResponse is returned from the POST /v1/oauth2/revoke endpoint.
type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// ============================================================================
// Bootstrap Types
// ============================================================================

// BootstrapRequest creates the initial machine client during service
// initialization. It only works while the client store is empty.
type BootstrapRequest struct {
	// ClientName is the name for the initial client (max 100 chars, alphanumeric with _ or -)
	ClientName string `json:"client_name"`

	// ClientScopes lists the scopes the client may request (e.g. ["orders.read", "admin.keys"])
	ClientScopes []string `json:"client_scopes"`

	// RateLimitPolicy is the gateway throttling tier: "standard", "premium" or "strict".
	// Defaults to "standard" when empty.
	RateLimitPolicy string `json:"rate_limit_policy,omitempty"`
}

// BootstrapResponse contains the generated credentials of the created client.
// The secret is only ever returned here; store it safely.
type BootstrapResponse struct {
	// ClientID is the unique identifier of the created client
	ClientID string `json:"client_id"`

	// ClientSecret is the generated client secret (returned only once)
	ClientSecret string `json:"client_secret"`
}

// ============================================================================
// Key Rotation Types
// ============================================================================

// RotateKeysResponse is returned from the POST /v1/keys/rotate endpoint.
type RotateKeysResponse struct {
	// KID is the key id of the freshly activated signing key
	KID string `json:"kid"`
}

// ============================================================================
// Misc Types
// ============================================================================

// JWKSResponse is the JSON Web Key Set served at /.well-known/jwks.json.
type JWKSResponse = jwtx.JWKS

// HealthResponse is returned from the /livez and /readyz endpoints.
type HealthResponse struct {
	// Status is "ok" when healthy, "degraded" otherwise
	Status string `json:"status"`

	// Uptime is how long the service has been running
	Uptime string `json:"uptime"`

	// Version is the build version of the service
	Version string `json:"version"`

	// Checks reports per-dependency health. Only present on /readyz.
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the status of individual service dependencies.
type HealthChecks struct {
	Database string `json:"database,omitempty"`
	Signer   string `json:"signer,omitempty"`
	KeyCache string `json:"key_cache,omitempty"`
}
