package domain

import "time"

// TokenPair represents what the token endpoint returns: the short-lived
// access token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string // typically "Bearer"
	ExpiresIn    time.Duration
	Scope        string // space-delimited
	JTI          string
}

// RefreshToken models the stored refresh token record. Records are
// append-only: rotation and revocation only ever set RevokedAt and
// ReplacedByHash, never delete or rewrite history.
type RefreshToken struct {
	ID        string
	ClientID  string
	TokenHash string // hex SHA-256 fingerprint, raw token is never stored
	SessionID string // shared by every token descended from the same grant
	Scopes    []string
	ExpiresAt time.Time
	RevokedAt *time.Time
	// SessionRevokedAt is set on every member of a session when the session
	// is cascade-revoked, so the audit trail distinguishes a per-token
	// revocation from a session-wide one.
	SessionRevokedAt *time.Time
	// ReplacedByHash links to the successor token's fingerprint when the
	// token was consumed by a rotation. Empty for expiry or explicit
	// revocation.
	ReplacedByHash string
	CreatedAt      time.Time
}

// Rotated reports whether the token was consumed by a successful rotation.
func (t RefreshToken) Rotated() bool {
	return t.RevokedAt != nil && t.ReplacedByHash != ""
}

// Revoked reports whether the token can no longer be presented, for any
// reason other than expiry.
func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token's lifetime has passed at the given instant.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
