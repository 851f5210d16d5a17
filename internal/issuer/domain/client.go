package domain

import "time"

// Rate limit policy names a client can be assigned. The gateway reads the
// policy out of the access token claims.
const (
	RatePolicyStandard = "standard"
	RatePolicyPremium  = "premium"
	RatePolicyStrict   = "strict"
)

// Client is a registered machine client that authenticates with id+secret.
type Client struct {
	ID              string
	Name            string
	SecretHash      string
	AllowedScopes   []string
	RateLimitPolicy string
	Active          bool
	Protected       bool // If true, client cannot be deleted (e.g., bootstrap client)
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidRatePolicy reports whether p names a known rate limit policy.
func ValidRatePolicy(p string) bool {
	switch p {
	case RatePolicyStandard, RatePolicyPremium, RatePolicyStrict:
		return true
	}
	return false
}
