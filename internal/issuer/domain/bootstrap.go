package domain

// BootstrapData is the validated input for creating the initial client.
type BootstrapData struct {
	ClientName      string
	ClientScopes    []string
	RateLimitPolicy string
}
