package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the token issuer service. It provides the OAuth2
// token and revocation calls plus the unauthenticated discovery endpoints.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new issuer client with a sensible default timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}
