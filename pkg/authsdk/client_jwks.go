package authsdk

import (
	"context"
	"net/http"

	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
)

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/.well-known/jwks.json", nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}

	return &jwks, nil
}

// JWKSFetcher adapts GetJWKS into the fetch shape the verifier key cache
// expects.
func (c *SDKClient) JWKSFetcher() func(ctx context.Context) (jwtx.JWKS, error) {
	return func(ctx context.Context) (jwtx.JWKS, error) {
		jwks, err := c.GetJWKS(ctx)
		if err != nil {
			return jwtx.JWKS{}, err
		}
		return *jwks, nil
	}
}
