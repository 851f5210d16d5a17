package authsdk

import (
	"context"
	"net/http"
)

// RotateKeys asks the issuer to activate a fresh signing key. The access
// token must carry the admin.keys scope. Tokens signed with the previous
// key keep verifying until its grace window closes.
func (c *SDKClient) RotateKeys(ctx context.Context, accessToken string) (*RotateKeysResponse, error) {
	resp, err := c.doAuthRequest(ctx, http.MethodPost, "/v1/keys/rotate", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var result RotateKeysResponse
	if err := decodeJSON(resp, &result, http.StatusOK); err != nil {
		return nil, err
	}

	return &result, nil
}
