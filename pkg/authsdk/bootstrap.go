package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Bootstrap creates the initial machine client. The issuer only accepts this
// with the pre-configured bootstrap token and while its client store is
// empty, so it cannot be used to mint extra credentials on a live deployment.
func (c *SDKClient) Bootstrap(ctx context.Context, token string, req BootstrapRequest) (*BootstrapResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/bootstrap", bytes.NewReader(body), map[string]string{
		"Content-Type":      "application/json",
		"X-Bootstrap-Token": token,
	})
	if err != nil {
		return nil, err
	}

	var result BootstrapResponse
	if err := decodeJSON(resp, &result, http.StatusCreated); err != nil {
		return nil, err
	}

	return &result, nil
}
