package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// BootstrapTokenHeader carries the operator token guarding client
// registration.
const BootstrapTokenHeader = "X-Bootstrap-Token"

// RegisterClient creates an OAuth client application.
func (c *SDKClient) RegisterClient(
	ctx context.Context,
	bootstrapToken string,
	req CreateClientRequest,
) (*ClientInfo, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/clients", bytes.NewReader(body), map[string]string{
		"Content-Type":       "application/json",
		BootstrapTokenHeader: bootstrapToken,
	})
	if err != nil {
		return nil, err
	}

	var info ClientInfo
	if err := decodeJSON(resp, &info, http.StatusCreated); err != nil {
		return nil, err
	}
	return &info, nil
}
