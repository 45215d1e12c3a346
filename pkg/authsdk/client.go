package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the Propulse identity service. It covers the public
// endpoints and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client with a 10 second timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthenticateWithClientCredentials creates a machine-to-machine session.
func (c *SDKClient) AuthenticateWithClientCredentials(
	ctx context.Context,
	clientID, clientSecret string,
	scopes []string,
) (*Session, error) {
	tokenResp, err := c.ClientCredentialsGrant(ctx, clientID, clientSecret, scopes)
	if err != nil {
		return nil, err
	}
	return newSession(c, clientID, "", tokenResp), nil
}

// AuthenticateWithRefreshToken creates a session from an existing refresh
// token.
func (c *SDKClient) AuthenticateWithRefreshToken(
	ctx context.Context,
	clientID, clientSecret, refreshToken string,
) (*Session, error) {
	tokenResp, err := c.RefreshGrant(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, clientID, clientSecret, tokenResp), nil
}

// NewSessionFromTokens wraps tokens obtained elsewhere, such as from an
// authorization code exchange.
func (c *SDKClient) NewSessionFromTokens(clientID, clientSecret string, tokens *TokenResponse) *Session {
	return newSession(c, clientID, clientSecret, tokens)
}
