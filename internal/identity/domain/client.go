package domain

import (
	"slices"
	"time"
)

// OAuth grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// Client is a registered OAuth client application. Public clients have no
// secret and must use PKCE.
type Client struct {
	ID                     string
	DisplayName            string
	SecretHash             string
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	GrantTypes             []string
	Scopes                 []string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (c *Client) IsConfidential() bool { return c.SecretHash != "" }

func (c *Client) AllowsGrant(grant string) bool {
	return slices.Contains(c.GrantTypes, grant)
}

func (c *Client) AllowsRedirect(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

func (c *Client) AllowsPostLogoutRedirect(uri string) bool {
	return slices.Contains(c.PostLogoutRedirectURIs, uri) || slices.Contains(c.RedirectURIs, uri)
}

func (c *Client) AllowsScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}
