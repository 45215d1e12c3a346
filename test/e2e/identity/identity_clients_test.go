package identity_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestClientRegistrationRequiresBootstrapToken verifies POST /v1/clients is
// guarded by the bootstrap token.
func TestClientRegistrationRequiresBootstrapToken(t *testing.T) {
	c := setupIdentityContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)

	_, err := client.RegisterClient(t.Context(), "wrong-token", authsdk.CreateClientRequest{
		DisplayName: "Nope",
		GrantTypes:  []string{"client_credentials"},
	})
	requireStatus(t, err, http.StatusUnauthorized)
}

// TestClientCredentialsFlow registers a confidential client, obtains a
// token and introspects it.
func TestClientCredentialsFlow(t *testing.T) {
	c := setupIdentityContainer(t, nil)
	client := authsdk.NewSDKClient(c.BaseURL)

	clientID, secret := registerServiceClient(t, client, "e2e-worker")
	require.Equal(t, "e2e-worker", clientID)

	tokens, err := client.ClientCredentialsGrant(t.Context(), clientID, secret, []string{"api"})
	require.NoError(t, err)
	require.Empty(t, tokens.RefreshToken, "client credentials do not return a refresh token")
	require.Equal(t, "api", tokens.Scope)

	info, err := client.Introspect(t.Context(), clientID, secret, tokens.AccessToken)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, clientID, info.Subject)
	require.Equal(t, clientID, info.ClientID)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := client.ClientCredentialsGrant(t.Context(), clientID, "not-the-secret", []string{"api"})
		requireStatus(t, err, http.StatusUnauthorized)
	})

	t.Run("duplicate client id", func(t *testing.T) {
		_, err := client.RegisterClient(t.Context(), bootstrapToken, authsdk.CreateClientRequest{
			ClientID:     "e2e-worker",
			DisplayName:  "Again",
			Confidential: true,
			GrantTypes:   []string{"client_credentials"},
		})
		requireStatus(t, err, http.StatusConflict)
	})
}
