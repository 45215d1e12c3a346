package http

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeWithoutSessionRedirectsToLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := env.browser(t).Get(env.url("/connect/authorize?" + authorizeQuery().Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/Account/Login", loc.Path)

	back := loc.Query().Get("ReturnUrl")
	require.True(t, strings.HasPrefix(back, "/connect/authorize?"))
	require.Contains(t, back, "client_id="+testClientID)
}

func TestAuthorizeRejectsUnknownClientWithoutRedirect(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name   string
		mutate func(url.Values)
		code   string
	}{
		{"unknown client", func(q url.Values) { q.Set("client_id", "nope") }, authsdk.ErrorCodeInvalidClient},
		{"unregistered redirect", func(q url.Values) { q.Set("redirect_uri", "https://evil.example/cb") }, authsdk.ErrorCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := authorizeQuery()
			tt.mutate(q)

			resp, err := env.browser(t).Get(env.url("/connect/authorize?" + q.Encode()))
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Empty(t, resp.Header.Get("Location"))
			var body authsdk.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tt.code, body.Error)
		})
	}
}

func TestAuthorizationCodeFlowToUserInfo(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "ada@example.com", domain.RoleAdministrator)

	tok := env.userToken(t, u.Email)
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.IDToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)

	claims, err := env.keys.Verifier.Verify(tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, claims.Subject)
	require.True(t, claims.HasRole(domain.RoleAdministrator))

	var info authsdk.UserInfoResponse
	require.Equal(t, http.StatusOK, env.api(t, http.MethodGet, "/connect/userinfo", tok.AccessToken, nil, &info))
	require.Equal(t, u.ID, info.Subject)
	require.Equal(t, u.Email, info.Email)
	require.Equal(t, "true", info.EmailVerified)
	require.Equal(t, []string{domain.RoleAdministrator}, []string(info.Role))
}

func TestUserInfoForDeletedAccount(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "gone@example.com", domain.RoleUser)
	tok := env.userToken(t, u.Email)

	require.NoError(t, env.store.Users().DeleteUser(t.Context(), u.ID))

	var body authsdk.ErrorResponse
	require.Equal(t, http.StatusUnauthorized, env.api(t, http.MethodGet, "/connect/userinfo", tok.AccessToken, nil, &body))
	require.Equal(t, authsdk.ErrorCodeInvalidToken, body.Error)
}

func TestUserInfoRequiresBearer(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	require.Equal(t, http.StatusUnauthorized, env.api(t, http.MethodGet, "/connect/userinfo", "", nil, nil))
}

func TestTokenEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	t.Run("client credentials", func(t *testing.T) {
		var tok authsdk.TokenResponse
		status := env.postForm(t, "/connect/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {testClientID},
			"client_secret": {testClientSecret},
			"scope":         {"api"},
		}, &tok)
		require.Equal(t, http.StatusOK, status)
		require.Empty(t, tok.RefreshToken)

		claims, err := env.keys.Verifier.Verify(tok.AccessToken)
		require.NoError(t, err)
		require.Equal(t, testClientID, claims.Subject)
	})

	t.Run("wrong secret", func(t *testing.T) {
		var body authsdk.ErrorResponse
		status := env.postForm(t, "/connect/token", url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {testClientID},
			"client_secret": {"wrong"},
		}, &body)
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, authsdk.ErrorCodeInvalidClient, body.Error)
	})

	t.Run("unsupported grant", func(t *testing.T) {
		var body authsdk.ErrorResponse
		status := env.postForm(t, "/connect/token", url.Values{"grant_type": {"password"}}, &body)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, authsdk.ErrorCodeUnsupportedGrantType, body.Error)
	})
}

func TestDiscoveryAndJWKS(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var doc authsdk.DiscoveryDocument
	require.Equal(t, http.StatusOK, env.api(t, http.MethodGet, "/.well-known/openid-configuration", "", nil, &doc))
	require.Equal(t, "https://id.propulse.test", doc.Issuer)
	require.Equal(t, "https://id.propulse.test/connect/token", doc.TokenEndpoint)
	require.Contains(t, doc.ScopesSupported, "api")

	var jwks authsdk.JWKSResponse
	require.Equal(t, http.StatusOK, env.api(t, http.MethodGet, "/.well-known/jwks.json", "", nil, &jwks))
	require.NotEmpty(t, jwks.Keys)
}

func TestLogoutRedirects(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "bye@example.com", domain.RoleUser)

	c := env.browser(t)
	require.Equal(t, http.StatusFound, env.login(t, c, u.Email, "/").StatusCode)

	q := url.Values{"post_logout_redirect_uri": {testRedirect}, "state": {"s1"}}
	resp, err := c.Get(env.url("/connect/logout?" + q.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, testRedirect+"?state=s1", resp.Header.Get("Location"))

	// The session is gone, so authorize challenges again.
	resp, err = c.Get(env.url("/connect/authorize?" + authorizeQuery().Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/Account/Login"))

	resp, err = c.Get(env.url("/connect/logout?post_logout_redirect_uri=" + url.QueryEscape("https://evil.example/")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "/", resp.Header.Get("Location"))
}
