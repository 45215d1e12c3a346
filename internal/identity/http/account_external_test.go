package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/stretchr/testify/require"
)

// mailbox records confirmation links instead of logging them.
type mailbox struct {
	mu      sync.Mutex
	confirm []string
}

func (m *mailbox) SendConfirmationLink(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirm = append(m.confirm, email)
	return nil
}

func (m *mailbox) SendPasswordResetLink(context.Context, string, string) error { return nil }
func (m *mailbox) SendPasswordResetCode(context.Context, string, string) error { return nil }

func (m *mailbox) confirmations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.confirm...)
}

// withProvider points the external login service at a provider that
// accepts any code and reports the given profile.
func withProvider(t *testing.T, env *testEnv, email string) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "provider-at"})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"sub": "g-1", "name": "Mallory", "email": email})
	})
	provider := httptest.NewServer(mux)
	t.Cleanup(provider.Close)

	env.external.Providers = map[string]service.Provider{
		"google": {
			Name:        "google",
			DisplayName: "Google",
			ClientID:    "propulse",
			RedirectURI: env.url("/Account/ExternalLoginCallback"),
			AuthURL:     provider.URL + "/authorize",
			TokenURL:    provider.URL + "/token",
			UserInfoURL: provider.URL + "/userinfo",
			Scopes:      []string{"openid", "email"},
		},
	}
}

// startExternal begins a login in c and returns the callback URL the
// provider would send the browser to.
func startExternal(t *testing.T, env *testEnv, c *http.Client) string {
	t.Helper()

	resp, err := c.Get(env.url("/Account/ExternalLogin?provider=google"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	return env.url("/Account/ExternalLoginCallback?" + url.Values{"state": {state}, "code": {"good"}}.Encode())
}

func TestExternalCallbackBoundToBrowser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	withProvider(t, env, "mallory@gmail.test")

	starter := env.browser(t)
	callback := startExternal(t, env, starter)

	// Another browser following the same callback link is refused.
	victim := env.browser(t)
	resp, err := victim.Get(callback)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/Account/ExternalLoginError", resp.Header.Get("Location"))
	for _, c := range resp.Cookies() {
		require.NotEqual(t, SessionCookieName, c.Name)
		require.NotEqual(t, externalCookieName, c.Name)
	}

	// The browser that started the flow carries on to registration.
	resp, err = starter.Get(callback)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/Account/RegisterExternalLogin", resp.Header.Get("Location"))

	// The correlation cookie is single use.
	resp, err = starter.Get(callback)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "/Account/ExternalLoginError", resp.Header.Get("Location"))
}

func TestRegisterExternalLoginEditedEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	withProvider(t, env, "mallory@gmail.test")
	box := &mailbox{}
	env.accounts.Mailer = box
	env.accounts.RequireConfirmedAccount = true

	c := env.browser(t)
	resp, err := c.Get(startExternal(t, env, c))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "/Account/RegisterExternalLogin", resp.Header.Get("Location"))

	resp = env.submit(t, c, "/Account/RegisterExternalLogin", url.Values{
		"Email":       {"ceo@victim.test"},
		"DisplayName": {"Mallory"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/Account/AwaitEmailConfirmation", loc.Path)
	require.Equal(t, "ceo@victim.test", loc.Query().Get("email"))
	for _, ck := range resp.Cookies() {
		require.NotEqual(t, SessionCookieName, ck.Name, "no session before the address is confirmed")
	}

	u, err := env.store.Users().GetUserByEmail(t.Context(), "ceo@victim.test")
	require.NoError(t, err)
	require.False(t, u.EmailConfirmed)
	require.Equal(t, []string{"ceo@victim.test"}, box.confirmations())
}

func TestRegisterExternalLoginProviderEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	withProvider(t, env, "mallory@gmail.test")
	box := &mailbox{}
	env.accounts.Mailer = box
	env.accounts.RequireConfirmedAccount = true

	c := env.browser(t)
	resp, err := c.Get(startExternal(t, env, c))
	require.NoError(t, err)
	defer resp.Body.Close()

	resp = env.submit(t, c, "/Account/RegisterExternalLogin", url.Values{
		"Email":       {"mallory@gmail.test"},
		"DisplayName": {"Mallory"},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	u, err := env.store.Users().GetUserByEmail(t.Context(), "mallory@gmail.test")
	require.NoError(t, err)
	require.True(t, u.EmailConfirmed)
	require.Equal(t, []string{domain.RoleUser}, u.Roles)
	require.Empty(t, box.confirmations())
}
