package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/mail"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/internal/identity/session"
	"github.com/aussiebroadwan/propulse/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testPassword     = "Passw0rd!"
	testRedirect     = "https://app.example/callback"
	testClientID     = "web"
	testClientSecret = "web-secret"
	testBootstrap    = "bootstrap-token"
)

type testEnv struct {
	store    *sqlite.Store
	keys     *jwtx.KeyManager
	accounts *service.AccountService
	external *service.ExternalLoginService
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())
	for _, name := range domain.DefaultRoles {
		require.NoError(t, st.Roles().EnsureRole(context.Background(), domain.Role{Name: name}))
	}

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "https://id.propulse.test",
		NumKeys:   1,
	})
	require.NoError(t, err)

	sessions := session.NewMemoryStore()
	r := NewRouter(km, "test", st, sessions, slogx.Discard())
	r.Cookies = &Cookies{Sessions: sessions}
	r.AccountService = &service.AccountService{
		Store:     st,
		Mailer:    &mail.LoggingSender{},
		PublicURL: "https://id.propulse.test",
	}
	r.ExternalService = &service.ExternalLoginService{Store: st}
	r.TwoFactorService = &service.TwoFactorService{Store: st, Issuer: "Propulse"}
	r.ManageService = &service.ManageService{Store: st}
	r.ContentService = &service.ContentService{Store: st}
	r.ClientService = &service.ClientService{Store: st, BootstrapToken: testBootstrap}
	r.AuthorizeService = &service.AuthorizeService{Store: st}
	r.TokenService = &service.TokenService{KeyManager: km, Store: st, Issuer: km.Issuer()}
	r.UserInfoService = &service.UserInfoService{Store: st}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	seedClient(t, st, testClientID, testClientSecret,
		[]string{domain.GrantAuthorizationCode, domain.GrantRefreshToken, domain.GrantClientCredentials},
		service.SupportedScopes...)

	return &testEnv{
		store:    st,
		keys:     km,
		accounts: r.AccountService,
		external: r.ExternalService,
		server:   srv,
	}
}

func seedUser(t *testing.T, st *sqlite.Store, email string, roles ...string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)
	u := domain.User{
		ID:             idx.New().String(),
		Email:          email,
		Username:       email,
		DisplayName:    "Test User",
		EmailConfirmed: true,
		PasswordHash:   hash,
		SecurityStamp:  "stamp",
		LockoutEnabled: true,
		Roles:          roles,
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}

func seedClient(t *testing.T, st *sqlite.Store, id, secret string, grants []string, scopes ...string) {
	t.Helper()

	hash, err := cryptox.HashPassword(secret)
	require.NoError(t, err)
	require.NoError(t, st.Clients().CreateClient(context.Background(), domain.Client{
		ID:           id,
		DisplayName:  "Client " + id,
		SecretHash:   hash,
		RedirectURIs: []string{testRedirect},
		GrantTypes:   grants,
		Scopes:       scopes,
	}))
}

// browser returns a client that keeps cookies and does not follow
// redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) url(path string) string { return e.server.URL + path }

func (e *testEnv) login(t *testing.T, c *http.Client, email, returnURL string) *http.Response {
	t.Helper()

	resp, err := c.PostForm(e.url("/Account/Login"), url.Values{
		"Email":     {email},
		"Password":  {testPassword},
		"ReturnUrl": {returnURL},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// submit posts form the way a browser on the service's own origin does.
func (e *testEnv) submit(t *testing.T, c *http.Client, path string, form url.Values) *http.Response {
	t.Helper()

	return e.submitFrom(t, c, e.server.URL, path, form)
}

func (e *testEnv) submitFrom(t *testing.T, c *http.Client, origin, path string, form url.Values) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, e.url(path), strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", origin)

	resp, err := c.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func authorizeQuery() url.Values {
	return url.Values{
		"response_type": {"code"},
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirect},
		"scope":         {"openid profile email roles api offline_access"},
		"state":         {"xyz"},
	}
}

// userToken runs the authorization code flow for email and returns the
// token response.
func (e *testEnv) userToken(t *testing.T, email string) authsdk.TokenResponse {
	t.Helper()

	c := e.browser(t)
	resp := e.login(t, c, email, "/")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, err := c.Get(e.url("/connect/authorize?" + authorizeQuery().Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	var tok authsdk.TokenResponse
	status := e.postForm(t, "/connect/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirect},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	}, &tok)
	require.Equal(t, http.StatusOK, status)
	return tok
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values, out any) int {
	t.Helper()

	resp, err := http.PostForm(e.url(path), form)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// api sends a JSON request with a bearer token and decodes the response
// into out when given.
func (e *testEnv) api(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, e.url(path), rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
