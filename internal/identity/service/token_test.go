package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type tokenFixture struct {
	store     *sqlite.Store
	km        *jwtx.KeyManager
	authorize *AuthorizeService
	tokens    *TokenService
	userinfo  *UserInfoService
	user      domain.User
	client    domain.Client
}

func newTokenFixture(t *testing.T, roles ...string) *tokenFixture {
	t.Helper()

	s := newTestStore(t)
	km := newTestKeyManager(t)
	return &tokenFixture{
		store:     s,
		km:        km,
		authorize: &AuthorizeService{Store: s},
		tokens:    &TokenService{KeyManager: km, Store: s, Issuer: testIssuer},
		userinfo:  &UserInfoService{Store: s},
		user:      seedUser(t, s, "ada@example.com", true, roles...),
		client: seedClient(t, s, "web", "",
			[]string{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
			ScopeOpenID, ScopeProfile, ScopeEmail, ScopeRoles, ScopeAPI, ScopeOfflineAccess),
	}
}

// code runs the authorize step for the fixture user with a PKCE verifier.
func (f *tokenFixture) code(t *testing.T, verifier string, scopes ...string) string {
	t.Helper()

	resp, err := f.authorize.Authorize(context.Background(), f.client, AuthorizeRequest{
		ResponseType:  "code",
		ClientID:      f.client.ID,
		RedirectURI:   testRedirect,
		Scope:         scopes,
		State:         "xyz",
		Nonce:         "n-0S6",
		CodeChallenge: S256Challenge(verifier),
	}, SessionContext{UserID: f.user.ID, SessionID: "sid-1", AMR: []string{jwtx.AMRPassword}})
	require.NoError(t, err)
	require.Equal(t, "xyz", resp.State)
	require.Equal(t, testRedirect, resp.RedirectURI)
	return resp.Code
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newTokenFixture(t, domain.RoleUser)
	verifier := "a-long-enough-code-verifier-for-pkce-1234567890"
	code := f.code(t, verifier, ScopeOpenID, ScopeProfile, ScopeRoles, ScopeAPI)

	res, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, verifier)
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.IDToken)
	require.NotEmpty(t, res.RefreshToken)
	require.Equal(t, "openid profile roles api", res.Scope)
	require.Equal(t, jwtx.DefaultAccessTokenTTL, res.ExpiresIn)

	access, err := f.km.Verifier.Verify(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, access.Subject)
	require.Equal(t, jwtx.StringList{domain.RoleUser}, access.Role)
	require.Equal(t, "ada@example.com", access.Email)
	require.Equal(t, "web", access.ClientID)
	require.Equal(t, "sid-1", access.SID)
	require.Equal(t, []string{jwtx.AMRPassword}, access.AMR)
	require.True(t, access.HasScope(ScopeAPI))

	id, err := f.km.IDTokenVerifier("web").Verify(res.IDToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, id.Subject)
	require.Equal(t, "n-0S6", id.Nonce)
	require.Equal(t, "Test User", id.Name)
	require.Equal(t, "Test User", id.DisplayName)
	require.Equal(t, jwtx.StringList{domain.RoleUser}, id.Role)
	require.Empty(t, id.Email, "email scope was not granted")

	info, err := f.userinfo.GetUserInfo(ctx, access.Subject)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, info.Subject)
	require.Equal(t, "true", info.EmailVerified)
	require.Equal(t, jwtx.StringList{domain.RoleUser}, info.Role)
}

func TestAuthorizationCodeSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newTokenFixture(t)
	verifier := "verifier-verifier-verifier-verifier-verifier"
	code := f.code(t, verifier, ScopeOpenID)

	_, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, verifier)
	require.NoError(t, err)

	_, err = f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, verifier)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestAuthorizationCodeRejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	verifier := "verifier-verifier-verifier-verifier-verifier"

	t.Run("wrong verifier", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t)
		code := f.code(t, verifier, ScopeOpenID)
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, "something-else")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("redirect mismatch", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t)
		code := f.code(t, verifier, ScopeOpenID)
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, "https://evil.example/cb", verifier)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("user deleted after authorize", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t)
		code := f.code(t, verifier, ScopeOpenID)
		require.NoError(t, f.store.Users().DeleteUser(ctx, f.user.ID))
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, verifier)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("unknown client", func(t *testing.T) {
		t.Parallel()
		f := newTokenFixture(t)
		_, err := f.tokens.ExchangeAuthorizationCode(ctx, "nope", "", "code", testRedirect, verifier)
		require.ErrorIs(t, err, ErrInvalidClient)
	})
}

func TestAuthorizeValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newTokenFixture(t)

	_, err := f.authorize.ValidateClient(ctx, AuthorizeRequest{ClientID: "nope", RedirectURI: testRedirect})
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = f.authorize.ValidateClient(ctx, AuthorizeRequest{ClientID: "web", RedirectURI: "https://evil.example"})
	require.ErrorIs(t, err, ErrInvalidRedirectURI)

	client, err := f.authorize.ValidateClient(ctx, AuthorizeRequest{ClientID: "web", RedirectURI: testRedirect})
	require.NoError(t, err)

	base := AuthorizeRequest{ResponseType: "code", ClientID: "web", RedirectURI: testRedirect, CodeChallenge: "c"}
	sess := SessionContext{UserID: f.user.ID}

	req := base
	req.ResponseType = "token"
	_, err = f.authorize.Authorize(ctx, client, req, sess)
	require.ErrorIs(t, err, ErrUnsupportedResponseType)

	req = base
	req.CodeChallenge = ""
	_, err = f.authorize.Authorize(ctx, client, req, sess)
	require.ErrorIs(t, err, ErrInvalidRequest, "public clients need PKCE")

	req = base
	req.Scope = []string{ScopeOpenID, "admin"}
	_, err = f.authorize.Authorize(ctx, client, req, sess)
	require.ErrorIs(t, err, ErrInvalidScope)

	_, err = f.authorize.Authorize(ctx, client, base, SessionContext{UserID: "gone"})
	require.ErrorIs(t, err, ErrLoginRequired)

	resp, err := f.authorize.Authorize(ctx, client, base, sess)
	require.NoError(t, err, "empty scope falls back to the client scopes")
	require.NotEmpty(t, resp.Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newTokenFixture(t, domain.RoleUser)
	verifier := "verifier-verifier-verifier-verifier-verifier"
	code := f.code(t, verifier, ScopeOpenID, ScopeAPI, ScopeOfflineAccess)

	first, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, verifier)
	require.NoError(t, err)

	_, err = f.tokens.ExchangeRefreshToken(ctx, "web", "", first.RefreshToken, []string{"admin"})
	require.ErrorIs(t, err, ErrInvalidScope)

	second, err := f.tokens.ExchangeRefreshToken(ctx, "web", "", first.RefreshToken, []string{ScopeAPI})
	require.NoError(t, err, "a rejected narrowing must not consume the token")
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, ScopeAPI, second.Scope)
	require.Empty(t, second.IDToken)

	claims, err := f.km.Verifier.Verify(second.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.Subject)
	require.Contains(t, claims.AMR, jwtx.AMRRefresh)

	_, err = f.tokens.ExchangeRefreshToken(ctx, "web", "", first.RefreshToken, nil)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRefreshNarrowingReroutesClaims(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newTokenFixture(t, domain.RoleAdministrator)
	verifier := "verifier-verifier-verifier-verifier-verifier"
	code := f.code(t, verifier, ScopeOpenID, ScopeProfile, ScopeRoles, ScopeAPI, ScopeOfflineAccess)

	first, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, verifier)
	require.NoError(t, err)

	res, err := f.tokens.ExchangeRefreshToken(ctx, "web", "", first.RefreshToken, []string{ScopeOpenID, ScopeAPI})
	require.NoError(t, err)
	require.Equal(t, "openid api", res.Scope)
	require.NotEmpty(t, res.IDToken)

	id, err := f.km.IDTokenVerifier("web").Verify(res.IDToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, id.Subject)
	require.Empty(t, id.Role, "roles scope was dropped")
	require.Empty(t, id.Name, "profile scope was dropped")
	require.Empty(t, id.DisplayName)

	access, err := f.km.Verifier.Verify(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, jwtx.StringList{domain.RoleAdministrator}, access.Role)
	require.Equal(t, "Test User", access.Name)
}

func TestClientCredentials(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	km := newTestKeyManager(t)
	tokens := &TokenService{KeyManager: km, Store: s, Issuer: testIssuer}

	seedClient(t, s, "svc", "s3cret", []string{domain.GrantClientCredentials}, ScopeAPI)
	seedClient(t, s, "spa", "", []string{domain.GrantClientCredentials}, ScopeAPI)

	res, err := tokens.ExchangeClientCredentials(ctx, "svc", "s3cret", nil)
	require.NoError(t, err)
	require.Equal(t, ScopeAPI, res.Scope)
	require.Empty(t, res.RefreshToken)
	require.Empty(t, res.IDToken)

	claims, err := km.Verifier.Verify(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "svc", claims.Subject)
	require.Empty(t, claims.Role)
	require.Empty(t, claims.Email)
	require.Equal(t, []string{jwtx.AMRClient}, claims.AMR)

	_, err = tokens.ExchangeClientCredentials(ctx, "svc", "wrong", nil)
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = tokens.ExchangeClientCredentials(ctx, "svc", "s3cret", []string{"admin"})
	require.ErrorIs(t, err, ErrInvalidScope)

	_, err = tokens.ExchangeClientCredentials(ctx, "spa", "", nil)
	require.ErrorIs(t, err, ErrUnauthorizedClient)
}

func TestIntrospect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newTokenFixture(t)
	seedClient(t, f.store, "rs", "rs-secret", []string{domain.GrantClientCredentials}, ScopeAPI)
	verifier := "verifier-verifier-verifier-verifier-verifier"
	code := f.code(t, verifier, ScopeOpenID, ScopeAPI)

	res, err := f.tokens.ExchangeAuthorizationCode(ctx, "web", "", code, testRedirect, verifier)
	require.NoError(t, err)

	_, err = f.tokens.Introspect(ctx, "rs", "bad", res.AccessToken)
	require.ErrorIs(t, err, ErrInvalidClient)

	got, err := f.tokens.Introspect(ctx, "rs", "rs-secret", res.AccessToken)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, f.user.ID, got.Subject)
	require.Equal(t, "web", got.ClientID)
	require.Equal(t, "access_token", got.TokenType)
	require.Greater(t, got.ExpiresAt, time.Now().Unix())

	got, err = f.tokens.Introspect(ctx, "web", "", res.RefreshToken)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, "refresh_token", got.TokenType)

	got, err = f.tokens.Introspect(ctx, "rs", "rs-secret", res.RefreshToken)
	require.NoError(t, err)
	require.False(t, got.Active, "refresh tokens are only visible to their client")

	got, err = f.tokens.Introspect(ctx, "rs", "rs-secret", "garbage")
	require.NoError(t, err)
	require.False(t, got.Active)
}

func TestUserInfoAccountGone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	svc := &UserInfoService{Store: s}

	_, err := svc.GetUserInfo(ctx, "missing")
	require.ErrorIs(t, err, ErrAccountGone)

	u := seedUser(t, s, "nobody@example.com", false)
	info, err := svc.GetUserInfo(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "false", info.EmailVerified)
	require.Empty(t, info.Role)
}
