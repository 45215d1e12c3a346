package http

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "grace@example.com", domain.RoleUser)

	t.Run("success redirects to the local return url", func(t *testing.T) {
		resp := env.login(t, env.browser(t), u.Email, "/Account/TwoFactor")
		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, "/Account/TwoFactor", resp.Header.Get("Location"))

		var found bool
		for _, c := range resp.Cookies() {
			if c.Name == SessionCookieName {
				found = true
				require.True(t, c.HttpOnly)
			}
		}
		require.True(t, found)
	})

	t.Run("foreign return url falls back to root", func(t *testing.T) {
		resp := env.login(t, env.browser(t), u.Email, "https://evil.example/")
		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, "/", resp.Header.Get("Location"))
	})

	t.Run("wrong password re-renders the form", func(t *testing.T) {
		resp, err := env.browser(t).PostForm(env.url("/Account/Login"), url.Values{
			"Email":    {"nobody@example.com"},
			"Password": {"wrong"},
		})
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, readBody(t, resp), msgInvalidLogin)
	})
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "known@example.com", domain.RoleUser)

	post := func(email string) string {
		resp, err := env.browser(t).PostForm(env.url("/Account/ForgotPassword"), url.Values{"Email": {email}})
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		return loc.Path
	}

	require.Equal(t, "/Account/AwaitPasswordReset", post(u.Email))
	require.Equal(t, post(u.Email), post("unknown@example.com"))
}

func TestRegisterSignsIn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	c := env.browser(t)
	resp, err := c.PostForm(env.url("/Account/Register"), url.Values{
		"Email":           {"new@example.com"},
		"Password":        {testPassword},
		"ConfirmPassword": {testPassword},
		"DisplayName":     {"New User"},
		"ReturnUrl":       {"/Account/TwoFactor"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/Account/TwoFactor", resp.Header.Get("Location"))

	// The new session gets through to the two factor page.
	resp, err = c.Get(env.url("/Account/TwoFactor"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := env.browser(t).PostForm(env.url("/Account/Register"), url.Values{
		"Email":           {"not-an-email"},
		"Password":        {testPassword},
		"ConfirmPassword": {"different"},
		"DisplayName":     {"New User"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, "The Email field is not a valid e-mail address.")
	require.Contains(t, body, "Password and confirmation must match")
}

func TestTwoFactorPageRequiresSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := env.browser(t).Get(env.url("/Account/TwoFactor"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/Account/Login?ReturnUrl=%2FAccount%2FTwoFactor", resp.Header.Get("Location"))
}

func TestTwoFactorEnrolment(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "otp@example.com", domain.RoleUser)

	c := env.browser(t)
	require.Equal(t, http.StatusFound, env.login(t, c, u.Email, "/").StatusCode)

	resp := env.submit(t, c, "/Account/TwoFactor", url.Values{"action": {"enroll"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "Add this key to your authenticator app")

	stored, err := env.store.Users().GetUserByID(t.Context(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TOTPSecret)
	require.False(t, stored.HasTwoFactor())

	resp = env.submit(t, c, "/Account/TwoFactor", url.Values{"action": {"verify"}, "Code": {"000000x"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), "The verification code is invalid.")

	code, err := totp.GenerateCode(*stored.TOTPSecret, time.Now())
	require.NoError(t, err)
	resp = env.submit(t, c, "/Account/TwoFactor", url.Values{"action": {"verify"}, "Code": {code}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/Account/TwoFactor", resp.Header.Get("Location"))

	stored, err = env.store.Users().GetUserByID(t.Context(), u.ID)
	require.NoError(t, err)
	require.True(t, stored.HasTwoFactor())
}

func TestCookieFormsRejectCrossOriginPosts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "csrf@example.com", domain.RoleUser)

	c := env.browser(t)
	require.Equal(t, http.StatusFound, env.login(t, c, u.Email, "/").StatusCode)

	for _, path := range []string{"/Account/TwoFactor", "/Account/Logout", "/connect/logout"} {
		resp := env.submitFrom(t, c, "https://evil.example", path, url.Values{"action": {"enroll"}})
		require.Equal(t, http.StatusForbidden, resp.StatusCode, path)
	}

	stored, err := env.store.Users().GetUserByID(t.Context(), u.ID)
	require.NoError(t, err)
	require.Nil(t, stored.TOTPSecret)

	// The session survived the forged logouts.
	resp, err := c.Get(env.url("/Account/TwoFactor"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterTakenEmailWithoutConfirmation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	u := seedUser(t, env.store, "taken@example.com", domain.RoleUser)
	box := &mailbox{}
	env.accounts.Mailer = box

	resp, err := env.browser(t).PostForm(env.url("/Account/Register"), url.Values{
		"Email":           {u.Email},
		"Password":        {testPassword},
		"ConfirmPassword": {testPassword},
		"DisplayName":     {"Impostor"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "/Account/AwaitEmailConfirmation", loc.Path)
	for _, c := range resp.Cookies() {
		require.NotEqual(t, SessionCookieName, c.Name)
	}
	require.Empty(t, box.confirmations(), "the owner of the address is not mailed")
}

func TestStaticPages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, path := range []string{
		"/Account/AwaitEmailConfirmation?email=a%40example.com",
		"/Account/AwaitPasswordReset",
		"/Account/LockedOut",
		"/Account/ExternalLoginError",
		"/Account/Login",
		"/Account/Register",
		"/Account/ForgotPassword",
	} {
		t.Run(path, func(t *testing.T) {
			resp, err := env.browser(t).Get(env.url(path))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		})
	}
}
