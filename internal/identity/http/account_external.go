package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

const (
	externalCookieName    = "propulse_external"
	correlationCookieName = "propulse_external_correlation"
	callbackPath          = "/Account/ExternalLoginCallback"
)

type externalData struct {
	ProviderDisplayName string
}

// ExternalLogin handles GET|POST /Account/ExternalLogin?provider=.
//
//	@Summary		Start an external login
//	@Tags			Account
//	@Param			provider	query		string	true	"Provider name, e.g. google"
//	@Param			ReturnUrl	query		string	false	"Local path to continue to"
//	@Success		302			{string}	string	"To the provider, or back to the login page"
//	@Router			/Account/ExternalLogin [get]
func (h *AccountHandler) ExternalLogin(w http.ResponseWriter, r *http.Request) {
	back := returnURL(r)
	if h.External == nil {
		loginRedirect(w, r, back)
		return
	}

	target, state, err := h.External.Start(r.FormValue("provider"), back)
	if err != nil {
		if !errors.Is(err, service.ErrUnknownProvider) {
			slogx.FromContext(r.Context()).Error("failed to start external login", slog.Any("error", err))
		}
		loginRedirect(w, r, back)
		return
	}

	// The callback is only honoured in the browser that started the flow.
	http.SetCookie(w, &http.Cookie{
		Name:     correlationCookieName,
		Value:    cryptox.FingerprintToken(state),
		Path:     callbackPath,
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(service.DefaultExternalStateTTL.Seconds()),
	})
	http.Redirect(w, r, target, http.StatusFound)
}

// correlated reports whether the correlation cookie matches state, and
// clears the cookie.
func (h *AccountHandler) correlated(w http.ResponseWriter, r *http.Request, state string) bool {
	cookie, err := r.Cookie(correlationCookieName)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	http.SetCookie(w, &http.Cookie{Name: correlationCookieName, Path: callbackPath, MaxAge: -1})
	return cryptox.EqualTokens(cookie.Value, cryptox.FingerprintToken(state))
}

// ExternalLoginCallback handles the redirect back from a provider.
func (h *AccountHandler) ExternalLoginCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	q := r.URL.Query()

	if h.External == nil {
		http.Redirect(w, r, "/Account/ExternalLoginError", http.StatusFound)
		return
	}
	if remote := firstNonEmpty(q.Get("remoteError"), q.Get("error")); remote != "" {
		log.Warn("external provider returned an error", slog.String("remote_error", remote))
		http.Redirect(w, r, "/Account/ExternalLoginError", http.StatusFound)
		return
	}

	if !h.correlated(w, r, q.Get("state")) {
		log.Warn("external login callback without a matching correlation cookie")
		http.Redirect(w, r, "/Account/ExternalLoginError", http.StatusFound)
		return
	}

	profile, back, err := h.External.Callback(ctx, q.Get("state"), q.Get("code"))
	if err != nil {
		log.Warn("external login callback failed", slog.Any("error", err))
		http.Redirect(w, r, "/Account/ExternalLoginError", http.StatusFound)
		return
	}
	if !httpx.IsLocalURL(back) {
		back = "/"
	}

	u, found, err := h.External.SignIn(ctx, profile)
	switch {
	case errors.Is(err, service.ErrLockedOut):
		http.Redirect(w, r, "/Account/LockedOut", http.StatusFound)
		return
	case err != nil:
		serverError(w, r, "external sign in failed", err)
		return
	case found:
		if err := h.Cookies.SignIn(w, r, u.ID, []string{jwtx.AMRExternal}, false); err != nil {
			serverError(w, r, "failed to start session", err)
			return
		}
		http.Redirect(w, r, back, http.StatusFound)
		return
	}

	key, err := h.External.Hold(profile, back)
	if err != nil {
		serverError(w, r, "failed to hold external profile", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     externalCookieName,
		Value:    key,
		Path:     "/Account",
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(service.DefaultExternalStateTTL.Seconds()),
	})
	http.Redirect(w, r, "/Account/RegisterExternalLogin", http.StatusFound)
}

func (h *AccountHandler) heldProfile(r *http.Request) (string, service.ExternalProfile, string, bool) {
	if h.External == nil {
		return "", service.ExternalProfile{}, "", false
	}
	cookie, err := r.Cookie(externalCookieName)
	if err != nil || cookie.Value == "" {
		return "", service.ExternalProfile{}, "", false
	}
	profile, back, ok := h.External.Pending(cookie.Value)
	return cookie.Value, profile, back, ok
}

// RegisterExternalLoginPage renders the form that finishes registration for
// an external account with no local user.
func (h *AccountHandler) RegisterExternalLoginPage(w http.ResponseWriter, r *http.Request) {
	_, profile, _, ok := h.heldProfile(r)
	if !ok {
		http.Redirect(w, r, "/Account/ExternalLoginError", http.StatusFound)
		return
	}
	p := h.page(r, "Associate your account", url.Values{
		"Email":       {profile.Email},
		"DisplayName": {profile.DisplayName},
	})
	p.Data = externalData{ProviderDisplayName: profile.ProviderDisplayName}
	render(w, r, http.StatusOK, "register_external_login.html", p)
}

// RegisterExternalLogin creates the local user and links the external
// login. An email other than the one the provider asserted is sent a
// confirmation link, and when confirmed accounts are required the browser
// waits for it instead of being signed in.
func (h *AccountHandler) RegisterExternalLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	key, profile, back, ok := h.heldProfile(r)
	if !ok {
		http.Redirect(w, r, "/Account/ExternalLoginError", http.StatusFound)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("Email"))
	displayName := strings.TrimSpace(r.PostForm.Get("DisplayName"))

	u, err := h.External.Register(r.Context(), profile, email, displayName)
	if err != nil {
		p := h.page(r, "Associate your account", url.Values{"Email": {email}, "DisplayName": {displayName}})
		p.Data = externalData{ProviderDisplayName: profile.ProviderDisplayName}
		if !formErrors(p, err) {
			serverError(w, r, "external registration failed", err)
			return
		}
		render(w, r, http.StatusOK, "register_external_login.html", p)
		return
	}

	h.External.Release(key)
	http.SetCookie(w, &http.Cookie{Name: externalCookieName, Path: "/Account", MaxAge: -1})

	if !u.EmailConfirmed {
		if err := h.Accounts.SendConfirmation(r.Context(), u); err != nil {
			serverError(w, r, "failed to send confirmation", err)
			return
		}
		if h.Accounts.RequireConfirmedAccount {
			http.Redirect(w, r, withQuery("/Account/AwaitEmailConfirmation", url.Values{
				"email":     {u.Email},
				"returnUrl": {back},
			}), http.StatusFound)
			return
		}
	}

	if err := h.Cookies.SignIn(w, r, u.ID, []string{jwtx.AMRExternal}, false); err != nil {
		serverError(w, r, "failed to start session", err)
		return
	}
	http.Redirect(w, r, back, http.StatusFound)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
