package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
)

type loginData struct {
	RequiresCode bool
	Providers    []service.Provider
}

func (h *AccountHandler) loginPage(r *http.Request, form url.Values, requiresCode bool) *page {
	p := h.page(r, "Log in", form)
	data := loginData{RequiresCode: requiresCode}
	if h.External != nil {
		data.Providers = h.External.ProviderList()
	}
	p.Data = data
	return p
}

// LoginPage renders GET /Account/Login.
func (h *AccountHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	form := url.Values{"ReturnUrl": {returnURL(r)}}
	render(w, r, http.StatusOK, "login.html", h.loginPage(r, form, false))
}

// Login handles POST /Account/Login. Rejected attempts re-render the form
// with 200; success and lockout redirect.
//
//	@Summary		Sign in
//	@Description	Checks the credentials and starts a browser session. Five consecutive failures lock the account for five minutes.
//	@Tags			Account
//	@Accept			application/x-www-form-urlencoded
//	@Produce		html
//	@Param			Email			formData	string	true	"Email address"
//	@Param			Password		formData	string	true	"Password"
//	@Param			TwoFactorCode	formData	string	false	"TOTP code when two factor is enabled"
//	@Param			RememberMe		formData	bool	false	"Persistent session cookie"
//	@Param			ReturnUrl		formData	string	false	"Local path to continue to"
//	@Success		302				{string}	string	"Signed in, or locked out"
//	@Success		200				{string}	string	"Login form with errors"
//	@Router			/Account/Login [post]
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	in := service.LoginInput{
		Email:    r.PostForm.Get("Email"),
		Password: r.PostForm.Get("Password"),
		Code:     r.PostForm.Get("TwoFactorCode"),
	}
	persistent := checked(r.PostForm.Get("RememberMe"))
	form := url.Values{
		"Email":      {in.Email},
		"ReturnUrl":  {returnURL(r)},
		"RememberMe": {strconv.FormatBool(persistent)},
	}

	u, err := h.Accounts.Login(r.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrLockedOut):
		http.Redirect(w, r, "/Account/LockedOut", http.StatusFound)
		return
	case errors.Is(err, service.ErrTwoFactorRequired):
		p := h.loginPage(r, form, true)
		p.Errors.AddForm(msgTwoFactorRequired)
		render(w, r, http.StatusOK, "login.html", p)
		return
	case errors.Is(err, service.ErrInvalidLogin):
		p := h.loginPage(r, form, in.Code != "")
		p.Errors.AddForm(msgInvalidLogin)
		render(w, r, http.StatusOK, "login.html", p)
		return
	default:
		serverError(w, r, "login failed", err)
		return
	}

	amr := []string{jwtx.AMRPassword}
	if u.HasTwoFactor() {
		amr = append(amr, jwtx.AMROTP)
	}
	if err := h.Cookies.SignIn(w, r, u.ID, amr, persistent); err != nil {
		serverError(w, r, "failed to start session", err)
		return
	}
	http.Redirect(w, r, returnURL(r), http.StatusFound)
}

// Logout handles GET|POST /Account/Logout.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.SignOut(w, r)
	http.Redirect(w, r, returnURL(r), http.StatusFound)
}
