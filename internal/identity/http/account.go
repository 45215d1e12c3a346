package http

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
)

// AccountHandler serves the /Account pages: sign in and out, registration,
// email confirmation, password recovery, external logins and two factor
// enrolment.
type AccountHandler struct {
	Accounts  *service.AccountService
	External  *service.ExternalLoginService
	TwoFactor *service.TwoFactorService
	Cookies   *Cookies
}

func (h *AccountHandler) page(r *http.Request, title string, form url.Values) *page {
	p := newPage(title, form)
	_, p.SignedIn = h.Cookies.Current(r)
	return p
}

// StaticPage renders a page that only echoes its query string.
func (h *AccountHandler) StaticPage(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, r, http.StatusOK, name, h.page(r, title, r.URL.Query()))
	}
}

// loginRedirect sends an anonymous browser to the login page and back.
func loginRedirect(w http.ResponseWriter, r *http.Request, back string) {
	http.Redirect(w, r, withQuery("/Account/Login", url.Values{"ReturnUrl": {back}}), http.StatusFound)
}

// checked reads an HTML checkbox.
func checked(v string) bool {
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
