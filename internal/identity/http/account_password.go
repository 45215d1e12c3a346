package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// ForgotPasswordPage renders GET /Account/ForgotPassword.
func (h *AccountHandler) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.Cookies.Current(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	q := r.URL.Query()
	form := url.Values{"Email": {q.Get("email")}, "returnUrl": {returnURL(r)}}
	render(w, r, http.StatusOK, "forgot_password.html", h.page(r, "Forgot your password?", form))
}

// ForgotPassword handles POST /Account/ForgotPassword. The redirect is the
// same whether or not the account exists.
//
//	@Summary		Request a password reset
//	@Tags			Account
//	@Accept			application/x-www-form-urlencoded
//	@Param			Email		formData	string	true	"Email address"
//	@Param			returnUrl	formData	string	false	"Local path to continue to after the reset"
//	@Success		302			{string}	string	"Always /Account/AwaitPasswordReset"
//	@Router			/Account/ForgotPassword [post]
func (h *AccountHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("Email"))

	if err := h.Accounts.ForgotPassword(r.Context(), email); err != nil {
		slogx.FromContext(r.Context()).Error("password reset request failed", slog.Any("error", err))
	}
	http.Redirect(w, r, withQuery("/Account/AwaitPasswordReset", url.Values{
		"email":     {email},
		"returnUrl": {returnURL(r)},
	}), http.StatusFound)
}

// ResetPasswordPage renders GET /Account/ResetPassword?code=. A code that
// does not decode goes back to the recovery page.
func (h *AccountHandler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if _, err := service.DecodeToken(code); err != nil {
		http.Redirect(w, r, "/Account/ForgotPassword", http.StatusFound)
		return
	}
	form := url.Values{
		"Code":      {code},
		"Email":     {q.Get("email")},
		"returnUrl": {returnURL(r)},
	}
	render(w, r, http.StatusOK, "reset_password.html", h.page(r, "Reset password", form))
}

// ResetPassword handles POST /Account/ResetPassword.
//
//	@Summary		Reset a password
//	@Description	Sets a new password from an emailed code, rotates the security stamp, clears lockout and signs the user in.
//	@Tags			Account
//	@Accept			application/x-www-form-urlencoded
//	@Param			Email			formData	string	true	"Email address"
//	@Param			Password		formData	string	true	"New password"
//	@Param			ConfirmPassword	formData	string	true	"New password again"
//	@Param			Code			formData	string	true	"Reset code from the email"
//	@Success		302				{string}	string	"Signed in, or sent back to the recovery page"
//	@Success		200				{string}	string	"Reset form with errors"
//	@Router			/Account/ResetPassword [post]
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	in := service.ResetPasswordInput{
		Email:           strings.TrimSpace(r.PostForm.Get("Email")),
		Password:        r.PostForm.Get("Password"),
		ConfirmPassword: r.PostForm.Get("ConfirmPassword"),
		Code:            r.PostForm.Get("Code"),
	}
	back := returnURL(r)

	u, err := h.Accounts.ResetPassword(r.Context(), in)
	if err != nil {
		p := h.page(r, "Reset password", url.Values{
			"Email":     {in.Email},
			"Code":      {in.Code},
			"returnUrl": {back},
		})
		switch {
		case errors.Is(err, service.ErrInvalidUserToken):
			http.Redirect(w, r, withQuery("/Account/ForgotPassword", url.Values{"email": {in.Email}}), http.StatusFound)
		case errors.Is(err, service.ErrUnknownEmail):
			p.Errors.AddForm(msgInvalidEmail)
			render(w, r, http.StatusOK, "reset_password.html", p)
		case formErrors(p, err):
			render(w, r, http.StatusOK, "reset_password.html", p)
		default:
			serverError(w, r, "password reset failed", err)
		}
		return
	}

	// The old credentials are gone, so are the sessions built on them.
	if err := h.Cookies.EndUserSessions(r.Context(), u.ID); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to end sessions after reset", slog.Any("error", err))
	}
	if err := h.Cookies.SignIn(w, r, u.ID, []string{jwtx.AMRPassword}, false); err != nil {
		serverError(w, r, "failed to start session", err)
		return
	}
	http.Redirect(w, r, back, http.StatusFound)
}
