package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
)

// RegisterPage renders GET /Account/Register.
func (h *AccountHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	form := url.Values{"ReturnUrl": {returnURL(r)}}
	render(w, r, http.StatusOK, "register.html", h.page(r, "Register", form))
}

// Register handles POST /Account/Register. A taken email ends on the same
// page as a fresh registration.
//
//	@Summary		Register an account
//	@Tags			Account
//	@Accept			application/x-www-form-urlencoded
//	@Produce		html
//	@Param			Email			formData	string	true	"Email address"
//	@Param			DisplayName		formData	string	true	"Display name"
//	@Param			Password		formData	string	true	"Password"
//	@Param			ConfirmPassword	formData	string	true	"Password again"
//	@Param			ReturnUrl		formData	string	false	"Local path to continue to"
//	@Success		302				{string}	string	"Awaiting confirmation, or signed in"
//	@Success		200				{string}	string	"Registration form with errors"
//	@Router			/Account/Register [post]
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	in := service.RegisterInput{
		Email:           r.PostForm.Get("Email"),
		Password:        r.PostForm.Get("Password"),
		ConfirmPassword: r.PostForm.Get("ConfirmPassword"),
		DisplayName:     r.PostForm.Get("DisplayName"),
	}
	back := returnURL(r)

	res, err := h.Accounts.Register(r.Context(), in)
	if err != nil {
		p := h.page(r, "Register", url.Values{
			"Email":       {in.Email},
			"DisplayName": {in.DisplayName},
			"ReturnUrl":   {back},
		})
		if !formErrors(p, err) {
			serverError(w, r, "registration failed", err)
			return
		}
		render(w, r, http.StatusOK, "register.html", p)
		return
	}

	if res.SignIn && res.User != nil {
		if err := h.Cookies.SignIn(w, r, res.User.ID, []string{jwtx.AMRPassword}, false); err != nil {
			serverError(w, r, "failed to start session", err)
			return
		}
		http.Redirect(w, r, back, http.StatusFound)
		return
	}

	http.Redirect(w, r, withQuery("/Account/AwaitEmailConfirmation", url.Values{
		"email":     {strings.TrimSpace(in.Email)},
		"returnUrl": {back},
	}), http.StatusFound)
}

// ConfirmEmail handles GET /Account/ConfirmEmail?userId=&code=.
//
//	@Summary		Confirm an email address
//	@Tags			Account
//	@Param			userId	query		string	true	"User id"
//	@Param			code	query		string	true	"Confirmation code from the email"
//	@Success		302		{string}	string	"Signed in, or sent to resend the confirmation"
//	@Router			/Account/ConfirmEmail [get]
func (h *AccountHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, code := q.Get("userId"), q.Get("code")
	if userID == "" || code == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	u, err := h.Accounts.ConfirmEmail(r.Context(), userID, code)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrUnknownUser):
		http.Redirect(w, r, "/", http.StatusFound)
		return
	case errors.Is(err, service.ErrInvalidUserToken):
		http.Redirect(w, r, withQuery("/Account/ResendEmailConfirmation", url.Values{"email": {u.Email}}), http.StatusFound)
		return
	default:
		serverError(w, r, "email confirmation failed", err)
		return
	}

	if err := h.Cookies.SignIn(w, r, u.ID, nil, false); err != nil {
		serverError(w, r, "failed to start session", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// ResendEmailConfirmationPage renders GET /Account/ResendEmailConfirmation.
// It is only reachable with the email to resend to.
func (h *AccountHandler) ResendEmailConfirmationPage(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	p := h.page(r, "Resend email confirmation", url.Values{"Email": {email}})
	render(w, r, http.StatusOK, "resend_email_confirmation.html", p)
}

// ResendEmailConfirmation handles POST /Account/ResendEmailConfirmation.
func (h *AccountHandler) ResendEmailConfirmation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("Email"))

	if _, err := h.Accounts.ResendConfirmation(r.Context(), email); err != nil {
		if !errors.Is(err, service.ErrUnknownEmail) {
			serverError(w, r, "resend confirmation failed", err)
			return
		}
		p := h.page(r, "Resend email confirmation", url.Values{"Email": {email}})
		p.Errors.AddForm(msgInvalidEmail)
		render(w, r, http.StatusOK, "resend_email_confirmation.html", p)
		return
	}
	http.Redirect(w, r, withQuery("/Account/AwaitEmailConfirmation", url.Values{"email": {email}}), http.StatusFound)
}
