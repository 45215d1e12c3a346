package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
)

type twoFactorData struct {
	Enabled    bool
	Enrollment *service.Enrollment
}

// TwoFactorPage renders GET /Account/TwoFactor for the signed-in user.
func (h *AccountHandler) TwoFactorPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Cookies.Current(r)
	if !ok {
		loginRedirect(w, r, "/Account/TwoFactor")
		return
	}
	u, err := h.Accounts.Store.Users().GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		serverError(w, r, "failed to load user", err)
		return
	}

	p := h.page(r, "Two-factor authentication", nil)
	p.Flash = takeFlash(w, r)
	p.Data = twoFactorData{Enabled: u.HasTwoFactor()}
	render(w, r, http.StatusOK, "two_factor.html", p)
}

// TwoFactorSubmit handles POST /Account/TwoFactor with action enroll, verify or
// disable.
//
//	@Summary		Manage TOTP two factor
//	@Tags			Account
//	@Accept			application/x-www-form-urlencoded
//	@Param			action	formData	string	true	"enroll, verify or disable"	Enums(enroll, verify, disable)
//	@Param			Code	formData	string	false	"Current authenticator code"
//	@Success		200		{string}	string	"Enrolment page"
//	@Success		302		{string}	string	"Back to the two factor page"
//	@Router			/Account/TwoFactor [post]
func (h *AccountHandler) TwoFactorSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Cookies.Current(r)
	if !ok {
		loginRedirect(w, r, "/Account/TwoFactor")
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	code := strings.TrimSpace(r.PostForm.Get("Code"))
	p := h.page(r, "Two-factor authentication", nil)

	switch r.PostForm.Get("action") {
	case "enroll":
		enrollment, err := h.TwoFactor.Enroll(ctx, sess.UserID)
		if errors.Is(err, service.ErrTwoFactorAlreadyEnabled) {
			http.Redirect(w, r, "/Account/TwoFactor", http.StatusFound)
			return
		}
		if err != nil {
			serverError(w, r, "two factor enrolment failed", err)
			return
		}
		p.Data = twoFactorData{Enrollment: &enrollment}
		render(w, r, http.StatusOK, "two_factor.html", p)

	case "verify":
		err := h.TwoFactor.Verify(ctx, sess.UserID, code)
		switch {
		case err == nil:
			setFlash(w, "Two-factor authentication has been enabled.")
			http.Redirect(w, r, "/Account/TwoFactor", http.StatusFound)
		case errors.Is(err, service.ErrInvalidTOTPCode):
			u, err := h.Accounts.Store.Users().GetUserByID(ctx, sess.UserID)
			if err != nil || u.TOTPSecret == nil {
				serverError(w, r, "failed to load user", err)
				return
			}
			p.Errors.Add("Code", "The verification code is invalid.")
			p.Data = twoFactorData{Enrollment: &service.Enrollment{Secret: *u.TOTPSecret, Account: u.Email}}
			render(w, r, http.StatusOK, "two_factor.html", p)
		case errors.Is(err, service.ErrTwoFactorNotEnrolled):
			http.Redirect(w, r, "/Account/TwoFactor", http.StatusFound)
		default:
			serverError(w, r, "two factor verification failed", err)
		}

	case "disable":
		err := h.TwoFactor.Disable(ctx, sess.UserID, code)
		switch {
		case err == nil:
			setFlash(w, "Two-factor authentication has been disabled.")
			http.Redirect(w, r, "/Account/TwoFactor", http.StatusFound)
		case errors.Is(err, service.ErrInvalidTOTPCode):
			p.Errors.Add("Code", "The verification code is invalid.")
			p.Data = twoFactorData{Enabled: true}
			render(w, r, http.StatusOK, "two_factor.html", p)
		case errors.Is(err, service.ErrTwoFactorNotEnrolled):
			http.Redirect(w, r, "/Account/TwoFactor", http.StatusFound)
		default:
			serverError(w, r, "disabling two factor failed", err)
		}

	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}
