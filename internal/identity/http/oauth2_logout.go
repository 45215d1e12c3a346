package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// LogoutHandler serves the end session endpoint.
type LogoutHandler struct {
	Cookies       *Cookies
	ClientService *service.ClientService
}

// ServeHTTP godoc
//
//	@Summary		End session
//	@Description	Clears the browser session, then redirects to post_logout_redirect_uri when it is a local path or registered by a client, else to /.
//	@Tags			OAuth2
//	@Param			post_logout_redirect_uri	query		string	false	"Where to go afterwards"
//	@Param			state						query		string	false	"Echoed back to a client redirect"
//	@Success		302							{string}	string	"Redirect"
//	@Router			/connect/logout [get]
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Cookies.SignOut(w, r)

	target := r.FormValue("post_logout_redirect_uri")
	switch {
	case target == "":
		http.Redirect(w, r, "/", http.StatusFound)
	case httpx.IsLocalURL(target):
		http.Redirect(w, r, target, http.StatusFound)
	case h.registered(r, target):
		redirectWithParams(w, r, target, url.Values{}, r.FormValue("state"))
	default:
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (h *LogoutHandler) registered(r *http.Request, target string) bool {
	clients, err := h.ClientService.List(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to list clients", slog.Any("error", err))
		return false
	}
	for _, c := range clients {
		if c.AllowsPostLogoutRedirect(target) {
			return true
		}
	}
	return false
}
