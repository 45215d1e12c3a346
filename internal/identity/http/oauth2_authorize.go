package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// authorizeParams are forwarded through the login page unchanged.
var authorizeParams = []string{
	"response_type", "client_id", "redirect_uri", "scope", "state",
	"nonce", "code_challenge", "code_challenge_method",
}

// AuthorizeHandler serves /connect/authorize for browsers carrying a session
// cookie. Consent is implicit.
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
	Cookies          *Cookies
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 authorization endpoint
//	@Description	Starts the authorization code flow. Without a session the browser is sent to /Account/Login and comes back here afterwards.
//	@Description
//	@Description	**Response:**
//	@Description	- Success: 302 redirect to redirect_uri with code and state
//	@Description	- Unknown client or redirect_uri: JSON error, never redirected
//	@Description	- Other errors: 302 redirect to redirect_uri with error and state
//	@Tags			OAuth2
//	@Produce		json
//	@Param			response_type			query		string					true	"Must be 'code'"	default(code)
//	@Param			client_id				query		string					true	"OAuth2 client identifier"
//	@Param			redirect_uri			query		string					true	"Registered callback URI"
//	@Param			scope					query		string					false	"Space-delimited list of scopes"	example("openid profile email roles api offline_access")
//	@Param			state					query		string					false	"Opaque value echoed back"
//	@Param			nonce					query		string					false	"Copied into the id_token"
//	@Param			code_challenge			query		string					false	"PKCE code challenge (required for public clients)"
//	@Param			code_challenge_method	query		string					false	"PKCE method"	default(S256)	Enums(S256, plain)
//	@Success		302						{string}	string					"Redirect to redirect_uri, or to the login page"
//	@Failure		400						{object}	authsdk.ErrorResponse	"Invalid client or redirect_uri"
//	@Router			/connect/authorize [get]
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	req := service.AuthorizeRequest{
		ResponseType:        r.Form.Get("response_type"),
		ClientID:            r.Form.Get("client_id"),
		RedirectURI:         r.Form.Get("redirect_uri"),
		Scope:               httpx.ParseSpaceDelimitedFields(r.Form.Get("scope")),
		State:               r.Form.Get("state"),
		Nonce:               r.Form.Get("nonce"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: r.Form.Get("code_challenge_method"),
	}

	client, err := h.AuthorizeService.ValidateClient(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			authsdk.ErrInvalidClient.WithDescription("unknown client_id").WriteError(w)
		case errors.Is(err, service.ErrInvalidRedirectURI):
			authsdk.ErrInvalidRequest.WithDescription("redirect_uri is not registered for this client").WriteError(w)
		default:
			log.Error("authorize client lookup failed", slog.Any("error", err))
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	sess, ok := h.Cookies.Current(r)
	if !ok {
		h.challenge(w, r)
		return
	}

	resp, err := h.AuthorizeService.Authorize(ctx, client, req, service.SessionContext{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		AMR:       sess.AMR,
	})
	if err != nil {
		if errors.Is(err, service.ErrLoginRequired) {
			h.Cookies.SignOut(w, r)
			h.challenge(w, r)
			return
		}
		code := oauthErrorCode(err)
		if code == authsdk.ErrorCodeServerError {
			log.Error("authorize failed", slog.Any("error", err))
		}
		redirectWithParams(w, r, req.RedirectURI, url.Values{"error": {code}}, req.State)
		return
	}

	redirectWithParams(w, r, resp.RedirectURI, url.Values{"code": {resp.Code}}, resp.State)
}

// challenge sends the browser to log in and come back with the same
// authorization parameters.
func (h *AuthorizeHandler) challenge(w http.ResponseWriter, r *http.Request) {
	params := url.Values{}
	for _, k := range authorizeParams {
		if v := r.Form.Get(k); v != "" {
			params.Set(k, v)
		}
	}
	loginRedirect(w, r, withQuery("/connect/authorize", params))
}

// oauthErrorCode maps a service error to its RFC 6749 error code.
func oauthErrorCode(err error) string {
	for _, known := range []error{
		service.ErrInvalidRequest,
		service.ErrInvalidClient,
		service.ErrInvalidGrant,
		service.ErrInvalidScope,
		service.ErrUnauthorizedClient,
		service.ErrUnsupportedGrantType,
		service.ErrUnsupportedResponseType,
		service.ErrLoginRequired,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return authsdk.ErrorCodeServerError
}

// redirectWithParams appends params, and state when set, to target.
func redirectWithParams(w http.ResponseWriter, r *http.Request, target string, params url.Values, state string) {
	u, err := url.Parse(target)
	if err != nil {
		authsdk.ErrInvalidRequest.WithDescription("malformed redirect_uri").WriteError(w)
		return
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
