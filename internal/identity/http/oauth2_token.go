package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// TokenHandler serves POST /connect/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues tokens for the authorization_code, refresh_token and client_credentials grants.
//	@Description	Clients authenticate with client_secret_post or client_secret_basic.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(authorization_code, refresh_token, client_credentials)
//	@Param			code			formData	string					false	"Authorization code (required for authorization_code grant)"
//	@Param			redirect_uri	formData	string					false	"Redirect URI (required for authorization_code grant)"
//	@Param			code_verifier	formData	string					false	"PKCE code_verifier (required when PKCE was used)"
//	@Param			refresh_token	formData	string					false	"Refresh token (required for refresh_token grant)"
//	@Param			client_id		formData	string					false	"Client identifier, unless sent with Basic auth"
//	@Param			client_secret	formData	string					false	"Client secret (confidential clients)"
//	@Param			scope			formData	string					false	"Space-delimited list of scopes"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, id_token, refresh_token, token_type, expires_in, scope"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/connect/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		authsdk.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("malformed form body").WriteError(w)
		return
	}

	// 3. Handle the grant type
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, r.PostForm)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.PostForm)
	case "client_credentials":
		h.handleClientCredentialsGrant(w, r, r.PostForm)
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
	}
}

// clientCredentials reads client_secret_basic first, then the form.
func clientCredentials(r *http.Request, form url.Values) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
		return id, secret
	}
	return strings.TrimSpace(form.Get("client_id")), form.Get("client_secret")
}

func (h *TokenHandler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	clientID, clientSecret := clientCredentials(r, form)
	code := strings.TrimSpace(form.Get("code"))
	redirectURI := strings.TrimSpace(form.Get("redirect_uri"))
	codeVerifier := strings.TrimSpace(form.Get("code_verifier"))

	if code == "" || redirectURI == "" || clientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.TokenService.ExchangeAuthorizationCode(r.Context(), clientID, clientSecret, code, redirectURI, codeVerifier)
	writeTokenResult(w, r, "authorization_code", result, err)
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	clientID, clientSecret := clientCredentials(r, form)
	refresh := form.Get("refresh_token")
	requested := httpx.ParseSpaceDelimitedFields(form.Get("scope"))

	if refresh == "" || clientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.TokenService.ExchangeRefreshToken(r.Context(), clientID, clientSecret, refresh, requested)
	writeTokenResult(w, r, "refresh_token", result, err)
}

func (h *TokenHandler) handleClientCredentialsGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	clientID, clientSecret := clientCredentials(r, form)
	requested := httpx.ParseSpaceDelimitedFields(form.Get("scope"))

	// Both client_id and client_secret are required for client_credentials grant
	if clientID == "" || clientSecret == "" {
		authsdk.ErrInvalidClient.WriteError(w)
		return
	}

	result, err := h.TokenService.ExchangeClientCredentials(r.Context(), clientID, clientSecret, requested)
	writeTokenResult(w, r, "client_credentials", result, err)
}

func writeTokenResult(w http.ResponseWriter, r *http.Request, grant string, result *service.TokenResult, err error) {
	if err != nil {
		if oe := tokenError(err); oe != nil {
			oe.WriteError(w)
			return
		}
		slogx.FromContext(r.Context()).Error("token grant failed",
			slog.String("grant_type", grant),
			slog.Any("error", err),
		)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	response := authsdk.TokenResponse{
		AccessToken:  result.AccessToken,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(result.ExpiresIn.Seconds()),
		Scope:        strings.TrimSpace(result.Scope),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

// tokenError maps the expected grant failures. It returns nil for anything
// that should be logged as a server error.
func tokenError(err error) *authsdk.OAuth2Error {
	switch {
	case errors.Is(err, service.ErrInvalidClient):
		return authsdk.ErrInvalidClient
	case errors.Is(err, service.ErrInvalidGrant):
		return authsdk.ErrInvalidGrant
	case errors.Is(err, service.ErrInvalidScope):
		return authsdk.ErrInvalidScope
	case errors.Is(err, service.ErrUnauthorizedClient):
		return authsdk.ErrUnauthorizedClient
	case errors.Is(err, service.ErrInvalidRequest):
		return authsdk.ErrInvalidRequest
	case errors.Is(err, service.ErrUnsupportedGrantType):
		return authsdk.ErrUnsupportedGrantType
	}
	return nil
}
