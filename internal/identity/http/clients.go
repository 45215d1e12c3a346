package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// ClientsHandler handles OAuth client registration.
type ClientsHandler struct {
	ClientService *service.ClientService
}

// HandleCreate handles POST /v1/clients
//
//	@Summary		Register OAuth2 Client
//	@Description	Registers a client application. Requires the bootstrap token. A confidential client gets a generated secret, returned once.
//	@Tags			Clients
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string							true	"Bootstrap token"
//	@Param			request				body		authsdk.CreateClientRequest		true	"Client registration request"
//	@Success		201					{object}	authsdk.ClientInfo				"The registered client"
//	@Failure		400					{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		401					{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		409					{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		500					{object}	authsdk.ErrorResponse			"error, error_description"
//	@Router			/v1/clients [post]
func (h *ClientsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. Parse request body
	var req authsdk.CreateClientRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("invalid JSON in request body").WriteError(w)
		return
	}

	// 2. Register the client
	client, secret, err := h.ClientService.Register(ctx, r.Header.Get(authsdk.BootstrapTokenHeader), service.ClientRegistration{
		ID:                     strings.TrimSpace(req.ClientID),
		DisplayName:            req.DisplayName,
		Confidential:           req.Confidential,
		RedirectURIs:           req.RedirectURIs,
		PostLogoutRedirectURIs: req.PostLogoutRedirectURIs,
		GrantTypes:             req.GrantTypes,
		Scopes:                 req.Scopes,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBootstrapUnauthorized):
			authsdk.ErrInvalidToken.WithDescription("missing or invalid bootstrap token").WriteError(w)
		case errors.Is(err, service.ErrInvalidClientMetadata):
			authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		case errors.Is(err, store.ErrAlreadyExists):
			authsdk.NewOAuth2Error(http.StatusConflict, authsdk.ErrorCodeInvalidRequest, "client_id is already registered").WriteError(w)
		default:
			log.Error("failed to register client", slog.Any("error", err))
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	// 3. Return the client, with the secret this one time
	info := clientInfo(client)
	info.ClientSecret = secret
	httpx.WriteJSON(w, http.StatusCreated, info)
}

func clientInfo(c domain.Client) authsdk.ClientInfo {
	return authsdk.ClientInfo{
		ClientID:               c.ID,
		DisplayName:            c.DisplayName,
		Confidential:           c.IsConfidential(),
		RedirectURIs:           c.RedirectURIs,
		PostLogoutRedirectURIs: c.PostLogoutRedirectURIs,
		GrantTypes:             c.GrantTypes,
		Scopes:                 c.Scopes,
		CreatedAt:              c.CreatedAt,
	}
}
