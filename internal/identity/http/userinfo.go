package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

const accountGoneDescription = "The specified access token is bound to an account that no longer exists."

type UserInfoHandler struct {
	UserInfoService *service.UserInfoService
}

// ServeHTTP handles the OpenID Connect UserInfo endpoint.
//
//	@Summary		Get user information
//	@Description	Returns the current claims of the token subject. role is a string for one role, an array for several, and absent for none.
//	@Tags			OAuth2
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse	"sub, name, email, email_verified, role"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token, or the account is gone"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/connect/userinfo [get]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.UserInfoService.GetUserInfo(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		if errors.Is(err, service.ErrAccountGone) {
			httpx.WriteBearerError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, accountGoneDescription)
			return
		}
		slogx.FromContext(ctx).Error("failed to load userinfo", slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, info)
}
