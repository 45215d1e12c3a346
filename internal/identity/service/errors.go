package service

import "errors"

// OAuth protocol errors. The values match the RFC 6749 error codes.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrLoginRequired           = errors.New("login_required")

	// ErrInvalidRedirectURI is never sent back to the redirect URI itself.
	ErrInvalidRedirectURI = errors.New("invalid redirect_uri")

	// ErrAccountGone means a token subject no longer resolves to a user.
	ErrAccountGone = errors.New("account no longer exists")
)

// Account flow errors.
var (
	ErrInvalidLogin      = errors.New("invalid login attempt")
	ErrLockedOut         = errors.New("account locked out")
	ErrTwoFactorRequired = errors.New("two factor code required")
	ErrInvalidUserToken  = errors.New("invalid or consumed token")
	ErrUnknownEmail      = errors.New("invalid email address")
	ErrUnknownUser       = errors.New("unknown user")
	ErrUnknownProvider   = errors.New("unknown external login provider")
	ErrExternalLogin     = errors.New("external login failed")
)

// Admin console errors.
var (
	ErrRemoveOwnAdministrator = errors.New("cannot remove own administrator role")
	ErrDeleteSelf             = errors.New("cannot delete own account")
	ErrLastAdministrator      = errors.New("cannot delete the last administrator")
)
