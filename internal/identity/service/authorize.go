package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
)

const DefaultCodeTTL = 5 * time.Minute

// AuthorizeService issues authorization codes for users with a browser
// session. Consent is implicit.
type AuthorizeService struct {
	Store   store.Store
	CodeTTL time.Duration
}

// AuthorizeRequest holds the query of an authorization request.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               []string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// SessionContext is the signed-in browser session behind a request.
type SessionContext struct {
	UserID    string
	SessionID string
	AMR       []string
}

type AuthorizeCodeResponse struct {
	Code        string
	RedirectURI string
	State       string
}

// ValidateClient resolves the client and checks the redirect URI. Its
// errors must be shown to the user agent and never sent to the redirect URI.
func (s *AuthorizeService) ValidateClient(ctx context.Context, req AuthorizeRequest) (domain.Client, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		return domain.Client{}, ErrInvalidClient
	}
	client, err := s.Store.Clients().GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	if strings.TrimSpace(req.RedirectURI) == "" || !client.AllowsRedirect(req.RedirectURI) {
		return domain.Client{}, ErrInvalidRedirectURI
	}
	return client, nil
}

// Authorize issues a code for the session's user. It returns
// ErrLoginRequired when the user no longer exists; the caller drops the
// session and challenges again.
func (s *AuthorizeService) Authorize(
	ctx context.Context,
	client domain.Client,
	req AuthorizeRequest,
	sess SessionContext,
) (*AuthorizeCodeResponse, error) {
	if !strings.EqualFold(strings.TrimSpace(req.ResponseType), "code") {
		return nil, ErrUnsupportedResponseType
	}
	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return nil, ErrUnauthorizedClient
	}

	challenge, method, err := validatePKCE(req.CodeChallenge, req.CodeChallengeMethod, client)
	if err != nil {
		return nil, err
	}

	requested := dedupe(req.Scope)
	if len(requested) == 0 {
		requested = client.Scopes
	}
	granted := intersectScopes(requested, client.Scopes)
	if len(granted) != len(requested) || len(granted) == 0 {
		return nil, ErrInvalidScope
	}

	if sess.UserID == "" {
		return nil, ErrLoginRequired
	}
	user, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLoginRequired
		}
		return nil, err
	}

	principal := MapClaims(ClaimsUserFrom(user), granted)
	principal.AMR = dedupe(sess.AMR)
	principal.SID = sess.SessionID
	if principal.SID == "" {
		principal.SID = idx.New().String()
	}

	code, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}
	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}

	now := time.Now()
	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		ID:                  idx.New().String(),
		CodeHash:            cryptox.FingerprintToken(code),
		UserID:              user.ID,
		ClientID:            client.ID,
		RedirectURI:         req.RedirectURI,
		Scopes:              granted,
		Nonce:               req.Nonce,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		Principal:           principal,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}); err != nil {
		return nil, err
	}

	return &AuthorizeCodeResponse{Code: code, RedirectURI: req.RedirectURI, State: req.State}, nil
}
