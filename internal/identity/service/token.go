package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	IDTokenTTL time.Duration
	RefreshTTL time.Duration
}

// TokenResult is what the token endpoint returns. IDToken and RefreshToken
// are empty when the grant does not produce them.
type TokenResult struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
	Scope        string
}

// ExchangeAuthorizationCode redeems a code for tokens minted from the
// principal captured when the code was issued.
func (s *TokenService) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI, codeVerifier string,
) (*TokenResult, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return nil, ErrUnauthorizedClient
	}

	code = strings.TrimSpace(code)
	redirectURI = strings.TrimSpace(redirectURI)
	if code == "" || redirectURI == "" {
		return nil, ErrInvalidRequest
	}

	var result *TokenResult
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		authCode, err := tx.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, cryptox.FingerprintToken(code))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		if err := tx.AuthorizationCodes().MarkAuthorizationCodeUsed(ctx, authCode.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				l.Warn("authorization code replayed", slog.String("client_id", client.ID))
				return ErrInvalidGrant
			}
			return err
		}

		if authCode.ClientID != client.ID || authCode.RedirectURI != redirectURI {
			return ErrInvalidGrant
		}
		if now.After(authCode.ExpiresAt) {
			return ErrInvalidGrant
		}
		if !verifyCodeVerifier(authCode.CodeChallenge, authCode.CodeChallengeMethod, codeVerifier) {
			return ErrInvalidGrant
		}

		result, err = s.issue(ctx, tx, client, authCode.UserID, authCode.Principal, authCode.Nonce, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExchangeRefreshToken rotates a refresh token. The stored principal is
// re-used, optionally narrowed to requestedScopes.
func (s *TokenService) ExchangeRefreshToken(
	ctx context.Context,
	clientID, clientSecret, refreshOpaque string,
	requestedScopes []string,
) (*TokenResult, error) {
	now := time.Now()

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(domain.GrantRefreshToken) {
		return nil, ErrUnauthorizedClient
	}

	fp := cryptox.FingerprintToken(strings.TrimSpace(refreshOpaque))
	var result *TokenResult
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if rt.Revoked || now.After(rt.ExpiresAt) || rt.ClientID != client.ID {
			return ErrInvalidGrant
		}

		if err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		principal := rt.Principal
		if len(requestedScopes) > 0 {
			for _, scope := range requestedScopes {
				if !slices.Contains(principal.Scopes, scope) {
					return ErrInvalidScope
				}
			}
			principal = NarrowPrincipal(principal, dedupe(requestedScopes))
		}
		principal.AMR = dedupe(append(slices.Clone(principal.AMR), jwtx.AMRRefresh))

		result, err = s.issue(ctx, tx, client, rt.UserID, principal, "", now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExchangeClientCredentials mints an access token whose subject is the
// client itself. No user claims and no refresh token.
func (s *TokenService) ExchangeClientCredentials(
	ctx context.Context,
	clientID, clientSecret string,
	requestedScopes []string,
) (*TokenResult, error) {
	l := slogx.FromContext(ctx)

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !client.IsConfidential() {
		l.Warn("client_credentials grant attempted with public client", slog.String("client_id", clientID))
		return nil, ErrUnauthorizedClient
	}
	if !client.AllowsGrant(domain.GrantClientCredentials) {
		return nil, ErrUnauthorizedClient
	}

	principal := clientPrincipal(client.ID, dedupe(requestedScopes))
	for _, scope := range principal.Scopes {
		if !client.AllowsScope(scope) {
			return nil, ErrInvalidScope
		}
	}
	principal.AMR = []string{jwtx.AMRClient}

	access, err := s.signAccess(principal, client.ID, time.Now())
	if err != nil {
		return nil, err
	}
	return &TokenResult{
		AccessToken: access,
		ExpiresIn:   s.accessTTL(),
		Scope:       strings.Join(principal.Scopes, " "),
	}, nil
}

// Introspect implements RFC 7662 for an authenticated client. Inactive or
// unknown tokens yield {"active": false}.
func (s *TokenService) Introspect(ctx context.Context, clientID, clientSecret, token string) (*authsdk.IntrospectionResponse, error) {
	if _, err := s.authenticateClient(ctx, clientID, clientSecret); err != nil {
		return nil, err
	}

	inactive := &authsdk.IntrospectionResponse{Active: false}
	if strings.TrimSpace(token) == "" {
		return inactive, nil
	}

	if claims, err := s.KeyManager.Verifier.Verify(token); err == nil {
		resp := &authsdk.IntrospectionResponse{
			Active:    true,
			Scope:     claims.Scope,
			ClientID:  claims.ClientID,
			Subject:   claims.Subject,
			TokenType: "access_token",
			Issuer:    claims.Issuer,
			Audience:  jwtx.StringList(claims.Audience),
			JTI:       claims.ID,
		}
		if claims.ExpiresAt != nil {
			resp.ExpiresAt = claims.ExpiresAt.Unix()
		}
		if claims.IssuedAt != nil {
			resp.IssuedAt = claims.IssuedAt.Unix()
		}
		return resp, nil
	}

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return inactive, nil
		}
		return nil, err
	}
	if rt.Revoked || time.Now().After(rt.ExpiresAt) || rt.ClientID != clientID {
		return inactive, nil
	}
	return &authsdk.IntrospectionResponse{
		Active:    true,
		Scope:     strings.Join(rt.Principal.Scopes, " "),
		ClientID:  rt.ClientID,
		Subject:   rt.UserID,
		TokenType: "refresh_token",
		Issuer:    s.Issuer,
		ExpiresAt: rt.ExpiresAt.Unix(),
		IssuedAt:  rt.CreatedAt.Unix(),
	}, nil
}

func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	l := slogx.FromContext(ctx)

	if strings.TrimSpace(clientID) == "" {
		return domain.Client{}, ErrInvalidClient
	}
	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	if client.IsConfidential() {
		if clientSecret == "" || cryptox.VerifyPassword(clientSecret, client.SecretHash) != nil {
			l.Info("client authentication failed", slog.String("client_id", clientID))
			return domain.Client{}, ErrInvalidClient
		}
	}
	return client, nil
}

// issue mints the access token, the id_token when openid was granted and a
// rotated refresh token when the client may use one.
func (s *TokenService) issue(
	ctx context.Context,
	tx store.Tx,
	client domain.Client,
	userID string,
	principal domain.Principal,
	nonce string,
	now time.Time,
) (*TokenResult, error) {
	if _, err := tx.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	access, err := s.signAccess(principal, client.ID, now)
	if err != nil {
		return nil, err
	}
	result := &TokenResult{
		AccessToken: access,
		ExpiresIn:   s.accessTTL(),
		Scope:       strings.Join(principal.Scopes, " "),
	}

	if slices.Contains(principal.Scopes, ScopeOpenID) {
		if result.IDToken, err = s.signIDToken(principal, client.ID, nonce, now); err != nil {
			return nil, err
		}
	}

	if slices.Contains(principal.Scopes, ScopeOfflineAccess) || client.AllowsGrant(domain.GrantRefreshToken) {
		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, err
		}
		ttl := s.RefreshTTL
		if ttl <= 0 {
			ttl = jwtx.DefaultRefreshTokenTTL
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID:        idx.New().String(),
			TokenHash: cryptox.FingerprintToken(opaque),
			UserID:    userID,
			ClientID:  client.ID,
			Scopes:    principal.Scopes,
			Principal: principal,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
		result.RefreshToken = opaque
	}
	return result, nil
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) signAccess(p domain.Principal, clientID string, now time.Time) (string, error) {
	claims := jwtx.NewClaims(s.Issuer, p.Subject(), []string{clientID}, s.accessTTL(), now)
	claims.ClientID = clientID
	claims.Scope = strings.Join(p.Scopes, " ")
	claims.SID = p.SID
	claims.AMR = p.AMR
	applyClaims(&claims, p, domain.DestinationAccessToken)

	return s.KeyManager.GetSigner().Sign(claims, jwtx.TypeAccessToken)
}

func (s *TokenService) signIDToken(p domain.Principal, clientID, nonce string, now time.Time) (string, error) {
	ttl := s.IDTokenTTL
	if ttl <= 0 {
		ttl = jwtx.DefaultIDTokenTTL
	}
	claims := jwtx.NewClaims(s.Issuer, p.Subject(), []string{clientID}, ttl, now)
	claims.Nonce = nonce
	claims.SID = p.SID
	claims.AMR = p.AMR
	applyClaims(&claims, p, domain.DestinationIdentityToken)

	return s.KeyManager.GetSigner().Sign(claims, jwtx.TypeIDToken)
}

// applyClaims copies the principal's claims bound for destination onto the
// JWT payload.
func applyClaims(c *jwtx.Claims, p domain.Principal, destination string) {
	for _, claim := range p.Claims {
		if !slices.Contains(claim.Destinations, destination) {
			continue
		}
		switch claim.Type {
		case domain.ClaimSubject:
			c.Subject = claim.Value
		case domain.ClaimName:
			c.Name = claim.Value
		case domain.ClaimEmail:
			c.Email = claim.Value
		case domain.ClaimDisplayName:
			c.DisplayName = claim.Value
		case domain.ClaimRole:
			c.Role = append(c.Role, claim.Value)
		default:
			if c.Extra == nil {
				c.Extra = map[string]any{}
			}
			c.Extra[claim.Type] = claim.Value
		}
	}
}
