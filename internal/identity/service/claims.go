package service

import (
	"slices"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
)

// Scopes with a meaning to the claims mapper.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeRoles         = "roles"
	ScopeAPI           = "api"
	ScopeOfflineAccess = "offline_access"
)

// SupportedScopes is advertised by the discovery document.
var SupportedScopes = []string{ScopeOpenID, ScopeProfile, ScopeEmail, ScopeRoles, ScopeAPI, ScopeOfflineAccess}

// ClaimsUser is the user snapshot the mapper works from.
type ClaimsUser struct {
	ID          string
	Email       string
	DisplayName string
	Roles       []string
}

func ClaimsUserFrom(u domain.User) ClaimsUser {
	return ClaimsUser{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Roles: u.Roles}
}

// Destinations decides which tokens a claim of claimType is emitted to. A nil
// result means the claim is dropped.
func Destinations(claimType string, granted []string) []string {
	both := []string{domain.DestinationAccessToken, domain.DestinationIdentityToken}
	accessOnly := []string{domain.DestinationAccessToken}

	switch claimType {
	case domain.ClaimSubject:
		return both
	case domain.ClaimName:
		if slices.Contains(granted, ScopeProfile) {
			return both
		}
		return accessOnly
	case domain.ClaimEmail:
		if slices.Contains(granted, ScopeEmail) {
			return both
		}
		return accessOnly
	case domain.ClaimRole:
		if slices.Contains(granted, ScopeRoles) {
			return both
		}
		return accessOnly
	case domain.ClaimDisplayName:
		if slices.Contains(granted, ScopeProfile) {
			return both
		}
		return nil
	default:
		return accessOnly
	}
}

// MapClaims builds the principal for user under the granted scopes. It does
// no I/O.
func MapClaims(user ClaimsUser, granted []string) domain.Principal {
	p := domain.Principal{Scopes: slices.Clone(granted)}

	add := func(claimType, value string) {
		dest := Destinations(claimType, granted)
		if len(dest) == 0 {
			return
		}
		p.Claims = append(p.Claims, domain.Claim{Type: claimType, Value: value, Destinations: dest})
	}

	add(domain.ClaimSubject, user.ID)
	add(domain.ClaimName, user.DisplayName)
	add(domain.ClaimEmail, user.Email)
	for _, role := range user.Roles {
		add(domain.ClaimRole, role)
	}
	add(domain.ClaimDisplayName, user.DisplayName)
	return p
}

// NarrowPrincipal restricts p to scopes and routes every claim again under
// them. A claim whose scope is gone leaves the id_token, and claims with no
// destination left are dropped.
func NarrowPrincipal(p domain.Principal, scopes []string) domain.Principal {
	out := p
	out.Scopes = slices.Clone(scopes)
	out.Claims = make([]domain.Claim, 0, len(p.Claims))
	for _, c := range p.Claims {
		dest := Destinations(c.Type, scopes)
		if len(dest) == 0 {
			continue
		}
		c.Destinations = dest
		out.Claims = append(out.Claims, c)
	}
	return out
}

// clientPrincipal is the principal of a client_credentials grant. It carries
// no user claims.
func clientPrincipal(clientID string, scopes []string) domain.Principal {
	if clientID == "" {
		clientID = "unknown_client"
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeAPI}
	}
	return domain.Principal{
		Claims: []domain.Claim{{
			Type:         domain.ClaimSubject,
			Value:        clientID,
			Destinations: []string{domain.DestinationAccessToken, domain.DestinationIdentityToken},
		}},
		Scopes: scopes,
	}
}
