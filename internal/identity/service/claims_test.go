package service

import (
	"testing"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestDestinations(t *testing.T) {
	t.Parallel()

	both := []string{domain.DestinationAccessToken, domain.DestinationIdentityToken}
	access := []string{domain.DestinationAccessToken}

	tests := []struct {
		name      string
		claimType string
		granted   []string
		want      []string
	}{
		{"subject always both", domain.ClaimSubject, nil, both},
		{"name without profile", domain.ClaimName, []string{ScopeOpenID}, access},
		{"name with profile", domain.ClaimName, []string{ScopeProfile}, both},
		{"email without email scope", domain.ClaimEmail, []string{ScopeProfile}, access},
		{"email with email scope", domain.ClaimEmail, []string{ScopeEmail}, both},
		{"role without roles scope", domain.ClaimRole, nil, access},
		{"role with roles scope", domain.ClaimRole, []string{ScopeRoles}, both},
		{"display name without profile", domain.ClaimDisplayName, []string{ScopeEmail}, nil},
		{"display name with profile", domain.ClaimDisplayName, []string{ScopeProfile}, both},
		{"unknown claim", "department", []string{ScopeProfile, ScopeEmail, ScopeRoles}, access},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Destinations(tt.claimType, tt.granted))
		})
	}
}

func TestMapClaims(t *testing.T) {
	t.Parallel()

	user := ClaimsUser{
		ID:          "user-1",
		Email:       "ada@example.com",
		DisplayName: "Ada",
		Roles:       []string{domain.RoleUser, domain.RoleAuthor},
	}

	t.Run("openid only keeps identity token minimal", func(t *testing.T) {
		p := MapClaims(user, []string{ScopeOpenID})

		require.Equal(t, "user-1", p.Subject())
		require.Equal(t, []string{"user-1"}, p.ValuesFor(domain.ClaimSubject, domain.DestinationIdentityToken))
		require.Empty(t, p.ValuesFor(domain.ClaimName, domain.DestinationIdentityToken))
		require.Empty(t, p.ValuesFor(domain.ClaimEmail, domain.DestinationIdentityToken))
		require.Empty(t, p.ValuesFor(domain.ClaimRole, domain.DestinationIdentityToken))
		require.Empty(t, p.ValuesFor(domain.ClaimDisplayName, domain.DestinationAccessToken))

		require.Equal(t, "Ada", p.FirstFor(domain.ClaimName, domain.DestinationAccessToken))
		require.Equal(t, "ada@example.com", p.FirstFor(domain.ClaimEmail, domain.DestinationAccessToken))
		require.Equal(t, user.Roles, p.ValuesFor(domain.ClaimRole, domain.DestinationAccessToken))
	})

	t.Run("all scopes reach the identity token", func(t *testing.T) {
		p := MapClaims(user, []string{ScopeOpenID, ScopeProfile, ScopeEmail, ScopeRoles})

		require.Equal(t, "Ada", p.FirstFor(domain.ClaimName, domain.DestinationIdentityToken))
		require.Equal(t, "ada@example.com", p.FirstFor(domain.ClaimEmail, domain.DestinationIdentityToken))
		require.Equal(t, user.Roles, p.ValuesFor(domain.ClaimRole, domain.DestinationIdentityToken))
		require.Equal(t, "Ada", p.FirstFor(domain.ClaimDisplayName, domain.DestinationIdentityToken))
		require.Equal(t, []string{ScopeOpenID, ScopeProfile, ScopeEmail, ScopeRoles}, p.Scopes)
	})

	t.Run("user without roles has no role claim", func(t *testing.T) {
		p := MapClaims(ClaimsUser{ID: "u"}, []string{ScopeRoles})
		require.Empty(t, p.ValuesFor(domain.ClaimRole, domain.DestinationAccessToken))
	})
}

func TestClientPrincipal(t *testing.T) {
	t.Parallel()

	p := clientPrincipal("", nil)
	require.Equal(t, "unknown_client", p.Subject())
	require.Equal(t, []string{ScopeAPI}, p.Scopes)
	require.Len(t, p.Claims, 1)

	p = clientPrincipal("svc", []string{"reports"})
	require.Equal(t, "svc", p.Subject())
	require.Equal(t, []string{"reports"}, p.Scopes)
}

func TestNarrowPrincipal(t *testing.T) {
	t.Parallel()

	user := ClaimsUser{ID: "u1", Email: "ada@example.com", DisplayName: "Ada", Roles: []string{domain.RoleAdministrator}}
	p := MapClaims(user, []string{ScopeOpenID, ScopeProfile, ScopeRoles, ScopeAPI})
	p.AMR = []string{"pwd"}

	narrowed := NarrowPrincipal(p, []string{ScopeOpenID, ScopeAPI})
	require.Equal(t, []string{ScopeOpenID, ScopeAPI}, narrowed.Scopes)
	require.Equal(t, []string{"pwd"}, narrowed.AMR)
	require.Equal(t, "u1", narrowed.FirstFor(domain.ClaimSubject, domain.DestinationIdentityToken))

	require.Empty(t, narrowed.ValuesFor(domain.ClaimRole, domain.DestinationIdentityToken))
	require.Empty(t, narrowed.ValuesFor(domain.ClaimName, domain.DestinationIdentityToken))
	require.Equal(t, []string{domain.RoleAdministrator}, narrowed.ValuesFor(domain.ClaimRole, domain.DestinationAccessToken))
	require.Equal(t, "Ada", narrowed.FirstFor(domain.ClaimName, domain.DestinationAccessToken))
	for _, c := range narrowed.Claims {
		require.NotEqual(t, domain.ClaimDisplayName, c.Type)
	}

	// The input principal is left alone.
	require.Equal(t, []string{domain.RoleAdministrator}, p.ValuesFor(domain.ClaimRole, domain.DestinationIdentityToken))
}
