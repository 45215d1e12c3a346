package service

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store/drivers/sqlite"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://id.propulse.test"
	testPassword = "Passw0rd!"
	testRedirect = "https://app.example/callback"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	for _, name := range domain.DefaultRoles {
		require.NoError(t, s.Roles().EnsureRole(context.Background(), domain.Role{Name: name}))
	}
	return s
}

func newTestKeyManager(t *testing.T) *jwtx.KeyManager {
	t.Helper()

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		NumKeys:   1,
	})
	require.NoError(t, err)
	return km
}

func seedUser(t *testing.T, s *sqlite.Store, email string, confirmed bool, roles ...string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)
	u := domain.User{
		ID:             idx.New().String(),
		Email:          email,
		Username:       email,
		DisplayName:    "Test User",
		EmailConfirmed: confirmed,
		PasswordHash:   hash,
		SecurityStamp:  "stamp",
		LockoutEnabled: true,
		Roles:          roles,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func seedClient(t *testing.T, s *sqlite.Store, id, secret string, grants []string, scopes ...string) domain.Client {
	t.Helper()

	c := domain.Client{
		ID:           id,
		DisplayName:  "Client " + id,
		RedirectURIs: []string{testRedirect},
		GrantTypes:   grants,
		Scopes:       scopes,
	}
	if secret != "" {
		hash, err := cryptox.HashPassword(secret)
		require.NoError(t, err)
		c.SecretHash = hash
	}
	require.NoError(t, s.Clients().CreateClient(context.Background(), c))
	return c
}

type sentMail struct {
	Kind  string
	Email string
	Link  string
}

// recordingSender captures outgoing mail instead of logging it.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
}

func (r *recordingSender) record(kind, email, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{Kind: kind, Email: email, Link: link})
	return nil
}

func (r *recordingSender) SendConfirmationLink(_ context.Context, email, link string) error {
	return r.record("confirm", email, link)
}

func (r *recordingSender) SendPasswordResetLink(_ context.Context, email, link string) error {
	return r.record("reset", email, link)
}

func (r *recordingSender) SendPasswordResetCode(_ context.Context, email, code string) error {
	return r.record("reset_code", email, code)
}

func (r *recordingSender) Sent() []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMail(nil), r.sent...)
}

// linkParams splits a mailed link into its userId and code parameters.
func linkParams(t *testing.T, link string) (string, string) {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("userId"), u.Query().Get("code")
}
