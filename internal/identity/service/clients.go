package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

var (
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
	ErrInvalidClientMetadata = errors.New("invalid client metadata")
)

var knownGrants = []string{domain.GrantAuthorizationCode, domain.GrantRefreshToken, domain.GrantClientCredentials}

// ClientRegistration describes a client to create. An empty ID gets a fresh
// ULID; a taken one fails with store.ErrAlreadyExists. Secret is only used
// by seeds; registration generates one for confidential clients.
type ClientRegistration struct {
	ID                     string   `json:"client_id,omitempty"`
	Secret                 string   `json:"client_secret,omitempty"`
	DisplayName            string   `json:"client_name"`
	Confidential           bool     `json:"confidential"`
	RedirectURIs           []string `json:"redirect_uris"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`
	GrantTypes             []string `json:"grant_types"`
	Scopes                 []string `json:"scopes"`
}

type ClientService struct {
	Store          store.Store
	BootstrapToken string
}

// Register creates a client when token matches the bootstrap token. The
// plaintext secret of a confidential client is returned once.
func (s *ClientService) Register(ctx context.Context, token string, reg ClientRegistration) (domain.Client, string, error) {
	l := slogx.FromContext(ctx)

	if s.BootstrapToken == "" || !cryptox.EqualTokens(token, s.BootstrapToken) {
		l.Warn("unauthorized client registration attempt")
		return domain.Client{}, "", ErrBootstrapUnauthorized
	}

	var secret string
	if reg.Confidential {
		var err error
		if secret, err = cryptox.GenerateToken(cryptox.TokenSize256); err != nil {
			return domain.Client{}, "", err
		}
	}
	reg.Secret = secret

	c, err := s.create(ctx, reg)
	if err != nil {
		return domain.Client{}, "", err
	}
	l.Info("client registered", "client_id", c.ID, "confidential", reg.Confidential)
	return c, secret, nil
}

// Ensure creates the seeded client unless its id is already registered.
func (s *ClientService) Ensure(ctx context.Context, reg ClientRegistration) error {
	if reg.ID == "" {
		return fmt.Errorf("%w: seeded clients need a client_id", ErrInvalidClientMetadata)
	}
	_, err := s.Store.Clients().GetClientByID(ctx, reg.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	reg.Confidential = reg.Secret != ""
	if _, err := s.create(ctx, reg); err != nil {
		return err
	}
	slogx.FromContext(ctx).Info("client seeded", "client_id", reg.ID)
	return nil
}

func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	return s.Store.Clients().ListClients(ctx)
}

func (s *ClientService) create(ctx context.Context, reg ClientRegistration) (domain.Client, error) {
	if err := validateRegistration(reg); err != nil {
		return domain.Client{}, err
	}

	var hash string
	if reg.Secret != "" {
		var err error
		if hash, err = cryptox.HashPassword(reg.Secret); err != nil {
			return domain.Client{}, fmt.Errorf("hash client secret: %w", err)
		}
	}
	id := reg.ID
	if id == "" {
		id = idx.New().String()
	}

	now := time.Now()
	c := domain.Client{
		ID:                     id,
		DisplayName:            strings.TrimSpace(reg.DisplayName),
		SecretHash:             hash,
		RedirectURIs:           reg.RedirectURIs,
		PostLogoutRedirectURIs: reg.PostLogoutRedirectURIs,
		GrantTypes:             dedupe(reg.GrantTypes),
		Scopes:                 dedupe(reg.Scopes),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.Store.Clients().CreateClient(ctx, c); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

func validateRegistration(reg ClientRegistration) error {
	if len(reg.GrantTypes) == 0 {
		return fmt.Errorf("%w: grant_types is required", ErrInvalidClientMetadata)
	}
	for _, g := range reg.GrantTypes {
		if !slices.Contains(knownGrants, g) {
			return fmt.Errorf("%w: unsupported grant type %q", ErrInvalidClientMetadata, g)
		}
	}
	confidential := reg.Confidential || reg.Secret != ""
	if slices.Contains(reg.GrantTypes, domain.GrantClientCredentials) && !confidential {
		return fmt.Errorf("%w: client_credentials requires a confidential client", ErrInvalidClientMetadata)
	}
	if slices.Contains(reg.GrantTypes, domain.GrantAuthorizationCode) && len(reg.RedirectURIs) == 0 {
		return fmt.Errorf("%w: redirect_uris is required", ErrInvalidClientMetadata)
	}
	for _, raw := range append(slices.Clone(reg.RedirectURIs), reg.PostLogoutRedirectURIs...) {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Fragment != "" {
			return fmt.Errorf("%w: invalid redirect uri %q", ErrInvalidClientMetadata, raw)
		}
	}
	return nil
}
