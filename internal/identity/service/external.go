package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

const DefaultExternalStateTTL = 10 * time.Minute

// Provider is an external OAuth 2.0 login provider. The *Field names pick
// the profile attributes out of the userinfo JSON.
type Provider struct {
	Name         string // route key, e.g. "google"
	DisplayName  string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string

	IDField    string
	NameField  string
	EmailField string
}

// ExternalProfile is what a provider told us about the user.
type ExternalProfile struct {
	Provider            string
	ProviderDisplayName string
	ProviderKey         string
	Email               string
	DisplayName         string
}

type externalState struct {
	provider     string
	codeVerifier string
	returnURL    string
	expiresAt    time.Time
}

// ExternalLoginService runs the redirect, callback and linking steps of an
// external login. Pending states live in memory until used or swept.
type ExternalLoginService struct {
	Store      store.Store
	Providers  map[string]Provider
	HTTPClient *http.Client
	StateTTL   time.Duration

	mu      sync.Mutex
	states  map[string]externalState
	pending map[string]pendingProfile
}

type pendingProfile struct {
	profile   ExternalProfile
	returnURL string
	expiresAt time.Time
}

// ProviderList returns the configured providers for the login page.
func (s *ExternalLoginService) ProviderList() []Provider {
	out := make([]Provider, 0, len(s.Providers))
	for _, p := range s.Providers {
		out = append(out, p)
	}
	return out
}

// Start returns the provider URL to redirect the browser to and the state
// it carries. The caller binds state to the browser so a callback started
// elsewhere is refused.
func (s *ExternalLoginService) Start(provider, returnURL string) (string, string, error) {
	p, ok := s.Providers[provider]
	if !ok {
		return "", "", ErrUnknownProvider
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", err
	}
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", err
	}
	ttl := s.StateTTL
	if ttl <= 0 {
		ttl = DefaultExternalStateTTL
	}

	s.mu.Lock()
	if s.states == nil {
		s.states = map[string]externalState{}
	}
	s.states[state] = externalState{
		provider:     provider,
		codeVerifier: verifier,
		returnURL:    returnURL,
		expiresAt:    time.Now().Add(ttl),
	}
	s.mu.Unlock()

	authURL, err := url.Parse(p.AuthURL)
	if err != nil {
		return "", "", fmt.Errorf("provider %s auth url: %w", provider, err)
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("scope", strings.Join(p.Scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", S256Challenge(verifier))
	q.Set("code_challenge_method", "S256")
	authURL.RawQuery = q.Encode()
	return authURL.String(), state, nil
}

// Callback consumes state, exchanges code and fetches the profile. It
// returns the return URL captured by Start.
func (s *ExternalLoginService) Callback(ctx context.Context, state, code string) (ExternalProfile, string, error) {
	st, ok := s.takeState(state)
	if !ok || code == "" {
		return ExternalProfile{}, "", fmt.Errorf("%w: missing or invalid state", ErrExternalLogin)
	}
	p, ok := s.Providers[st.provider]
	if !ok {
		return ExternalProfile{}, "", ErrUnknownProvider
	}

	accessToken, err := s.exchange(ctx, p, code, st.codeVerifier)
	if err != nil {
		return ExternalProfile{}, "", fmt.Errorf("%w: %w", ErrExternalLogin, err)
	}
	profile, err := s.fetchProfile(ctx, p, accessToken)
	if err != nil {
		return ExternalProfile{}, "", fmt.Errorf("%w: %w", ErrExternalLogin, err)
	}
	return profile, st.returnURL, nil
}

// SignIn resolves a linked user. ok is false when the external account has
// no local user yet.
func (s *ExternalLoginService) SignIn(ctx context.Context, profile ExternalProfile) (domain.User, bool, error) {
	link, err := s.Store.ExternalLogins().GetExternalLogin(ctx, profile.Provider, profile.ProviderKey)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, link.UserID)
	if err != nil {
		return domain.User{}, false, err
	}
	if u.IsLockedOut(time.Now()) {
		return domain.User{}, true, ErrLockedOut
	}
	return u, true, nil
}

// Register creates a local user for profile and links it. The email counts
// as confirmed only when it is the address the provider asserted; any other
// address has to be confirmed by mail like a password registration.
func (s *ExternalLoginService) Register(ctx context.Context, profile ExternalProfile, email, displayName string) (domain.User, error) {
	f := FormErrors{}
	validateEmail(f, "Email", email)
	validateDisplayName(f, "DisplayName", displayName)
	if err := f.OrNil(); err != nil {
		return domain.User{}, err
	}
	if profile.Provider == "" || profile.ProviderKey == "" {
		return domain.User{}, fmt.Errorf("%w: missing provider key", ErrExternalLogin)
	}

	email = strings.TrimSpace(email)
	now := time.Now()
	u := domain.User{
		ID:             idx.New().String(),
		Email:          email,
		Username:       email,
		DisplayName:    strings.TrimSpace(displayName),
		EmailConfirmed: profile.Email != "" && domain.NormalizeEmail(profile.Email) == domain.NormalizeEmail(email),
		SecurityStamp:  cryptox.MustGenerateToken(cryptox.TokenSize128),
		LockoutEnabled: true,
		Roles:          []string{domain.RoleUser},
		CreatedAt:      now,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		return tx.ExternalLogins().CreateExternalLogin(ctx, domain.ExternalLogin{
			Provider:            profile.Provider,
			ProviderKey:         profile.ProviderKey,
			ProviderDisplayName: profile.ProviderDisplayName,
			UserID:              u.ID,
			CreatedAt:           now,
		})
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		f.Add("Email", fmt.Sprintf("Email '%s' is already taken.", email))
		return domain.User{}, f
	}
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered from external login",
		slog.String("user_id", u.ID),
		slog.String("provider", profile.Provider),
		slog.Bool("email_confirmed", u.EmailConfirmed),
	)
	return u, nil
}

// Hold parks a profile with no local user while the registration form is
// filled in and returns the key to find it again.
func (s *ExternalLoginService) Hold(profile ExternalProfile, returnURL string) (string, error) {
	key, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	ttl := s.StateTTL
	if ttl <= 0 {
		ttl = DefaultExternalStateTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = map[string]pendingProfile{}
	}
	s.pending[key] = pendingProfile{profile: profile, returnURL: returnURL, expiresAt: time.Now().Add(ttl)}
	return key, nil
}

// Pending returns a held profile without releasing it.
func (s *ExternalLoginService) Pending(key string) (ExternalProfile, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[key]
	if !ok || time.Now().After(p.expiresAt) {
		return ExternalProfile{}, "", false
	}
	return p.profile, p.returnURL, true
}

func (s *ExternalLoginService) Release(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// Sweep drops expired states and held profiles.
func (s *ExternalLoginService) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, st := range s.states {
		if now.After(st.expiresAt) {
			delete(s.states, k)
			n++
		}
	}
	for k, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, k)
			n++
		}
	}
	return n
}

func (s *ExternalLoginService) takeState(state string) (externalState, bool) {
	if state == "" {
		return externalState{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[state]
	if !ok {
		return externalState{}, false
	}
	delete(s.states, state)
	if time.Now().After(st.expiresAt) {
		return externalState{}, false
	}
	return st, true
}

func (s *ExternalLoginService) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

func (s *ExternalLoginService) exchange(ctx context.Context, p Provider, code, verifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.RedirectURI)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed: %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("missing access token")
	}
	return payload.AccessToken, nil
}

func (s *ExternalLoginService) fetchProfile(ctx context.Context, p Provider, accessToken string) (ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return ExternalProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		return ExternalProfile{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ExternalProfile{}, fmt.Errorf("profile request failed: %s", resp.Status)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ExternalProfile{}, fmt.Errorf("decode profile: %w", err)
	}

	profile := ExternalProfile{
		Provider:            p.Name,
		ProviderDisplayName: p.DisplayName,
		ProviderKey:         stringField(payload, orDefault(p.IDField, "sub")),
		Email:               stringField(payload, orDefault(p.EmailField, "email")),
		DisplayName:         stringField(payload, orDefault(p.NameField, "name")),
	}
	if profile.ProviderKey == "" {
		return ExternalProfile{}, errors.New("missing provider user id")
	}
	return profile, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
