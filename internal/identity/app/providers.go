package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/caarlos0/env/v11"
)

// providerEnv holds the raw external login settings. A provider is enabled
// only when both its client id and secret are set.
type providerEnv struct {
	GoogleClientID     string   `env:"IDENTITY_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"IDENTITY_GOOGLE_CLIENT_SECRET"`
	GoogleScopes       []string `env:"IDENTITY_GOOGLE_SCOPES"          envSeparator:","`

	MicrosoftClientID     string   `env:"IDENTITY_MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string   `env:"IDENTITY_MICROSOFT_CLIENT_SECRET"`
	MicrosoftTenant       string   `env:"IDENTITY_MICROSOFT_TENANT"       envDefault:"common"`
	MicrosoftScopes       []string `env:"IDENTITY_MICROSOFT_SCOPES"       envSeparator:","`

	FacebookClientID     string   `env:"IDENTITY_FACEBOOK_CLIENT_ID"`
	FacebookClientSecret string   `env:"IDENTITY_FACEBOOK_CLIENT_SECRET"`
	FacebookScopes       []string `env:"IDENTITY_FACEBOOK_SCOPES"        envSeparator:","`

	// CallbackPath is joined to the public URL to build each redirect URI.
	CallbackPath string `env:"IDENTITY_EXTERNAL_CALLBACK_PATH" envDefault:"/Account/ExternalLoginCallback"`
}

type clientsEnv struct {
	ClientsJSON string `env:"IDENTITY_CLIENTS"`
}

// LoadProviders returns the external login providers that have credentials
// configured, keyed by route name.
func LoadProviders(publicURL string) (map[string]service.Provider, error) {
	var raw providerEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse provider env: %w", err)
	}
	return buildProviders(raw, publicURL), nil
}

func buildProviders(raw providerEnv, publicURL string) map[string]service.Provider {
	redirect := strings.TrimRight(publicURL, "/") + raw.CallbackPath
	providers := make(map[string]service.Provider)

	if raw.GoogleClientID != "" && raw.GoogleClientSecret != "" {
		providers["google"] = service.Provider{
			Name:         "google",
			DisplayName:  "Google",
			ClientID:     raw.GoogleClientID,
			ClientSecret: raw.GoogleClientSecret,
			RedirectURI:  redirect,
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
			Scopes:       scopesOr(raw.GoogleScopes, "openid", "email", "profile"),
		}
	}

	if raw.MicrosoftClientID != "" && raw.MicrosoftClientSecret != "" {
		base := "https://login.microsoftonline.com/" + raw.MicrosoftTenant + "/oauth2/v2.0"
		providers["microsoft"] = service.Provider{
			Name:         "microsoft",
			DisplayName:  "Microsoft",
			ClientID:     raw.MicrosoftClientID,
			ClientSecret: raw.MicrosoftClientSecret,
			RedirectURI:  redirect,
			AuthURL:      base + "/authorize",
			TokenURL:     base + "/token",
			UserInfoURL:  "https://graph.microsoft.com/oidc/userinfo",
			Scopes:       scopesOr(raw.MicrosoftScopes, "openid", "email", "profile"),
		}
	}

	if raw.FacebookClientID != "" && raw.FacebookClientSecret != "" {
		providers["facebook"] = service.Provider{
			Name:         "facebook",
			DisplayName:  "Facebook",
			ClientID:     raw.FacebookClientID,
			ClientSecret: raw.FacebookClientSecret,
			RedirectURI:  redirect,
			AuthURL:      "https://www.facebook.com/v19.0/dialog/oauth",
			TokenURL:     "https://graph.facebook.com/v19.0/oauth/access_token",
			UserInfoURL:  "https://graph.facebook.com/me?fields=id,name,email",
			Scopes:       scopesOr(raw.FacebookScopes, "email", "public_profile"),
			IDField:      "id",
		}
	}

	if len(providers) == 0 {
		return nil
	}
	return providers
}

// LoadClients decodes IDENTITY_CLIENTS, a JSON array of client
// registrations created at startup when missing.
func LoadClients() ([]service.ClientRegistration, error) {
	var raw clientsEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse clients env: %w", err)
	}
	if strings.TrimSpace(raw.ClientsJSON) == "" {
		return nil, nil
	}

	var clients []service.ClientRegistration
	if err := json.Unmarshal([]byte(raw.ClientsJSON), &clients); err != nil {
		return nil, fmt.Errorf("decode IDENTITY_CLIENTS: %w", err)
	}
	for i, c := range clients {
		if c.ID == "" {
			return nil, fmt.Errorf("IDENTITY_CLIENTS[%d]: client_id is required", i)
		}
	}
	return clients, nil
}

func scopesOr(values []string, defaults ...string) []string {
	scopes := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			scopes = append(scopes, v)
		}
	}
	if len(scopes) == 0 {
		return defaults
	}
	return scopes
}
