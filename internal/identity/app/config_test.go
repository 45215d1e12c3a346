package app

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"ENV", "IDENTITY_ISSUER", "IDENTITY_PUBLIC_URL", "IDENTITY_ALGORITHM",
		"IDENTITY_SESSION_STORE", "IDENTITY_REQUIRE_CONFIRMED_ACCOUNT", "IDENTITY_SECURE_COOKIES",
		"IDENTITY_CLIENTS", "IDENTITY_GOOGLE_CLIENT_ID", "IDENTITY_MICROSOFT_CLIENT_ID",
		"IDENTITY_FACEBOOK_CLIENT_ID", "PORT", "HOUSEKEEPING_INTERVAL", "S3_BUCKET",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", cfg.Issuer)
	require.Equal(t, cfg.Issuer, cfg.PublicURL)
	require.Equal(t, jwtx.AlgorithmEdDSA, cfg.Algorithm)
	require.Equal(t, "memory", cfg.SessionStore)
	require.True(t, cfg.RequireConfirmedAccount)
	require.False(t, cfg.SecureCookies, "dev defaults to plain http cookies")
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, time.Hour, cfg.HousekeepingInterval)
	require.Empty(t, cfg.S3Bucket)
	require.Nil(t, cfg.Providers)
	require.Nil(t, cfg.Clients)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("IDENTITY_ISSUER", "https://id.propulse.example/")
	t.Setenv("IDENTITY_SESSION_STORE", "Redis")
	t.Setenv("IDENTITY_REQUIRE_CONFIRMED_ACCOUNT", "false")
	t.Setenv("IDENTITY_LOCKOUT_DURATION", "15")
	t.Setenv("IDENTITY_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("PORT", "not-a-number")
	t.Setenv("IDENTITY_SECURE_COOKIES", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "https://id.propulse.example", cfg.Issuer)
	require.Equal(t, "redis", cfg.SessionStore)
	require.False(t, cfg.RequireConfirmedAccount)
	require.Equal(t, 15*time.Minute, cfg.LockoutDuration, "plain integers are minutes")
	require.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 8080, cfg.Port, "invalid values fall back to the default")
	require.True(t, cfg.SecureCookies)
}

func TestGetEnvBoolOrDefault(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"1", false, true},
		{"false", true, false},
		{"yes", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("PROPULSE_TEST_BOOL", tt.value)
			require.Equal(t, tt.want, getEnvBoolOrDefault("PROPULSE_TEST_BOOL", tt.def))
		})
	}
}
