package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateTokenEncoding(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantLen int // unpadded base64url length
	}{
		{"authorization code", TokenSize128, 22},
		{"refresh token", TokenSize256, 43},
		{"512 bit", TokenSize512, 86},
		{"odd size", 5, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.Len(t, token, tt.wantLen)
			require.NotContains(t, token, "=")

			raw, err := base64.RawURLEncoding.DecodeString(token)
			require.NoError(t, err, "tokens must be URL safe to travel in query strings")
			require.Len(t, raw, tt.size)
		})
	}
}

func TestGenerateTokenRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -16} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
	require.Panics(t, func() { MustGenerateToken(0) })
}

func TestGenerateTokenUnique(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for range 64 {
		token := MustGenerateToken(TokenSize128)
		_, dup := seen[token]
		require.False(t, dup, "duplicate token generated")
		seen[token] = struct{}{}
	}
}

func TestFingerprintToken(t *testing.T) {
	refresh := MustGenerateToken(TokenSize256)

	fp := FingerprintToken(refresh)
	require.Equal(t, fp, FingerprintToken(refresh))
	require.NotEqual(t, fp, FingerprintToken(refresh+"x"))
	require.NotEqual(t, refresh, fp, "the stored form never equals the token")
	require.Len(t, fp, 43)
}

func TestEqualTokens(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"bootstrap", "bootstrap", true},
		{"bootstrap", "bootstrAp", false},
		{"bootstrap", "boot", false},
		{"", "", true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, EqualTokens(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
