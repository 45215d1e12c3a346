package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://id.propulse.test"

func newKeyManager(t *testing.T, alg string, numKeys int) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: alg,
		Issuer:    testIssuer,
		RSABits:   2048,
		NumKeys:   numKeys,
	})
	require.NoError(t, err)
	return km
}

func TestNewEphemeralKeyManager(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{jwtx.AlgorithmEdDSA, jwtx.AlgorithmRS256} {
		t.Run(alg, func(t *testing.T) {
			t.Parallel()

			km := newKeyManager(t, alg, 2)
			require.True(t, km.IsReady())
			require.Equal(t, alg, km.Algorithm())
			require.Equal(t, testIssuer, km.Issuer())
			require.Equal(t, 2, km.NumSigners())
			require.Len(t, km.KeySet.PublicJWKS().Keys, 2)

			claims := jwtx.NewClaims(testIssuer, "user-1", nil, time.Minute, time.Now())
			claims.Role = jwtx.StringList{"Administrator"}
			claims.Scope = "openid api"

			token, err := km.GetSigner().Sign(claims, jwtx.TypeAccessToken)
			require.NoError(t, err)

			got, err := km.Verifier.Verify(token)
			require.NoError(t, err)
			require.Equal(t, "user-1", got.Subject)
			require.Equal(t, jwtx.StringList{"Administrator"}, got.Role)
			require.True(t, got.HasScope("api"))
		})
	}
}

func TestNewEphemeralKeyManagerErrors(t *testing.T) {
	t.Parallel()

	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA})
	require.Error(t, err)

	_, err = jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: "HS256", Issuer: testIssuer})
	require.Error(t, err)
}

func TestNumKeysDefaultsAndCap(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, newKeyManager(t, jwtx.AlgorithmEdDSA, 0).NumSigners())
	require.Equal(t, 10, newKeyManager(t, jwtx.AlgorithmEdDSA, 50).NumSigners())
}

func TestVerifierRejects(t *testing.T) {
	t.Parallel()

	km := newKeyManager(t, jwtx.AlgorithmEdDSA, 1)
	signer := km.GetSigner()
	now := time.Now()

	t.Run("identity token used as access token", func(t *testing.T) {
		t.Parallel()

		token, err := signer.Sign(jwtx.NewClaims(testIssuer, "user-1", []string{"web"}, time.Minute, now), jwtx.TypeIDToken)
		require.NoError(t, err)

		_, err = km.Verifier.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrWrongType)

		claims, err := km.IDTokenVerifier("web").Verify(token)
		require.NoError(t, err)
		require.Equal(t, "user-1", claims.Subject)

		_, err = km.IDTokenVerifier("other").Verify(token)
		require.ErrorIs(t, err, jwtx.ErrAudience)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()

		token, err := signer.Sign(jwtx.NewClaims(testIssuer, "user-1", nil, time.Minute, now.Add(-time.Hour)), jwtx.TypeAccessToken)
		require.NoError(t, err)

		_, err = km.Verifier.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		t.Parallel()

		token, err := signer.Sign(jwtx.NewClaims("https://evil.test", "user-1", nil, time.Minute, now), jwtx.TypeAccessToken)
		require.NoError(t, err)

		_, err = km.Verifier.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("signed by a foreign key", func(t *testing.T) {
		t.Parallel()

		other := newKeyManager(t, jwtx.AlgorithmEdDSA, 1)
		token, err := other.GetSigner().Sign(jwtx.NewClaims(testIssuer, "user-1", nil, time.Minute, now), jwtx.TypeAccessToken)
		require.NoError(t, err)

		_, err = km.Verifier.Verify(token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()

		_, err := km.Verifier.Verify("not.a.jwt")
		require.Error(t, err)
	})
}

func TestKeySetRejectsDuplicateKID(t *testing.T) {
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("dup", pemKey)
	require.NoError(t, err)

	ks := jwtx.NewKeySet()
	require.False(t, ks.IsReady())
	require.NoError(t, ks.AddSigner(signer))
	require.Error(t, ks.AddSigner(signer))

	_, err = ks.Get("missing")
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}
