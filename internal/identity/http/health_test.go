package http

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var live authsdk.HealthResponse
	require.Equal(t, http.StatusOK, env.api(t, http.MethodGet, "/livez", "", nil, &live))
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	var ready authsdk.HealthResponse
	require.Equal(t, http.StatusOK, env.api(t, http.MethodGet, "/readyz", "", nil, &ready))
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)
	require.Equal(t, "ok", ready.Checks.Sessions)
}
