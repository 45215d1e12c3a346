package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler, mark("outer"), mark("inner"))
	serve(h, "/", "127.0.0.1:1")
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestGetRemoteIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"remote addr", nil, "192.168.1.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.1, 192.168.1.1"}, "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.2"}, "203.0.113.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.GetRemoteIP(req))
		})
	}
}

func TestIsLocalURL(t *testing.T) {
	for _, u := range []string{"/", "/connect/authorize?client_id=web", "/Manage/Index"} {
		require.True(t, httpx.IsLocalURL(u), u)
	}
	for _, u := range []string{"", "https://evil.test/", "//evil.test", `/\evil.test`, "javascript:alert(1)"} {
		require.False(t, httpx.IsLocalURL(u), u)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	require.Equal(t, "abc", httpx.BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, httpx.BearerToken(req))

	form := url.Values{"access_token": {"xyz"}}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, "xyz", httpx.BearerToken(req))
}

func TestBearerAuthAndAuthorization(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "https://id.propulse.test",
		NumKeys:   1,
	})
	require.NoError(t, err)

	mint := func(scope string, roles ...string) string {
		c := jwtx.NewClaims(km.Issuer(), "user-1", nil, time.Minute, time.Now())
		c.Scope = scope
		c.Role = roles
		tok, err := km.GetSigner().Sign(c, jwtx.TypeAccessToken)
		require.NoError(t, err)
		return tok
	}

	var gotUser string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = httpx.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := httpx.Chain(inner,
		httpx.BearerAuth(km.Verifier),
		httpx.RequireAnyScope("api"),
		httpx.RequireAnyRole("Author", "Administrator"),
	)

	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := call("")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

	require.Equal(t, http.StatusUnauthorized, call("garbage").Code)

	rec = call(mint("openid", "Author"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")

	require.Equal(t, http.StatusForbidden, call(mint("api", "User")).Code)

	require.Equal(t, http.StatusOK, call(mint("openid api", "Author")).Code)
	require.Equal(t, "user-1", gotUser)
}
