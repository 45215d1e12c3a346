package identity_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helpers for the identity service end-to-end tests:
 * container setup, client registration and sign in.
 */

const (
	testImageName = "propulse-identity-test:latest"

	bootstrapToken = "test-bootstrap-token-12345"
	adminEmail     = "admin@propulse.local"
	redirectURI    = "http://localhost/callback"
	userPassword   = "Passw0rd!"
)

var webScopes = []string{"openid", "profile", "email", "roles", "api", "offline_access"}

// TestMain builds the Docker image once before all tests and removes it
// afterwards.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Identity Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Identity Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/identity/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // image might not exist
}

// identityContainer is a running identity service.
type identityContainer struct {
	BaseURL   string
	container testcontainers.Container
}

// setupIdentityContainer starts the service with relaxed rate limits. Extra
// env entries override the defaults.
func setupIdentityContainer(t *testing.T, extra map[string]string) *identityContainer {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"BOOTSTRAP_TOKEN":                    bootstrapToken,
		"IDENTITY_ISSUER":                    "http://localhost:8080",
		"IDENTITY_ALGORITHM":                 "EdDSA",
		"IDENTITY_NUM_KEYS":                  "1",
		"IDENTITY_REQUIRE_CONFIRMED_ACCOUNT": "false",
		"ENV":                                "test",
		"LOG_LEVEL":                          "info",
		"LOG_FORMAT":                         "json",
		// Tests make many rapid requests from one address
		"RATELIMIT_STRICT_REQUESTS":   "1000",
		"RATELIMIT_STRICT_WINDOW_SEC": "60",
		"RATELIMIT_STRICT_BURST":      "1000",
		"RATELIMIT_MODERATE_REQUESTS": "1000",
		"RATELIMIT_MODERATE_BURST":    "1000",
	}
	for k, v := range extra {
		env[k] = v
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImageName,
			ExposedPorts: []string{"8080/tcp"},
			Env:          env,
			WaitingFor: wait.ForHTTP("/livez").
				WithPort("8080/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return &identityContainer{
		BaseURL:   fmt.Sprintf("http://%s:%s", host, mappedPort.Port()),
		container: container,
	}
}

// adminPassword reads the generated administrator password from the
// container's JSON logs.
func (c *identityContainer) adminPassword(t *testing.T) string {
	t.Helper()

	logs, err := c.container.Logs(t.Context())
	require.NoError(t, err)
	defer logs.Close()

	scanner := bufio.NewScanner(logs)
	for scanner.Scan() {
		var entry struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		line := scanner.Bytes()
		// Skip anything in front of the JSON object
		if i := bytes.IndexByte(line, '{'); i > 0 {
			line = line[i:]
		}
		if json.Unmarshal(line, &entry) == nil && entry.Email == adminEmail && entry.Password != "" {
			return entry.Password
		}
	}
	t.Fatal("administrator password not found in container logs")
	return ""
}

// registerWebClient registers a public authorization code client.
func registerWebClient(t *testing.T, client *authsdk.SDKClient) string {
	t.Helper()

	info, err := client.RegisterClient(t.Context(), bootstrapToken, authsdk.CreateClientRequest{
		DisplayName:  "E2E Web",
		RedirectURIs: []string{redirectURI},
		GrantTypes:   []string{"authorization_code", "refresh_token"},
		Scopes:       webScopes,
	})
	require.NoError(t, err)
	require.Empty(t, info.ClientSecret, "public clients have no secret")
	return info.ClientID
}

// registerServiceClient registers a confidential client_credentials client.
func registerServiceClient(t *testing.T, client *authsdk.SDKClient, id string) (string, string) {
	t.Helper()

	info, err := client.RegisterClient(t.Context(), bootstrapToken, authsdk.CreateClientRequest{
		ClientID:     id,
		DisplayName:  "E2E Service",
		Confidential: true,
		GrantTypes:   []string{"client_credentials"},
		Scopes:       []string{"api"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, info.ClientSecret)
	return info.ClientID, info.ClientSecret
}

// signIn runs the authorization code flow with PKCE for email and returns
// a session carrying the tokens.
func signIn(t *testing.T, client *authsdk.SDKClient, clientID, email, password string) *authsdk.Session {
	t.Helper()

	browser, err := client.NewBrowser()
	require.NoError(t, err)
	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)

	tokens, err := browser.AuthorizeWithPassword(t.Context(), authsdk.AuthorizeRequest{
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scopes:      webScopes,
		State:       "e2e-state",
		Nonce:       "e2e-nonce",
		PKCE:        pkce,
	}, "", email, password)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.IDToken)
	require.NotEmpty(t, tokens.RefreshToken)

	return client.NewSessionFromTokens(clientID, "", tokens)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}

// requireStatus asserts err is an OAuth2 error with the given status.
func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	var oauthErr *authsdk.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	require.Equal(t, status, oauthErr.StatusCode, "unexpected error: %v", err)
}
