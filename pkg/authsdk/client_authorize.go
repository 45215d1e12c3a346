package authsdk

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/propulse/pkg/cryptox"
)

// SessionCookieName is the browser session cookie set by /Account/Login.
const SessionCookieName = "propulse_session"

// ErrLoginRequired is returned when /connect/authorize challenges for a
// browser login.
var ErrLoginRequired = errors.New("authsdk: login required")

// PKCEChallenge holds the PKCE verifier and its S256 challenge.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCEChallenge creates a verifier with 256 bits of entropy
// (RFC 7636).
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	hash := sha256.Sum256([]byte(verifier))
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(hash[:]),
		Method:    "S256",
	}, nil
}

// AuthorizeRequest are the parameters of an authorization code request.
type AuthorizeRequest struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string
	Nonce       string
	PKCE        *PKCEChallenge
}

func (r AuthorizeRequest) values() url.Values {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {r.ClientID},
		"redirect_uri":  {r.RedirectURI},
	}
	if r.State != "" {
		params.Set("state", r.State)
	}
	if r.Nonce != "" {
		params.Set("nonce", r.Nonce)
	}
	if len(r.Scopes) > 0 {
		params.Set("scope", strings.Join(r.Scopes, " "))
	}
	if r.PKCE != nil {
		params.Set("code_challenge", r.PKCE.Challenge)
		params.Set("code_challenge_method", r.PKCE.Method)
	}
	return params
}

// BuildAuthorizeURL returns the URL to send the user's browser to.
func (c *SDKClient) BuildAuthorizeURL(req AuthorizeRequest) string {
	return c.url("/connect/authorize?" + req.values().Encode())
}

// ParseAuthorizationCallback extracts code and state from the redirect back
// to the client, or the error the server redirected with.
func ParseAuthorizationCallback(callbackURL string) (code, state string, err error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse callback URL: %w", err)
	}

	query := u.Query()
	if errorCode := query.Get("error"); errorCode != "" {
		return "", "", fmt.Errorf("authorization error: %s - %s", errorCode, query.Get("error_description"))
	}

	code = query.Get("code")
	if code == "" {
		return "", "", fmt.Errorf("callback missing authorization code")
	}
	return code, query.Get("state"), nil
}

// Browser drives the cookie based pages the way a user agent would. It keeps
// cookies and does not follow redirects, so each hop can be inspected.
type Browser struct {
	client *SDKClient
	http   *http.Client
}

// NewBrowser creates a Browser with an empty cookie jar.
func (c *SDKClient) NewBrowser() (*Browser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Browser{
		client: c,
		http: &http.Client{
			Timeout: c.HTTPClient.Timeout,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Get requests a path or absolute URL.
func (b *Browser) Get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.resolve(target), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return b.do(req)
}

// PostForm submits a form to a path or absolute URL.
func (b *Browser) PostForm(ctx context.Context, target string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.resolve(target), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *Browser) resolve(target string) string {
	if strings.HasPrefix(target, "/") {
		return b.client.url(target)
	}
	return target
}

func (b *Browser) do(req *http.Request) (*http.Response, error) {
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// Login submits the login form and returns where the server redirected to.
// A page re-render (200) means the attempt was rejected.
func (b *Browser) Login(ctx context.Context, email, password, returnURL string) (string, error) {
	form := url.Values{
		"Email":     {email},
		"Password":  {password},
		"ReturnUrl": {returnURL},
	}
	resp, err := b.PostForm(ctx, "/Account/Login", form)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusFound {
		return "", fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}
	return resp.Header.Get("Location"), nil
}

// Authorize requests a code with the browser's session. It returns
// ErrLoginRequired when the session is missing or no longer valid.
func (b *Browser) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	resp, err := b.Get(ctx, b.client.BuildAuthorizeURL(req))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusFound {
		return "", parseErrorResponse(resp, body)
	}

	location := resp.Header.Get("Location")
	if strings.HasPrefix(location, "/Account/Login") {
		return "", ErrLoginRequired
	}
	code, state, err := ParseAuthorizationCallback(location)
	if err != nil {
		return "", err
	}
	if state != req.State {
		return "", fmt.Errorf("state mismatch: got %q", state)
	}
	return code, nil
}

// AuthorizeWithPassword logs in when needed, authorizes and exchanges the
// code for tokens.
func (b *Browser) AuthorizeWithPassword(
	ctx context.Context,
	req AuthorizeRequest,
	clientSecret, email, password string,
) (*TokenResponse, error) {
	code, err := b.Authorize(ctx, req)
	if errors.Is(err, ErrLoginRequired) {
		if _, err = b.Login(ctx, email, password, "/"); err != nil {
			return nil, err
		}
		code, err = b.Authorize(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return b.client.ExchangeAuthorizationCode(ctx, req.ClientID, clientSecret, code, req.RedirectURI, req.PKCE)
}
