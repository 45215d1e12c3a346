package authsdk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Session holds tokens and refreshes the access token when it expires. Safe
// for concurrent use.
type Session struct {
	client       *SDKClient
	clientID     string
	clientSecret string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	idToken      string
	expiresAt    time.Time
	scopes       map[string]bool
}

// refreshSkew renews slightly before the server's expiry.
const refreshSkew = 30 * time.Second

func newSession(client *SDKClient, clientID, clientSecret string, tokenResp *TokenResponse) *Session {
	s := &Session{client: client, clientID: clientID, clientSecret: clientSecret}
	s.store(tokenResp)
	return s
}

func (s *Session) store(t *TokenResponse) {
	s.accessToken = t.AccessToken
	if t.RefreshToken != "" {
		s.refreshToken = t.RefreshToken
	}
	if t.IDToken != "" {
		s.idToken = t.IDToken
	}
	s.expiresAt = time.Now().Add(time.Duration(t.ExpiresIn)*time.Second - refreshSkew)
	s.scopes = parseScopes(t.Scope)
}

func parseScopes(scopeStr string) map[string]bool {
	parts := strings.Fields(scopeStr)
	scopes := make(map[string]bool, len(parts))
	for _, scope := range parts {
		scopes[scope] = true
	}
	return scopes
}

// getValidToken returns the access token, refreshing it first if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.clientID, s.clientSecret, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(tokenResp)
	return s.accessToken, nil
}

// Refresh forces a refresh token rotation.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.expiresAt = time.Time{}
	s.mu.Unlock()
	_, err := s.getValidToken(ctx)
	return err
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *Session) IDToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idToken
}

// HasScope reports whether the last token response granted scope.
func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scopes[scope]
}
