package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
)

func intersectScopes(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func validatePKCE(challenge, method string, client domain.Client) (string, string, error) {
	challenge = strings.TrimSpace(challenge)
	method = strings.TrimSpace(method)

	if challenge == "" {
		if !client.IsConfidential() {
			return "", "", ErrInvalidRequest
		}
		return "", "", nil
	}

	switch {
	case strings.EqualFold(method, "S256"), method == "":
		return challenge, "S256", nil
	case strings.EqualFold(method, "plain"):
		return challenge, "plain", nil
	default:
		return "", "", ErrInvalidRequest
	}
}

func verifyCodeVerifier(challenge, method, verifier string) bool {
	if challenge == "" {
		return true
	}
	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return false
	}

	switch method {
	case "plain":
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case "S256":
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(S256Challenge(verifier))) == 1
	default:
		return false
	}
}

// S256Challenge derives the PKCE S256 code challenge of verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
