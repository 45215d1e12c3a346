package domain

import "time"

// AuthorizationCode is a single-use grant bound to the principal snapshot it
// was issued for.
type AuthorizationCode struct {
	ID                  string
	CodeHash            string
	UserID              string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Principal           Principal
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}
