package domain

import "time"

// RefreshToken is the stored record of an opaque refresh token.
type RefreshToken struct {
	ID        string
	TokenHash string // base64url SHA-256 fingerprint
	UserID    string
	ClientID  string
	Scopes    []string
	Principal Principal
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User token purposes.
const (
	PurposeConfirmEmail  = "confirm_email"
	PurposeResetPassword = "reset_password"
)

// UserToken is a single-use emailed token.
type UserToken struct {
	ID        string
	TokenHash string
	UserID    string
	Purpose   string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// ExternalLogin links a provider account to a local user.
type ExternalLogin struct {
	Provider            string
	ProviderKey         string
	ProviderDisplayName string
	UserID              string
	CreatedAt           time.Time
}
