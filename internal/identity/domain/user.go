package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

type User struct {
	ID                string
	Email             string
	NormalizedEmail   string
	Username          string
	DisplayName       string
	EmailConfirmed    bool
	PasswordHash      string // argon2id PHC, empty for external-only accounts
	SecurityStamp     string // rotated on credential changes
	LockoutEnabled    bool
	AccessFailedCount int
	LockoutEnd        *time.Time
	TOTPSecret        *string    // base32
	TwoFactorEnabled  *time.Time // set once enrolment is verified
	Roles             []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NormalizeEmail is the lookup key for emails.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FoldSearch is the case-folded key user search matches against. Unlike
// SQLite's lower() it folds non-ASCII letters too.
func FoldSearch(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// IsLockedOut reports whether the lockout window is still open.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

// HasTwoFactor reports whether a verified TOTP secret is enrolled.
func (u *User) HasTwoFactor() bool {
	return u.TwoFactorEnabled != nil && u.TOTPSecret != nil
}
