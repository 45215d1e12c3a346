// Package session keeps server-side browser sessions for the account pages
// and the authorization endpoint. The cookie only carries the session id.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/propulse/pkg/cryptox"
)

var ErrNotFound = errors.New("session: not found")

type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	AMR        []string  `json:"amr,omitempty"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Store interface {
	Save(ctx context.Context, s Session) error
	// Get returns ErrNotFound for unknown and expired sessions.
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteUser drops every session of userID.
	DeleteUser(ctx context.Context, userID string) error
	// Sweep removes expired sessions and reports how many went.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
}

// New starts a session for userID that lives for ttl.
func New(userID string, amr []string, persistent bool, ttl time.Duration) Session {
	now := time.Now().UTC()
	return Session{
		ID:         cryptox.MustGenerateToken(cryptox.TokenSize256),
		UserID:     userID,
		AMR:        amr,
		Persistent: persistent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}
