package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/session"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

const (
	SessionCookieName = authsdk.SessionCookieName
	flashCookieName   = "propulse_flash"

	DefaultSessionTTL           = 12 * time.Hour
	DefaultPersistentSessionTTL = 14 * 24 * time.Hour
)

// Cookies issues and resolves the browser session cookie. The cookie holds
// only the id of a server-side session.
type Cookies struct {
	Sessions      session.Store
	Secure        bool
	TTL           time.Duration
	PersistentTTL time.Duration
}

// SignIn starts a session for userID. A persistent session survives the
// browser closing; otherwise the cookie has no Expires.
func (c *Cookies) SignIn(w http.ResponseWriter, r *http.Request, userID string, amr []string, persistent bool) error {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if persistent {
		ttl = c.PersistentTTL
		if ttl <= 0 {
			ttl = DefaultPersistentSessionTTL
		}
	}

	// Replace whatever session the browser had.
	if old, err := r.Cookie(SessionCookieName); err == nil && old.Value != "" {
		_ = c.Sessions.Delete(r.Context(), old.Value)
	}

	s := session.New(userID, amr, persistent, ttl)
	if err := c.Sessions.Save(r.Context(), s); err != nil {
		return err
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		cookie.Expires = s.ExpiresAt
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)

	slogx.FromContext(r.Context()).Info("session started",
		slog.String("user_id", userID),
		slog.Bool("persistent", persistent),
	)
	return nil
}

// Current returns the live session behind the request.
func (c *Cookies) Current(r *http.Request) (session.Session, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return session.Session{}, false
	}
	s, err := c.Sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slogx.FromContext(r.Context()).Error("failed to load session", slog.Any("error", err))
		}
		return session.Session{}, false
	}
	return s, true
}

// SignOut drops the server-side session and expires the cookie.
func (c *Cookies) SignOut(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := c.Sessions.Delete(r.Context(), cookie.Value); err != nil {
			slogx.FromContext(r.Context()).Warn("failed to delete session", slog.Any("error", err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// EndUserSessions signs a user out everywhere.
func (c *Cookies) EndUserSessions(ctx context.Context, userID string) error {
	return c.Sessions.DeleteUser(ctx, userID)
}

// setFlash stores a one-shot message shown by the next page.
func setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    encodeFlash(msg),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash reads and clears the flash message.
func takeFlash(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookieName, Path: "/", MaxAge: -1})
	msg, err := decodeFlash(cookie.Value)
	if err != nil {
		return ""
	}
	return msg
}
