// Package mail delivers account emails. The only transport is the log.
package mail

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// Sender delivers the account emails. Calls return once the message has
// been handed off.
type Sender interface {
	SendConfirmationLink(ctx context.Context, email, link string) error
	SendPasswordResetLink(ctx context.Context, email, link string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
}

// LoggingSender writes each message to the request logger. When Renderer is
// set the HTML body is rendered as well, so a broken template fails the send.
type LoggingSender struct {
	Renderer *Renderer
}

func (s *LoggingSender) SendConfirmationLink(ctx context.Context, email, link string) error {
	return s.send(ctx, "confirm_email", email, slog.String("link", link))
}

func (s *LoggingSender) SendPasswordResetLink(ctx context.Context, email, link string) error {
	return s.send(ctx, "reset_password", email, slog.String("link", link))
}

func (s *LoggingSender) SendPasswordResetCode(ctx context.Context, email, code string) error {
	return s.send(ctx, "reset_code", email, slog.String("code", code))
}

func (s *LoggingSender) send(ctx context.Context, template, email string, payload slog.Attr) error {
	log := slogx.FromContext(ctx)

	if s.Renderer != nil {
		body, err := s.Renderer.Render(template, map[string]string{
			"Email": email,
			"Link":  payload.Value.String(),
		})
		if err != nil {
			return err
		}
		log.Debug("email rendered", slog.String("template", template), slog.Int("bytes", len(body)))
	}

	log.Info("email sent", slog.String("template", template), slog.String("email", email), payload)
	return nil
}
