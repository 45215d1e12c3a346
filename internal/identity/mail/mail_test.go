package mail

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/aussiebroadwan/propulse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestRendererEmbedded(t *testing.T) {
	t.Parallel()

	body, err := NewRenderer(nil).Render("confirm_email", map[string]string{
		"Email": "a@example.com",
		"Link":  "https://id.example/Account/ConfirmEmail?userId=1&code=abc",
	})
	require.NoError(t, err)
	require.Contains(t, body, "a@example.com")
	require.Contains(t, body, "userId=1&amp;code=abc")
}

func TestRendererSearchOrder(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"templates/email/welcome.html": {Data: []byte("welcome {{.}}")},
	}
	body, err := NewRenderer(fsys).Render("welcome", "bob")
	require.NoError(t, err)
	require.Equal(t, "welcome bob", body)
}

func TestRendererTemplateNotFound(t *testing.T) {
	t.Parallel()

	_, err := NewRenderer(fstest.MapFS{}).Render("missing", nil)

	var notFound *TemplateNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "missing", notFound.Name)
	require.Equal(t, []string{
		"templates/missing.html",
		"templates/email/missing.html",
		"missing.html",
	}, notFound.SearchedLocations)
}

func TestLoggingSender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := slogx.WithContext(context.Background(), logger)

	s := &LoggingSender{Renderer: NewRenderer(nil)}
	require.NoError(t, s.SendConfirmationLink(ctx, "a@example.com", "https://id.example/confirm"))
	require.NoError(t, s.SendPasswordResetCode(ctx, "a@example.com", "123456"))

	out := buf.String()
	require.Contains(t, out, `"template":"confirm_email"`)
	require.Contains(t, out, `"link":"https://id.example/confirm"`)
	require.Contains(t, out, `"code":"123456"`)

	broken := &LoggingSender{Renderer: NewRenderer(fstest.MapFS{})}
	var notFound *TemplateNotFoundError
	require.ErrorAs(t, broken.SendPasswordResetLink(ctx, "a@example.com", "x"), &notFound)
}
