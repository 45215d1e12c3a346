package blob

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPresigner(t *testing.T) *S3Presigner {
	t.Helper()

	p, err := NewS3Presigner(context.Background(), S3Config{
		Region:       "us-east-1",
		Endpoint:     "http://127.0.0.1:9000",
		Bucket:       "propulse",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UsePathStyle: true,
		Expiry:       5 * time.Minute,
	})
	require.NoError(t, err)
	return p
}

func TestPresign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newTestPresigner(t)

	put, err := p.PresignPut(ctx, "articles/a1/k/diagram.png", "image/png")
	require.NoError(t, err)
	u, err := url.Parse(put)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", u.Host)
	require.Equal(t, "/propulse/articles/a1/k/diagram.png", u.Path)
	require.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	require.NotEmpty(t, u.Query().Get("X-Amz-Signature"))

	get, err := p.PresignGet(ctx, "articles/a1/k/diagram.png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(get, "http://127.0.0.1:9000/propulse/articles/a1/k/diagram.png?"))
}

func TestNewS3PresignerRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewS3Presigner(context.Background(), S3Config{})
	require.Error(t, err)
}

func TestNewKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"diagram.png":           "diagram.png",
		"docs/guide/readme.md":   "readme.md",
		`C:\Users\me\photo.jpg`: "photo.jpg",
		"":                      "file",
		"../":                   "file",
	}
	for in, want := range tests {
		key := NewKey("a1", in)
		parts := strings.Split(key, "/")
		require.Len(t, parts, 4, key)
		require.Equal(t, "articles", parts[0])
		require.Equal(t, "a1", parts[1])
		require.Len(t, parts[2], 36)
		require.Equal(t, want, parts[3], in)
	}
}
