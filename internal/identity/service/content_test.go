package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/stretchr/testify/require"
)

type fakePresigner struct{}

func (fakePresigner) PresignPut(_ context.Context, key, _ string) (string, error) {
	return "https://blobs.test/put/" + key, nil
}

func (fakePresigner) PresignGet(_ context.Context, key string) (string, error) {
	return "https://blobs.test/get/" + key, nil
}

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	require.Equal(t, "GOLANG", NormalizeTag("  golang "))
	require.Equal(t, "ÉTÉ", NormalizeTag("été"))
}

func TestArticleLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := &ContentService{Store: newTestStore(t)}

	a, err := svc.CreateArticle(ctx, "author-1", ArticleInput{
		Title:   "  Hello  ",
		Content: "body",
		Tags:    []string{"go", "Go", "news"},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello", a.Title)
	require.Equal(t, domain.ArticleDraft, a.State)
	require.Equal(t, "author-1", a.CreatedBy)
	require.Equal(t, "author-1", a.UpdatedBy)
	require.NotEmpty(t, a.Version)
	require.Len(t, a.Tags, 2, "tags are unique by normalized name")

	updated, err := svc.UpdateArticle(ctx, "editor-2", a.ID, a.Version, ArticleInput{
		Title: "Hello again",
		State: domain.ArticlePublished,
	})
	require.NoError(t, err)
	require.NotEqual(t, a.Version, updated.Version)
	require.Equal(t, "author-1", updated.CreatedBy)
	require.Equal(t, "editor-2", updated.UpdatedBy)
	require.Len(t, updated.Tags, 2, "nil tags leave links alone")

	_, err = svc.UpdateArticle(ctx, "editor-2", a.ID, a.Version, ArticleInput{Title: "Stale"})
	require.ErrorIs(t, err, store.ErrConcurrencyConflict)

	require.ErrorIs(t, svc.DeleteArticle(ctx, a.ID, a.Version), store.ErrConcurrencyConflict)
	require.NoError(t, svc.DeleteArticle(ctx, a.ID, updated.Version))
	require.ErrorIs(t, svc.DeleteArticle(ctx, a.ID, updated.Version), store.ErrNotFound)
}

func TestArticleValidation(t *testing.T) {
	t.Parallel()

	svc := &ContentService{Store: newTestStore(t)}
	_, err := svc.CreateArticle(context.Background(), "a", ArticleInput{State: "Archived"})

	var f FormErrors
	require.ErrorAs(t, err, &f)
	require.NotEmpty(t, f.Field("title"))
	require.NotEmpty(t, f.Field("state"))
}

func TestListArticlesByTag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := &ContentService{Store: newTestStore(t)}

	for _, title := range []string{"one", "two", "three"} {
		_, err := svc.CreateArticle(ctx, "a", ArticleInput{Title: title, Tags: []string{"all"}})
		require.NoError(t, err)
	}
	_, err := svc.CreateArticle(ctx, "a", ArticleInput{Title: "untagged"})
	require.NoError(t, err)

	page, err := svc.ListArticles(ctx, ArticleQuery{Tag: "ALL", PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalItems)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)

	page, err = svc.ListArticles(ctx, ArticleQuery{})
	require.NoError(t, err)
	require.Equal(t, 4, page.TotalItems)

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.Equal(t, "ALL", tags[0].NormalizedName)
}

func TestCommentsAndRatings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := &ContentService{Store: newTestStore(t)}
	a, err := svc.CreateArticle(ctx, "a", ArticleInput{Title: "Rated"})
	require.NoError(t, err)

	_, err = svc.AddComment(ctx, "u", "missing", "hi")
	require.ErrorIs(t, err, store.ErrNotFound)

	c, err := svc.AddComment(ctx, "u", a.ID, "first")
	require.NoError(t, err)
	edited, err := svc.UpdateComment(ctx, "u", c.ID, c.Version, "edited")
	require.NoError(t, err)
	_, err = svc.UpdateComment(ctx, "u", c.ID, c.Version, "again")
	require.ErrorIs(t, err, store.ErrConcurrencyConflict)

	comments, err := svc.ListComments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, "edited", comments[0].Content)
	require.NoError(t, svc.DeleteComment(ctx, c.ID, edited.Version))

	_, err = svc.Rate(ctx, "u", a.ID, 6)
	var f FormErrors
	require.ErrorAs(t, err, &f)

	for _, v := range []int{2, 4, 5} {
		_, err := svc.Rate(ctx, "u", a.ID, v)
		require.NoError(t, err)
	}
	sum, err := svc.RatingSummary(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Count)
	require.InDelta(t, 11.0/3.0, sum.Average, 0.0001)
}

func TestAttachments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := newTestStore(t)

	disabled := &ContentService{Store: st}
	_, _, err := disabled.CreateAttachment(ctx, "u", "x", "text/plain", "a.txt")
	require.ErrorIs(t, err, ErrBlobStorageDisabled)

	svc := &ContentService{Store: st, Blobs: fakePresigner{}}
	a, err := svc.CreateArticle(ctx, "u", ArticleInput{Title: "Files"})
	require.NoError(t, err)

	att, upload, err := svc.CreateAttachment(ctx, "u", a.ID, "application/pdf", "docs/data sheet.pdf")
	require.NoError(t, err)
	require.Equal(t, "https://blobs.test/put/"+att.Locator, upload)
	require.Contains(t, att.Locator, "articles/"+a.ID+"/")
	require.Equal(t, "docs/data sheet.pdf", att.Path)

	got, download, err := svc.AttachmentURL(ctx, att.ID)
	require.NoError(t, err)
	require.Equal(t, att.ID, got.ID)
	require.Equal(t, "https://blobs.test/get/"+att.Locator, download)

	list, err := svc.ListAttachments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.DeleteAttachment(ctx, att.ID, att.Version))
	_, _, err = svc.AttachmentURL(ctx, att.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
