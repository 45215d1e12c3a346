package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/propulse/internal/identity/blob"
	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MaxTitleLength   = 255
	MaxSummaryLength = 4096
)

var ErrBlobStorageDisabled = errors.New("attachment storage is not configured")

// NormalizeTag is the unique key of a tag name.
func NormalizeTag(name string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(name))
}

func newAudit(actor string, now time.Time) domain.Audit {
	return domain.Audit{
		CreatedAt: now,
		CreatedBy: actor,
		UpdatedAt: now,
		UpdatedBy: actor,
		Version:   uuid.NewString(),
	}
}

// touch stamps a write. Every write gets a new version.
func touch(a *domain.Audit, actor string, now time.Time) {
	a.UpdatedAt = now
	a.UpdatedBy = actor
	a.Version = uuid.NewString()
}

// ContentService manages articles and their children. Actor is the id of
// the acting user and lands in the audit columns.
type ContentService struct {
	Store store.Store
	Blobs blob.Presigner // nil disables attachments
}

type ArticleInput struct {
	Title          string
	Summary        string
	Content        string
	State          domain.ArticleState
	PublishedAt    *time.Time
	PublishedUntil *time.Time
	Tags           []string
}

func (in *ArticleInput) validate() error {
	f := FormErrors{}
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		f.Add("title", "The Title field is required.")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		f.Add("title", fmt.Sprintf("The Title field must be at most %d characters.", MaxTitleLength))
	}
	if utf8.RuneCountInString(in.Summary) > MaxSummaryLength {
		f.Add("summary", fmt.Sprintf("The Summary field must be at most %d characters.", MaxSummaryLength))
	}
	if in.State == "" {
		in.State = domain.ArticleDraft
	}
	if !in.State.Valid() {
		f.Add("state", fmt.Sprintf("Unknown state '%s'.", in.State))
	}
	if in.PublishedAt != nil && in.PublishedUntil != nil && in.PublishedUntil.Before(*in.PublishedAt) {
		f.Add("published_until", "The publication window ends before it starts.")
	}
	for _, t := range in.Tags {
		if strings.TrimSpace(t) == "" {
			f.Add("tags", "Tag names cannot be empty.")
			break
		}
	}
	return f.OrNil()
}

type ArticleQuery struct {
	Tag        string
	State      domain.ArticleState
	PageNumber int
	PageSize   int
}

func (s *ContentService) ListArticles(ctx context.Context, q ArticleQuery) (PaginatedList[domain.Article], error) {
	if q.PageNumber < 1 {
		q.PageNumber = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	q.PageSize = min(q.PageSize, MaxPageSize)

	sq := store.ArticleQuery{
		State:  q.State,
		Offset: (q.PageNumber - 1) * q.PageSize,
		Limit:  q.PageSize,
	}
	if q.Tag != "" {
		sq.Tag = NormalizeTag(q.Tag)
	}
	items, total, err := s.Store.Articles().ListArticles(ctx, sq)
	if err != nil {
		return PaginatedList[domain.Article]{}, fmt.Errorf("list articles: %w", err)
	}
	return NewPaginatedList(items, total, q.PageNumber, q.PageSize), nil
}

func (s *ContentService) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	return s.Store.Articles().GetArticle(ctx, id)
}

func (s *ContentService) CreateArticle(ctx context.Context, actor string, in ArticleInput) (domain.Article, error) {
	if err := in.validate(); err != nil {
		return domain.Article{}, err
	}

	a := domain.Article{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(in.Title),
		Summary:        in.Summary,
		Content:        in.Content,
		State:          in.State,
		PublishedAt:    in.PublishedAt,
		PublishedUntil: in.PublishedUntil,
		Audit:          newAudit(actor, time.Now()),
	}
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Articles().CreateArticle(ctx, a); err != nil {
			return err
		}
		tags, err := s.linkTags(ctx, tx, actor, a.ID, in.Tags)
		a.Tags = tags
		return err
	})
	if err != nil {
		return domain.Article{}, err
	}
	return a, nil
}

// UpdateArticle replaces the editable fields of the article at version. A
// nil Tags leaves the tag links alone.
func (s *ContentService) UpdateArticle(ctx context.Context, actor, id, version string, in ArticleInput) (domain.Article, error) {
	if err := in.validate(); err != nil {
		return domain.Article{}, err
	}

	var out domain.Article
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		a, err := tx.Articles().GetArticle(ctx, id)
		if err != nil {
			return err
		}
		if a.Version != version {
			return store.ErrConcurrencyConflict
		}

		a.Title = strings.TrimSpace(in.Title)
		a.Summary = in.Summary
		a.Content = in.Content
		a.State = in.State
		a.PublishedAt = in.PublishedAt
		a.PublishedUntil = in.PublishedUntil
		touch(&a.Audit, actor, time.Now())

		if err := tx.Articles().UpdateArticle(ctx, a, version); err != nil {
			return err
		}
		if in.Tags != nil {
			if a.Tags, err = s.linkTags(ctx, tx, actor, a.ID, in.Tags); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	return out, err
}

func (s *ContentService) DeleteArticle(ctx context.Context, id, version string) error {
	return s.Store.Articles().DeleteArticle(ctx, id, version)
}

func (s *ContentService) linkTags(ctx context.Context, tx store.Tx, actor, articleID string, names []string) ([]domain.Tag, error) {
	tags := make([]domain.Tag, 0, len(names))
	ids := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		norm := NormalizeTag(name)
		if seen[norm] {
			continue
		}
		seen[norm] = true

		t, err := tx.Tags().GetOrCreateTag(ctx, domain.Tag{
			ID:             uuid.NewString(),
			Name:           strings.TrimSpace(name),
			NormalizedName: norm,
			Audit:          newAudit(actor, time.Now()),
		})
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", name, err)
		}
		tags = append(tags, t)
		ids = append(ids, t.ID)
	}
	if err := tx.Articles().SetArticleTags(ctx, articleID, ids); err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *ContentService) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return s.Store.Tags().ListTags(ctx)
}

func (s *ContentService) ListComments(ctx context.Context, articleID string) ([]domain.Comment, error) {
	if _, err := s.Store.Articles().GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	return s.Store.Comments().ListComments(ctx, articleID)
}

func (s *ContentService) AddComment(ctx context.Context, actor, articleID, content string) (domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		f := FormErrors{}
		f.Add("content", "The Content field is required.")
		return domain.Comment{}, f
	}
	if _, err := s.Store.Articles().GetArticle(ctx, articleID); err != nil {
		return domain.Comment{}, err
	}

	c := domain.Comment{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		Content:   content,
		Audit:     newAudit(actor, time.Now()),
	}
	if err := s.Store.Comments().CreateComment(ctx, c); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (s *ContentService) UpdateComment(ctx context.Context, actor, id, version, content string) (domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		f := FormErrors{}
		f.Add("content", "The Content field is required.")
		return domain.Comment{}, f
	}
	c, err := s.Store.Comments().GetComment(ctx, id)
	if err != nil {
		return domain.Comment{}, err
	}
	c.Content = content
	touch(&c.Audit, actor, time.Now())
	if err := s.Store.Comments().UpdateComment(ctx, c, version); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (s *ContentService) DeleteComment(ctx context.Context, id, version string) error {
	return s.Store.Comments().DeleteComment(ctx, id, version)
}

// RatingSummary is the aggregate shown with an article.
type RatingSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

func (s *ContentService) Rate(ctx context.Context, actor, articleID string, value int) (domain.Rating, error) {
	if value < 1 || value > 5 {
		f := FormErrors{}
		f.Add("value", "The Value field must be between 1 and 5.")
		return domain.Rating{}, f
	}
	if _, err := s.Store.Articles().GetArticle(ctx, articleID); err != nil {
		return domain.Rating{}, err
	}

	r := domain.Rating{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		Value:     value,
		Audit:     newAudit(actor, time.Now()),
	}
	if err := s.Store.Ratings().CreateRating(ctx, r); err != nil {
		return domain.Rating{}, err
	}
	return r, nil
}

func (s *ContentService) RatingSummary(ctx context.Context, articleID string) (RatingSummary, error) {
	n, avg, err := s.Store.Ratings().RatingSummary(ctx, articleID)
	if err != nil {
		return RatingSummary{}, err
	}
	return RatingSummary{Count: n, Average: avg}, nil
}

func (s *ContentService) ListAttachments(ctx context.Context, articleID string) ([]domain.Attachment, error) {
	if _, err := s.Store.Articles().GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	return s.Store.Attachments().ListAttachments(ctx, articleID)
}

// CreateAttachment records the attachment and returns a presigned URL the
// client uploads the bytes to.
func (s *ContentService) CreateAttachment(ctx context.Context, actor, articleID, contentType, path string) (domain.Attachment, string, error) {
	if s.Blobs == nil {
		return domain.Attachment{}, "", ErrBlobStorageDisabled
	}
	f := FormErrors{}
	if strings.TrimSpace(contentType) == "" {
		f.Add("content_type", "The ContentType field is required.")
	}
	if strings.TrimSpace(path) == "" {
		f.Add("path", "The Path field is required.")
	}
	if err := f.OrNil(); err != nil {
		return domain.Attachment{}, "", err
	}
	if _, err := s.Store.Articles().GetArticle(ctx, articleID); err != nil {
		return domain.Attachment{}, "", err
	}

	a := domain.Attachment{
		ID:          uuid.NewString(),
		ArticleID:   articleID,
		ContentType: contentType,
		Locator:     blob.NewKey(articleID, path),
		Path:        path,
		Audit:       newAudit(actor, time.Now()),
	}
	upload, err := s.Blobs.PresignPut(ctx, a.Locator, a.ContentType)
	if err != nil {
		return domain.Attachment{}, "", fmt.Errorf("presign upload: %w", err)
	}
	if err := s.Store.Attachments().CreateAttachment(ctx, a); err != nil {
		return domain.Attachment{}, "", err
	}
	return a, upload, nil
}

// AttachmentURL returns a presigned download URL.
func (s *ContentService) AttachmentURL(ctx context.Context, id string) (domain.Attachment, string, error) {
	if s.Blobs == nil {
		return domain.Attachment{}, "", ErrBlobStorageDisabled
	}
	a, err := s.Store.Attachments().GetAttachment(ctx, id)
	if err != nil {
		return domain.Attachment{}, "", err
	}
	u, err := s.Blobs.PresignGet(ctx, a.Locator)
	if err != nil {
		return domain.Attachment{}, "", fmt.Errorf("presign download: %w", err)
	}
	return a, u, nil
}

// DeleteAttachment removes the record. The object is left for bucket
// lifecycle rules to expire.
func (s *ContentService) DeleteAttachment(ctx context.Context, id, version string) error {
	return s.Store.Attachments().DeleteAttachment(ctx, id, version)
}
