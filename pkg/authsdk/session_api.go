package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetUserInfo calls /connect/userinfo.
func (s *Session) GetUserInfo(ctx context.Context) (*UserInfoResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/connect/userinfo", nil)
	if err != nil {
		return nil, err
	}

	var info UserInfoResponse
	if err := decodeJSON(resp, &info, http.StatusOK); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListArticles returns one page of articles, optionally filtered by tag.
func (s *Session) ListArticles(ctx context.Context, page, pageSize int, tag string) (*Page[Article], error) {
	q := url.Values{
		"page":      {fmt.Sprint(page)},
		"page_size": {fmt.Sprint(pageSize)},
	}
	if tag != "" {
		q.Set("tag", tag)
	}

	var out Page[Article]
	if err := s.call(ctx, http.MethodGet, "/v1/articles?"+q.Encode(), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) GetArticle(ctx context.Context, id string) (*Article, error) {
	var out Article
	if err := s.call(ctx, http.MethodGet, "/v1/articles/"+url.PathEscape(id), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) CreateArticle(ctx context.Context, req ArticleRequest) (*Article, error) {
	var out Article
	if err := s.call(ctx, http.MethodPost, "/v1/articles", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateArticle replaces an article. req.Version must be the version last
// read, otherwise the server answers 409.
func (s *Session) UpdateArticle(ctx context.Context, id string, req ArticleRequest) (*Article, error) {
	var out Article
	if err := s.call(ctx, http.MethodPut, "/v1/articles/"+url.PathEscape(id), req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) DeleteArticle(ctx context.Context, id, version string) error {
	path := "/v1/articles/" + url.PathEscape(id) + "?version=" + url.QueryEscape(version)
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) AddComment(ctx context.Context, articleID, content string) (*Comment, error) {
	var out Comment
	path := "/v1/articles/" + url.PathEscape(articleID) + "/comments"
	if err := s.call(ctx, http.MethodPost, path, CommentRequest{Content: content}, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) ListComments(ctx context.Context, articleID string) ([]Comment, error) {
	var out []Comment
	path := "/v1/articles/" + url.PathEscape(articleID) + "/comments"
	if err := s.call(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) Rate(ctx context.Context, articleID string, value int) (*Rating, error) {
	var out Rating
	path := "/v1/articles/" + url.PathEscape(articleID) + "/ratings"
	if err := s.call(ctx, http.MethodPost, path, RatingRequest{Value: value}, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) GetRatingSummary(ctx context.Context, articleID string) (*RatingSummary, error) {
	var out RatingSummary
	path := "/v1/articles/" + url.PathEscape(articleID) + "/ratings"
	if err := s.call(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) ListTags(ctx context.Context) ([]Tag, error) {
	var out []Tag
	if err := s.call(ctx, http.MethodGet, "/v1/tags", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAttachment reserves an upload and returns its presigned PUT URL.
func (s *Session) CreateAttachment(ctx context.Context, articleID string, req AttachmentRequest) (*Attachment, error) {
	var out Attachment
	path := "/v1/articles/" + url.PathEscape(articleID) + "/attachments"
	if err := s.call(ctx, http.MethodPost, path, req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) call(ctx context.Context, method, path string, body, target any, expectedStatus int) error {
	resp, err := s.doAuthRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, expectedStatus)
}
