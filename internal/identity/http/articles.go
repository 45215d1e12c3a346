package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/authsdk"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// ArticlesHandler serves the /v1 content API. Callers are authenticated by
// the bearer middleware; the acting user id comes from the token subject.
type ArticlesHandler struct {
	Content *service.ContentService
}

// writeContentError maps content service errors to API responses.
func writeContentError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var fe service.FormErrors
	switch {
	case errors.As(err, &fe):
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Code:    authsdk.ErrorCodeValidationError,
			Message: "One or more fields are invalid.",
			Details: fe,
		})
	case errors.Is(err, store.ErrNotFound):
		authsdk.ErrNotFound.WriteError(w)
	case errors.Is(err, store.ErrConcurrencyConflict):
		authsdk.ErrConflict.WriteError(w)
	case errors.Is(err, service.ErrBlobStorageDisabled):
		authsdk.NewOAuth2Error(http.StatusNotImplemented, authsdk.ErrorCodeServerError, err.Error()).WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error(msg, slog.Any("error", err))
		authsdk.ErrServerError.WriteError(w)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		authsdk.ErrInvalidRequest.WithDescription("invalid JSON in request body").WriteError(w)
		return false
	}
	return true
}

func actor(r *http.Request) string { return httpx.UserIDFromContext(r.Context()) }

func articleInput(req authsdk.ArticleRequest) service.ArticleInput {
	return service.ArticleInput{
		Title:          req.Title,
		Summary:        req.Summary,
		Content:        req.Content,
		State:          domain.ArticleState(req.State),
		PublishedAt:    req.PublishedAt,
		PublishedUntil: req.PublishedUntil,
		Tags:           req.Tags,
	}
}

func toAudit(a domain.Audit) authsdk.Audit {
	return authsdk.Audit{
		CreatedAt: a.CreatedAt,
		CreatedBy: a.CreatedBy,
		UpdatedAt: a.UpdatedAt,
		UpdatedBy: a.UpdatedBy,
		Version:   a.Version,
	}
}

func toArticle(a domain.Article) authsdk.Article {
	tags := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		tags = append(tags, t.Name)
	}
	return authsdk.Article{
		ID:             a.ID,
		Title:          a.Title,
		Summary:        a.Summary,
		Content:        a.Content,
		State:          string(a.State),
		PublishedAt:    a.PublishedAt,
		PublishedUntil: a.PublishedUntil,
		Tags:           tags,
		Audit:          toAudit(a.Audit),
	}
}

func toComment(c domain.Comment) authsdk.Comment {
	return authsdk.Comment{ID: c.ID, ArticleID: c.ArticleID, Content: c.Content, Audit: toAudit(c.Audit)}
}

func toAttachment(a domain.Attachment) authsdk.Attachment {
	return authsdk.Attachment{
		ID:          a.ID,
		ArticleID:   a.ArticleID,
		ContentType: a.ContentType,
		Locator:     a.Locator,
		Path:        a.Path,
		Audit:       toAudit(a.Audit),
	}
}

// List handles GET /v1/articles
//
//	@Summary	List articles
//	@Tags		Articles
//	@Produce	json
//	@Security	BearerAuth
//	@Param		page		query		int		false	"1-based page index"	default(1)
//	@Param		page_size	query		int		false	"Items per page"		default(10)
//	@Param		tag			query		string	false	"Only articles carrying this tag"
//	@Param		state		query		string	false	"Only articles in this state"	Enums(Draft, Published, Retired)
//	@Success	200			{object}	authsdk.Page[authsdk.Article]
//	@Failure	401			{object}	authsdk.ErrorResponse
//	@Failure	403			{object}	authsdk.ErrorResponse
//	@Router		/v1/articles [get]
func (h *ArticlesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	list, err := h.Content.ListArticles(r.Context(), service.ArticleQuery{
		Tag:        q.Get("tag"),
		State:      domain.ArticleState(q.Get("state")),
		PageNumber: page,
		PageSize:   size,
	})
	if err != nil {
		writeContentError(w, r, "failed to list articles", err)
		return
	}

	out := authsdk.Page[authsdk.Article]{
		Items:           make([]authsdk.Article, 0, len(list.Items)),
		PageIndex:       list.PageIndex,
		TotalPages:      list.TotalPages,
		TotalItems:      list.TotalItems,
		HasPreviousPage: list.HasPreviousPage(),
		HasNextPage:     list.HasNextPage(),
	}
	for _, a := range list.Items {
		out.Items = append(out.Items, toArticle(a))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Get handles GET /v1/articles/{id}
//
//	@Summary	Get an article
//	@Tags		Articles
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Article id"
//	@Success	200	{object}	authsdk.Article
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Router		/v1/articles/{id} [get]
func (h *ArticlesHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.Content.GetArticle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeContentError(w, r, "failed to load article", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toArticle(a))
}

// Create handles POST /v1/articles
//
//	@Summary	Create an article
//	@Tags		Articles
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.ArticleRequest	true	"Article"
//	@Success	201		{object}	authsdk.Article
//	@Failure	400		{object}	authsdk.ValidationErrorResponse
//	@Failure	403		{object}	authsdk.ErrorResponse
//	@Router		/v1/articles [post]
func (h *ArticlesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ArticleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.Content.CreateArticle(r.Context(), actor(r), articleInput(req))
	if err != nil {
		writeContentError(w, r, "failed to create article", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toArticle(a))
}

// Update handles PUT /v1/articles/{id}. The body carries the version last
// read. Tags are replaced only when present.
//
//	@Summary	Update an article
//	@Tags		Articles
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Article id"
//	@Param		request	body		authsdk.ArticleRequest	true	"Article with version"
//	@Success	200		{object}	authsdk.Article
//	@Failure	400		{object}	authsdk.ValidationErrorResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Failure	409		{object}	authsdk.ErrorResponse	"concurrency_conflict"
//	@Router		/v1/articles/{id} [put]
func (h *ArticlesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ArticleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Version == "" {
		authsdk.ErrInvalidRequest.WithDescription("version is required").WriteError(w)
		return
	}
	a, err := h.Content.UpdateArticle(r.Context(), actor(r), r.PathValue("id"), req.Version, articleInput(req))
	if err != nil {
		writeContentError(w, r, "failed to update article", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toArticle(a))
}

// Delete handles DELETE /v1/articles/{id}?version=
//
//	@Summary	Delete an article
//	@Tags		Articles
//	@Security	BearerAuth
//	@Param		id		path	string	true	"Article id"
//	@Param		version	query	string	true	"Version last read"
//	@Success	204		"Deleted"
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Failure	409		{object}	authsdk.ErrorResponse	"concurrency_conflict"
//	@Router		/v1/articles/{id} [delete]
func (h *ArticlesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if version == "" {
		authsdk.ErrInvalidRequest.WithDescription("version is required").WriteError(w)
		return
	}
	if err := h.Content.DeleteArticle(r.Context(), r.PathValue("id"), version); err != nil {
		writeContentError(w, r, "failed to delete article", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments handles GET /v1/articles/{id}/comments
//
//	@Summary	List comments of an article
//	@Tags		Comments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Article id"
//	@Success	200	{array}	authsdk.Comment
//	@Router		/v1/articles/{id}/comments [get]
func (h *ArticlesHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.Content.ListComments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeContentError(w, r, "failed to list comments", err)
		return
	}
	out := make([]authsdk.Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, toComment(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// AddComment handles POST /v1/articles/{id}/comments
//
//	@Summary	Comment on an article
//	@Tags		Comments
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Article id"
//	@Param		request	body		authsdk.CommentRequest	true	"Comment"
//	@Success	201		{object}	authsdk.Comment
//	@Failure	400		{object}	authsdk.ValidationErrorResponse
//	@Router		/v1/articles/{id}/comments [post]
func (h *ArticlesHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.Content.AddComment(r.Context(), actor(r), r.PathValue("id"), req.Content)
	if err != nil {
		writeContentError(w, r, "failed to add comment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toComment(c))
}

// UpdateComment handles PUT /v1/comments/{id}
//
//	@Summary	Edit a comment
//	@Tags		Comments
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Comment id"
//	@Param		request	body		authsdk.CommentRequest	true	"Comment with version"
//	@Success	200		{object}	authsdk.Comment
//	@Failure	409		{object}	authsdk.ErrorResponse	"concurrency_conflict"
//	@Router		/v1/comments/{id} [put]
func (h *ArticlesHandler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Version == "" {
		authsdk.ErrInvalidRequest.WithDescription("version is required").WriteError(w)
		return
	}
	c, err := h.Content.UpdateComment(r.Context(), actor(r), r.PathValue("id"), req.Version, req.Content)
	if err != nil {
		writeContentError(w, r, "failed to update comment", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toComment(c))
}

// DeleteComment handles DELETE /v1/comments/{id}?version=
//
//	@Summary	Delete a comment
//	@Tags		Comments
//	@Security	BearerAuth
//	@Param		id		path	string	true	"Comment id"
//	@Param		version	query	string	true	"Version last read"
//	@Success	204		"Deleted"
//	@Router		/v1/comments/{id} [delete]
func (h *ArticlesHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if version == "" {
		authsdk.ErrInvalidRequest.WithDescription("version is required").WriteError(w)
		return
	}
	if err := h.Content.DeleteComment(r.Context(), r.PathValue("id"), version); err != nil {
		writeContentError(w, r, "failed to delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rate handles POST /v1/articles/{id}/ratings
//
//	@Summary	Rate an article
//	@Tags		Ratings
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string					true	"Article id"
//	@Param		request	body		authsdk.RatingRequest	true	"Rating between 1 and 5"
//	@Success	201		{object}	authsdk.Rating
//	@Failure	400		{object}	authsdk.ValidationErrorResponse
//	@Router		/v1/articles/{id}/ratings [post]
func (h *ArticlesHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RatingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rt, err := h.Content.Rate(r.Context(), actor(r), r.PathValue("id"), req.Value)
	if err != nil {
		writeContentError(w, r, "failed to rate article", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.Rating{
		ID:        rt.ID,
		ArticleID: rt.ArticleID,
		Value:     rt.Value,
		Audit:     toAudit(rt.Audit),
	})
}

// RatingSummary handles GET /v1/articles/{id}/ratings
//
//	@Summary	Rating summary of an article
//	@Tags		Ratings
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Article id"
//	@Success	200	{object}	authsdk.RatingSummary
//	@Router		/v1/articles/{id}/ratings [get]
func (h *ArticlesHandler) RatingSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Content.RatingSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeContentError(w, r, "failed to summarise ratings", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RatingSummary{Count: sum.Count, Average: sum.Average})
}

// ListTags handles GET /v1/tags
//
//	@Summary	List tags
//	@Tags		Tags
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}	authsdk.Tag
//	@Router		/v1/tags [get]
func (h *ArticlesHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Content.ListTags(r.Context())
	if err != nil {
		writeContentError(w, r, "failed to list tags", err)
		return
	}
	out := make([]authsdk.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, authsdk.Tag{ID: t.ID, Name: t.Name, NormalizedName: t.NormalizedName})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// ListAttachments handles GET /v1/articles/{id}/attachments
//
//	@Summary	List attachments of an article
//	@Tags		Attachments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Article id"
//	@Success	200	{array}	authsdk.Attachment
//	@Router		/v1/articles/{id}/attachments [get]
func (h *ArticlesHandler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Content.ListAttachments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeContentError(w, r, "failed to list attachments", err)
		return
	}
	out := make([]authsdk.Attachment, 0, len(list))
	for _, a := range list {
		out = append(out, toAttachment(a))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// CreateAttachment handles POST /v1/articles/{id}/attachments
//
//	@Summary		Reserve an attachment upload
//	@Description	Records the attachment and returns a presigned PUT URL the bytes are uploaded to.
//	@Tags			Attachments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string						true	"Article id"
//	@Param			request	body		authsdk.AttachmentRequest	true	"Attachment"
//	@Success		201		{object}	authsdk.Attachment			"upload_url is set"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse
//	@Failure		501		{object}	authsdk.ErrorResponse		"Object storage is not configured"
//	@Router			/v1/articles/{id}/attachments [post]
func (h *ArticlesHandler) CreateAttachment(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AttachmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, upload, err := h.Content.CreateAttachment(r.Context(), actor(r), r.PathValue("id"), req.ContentType, req.Path)
	if err != nil {
		writeContentError(w, r, "failed to create attachment", err)
		return
	}
	out := toAttachment(a)
	out.UploadURL = upload
	httpx.WriteJSON(w, http.StatusCreated, out)
}

// GetAttachment handles GET /v1/attachments/{id}
//
//	@Summary	Get an attachment with a download URL
//	@Tags		Attachments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Attachment id"
//	@Success	200	{object}	authsdk.Attachment	"download_url is set"
//	@Failure	404	{object}	authsdk.ErrorResponse
//	@Router		/v1/attachments/{id} [get]
func (h *ArticlesHandler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	a, download, err := h.Content.AttachmentURL(r.Context(), r.PathValue("id"))
	if err != nil {
		writeContentError(w, r, "failed to load attachment", err)
		return
	}
	out := toAttachment(a)
	out.DownloadURL = download
	httpx.WriteJSON(w, http.StatusOK, out)
}

// DeleteAttachment handles DELETE /v1/attachments/{id}?version=
//
//	@Summary	Delete an attachment
//	@Tags		Attachments
//	@Security	BearerAuth
//	@Param		id		path	string	true	"Attachment id"
//	@Param		version	query	string	true	"Version last read"
//	@Success	204		"Deleted"
//	@Router		/v1/attachments/{id} [delete]
func (h *ArticlesHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	version := r.URL.Query().Get("version")
	if version == "" {
		authsdk.ErrInvalidRequest.WithDescription("version is required").WriteError(w)
		return
	}
	if err := h.Content.DeleteAttachment(r.Context(), r.PathValue("id"), version); err != nil {
		writeContentError(w, r, "failed to delete attachment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
