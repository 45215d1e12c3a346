package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
)

const auditColumns = `created_at, created_by, updated_at, updated_by, version`

// auditDest returns scan destinations for the audit columns; call finish
// after Scan to convert the timestamps.
func auditDest(a *domain.Audit) (dest []any, finish func()) {
	var createdAt, updatedAt int64
	dest = []any{&createdAt, &a.CreatedBy, &updatedAt, &a.UpdatedBy, &a.Version}
	return dest, func() {
		a.CreatedAt = fromMillis(createdAt)
		a.UpdatedAt = fromMillis(updatedAt)
	}
}

func auditArgs(a domain.Audit) []any {
	return []any{toMillis(a.CreatedAt), a.CreatedBy, toMillis(a.UpdatedAt), a.UpdatedBy, a.Version}
}

// versionedWrite runs an UPDATE or DELETE guarded by "AND version = ?".
// When nothing matched it tells a missing row apart from a stale version.
func versionedWrite(ctx context.Context, db dbtx, table, id string, res sql.Result, err error) error {
	if err != nil {
		return mapConstraint(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return store.ErrConcurrencyConflict
}

type articlesRepo struct {
	db dbtx
}

const articleColumns = `id, title, summary, content, state, published_at, published_until, ` + auditColumns

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		a               domain.Article
		state           string
		published, till sql.NullInt64
	)
	audit, finish := auditDest(&a.Audit)
	dest := append([]any{&a.ID, &a.Title, &a.Summary, &a.Content, &state, &published, &till}, audit...)
	if err := row.Scan(dest...); err != nil {
		return domain.Article{}, err
	}
	finish()
	a.State = domain.ArticleState(state)
	a.PublishedAt = ptrMillis(published)
	a.PublishedUntil = ptrMillis(till)
	return a, nil
}

func (r *articlesRepo) ListArticles(ctx context.Context, q store.ArticleQuery) ([]domain.Article, int, error) {
	from := ` FROM articles a`
	where := ` WHERE 1 = 1`
	var args []any
	if q.Tag != "" {
		from += ` JOIN article_tags x ON x.article_id = a.id JOIN tags t ON t.id = x.tag_id`
		where += ` AND t.normalized_name = ?`
		args = append(args, q.Tag)
	}
	if q.State != "" {
		where += ` AND a.state = ?`
		args = append(args, string(q.State))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.title, a.summary, a.content, a.state, a.published_at, a.published_until,
			a.created_at, a.created_by, a.updated_at, a.updated_by, a.version`+from+where+
			` ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`,
		append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	for i := range out {
		if out[i].Tags, err = r.tagsOf(ctx, out[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *articlesRepo) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id))
	if err != nil {
		return domain.Article{}, mapNotFound(err)
	}
	if a.Tags, err = r.tagsOf(ctx, id); err != nil {
		return domain.Article{}, err
	}
	return a, nil
}

func (r *articlesRepo) tagsOf(ctx context.Context, articleID string) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.normalized_name, t.created_at, t.created_by, t.updated_at, t.updated_by, t.version
		FROM article_tags x JOIN tags t ON t.id = x.tag_id
		WHERE x.article_id = ? ORDER BY t.normalized_name`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTags(rows)
}

func (r *articlesRepo) CreateArticle(ctx context.Context, a domain.Article) error {
	args := append([]any{a.ID, a.Title, a.Summary, a.Content, string(a.State),
		nullMillis(a.PublishedAt), nullMillis(a.PublishedUntil)}, auditArgs(a.Audit)...)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (`+articleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	return mapConstraint(err)
}

func (r *articlesRepo) UpdateArticle(ctx context.Context, a domain.Article, expectedVersion string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE articles
		SET title = ?, summary = ?, content = ?, state = ?, published_at = ?, published_until = ?,
			updated_at = ?, updated_by = ?, version = ?
		WHERE id = ? AND version = ?`,
		a.Title, a.Summary, a.Content, string(a.State), nullMillis(a.PublishedAt), nullMillis(a.PublishedUntil),
		toMillis(a.UpdatedAt), a.UpdatedBy, a.Version, a.ID, expectedVersion)
	return versionedWrite(ctx, r.db, "articles", a.ID, res, err)
}

func (r *articlesRepo) DeleteArticle(ctx context.Context, id, expectedVersion string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ? AND version = ?`, id, expectedVersion)
	return versionedWrite(ctx, r.db, "articles", id, res, err)
}

func (r *articlesRepo) SetArticleTags(ctx context.Context, articleID string, tagIDs []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = ?`, articleID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO article_tags (article_id, tag_id) VALUES (?, ?)`, articleID, tagID); err != nil {
			return err
		}
	}
	return nil
}

type commentsRepo struct {
	db dbtx
}

const commentColumns = `id, article_id, content, ` + auditColumns

func scanComment(row rowScanner) (domain.Comment, error) {
	var c domain.Comment
	audit, finish := auditDest(&c.Audit)
	if err := row.Scan(append([]any{&c.ID, &c.ArticleID, &c.Content}, audit...)...); err != nil {
		return domain.Comment{}, err
	}
	finish()
	return c, nil
}

func (r *commentsRepo) ListComments(ctx context.Context, articleID string) ([]domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE article_id = ? ORDER BY created_at, id`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *commentsRepo) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id))
	if err != nil {
		return domain.Comment{}, mapNotFound(err)
	}
	return c, nil
}

func (r *commentsRepo) CreateComment(ctx context.Context, c domain.Comment) error {
	args := append([]any{c.ID, c.ArticleID, c.Content}, auditArgs(c.Audit)...)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	return mapConstraint(err)
}

func (r *commentsRepo) UpdateComment(ctx context.Context, c domain.Comment, expectedVersion string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE comments SET content = ?, updated_at = ?, updated_by = ?, version = ?
		WHERE id = ? AND version = ?`,
		c.Content, toMillis(c.UpdatedAt), c.UpdatedBy, c.Version, c.ID, expectedVersion)
	return versionedWrite(ctx, r.db, "comments", c.ID, res, err)
}

func (r *commentsRepo) DeleteComment(ctx context.Context, id, expectedVersion string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ? AND version = ?`, id, expectedVersion)
	return versionedWrite(ctx, r.db, "comments", id, res, err)
}

type ratingsRepo struct {
	db dbtx
}

func (r *ratingsRepo) CreateRating(ctx context.Context, rt domain.Rating) error {
	args := append([]any{rt.ID, rt.ArticleID, rt.Value}, auditArgs(rt.Audit)...)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ratings (id, article_id, value, `+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	return mapConstraint(err)
}

func (r *ratingsRepo) RatingSummary(ctx context.Context, articleID string) (int, float64, error) {
	var (
		count int
		avg   sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(value) FROM ratings WHERE article_id = ?`, articleID).Scan(&count, &avg)
	return count, avg.Float64, err
}

type tagsRepo struct {
	db dbtx
}

func scanTags(rows *sql.Rows) ([]domain.Tag, error) {
	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		audit, finish := auditDest(&t.Audit)
		if err := rows.Scan(append([]any{&t.ID, &t.Name, &t.NormalizedName}, audit...)...); err != nil {
			return nil, err
		}
		finish()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tagsRepo) GetOrCreateTag(ctx context.Context, t domain.Tag) (domain.Tag, error) {
	args := append([]any{t.ID, t.Name, t.NormalizedName}, auditArgs(t.Audit)...)
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, normalized_name, `+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (normalized_name) DO NOTHING`, args...); err != nil {
		return domain.Tag{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, normalized_name, `+auditColumns+` FROM tags WHERE normalized_name = ?`, t.NormalizedName)
	if err != nil {
		return domain.Tag{}, err
	}
	defer rows.Close()
	tags, err := scanTags(rows)
	if err != nil {
		return domain.Tag{}, err
	}
	if len(tags) == 0 {
		return domain.Tag{}, store.ErrNotFound
	}
	return tags[0], nil
}

func (r *tagsRepo) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, normalized_name, `+auditColumns+` FROM tags ORDER BY normalized_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTags(rows)
}

type attachmentsRepo struct {
	db dbtx
}

const attachmentColumns = `id, article_id, content_type, locator, path, ` + auditColumns

func scanAttachment(row rowScanner) (domain.Attachment, error) {
	var a domain.Attachment
	audit, finish := auditDest(&a.Audit)
	if err := row.Scan(append([]any{&a.ID, &a.ArticleID, &a.ContentType, &a.Locator, &a.Path}, audit...)...); err != nil {
		return domain.Attachment{}, err
	}
	finish()
	return a, nil
}

func (r *attachmentsRepo) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	a, err := scanAttachment(r.db.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id))
	if err != nil {
		return domain.Attachment{}, mapNotFound(err)
	}
	return a, nil
}

func (r *attachmentsRepo) ListAttachments(ctx context.Context, articleID string) ([]domain.Attachment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE article_id = ? ORDER BY created_at, id`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *attachmentsRepo) CreateAttachment(ctx context.Context, a domain.Attachment) error {
	args := append([]any{a.ID, a.ArticleID, a.ContentType, a.Locator, a.Path}, auditArgs(a.Audit)...)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attachments (`+attachmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	return mapConstraint(err)
}

func (r *attachmentsRepo) DeleteAttachment(ctx context.Context, id, expectedVersion string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ? AND version = ?`, id, expectedVersion)
	return versionedWrite(ctx, r.db, "attachments", id, res, err)
}
