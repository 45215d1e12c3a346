package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrAlreadyExists       = errors.New("store: already exists")
	ErrConcurrencyConflict = errors.New("store: concurrency conflict")
)

// Store is the root data access interface. Sub-repositories are obtained from
// a Store or from a Tx, never mixed, so a transaction cannot be nested by
// accident.
type Store interface {
	Users() Users
	Roles() Roles
	Clients() Clients
	AuthorizationCodes() AuthorizationCodes
	RefreshTokens() RefreshTokens
	UserTokens() UserTokens
	ExternalLogins() ExternalLogins

	Articles() Articles
	Comments() Comments
	Ratings() Ratings
	Tags() Tags
	Attachments() Attachments

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when it returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// UserQuery filters and pages the user listing. Search matches username,
// email and display name case-insensitively.
type UserQuery struct {
	Search string
	Offset int
	Limit  int
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up by normalized email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser fails with ErrAlreadyExists on a duplicate email or username.
	CreateUser(ctx context.Context, u domain.User) error

	UpdateProfile(ctx context.Context, id, displayName string, emailConfirmed bool) error
	ConfirmEmail(ctx context.Context, id string) error

	// UpdatePassword sets the hash and security stamp and clears lockout.
	UpdatePassword(ctx context.Context, id, passwordHash, securityStamp string) error

	// SetAccessFailed records the failure counter and lockout end.
	SetAccessFailed(ctx context.Context, id string, count int, lockoutEnd *time.Time) error

	UpdateTwoFactor(ctx context.Context, id string, secret *string, enabledAt *time.Time) error

	DeleteUser(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)

	// Search returns a page ordered by username and the total match count.
	Search(ctx context.Context, q UserQuery) ([]domain.User, int, error)

	AddToRoles(ctx context.Context, userID string, roles []string) error
	RemoveFromRoles(ctx context.Context, userID string, roles []string) error
	CountInRole(ctx context.Context, role string) (int, error)
}

type Roles interface {
	// EnsureRole creates the role unless it exists.
	EnsureRole(ctx context.Context, r domain.Role) error
	ListRoles(ctx context.Context) ([]domain.Role, error)
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)
	CreateClient(ctx context.Context, c domain.Client) error
	ListClients(ctx context.Context) ([]domain.Client, error)
}

type AuthorizationCodes interface {
	CreateAuthorizationCode(ctx context.Context, c domain.AuthorizationCode) error
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// MarkAuthorizationCodeUsed consumes the code. A second call for the same
	// code returns ErrNotFound.
	MarkAuthorizationCodeUsed(ctx context.Context, id string, at time.Time) error

	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked. Revoking an already revoked token
	// returns ErrNotFound, which makes rotation race free.
	RevokeRefreshToken(ctx context.Context, hash string) error

	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type UserTokens interface {
	CreateUserToken(ctx context.Context, t domain.UserToken) error

	// ConsumeUserToken marks a matching unexpired, unused token as used.
	// Anything else returns ErrNotFound.
	ConsumeUserToken(ctx context.Context, userID, purpose, hash string, now time.Time) error

	DeleteExpiredUserTokens(ctx context.Context, now time.Time) (int64, error)
}

type ExternalLogins interface {
	GetExternalLogin(ctx context.Context, provider, providerKey string) (domain.ExternalLogin, error)
	CreateExternalLogin(ctx context.Context, l domain.ExternalLogin) error
	ListExternalLogins(ctx context.Context, userID string) ([]domain.ExternalLogin, error)
}

// ArticleQuery filters and pages the article listing, newest first.
type ArticleQuery struct {
	Tag    string // normalized tag name
	State  domain.ArticleState
	Offset int
	Limit  int
}

// Content repositories apply optimistic concurrency: Update and Delete take
// the version the caller last read and fail with ErrConcurrencyConflict when
// the row has moved on, or ErrNotFound when it is gone.

type Articles interface {
	ListArticles(ctx context.Context, q ArticleQuery) ([]domain.Article, int, error)
	GetArticle(ctx context.Context, id string) (domain.Article, error)
	CreateArticle(ctx context.Context, a domain.Article) error
	UpdateArticle(ctx context.Context, a domain.Article, expectedVersion string) error
	DeleteArticle(ctx context.Context, id, expectedVersion string) error

	// SetArticleTags replaces the tag links.
	SetArticleTags(ctx context.Context, articleID string, tagIDs []string) error
}

type Comments interface {
	ListComments(ctx context.Context, articleID string) ([]domain.Comment, error)
	GetComment(ctx context.Context, id string) (domain.Comment, error)
	CreateComment(ctx context.Context, c domain.Comment) error
	UpdateComment(ctx context.Context, c domain.Comment, expectedVersion string) error
	DeleteComment(ctx context.Context, id, expectedVersion string) error
}

type Ratings interface {
	CreateRating(ctx context.Context, r domain.Rating) error
	// RatingSummary returns the count and mean of an article's ratings.
	RatingSummary(ctx context.Context, articleID string) (int, float64, error)
}

type Tags interface {
	// GetOrCreateTag returns the tag with t.NormalizedName, inserting t if
	// there is none.
	GetOrCreateTag(ctx context.Context, t domain.Tag) (domain.Tag, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)
}

type Attachments interface {
	GetAttachment(ctx context.Context, id string) (domain.Attachment, error)
	ListAttachments(ctx context.Context, articleID string) ([]domain.Attachment, error)
	CreateAttachment(ctx context.Context, a domain.Attachment) error
	DeleteAttachment(ctx context.Context, id, expectedVersion string) error
}
