package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/propulse/internal/identity/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op, the outer DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

// ApplyMigrations must run before any transaction is opened.
func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Users() store.Users                   { return &usersRepo{db: t.tx} }
func (t *txStore) Roles() store.Roles                   { return &rolesRepo{db: t.tx} }
func (t *txStore) Clients() store.Clients               { return &clientsRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens   { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) UserTokens() store.UserTokens         { return &userTokensRepo{db: t.tx} }
func (t *txStore) ExternalLogins() store.ExternalLogins { return &externalLoginsRepo{db: t.tx} }
func (t *txStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{db: t.tx}
}

func (t *txStore) Articles() store.Articles       { return &articlesRepo{db: t.tx} }
func (t *txStore) Comments() store.Comments       { return &commentsRepo{db: t.tx} }
func (t *txStore) Ratings() store.Ratings         { return &ratingsRepo{db: t.tx} }
func (t *txStore) Tags() store.Tags               { return &tagsRepo{db: t.tx} }
func (t *txStore) Attachments() store.Attachments { return &attachmentsRepo{db: t.tx} }
