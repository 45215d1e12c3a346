package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
)

type userTokensRepo struct {
	db dbtx
}

func (r *userTokensRepo) CreateUserToken(ctx context.Context, t domain.UserToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_tokens (id, token_hash, user_id, purpose, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, t.Purpose, toMillis(t.ExpiresAt), toMillis(t.CreatedAt))
	return mapConstraint(err)
}

func (r *userTokensRepo) ConsumeUserToken(ctx context.Context, userID, purpose, hash string, now time.Time) error {
	return requireOne(r.db.ExecContext(ctx, `
		UPDATE user_tokens SET used_at = ?
		WHERE token_hash = ? AND user_id = ? AND purpose = ? AND used_at IS NULL AND expires_at > ?`,
		toMillis(now), hash, userID, purpose, toMillis(now)))
}

func (r *userTokensRepo) DeleteExpiredUserTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE expires_at < ? OR used_at IS NOT NULL`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type externalLoginsRepo struct {
	db dbtx
}

func (r *externalLoginsRepo) GetExternalLogin(ctx context.Context, provider, providerKey string) (domain.ExternalLogin, error) {
	var (
		l  domain.ExternalLogin
		at int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT provider, provider_key, provider_display_name, user_id, created_at
		FROM external_logins WHERE provider = ? AND provider_key = ?`, provider, providerKey).
		Scan(&l.Provider, &l.ProviderKey, &l.ProviderDisplayName, &l.UserID, &at)
	if err != nil {
		return domain.ExternalLogin{}, mapNotFound(err)
	}
	l.CreatedAt = fromMillis(at)
	return l, nil
}

func (r *externalLoginsRepo) CreateExternalLogin(ctx context.Context, l domain.ExternalLogin) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO external_logins (provider, provider_key, provider_display_name, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.Provider, l.ProviderKey, l.ProviderDisplayName, l.UserID, toMillis(l.CreatedAt))
	return mapConstraint(err)
}

func (r *externalLoginsRepo) ListExternalLogins(ctx context.Context, userID string) ([]domain.ExternalLogin, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT provider, provider_key, provider_display_name, user_id, created_at
		FROM external_logins WHERE user_id = ? ORDER BY provider`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExternalLogin
	for rows.Next() {
		var (
			l  domain.ExternalLogin
			at int64
		)
		if err := rows.Scan(&l.Provider, &l.ProviderKey, &l.ProviderDisplayName, &l.UserID, &at); err != nil {
			return nil, err
		}
		l.CreatedAt = fromMillis(at)
		out = append(out, l)
	}
	return out, rows.Err()
}
