package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	principal, err := json.Marshal(t.Principal)
	if err != nil {
		return fmt.Errorf("encode principal: %w", err)
	}
	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, user_id, client_id, scopes, principal, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, t.ClientID, joinList(t.Scopes), string(principal),
		toMillis(t.ExpiresAt), toMillis(now), toMillis(now))
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t                               domain.RefreshToken
		scopes, principal               string
		expiresAt, createdAt, updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, client_id, scopes, principal, expires_at, revoked, created_at, updated_at
		FROM refresh_tokens WHERE token_hash = ?`, hash).
		Scan(&t.ID, &t.TokenHash, &t.UserID, &t.ClientID, &scopes, &principal,
			&expiresAt, &t.Revoked, &createdAt, &updatedAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(principal), &t.Principal); err != nil {
		return domain.RefreshToken{}, fmt.Errorf("decode principal: %w", err)
	}
	t.Scopes = splitList(scopes)
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string) error {
	return requireOne(r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE token_hash = ? AND revoked = 0`,
		toMillis(time.Now()), hash))
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, updated_at = ? WHERE user_id = ? AND revoked = 0`,
		toMillis(time.Now()), userID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
