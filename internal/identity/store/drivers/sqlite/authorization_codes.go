package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
)

type authorizationCodesRepo struct {
	db dbtx
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, c domain.AuthorizationCode) error {
	principal, err := json.Marshal(c.Principal)
	if err != nil {
		return fmt.Errorf("encode principal: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (id, code_hash, user_id, client_id, redirect_uri, scopes, nonce,
			code_challenge, code_challenge_method, principal, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CodeHash, c.UserID, c.ClientID, c.RedirectURI, joinList(c.Scopes), c.Nonce,
		c.CodeChallenge, c.CodeChallengeMethod, string(principal), toMillis(c.ExpiresAt), toMillis(c.CreatedAt))
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	var (
		c                    domain.AuthorizationCode
		scopes, principal    string
		expiresAt, createdAt int64
		usedAt               sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code_hash, user_id, client_id, redirect_uri, scopes, nonce,
			code_challenge, code_challenge_method, principal, expires_at, used_at, created_at
		FROM authorization_codes WHERE code_hash = ?`, hash).
		Scan(&c.ID, &c.CodeHash, &c.UserID, &c.ClientID, &c.RedirectURI, &scopes, &c.Nonce,
			&c.CodeChallenge, &c.CodeChallengeMethod, &principal, &expiresAt, &usedAt, &createdAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(principal), &c.Principal); err != nil {
		return domain.AuthorizationCode{}, fmt.Errorf("decode principal: %w", err)
	}
	c.Scopes = splitList(scopes)
	c.ExpiresAt = fromMillis(expiresAt)
	c.UsedAt = ptrMillis(usedAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *authorizationCodesRepo) MarkAuthorizationCodeUsed(ctx context.Context, id string, at time.Time) error {
	return requireOne(r.db.ExecContext(ctx,
		`UPDATE authorization_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		toMillis(at), id))
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
