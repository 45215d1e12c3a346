package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, display_name, secret_hash, redirect_uris, post_logout_redirect_uris,
	grant_types, scopes, created_at, updated_at`

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		c                                     domain.Client
		redirects, postLogout, grants, scopes string
		createdAt, updatedAt                  int64
	)
	err := row.Scan(&c.ID, &c.DisplayName, &c.SecretHash, &redirects, &postLogout,
		&grants, &scopes, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, err
	}
	c.RedirectURIs = splitList(redirects)
	c.PostLogoutRedirectURIs = splitList(postLogout)
	c.GrantTypes = splitList(grants)
	c.Scopes = splitList(scopes)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	c, err := scanClient(r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DisplayName, c.SecretHash, joinList(c.RedirectURIs), joinList(c.PostLogoutRedirectURIs),
		joinList(c.GrantTypes), joinList(c.Scopes), toMillis(now), toMillis(now))
	return mapConstraint(err)
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
