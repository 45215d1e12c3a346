package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/cryptox"
	"github.com/aussiebroadwan/propulse/pkg/idx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

const (
	SeedAdminEmail       = "admin@propulse.local"
	SeedAdminDisplayName = "System Administrator"
	seedPasswordLength   = 16
)

// SeedDatabase creates the built-in roles and, on an empty user table, the
// initial administrator. The generated password is only ever logged. It
// returns the password when an account was created.
func SeedDatabase(ctx context.Context, st store.Store) (string, error) {
	l := slogx.FromContext(ctx)

	for _, name := range domain.DefaultRoles {
		if err := st.Roles().EnsureRole(ctx, domain.Role{Name: name}); err != nil {
			return "", fmt.Errorf("seed role %s: %w", name, err)
		}
	}

	n, err := st.Users().Count(ctx)
	if err != nil {
		return "", fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return "", nil
	}

	password, err := cryptox.GeneratePassword(seedPasswordLength)
	if err != nil {
		return "", err
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return "", err
	}
	admin := domain.User{
		ID:             idx.New().String(),
		Email:          SeedAdminEmail,
		Username:       SeedAdminEmail,
		DisplayName:    SeedAdminDisplayName,
		EmailConfirmed: true,
		PasswordHash:   hash,
		SecurityStamp:  cryptox.MustGenerateToken(cryptox.TokenSize128),
		LockoutEnabled: true,
		Roles:          []string{domain.RoleAdministrator},
	}
	if err := st.Users().CreateUser(ctx, admin); err != nil {
		return "", fmt.Errorf("create admin: %w", err)
	}

	l.Warn("created initial administrator account, change the password after first login",
		slog.String("email", SeedAdminEmail),
		slog.String("password", password))
	return password, nil
}
