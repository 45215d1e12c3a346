package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/idx"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, normalized_email, username, display_name, email_confirmed,
	password_hash, security_stamp, lockout_enabled, access_failed_count, lockout_end,
	totp_secret, two_factor_enabled, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                    domain.User
		lockoutEnd, tfaAt    sql.NullInt64
		totp                 sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.NormalizedEmail, &u.Username, &u.DisplayName, &u.EmailConfirmed,
		&u.PasswordHash, &u.SecurityStamp, &u.LockoutEnabled, &u.AccessFailedCount, &lockoutEnd,
		&totp, &tfaAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.LockoutEnd = ptrMillis(lockoutEnd)
	u.TOTPSecret = ptrString(totp)
	u.TwoFactorEnabled = ptrMillis(tfaAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) get(ctx context.Context, where string, arg any) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	if u.Roles, err = r.rolesOf(ctx, u.ID); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.get(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.get(ctx, `normalized_email = ?`, domain.NormalizeEmail(email))
}

func (r *usersRepo) rolesOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ? ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`, normalized_username, normalized_display_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, domain.NormalizeEmail(u.Email), u.Username, u.DisplayName, u.EmailConfirmed,
		u.PasswordHash, u.SecurityStamp, u.LockoutEnabled, u.AccessFailedCount, nullMillis(u.LockoutEnd),
		nullString(u.TOTPSecret), nullMillis(u.TwoFactorEnabled), toMillis(u.CreatedAt), toMillis(now),
		domain.FoldSearch(u.Username), domain.FoldSearch(u.DisplayName))
	if err != nil {
		return mapConstraint(err)
	}
	return r.AddToRoles(ctx, u.ID, u.Roles)
}

func (r *usersRepo) UpdateProfile(ctx context.Context, id, displayName string, emailConfirmed bool) error {
	return requireOne(r.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, normalized_display_name = ?, email_confirmed = ?, updated_at = ? WHERE id = ?`,
		displayName, domain.FoldSearch(displayName), emailConfirmed, toMillis(time.Now()), id))
}

func (r *usersRepo) ConfirmEmail(ctx context.Context, id string) error {
	return requireOne(r.db.ExecContext(ctx,
		`UPDATE users SET email_confirmed = 1, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), id))
}

func (r *usersRepo) UpdatePassword(ctx context.Context, id, passwordHash, securityStamp string) error {
	return requireOne(r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?, security_stamp = ?, access_failed_count = 0, lockout_end = NULL, updated_at = ?
		WHERE id = ?`,
		passwordHash, securityStamp, toMillis(time.Now()), id))
}

func (r *usersRepo) SetAccessFailed(ctx context.Context, id string, count int, lockoutEnd *time.Time) error {
	return requireOne(r.db.ExecContext(ctx,
		`UPDATE users SET access_failed_count = ?, lockout_end = ?, updated_at = ? WHERE id = ?`,
		count, nullMillis(lockoutEnd), toMillis(time.Now()), id))
}

func (r *usersRepo) UpdateTwoFactor(ctx context.Context, id string, secret *string, enabledAt *time.Time) error {
	return requireOne(r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = ?, two_factor_enabled = ?, updated_at = ? WHERE id = ?`,
		nullString(secret), nullMillis(enabledAt), toMillis(time.Now()), id))
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return requireOne(r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

func (r *usersRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *usersRepo) Search(ctx context.Context, q store.UserQuery) ([]domain.User, int, error) {
	where := ""
	var args []any
	if s := strings.TrimSpace(q.Search); s != "" {
		folded := "%" + escapeLike(domain.FoldSearch(s)) + "%"
		email := "%" + escapeLike(domain.NormalizeEmail(s)) + "%"
		where = ` WHERE normalized_username LIKE ? ESCAPE '\' OR normalized_email LIKE ? ESCAPE '\' OR normalized_display_name LIKE ? ESCAPE '\'`
		args = []any{folded, email, folded}
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+where+` ORDER BY username LIMIT ? OFFSET ?`,
		append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	for i := range users {
		if users[i].Roles, err = r.rolesOf(ctx, users[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// AddToRoles links the user to each named role. Unknown role names fail.
func (r *usersRepo) AddToRoles(ctx context.Context, userID string, roles []string) error {
	for _, name := range roles {
		res, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO user_roles (user_id, role_id)
			SELECT ?, id FROM roles WHERE name = ?`, userID, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM roles WHERE name = ?`, name).Scan(&exists)
			if err != nil {
				return err
			}
			if exists == 0 {
				return fmt.Errorf("role %q: %w", name, store.ErrNotFound)
			}
		}
	}
	if len(roles) > 0 {
		_, err := r.db.ExecContext(ctx, `UPDATE users SET updated_at = ? WHERE id = ?`, toMillis(time.Now()), userID)
		return err
	}
	return nil
}

func (r *usersRepo) RemoveFromRoles(ctx context.Context, userID string, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	args := []any{userID}
	for _, name := range roles {
		args = append(args, name)
	}
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id = ? AND role_id IN (SELECT id FROM roles WHERE name IN (`+placeholders(len(roles))+`))`,
		args...)
	return err
}

func (r *usersRepo) CountInRole(ctx context.Context, role string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE r.name = ?`, role).Scan(&n)
	return n, err
}

type rolesRepo struct {
	db dbtx
}

func (r *rolesRepo) EnsureRole(ctx context.Context, role domain.Role) error {
	if role.ID == "" {
		role.ID = idx.New().String()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO roles (id, name, created_at) VALUES (?, ?, ?)`,
		role.ID, role.Name, toMillis(role.CreatedAt))
	return err
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var (
			role domain.Role
			at   int64
		)
		if err := rows.Scan(&role.ID, &role.Name, &at); err != nil {
			return nil, err
		}
		role.CreatedAt = fromMillis(at)
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
