package domain

import "time"

// Built-in roles, seeded on startup.
const (
	RoleUser          = "User"
	RoleAdministrator = "Administrator"
	RoleAuthor        = "Author"
)

// DefaultRoles is seeded in this order.
var DefaultRoles = []string{RoleUser, RoleAdministrator, RoleAuthor}

type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
