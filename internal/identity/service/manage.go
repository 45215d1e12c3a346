package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PaginatedList is one page of a listing. PageIndex is 1-based.
type PaginatedList[T any] struct {
	Items      []T
	PageIndex  int
	PageSize   int
	TotalItems int
	TotalPages int
}

func NewPaginatedList[T any](items []T, total, pageIndex, pageSize int) PaginatedList[T] {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return PaginatedList[T]{
		Items:      items,
		PageIndex:  pageIndex,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: pages,
	}
}

func (p PaginatedList[T]) HasPreviousPage() bool { return p.PageIndex > 1 }
func (p PaginatedList[T]) HasNextPage() bool     { return p.PageIndex < p.TotalPages }

// ManageService backs the administrator console.
type ManageService struct {
	Store store.Store
}

// ListUsers pages users ordered by username. Out of range page numbers and
// sizes are clamped.
func (s *ManageService) ListUsers(ctx context.Context, search string, pageNumber, pageSize int) (PaginatedList[domain.User], error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	users, total, err := s.Store.Users().Search(ctx, store.UserQuery{
		Search: strings.TrimSpace(search),
		Offset: (pageNumber - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return PaginatedList[domain.User]{}, fmt.Errorf("search users: %w", err)
	}
	return NewPaginatedList(users, total, pageNumber, pageSize), nil
}

func (s *ManageService) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, id)
}

func (s *ManageService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.Store.Roles().ListRoles(ctx)
}

type EditUserInput struct {
	ID             string
	DisplayName    string
	EmailConfirmed bool
	Roles          []string
}

// EditUser updates the profile and applies the role diff. Removals go first,
// then additions, each as its own batch.
func (s *ManageService) EditUser(ctx context.Context, actorID string, in EditUserInput) error {
	f := FormErrors{}
	validateDisplayName(f, "DisplayName", in.DisplayName)
	if err := f.OrNil(); err != nil {
		return err
	}

	u, err := s.Store.Users().GetUserByID(ctx, in.ID)
	if err != nil {
		return err
	}

	known, err := s.Store.Roles().ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	wanted := make([]string, 0, len(in.Roles))
	for _, name := range dedupe(in.Roles) {
		idx := slices.IndexFunc(known, func(r domain.Role) bool { return strings.EqualFold(r.Name, name) })
		if idx < 0 {
			f.AddForm(fmt.Sprintf("Role '%s' does not exist.", name))
			continue
		}
		wanted = append(wanted, known[idx].Name)
	}
	if err := f.OrNil(); err != nil {
		return err
	}

	var remove, add []string
	for _, r := range u.Roles {
		if !slices.Contains(wanted, r) {
			remove = append(remove, r)
		}
	}
	for _, r := range wanted {
		if !slices.Contains(u.Roles, r) {
			add = append(add, r)
		}
	}

	if actorID == u.ID && slices.Contains(remove, domain.RoleAdministrator) {
		return ErrRemoveOwnAdministrator
	}
	if slices.Contains(remove, domain.RoleAdministrator) {
		if err := s.ensureOtherAdministrator(ctx); err != nil {
			return err
		}
	}

	if err := s.Store.Users().UpdateProfile(ctx, u.ID, strings.TrimSpace(in.DisplayName), in.EmailConfirmed); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if len(remove) > 0 {
		if err := s.Store.Users().RemoveFromRoles(ctx, u.ID, remove); err != nil {
			return fmt.Errorf("remove roles: %w", err)
		}
	}
	if len(add) > 0 {
		if err := s.Store.Users().AddToRoles(ctx, u.ID, add); err != nil {
			return fmt.Errorf("add roles: %w", err)
		}
	}

	slogx.FromContext(ctx).Info("user updated",
		slog.String("user_id", u.ID),
		slog.String("actor_id", actorID),
		slog.Any("roles_added", add),
		slog.Any("roles_removed", remove))
	return nil
}

// DeleteUser removes a user. Actors cannot delete themselves, and the last
// administrator cannot be deleted.
func (s *ManageService) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrDeleteSelf
	}
	u, err := s.Store.Users().GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if u.HasRole(domain.RoleAdministrator) {
		if err := s.ensureOtherAdministrator(ctx); err != nil {
			return err
		}
	}
	if err := s.Store.Users().DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	slogx.FromContext(ctx).Info("user deleted", slog.String("user_id", id), slog.String("actor_id", actorID))
	return nil
}

func (s *ManageService) ensureOtherAdministrator(ctx context.Context) error {
	n, err := s.Store.Users().CountInRole(ctx, domain.RoleAdministrator)
	if err != nil {
		return fmt.Errorf("count administrators: %w", err)
	}
	if n <= 1 {
		return ErrLastAdministrator
	}
	return nil
}

// IsNotFound reports whether err means the user is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
