package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/store"
	"github.com/stretchr/testify/require"
)

func TestPaginatedList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		total, page, per int
		pages            int
		prev, next       bool
	}{
		{"empty", 0, 1, 10, 0, false, false},
		{"single page", 7, 1, 10, 1, false, false},
		{"exact fit", 20, 1, 10, 2, false, true},
		{"middle", 25, 2, 10, 3, true, true},
		{"last", 25, 3, 10, 3, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewPaginatedList([]int{}, tt.total, tt.page, tt.per)
			require.Equal(t, tt.pages, p.TotalPages)
			require.Equal(t, tt.prev, p.HasPreviousPage())
			require.Equal(t, tt.next, p.HasNextPage())
		})
	}
}

func TestListUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	svc := &ManageService{Store: s}
	for i := range 12 {
		seedUser(t, s, fmt.Sprintf("user%02d@example.com", i), true)
	}
	seedUser(t, s, "zed@other.test", true)

	page, err := svc.ListUsers(ctx, "", 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.PageIndex)
	require.Equal(t, DefaultPageSize, page.PageSize)
	require.Equal(t, 13, page.TotalItems)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 10)
	require.Equal(t, "user00@example.com", page.Items[0].Username)

	page, err = svc.ListUsers(ctx, "EXAMPLE", 2, 10)
	require.NoError(t, err)
	require.Equal(t, 12, page.TotalItems)
	require.Len(t, page.Items, 2)
	require.False(t, page.HasNextPage())
	require.True(t, page.HasPreviousPage())
}

func TestEditUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	svc := &ManageService{Store: s}
	admin := seedUser(t, s, "admin@example.com", true, domain.RoleAdministrator)
	other := seedUser(t, s, "other@example.com", false, domain.RoleUser)

	err := svc.EditUser(ctx, admin.ID, EditUserInput{
		ID:             other.ID,
		DisplayName:    "Renamed",
		EmailConfirmed: true,
		Roles:          []string{domain.RoleAuthor, "administrator"},
	})
	require.NoError(t, err)

	got, err := s.Users().GetUserByID(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.DisplayName)
	require.True(t, got.EmailConfirmed)
	require.ElementsMatch(t, []string{domain.RoleAuthor, domain.RoleAdministrator}, got.Roles)

	err = svc.EditUser(ctx, admin.ID, EditUserInput{ID: admin.ID, DisplayName: "Admin", Roles: []string{domain.RoleUser}})
	require.ErrorIs(t, err, ErrRemoveOwnAdministrator)

	err = svc.EditUser(ctx, admin.ID, EditUserInput{ID: other.ID, DisplayName: "Renamed", Roles: []string{"Wizard"}})
	var f FormErrors
	require.ErrorAs(t, err, &f)
	require.Equal(t, []string{"Role 'Wizard' does not exist."}, f.Field(""))

	err = svc.EditUser(ctx, admin.ID, EditUserInput{ID: "missing", DisplayName: "X"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEditUserKeepsLastAdministrator(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	svc := &ManageService{Store: s}
	admin := seedUser(t, s, "admin@example.com", true, domain.RoleAdministrator)
	helper := seedUser(t, s, "helper@example.com", true, domain.RoleUser)

	err := svc.EditUser(ctx, helper.ID, EditUserInput{ID: admin.ID, DisplayName: "Admin", Roles: nil})
	require.ErrorIs(t, err, ErrLastAdministrator)
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	svc := &ManageService{Store: s}
	admin := seedUser(t, s, "admin@example.com", true, domain.RoleAdministrator)
	other := seedUser(t, s, "other@example.com", true, domain.RoleUser)

	require.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, admin.ID), ErrDeleteSelf)
	require.ErrorIs(t, svc.DeleteUser(ctx, other.ID, admin.ID), ErrLastAdministrator)

	require.NoError(t, svc.DeleteUser(ctx, admin.ID, other.ID))
	_, err := s.Users().GetUserByID(ctx, other.ID)
	require.True(t, IsNotFound(err))

	second := seedUser(t, s, "second@example.com", true, domain.RoleAdministrator)
	require.NoError(t, svc.DeleteUser(ctx, second.ID, admin.ID), "another administrator remains")
}
