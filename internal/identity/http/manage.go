package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aussiebroadwan/propulse/internal/identity/domain"
	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

// Admin console messages.
const (
	msgRemoveOwnAdministrator = "You cannot remove your own Administrator role."
	msgLastAdministratorRole  = "Cannot remove the Administrator role from the last administrator account."
	msgDeleteSelf             = "You cannot delete your own account."
	msgDeleteLastAdmin        = "Cannot delete the last administrator account."
	msgUserUpdated            = "User has been updated successfully."
	msgUserDeleted            = "User has been deleted successfully."
)

// ManageHandler serves the /Manage user administration pages.
type ManageHandler struct {
	Manage  *service.ManageService
	Cookies *Cookies
}

type manageUserData struct {
	User  domain.User
	Roles []domain.Role
}

// RequireAdministrator admits browser sessions of users in the
// Administrator role. Anonymous requests go to the login page; everyone
// else gets 403.
func (h *ManageHandler) RequireAdministrator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.Cookies.Current(r)
		if !ok {
			loginRedirect(w, r, r.URL.RequestURI())
			return
		}
		u, err := h.Manage.GetUser(r.Context(), sess.UserID)
		if service.IsNotFound(err) {
			h.Cookies.SignOut(w, r)
			loginRedirect(w, r, r.URL.RequestURI())
			return
		}
		if err != nil {
			serverError(w, r, "failed to load session user", err)
			return
		}
		if !u.HasRole(domain.RoleAdministrator) {
			slogx.FromContext(r.Context()).Warn("admin console access denied", slog.String("user_id", u.ID))
			p := newPage("Access denied", nil)
			p.SignedIn = true
			p.Errors.AddForm("You do not have access to this resource.")
			render(w, r, http.StatusForbidden, "error.html", p)
			return
		}
		next.ServeHTTP(w, r.WithContext(httpx.WithUserID(r.Context(), u.ID)))
	})
}

func (h *ManageHandler) page(w http.ResponseWriter, r *http.Request, title string, form url.Values) *page {
	p := newPage(title, form)
	p.SignedIn = true
	p.Flash = takeFlash(w, r)
	return p
}

// Index handles GET /Manage/Index.
func (h *ManageHandler) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageNumber, _ := strconv.Atoi(q.Get("pageNumber"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	search := q.Get("searchString")

	list, err := h.Manage.ListUsers(r.Context(), search, pageNumber, pageSize)
	if err != nil {
		serverError(w, r, "failed to list users", err)
		return
	}
	p := h.page(w, r, "Users", url.Values{"searchString": {search}})
	p.Data = list
	render(w, r, http.StatusOK, "manage_index.html", p)
}

func (h *ManageHandler) loadUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, err := h.Manage.GetUser(r.Context(), r.PathValue("id"))
	if service.IsNotFound(err) {
		p := newPage("User not found", nil)
		p.SignedIn = true
		render(w, r, http.StatusNotFound, "error.html", p)
		return domain.User{}, false
	}
	if err != nil {
		serverError(w, r, "failed to load user", err)
		return domain.User{}, false
	}
	return u, true
}

func (h *ManageHandler) renderEdit(w http.ResponseWriter, r *http.Request, status int, p *page, u domain.User) {
	roles, err := h.Manage.ListRoles(r.Context())
	if err != nil {
		serverError(w, r, "failed to list roles", err)
		return
	}
	p.Data = manageUserData{User: u, Roles: roles}
	render(w, r, status, "manage_edit.html", p)
}

// EditPage handles GET /Manage/Edit/{id}.
func (h *ManageHandler) EditPage(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	form := url.Values{
		"DisplayName":    {u.DisplayName},
		"EmailConfirmed": {strconv.FormatBool(u.EmailConfirmed)},
		"Roles":          u.Roles,
	}
	h.renderEdit(w, r, http.StatusOK, h.page(w, r, "Edit user", form), u)
}

// Edit handles POST /Manage/Edit/{id}.
func (h *ManageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	in := service.EditUserInput{
		ID:             u.ID,
		DisplayName:    r.PostForm.Get("DisplayName"),
		EmailConfirmed: checked(r.PostForm.Get("EmailConfirmed")),
		Roles:          r.PostForm["Roles"],
	}
	err := h.Manage.EditUser(r.Context(), httpx.UserIDFromContext(r.Context()), in)
	if err == nil {
		setFlash(w, msgUserUpdated)
		http.Redirect(w, r, "/Manage/Index", http.StatusFound)
		return
	}

	p := h.page(w, r, "Edit user", url.Values{
		"DisplayName":    {in.DisplayName},
		"EmailConfirmed": {strconv.FormatBool(in.EmailConfirmed)},
		"Roles":          in.Roles,
	})
	switch {
	case errors.Is(err, service.ErrRemoveOwnAdministrator):
		p.Errors.AddForm(msgRemoveOwnAdministrator)
	case errors.Is(err, service.ErrLastAdministrator):
		p.Errors.AddForm(msgLastAdministratorRole)
	case formErrors(p, err):
	default:
		serverError(w, r, "failed to update user", err)
		return
	}
	h.renderEdit(w, r, http.StatusOK, p, u)
}

// DeletePage handles GET /Manage/Delete/{id}.
func (h *ManageHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	u, ok := h.loadUser(w, r)
	if !ok {
		return
	}
	p := h.page(w, r, "Delete user", nil)
	p.Data = manageUserData{User: u}
	render(w, r, http.StatusOK, "manage_delete.html", p)
}

// Delete handles POST /Manage/Delete/{id}. Refusals are flashed on the
// index page.
func (h *ManageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	err := h.Manage.DeleteUser(ctx, httpx.UserIDFromContext(ctx), id)
	switch {
	case err == nil:
		if err := h.Cookies.EndUserSessions(ctx, id); err != nil {
			slogx.FromContext(ctx).Warn("failed to end sessions of deleted user", slog.Any("error", err))
		}
		setFlash(w, msgUserDeleted)
	case errors.Is(err, service.ErrDeleteSelf):
		setFlash(w, msgDeleteSelf)
	case errors.Is(err, service.ErrLastAdministrator):
		setFlash(w, msgDeleteLastAdmin)
	case service.IsNotFound(err):
		p := newPage("User not found", nil)
		p.SignedIn = true
		render(w, r, http.StatusNotFound, "error.html", p)
		return
	default:
		serverError(w, r, "failed to delete user", err)
		return
	}
	http.Redirect(w, r, "/Manage/Index", http.StatusFound)
}
