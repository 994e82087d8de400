package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	activity  shared.ActivityRecorder
	avatars   ImageSource
}

// NewHandler builds Handler instance. avatars may be nil when uploads are
// disabled.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, activity shared.ActivityRecorder, avatars ImageSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, activity: activity, avatars: avatars}
}

// MountRoutes registers the super user account management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireRole(roles.RoleSuperUser))
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Get("/{id}/edit", h.showEditUser)
	r.Post("/{id}/edit", h.updateUser)
	r.Post("/{id}/delete", h.deleteUser)
}

// MountAuthorRoutes registers the author management routes.
func (h *Handler) MountAuthorRoutes(r chi.Router) {
	r.Use(h.rbac.RequireRole(roles.RoleAdministrator))
	r.Get("/", h.listAuthors)
	r.Post("/", h.createAuthor)
	r.Post("/{id}/delete", h.deleteAuthor)
}

type userListData struct {
	Administrators []User
	Authors        []User
	Roles          []roles.Role
	Form           CreateInput
	Errors         shared.FieldErrors
	SelfID         int64
}

type authorListData struct {
	Authors []AuthorSummary
	Form    CreateInput
	Errors  shared.FieldErrors
}

type userEditData struct {
	User   *User
	Form   UpdateInput
	Errors shared.FieldErrors
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	h.renderUserList(w, r, userListData{Form: CreateInput{Role: roles.RoleAuthor}}, http.StatusOK)
}

func (h *Handler) renderUserList(w http.ResponseWriter, r *http.Request, data userListData, status int) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	admins, err := h.service.List(r.Context(), actor, roles.RoleAdministrator)
	if err == nil {
		data.Authors, err = h.service.List(r.Context(), actor, roles.RoleAuthor)
	}
	if err != nil {
		h.serverError(w, r, "list users", err)
		return
	}
	data.Administrators = admins
	data.Roles = roles.Manageable(actor.Role)
	data.SelfID = actor.UserID
	h.render(w, r, "pages/users/list.html", "Manage Users", data, status)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	in := createInputFromForm(r)
	created, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		var fields shared.FieldErrors
		if errors.As(err, &fields) {
			in.Password = ""
			h.renderUserList(w, r, userListData{Form: in, Errors: fields}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, "/users", err)
		return
	}
	h.record(r, actor, shared.ActionCreate, created)
	h.redirectWithFlash(w, r, "/users", shared.FlashSuccess, created.Role.DisplayName()+" created successfully!")
}

func (h *Handler) showEditUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, "/users", err)
		return
	}
	form := UpdateInput{ID: u.ID, FullName: u.FullName, Email: u.Email, Phone: u.Phone, Address: u.Address}
	h.render(w, r, "pages/users/edit.html", "Edit User", userEditData{User: u, Form: form}, http.StatusOK)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	in := UpdateInput{
		ID:       id,
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Phone:    r.PostFormValue("phone"),
		Address:  r.PostFormValue("address"),
		Password: r.PostFormValue("password"),
	}
	updated, err := h.service.Update(r.Context(), actor, in)
	if err != nil {
		var fields shared.FieldErrors
		if errors.As(err, &fields) {
			u, getErr := h.service.Get(r.Context(), actor, id)
			if getErr != nil {
				h.fail(w, r, "/users", getErr)
				return
			}
			in.Password = ""
			h.render(w, r, "pages/users/edit.html", "Edit User", userEditData{User: u, Form: in, Errors: fields}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, "/users", err)
		return
	}
	h.record(r, actor, shared.ActionUpdate, updated)
	h.redirectWithFlash(w, r, "/users", shared.FlashSuccess, "User updated successfully!")
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, "/users", h.service.Delete)
}

func (h *Handler) listAuthors(w http.ResponseWriter, r *http.Request) {
	h.renderAuthorList(w, r, authorListData{}, http.StatusOK)
}

func (h *Handler) renderAuthorList(w http.ResponseWriter, r *http.Request, data authorListData, status int) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	authors, err := h.service.ListAuthors(r.Context(), actor)
	if err != nil {
		h.serverError(w, r, "list authors", err)
		return
	}
	data.Authors = authors
	h.render(w, r, "pages/authors/list.html", "Manage Authors", data, status)
}

func (h *Handler) createAuthor(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	in := createInputFromForm(r)
	in.Role = roles.RoleAuthor
	created, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		var fields shared.FieldErrors
		if errors.As(err, &fields) {
			in.Password = ""
			h.renderAuthorList(w, r, authorListData{Form: in, Errors: fields}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, "/authors", err)
		return
	}
	h.record(r, actor, shared.ActionCreate, created)
	h.redirectWithFlash(w, r, "/authors", shared.FlashSuccess, "Author created successfully!")
}

func (h *Handler) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, "/authors", h.service.DeleteAuthor)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, back string, remove func(context.Context, shared.Identity, int64) (*User, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	removed, err := remove(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, back, err)
		return
	}
	h.record(r, actor, shared.ActionDelete, removed)
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, removed.Role.DisplayName()+" deleted successfully!")
}

func createInputFromForm(r *http.Request) CreateInput {
	return CreateInput{
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Phone:    r.PostFormValue("phone"),
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
		Role:     roles.Parse(strings.TrimSpace(r.PostFormValue("role"))),
		Address:  r.PostFormValue("address"),
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		http.Redirect(w, r, rbac.DefaultLoginPath+"?error="+rbac.ReasonLoginRequired, http.StatusSeeOther)
		return shared.Identity{}, false
	}
	return *id, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *Handler) record(r *http.Request, actor shared.Identity, action string, u *User) {
	shared.RecordActivity(r.Context(), h.activity, h.logger, shared.ActivityEntry{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(u.ID, 10),
		Meta:     map[string]any{"username": u.Username, "role": u.Role.String()},
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, back string, err error) {
	switch {
	case errors.Is(err, ErrSelfDelete):
		h.redirectWithFlash(w, r, back, shared.FlashDanger, "You cannot delete your own account.")
	case errors.Is(err, shared.ErrAccessDenied), errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrDuplicate):
		h.redirectWithFlash(w, r, back, shared.FlashDanger, shared.UserSafeMessage(err))
	default:
		h.logger.Error("user management", slog.String("path", r.URL.Path), slog.Any("error", err))
		h.redirectWithFlash(w, r, back, shared.FlashDanger, shared.UserSafeMessage(err))
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err))
	h.render(w, r, "pages/error.html", "Error", map[string]any{
		"Status":  http.StatusInternalServerError,
		"Message": shared.UserSafeMessage(err),
	}, http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	viewData := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetFlash(message, kind)
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
