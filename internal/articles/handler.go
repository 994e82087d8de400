package articles

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-cms/inkwell/internal/platform/httpx"
	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/roles"
	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/view"
)

// Handler serves article pages and the JSON article endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	activity  shared.ActivityRecorder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Middleware, activity shared.ActivityRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: guard, activity: activity}
}

// MountRoutes registers /articles routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireLogin())
	r.Get("/", h.list)
	r.Route("/mine", func(r chi.Router) {
		r.Use(h.rbac.RequireRole(roles.RoleAuthor))
		r.Get("/", h.mine)
		r.Get("/new", h.showNew)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}/edit", h.update)
		r.Post("/{id}/delete", h.delete)
	})
	r.Get("/{id}", h.show)
}

type listData struct {
	Articles []Article
	Query    string
}

type formData struct {
	Article *Article
	Form    Input
	Errors  shared.FieldErrors
	Action  string
}

// articleJSON is the JSON shape of one article.
type articleJSON struct {
	Article
	BodyHTML template.HTML `json:"body_html"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	items, err := h.service.Search(r.Context(), query)
	if err != nil {
		h.serverError(w, r, "list articles", err)
		return
	}
	h.render(w, r, "pages/articles/list.html", "Articles", listData{Articles: items, Query: query}, http.StatusOK)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	a, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("get article", slog.Int64("article_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, articleJSON{Article: *a, BodyHTML: view.RenderMarkdown(a.Body)})
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Mine(r.Context(), h.actor(r))
	if err != nil {
		h.serverError(w, r, "list own articles", err)
		return
	}
	h.render(w, r, "pages/articles/mine.html", "My Articles", listData{Articles: items}, http.StatusOK)
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/articles/form.html", "New Article", formData{Action: "/articles/mine"}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(r)
	in := inputFromForm(r)
	created, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		var fields shared.FieldErrors
		if errors.As(err, &fields) {
			h.render(w, r, "pages/articles/form.html", "New Article", formData{Form: in, Errors: fields, Action: "/articles/mine"}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.record(r, actor, shared.ActionCreate, created)
	h.redirectWithFlash(w, r, shared.FlashSuccess, "Article created successfully!")
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Owned(r.Context(), h.actor(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "pages/articles/form.html", "Edit Article", formData{Article: a, Form: a.Input(), Action: editAction(id)}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := h.actor(r)
	in := inputFromForm(r)
	updated, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		var fields shared.FieldErrors
		if errors.As(err, &fields) {
			h.render(w, r, "pages/articles/form.html", "Edit Article", formData{Article: &Article{ID: id}, Form: in, Errors: fields, Action: editAction(id)}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.record(r, actor, shared.ActionUpdate, updated)
	h.redirectWithFlash(w, r, shared.FlashSuccess, "Article updated successfully!")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := h.actor(r)
	removed, err := h.service.Delete(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, actor, shared.ActionDelete, removed)
	h.redirectWithFlash(w, r, shared.FlashSuccess, "Article deleted successfully!")
}

func editAction(id int64) string {
	return "/articles/mine/" + strconv.FormatInt(id, 10) + "/edit"
}

func inputFromForm(r *http.Request) Input {
	order, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("order")))
	return Input{
		Title:     r.PostFormValue("title"),
		Body:      r.PostFormValue("body"),
		Published: r.PostFormValue("published") != "",
		Order:     order,
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

// actor returns the session identity. The login guard runs first, so a
// missing identity only happens when the routes are mounted unguarded.
func (h *Handler) actor(r *http.Request) shared.Identity {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return *id
	}
	return shared.Identity{}
}

func (h *Handler) record(r *http.Request, actor shared.Identity, action string, a *Article) {
	shared.RecordActivity(r.Context(), h.activity, h.logger, shared.ActivityEntry{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "article",
		EntityID: strconv.FormatInt(a.ID, 10),
		Meta:     map[string]any{"title": a.Title, "published": a.Published},
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("article", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	h.redirectWithFlash(w, r, shared.FlashDanger, shared.UserSafeMessage(err))
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err))
	h.render(w, r, "pages/error.html", "Error", map[string]any{
		"Status":  http.StatusInternalServerError,
		"Message": shared.UserSafeMessage(err),
	}, http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	td := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, td); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetFlash(message, kind)
	}
	http.Redirect(w, r, "/articles/mine", http.StatusSeeOther)
}
