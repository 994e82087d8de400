package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-cms/inkwell/internal/rbac"
	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/view"
)

// Handler serves the dashboard.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: guard}
}

// MountRoutes registers GET / behind the login guard. Call it inside a chi
// Group.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireLogin())
	r.Get("/", h.show)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	var actor shared.Identity
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		actor = *id
	}
	summary, err := h.service.Summary(r.Context(), actor)
	if err != nil {
		h.logger.Error("dashboard summary", slog.Int64("user_id", actor.UserID), slog.Any("error", err))
		td := view.NewTemplateData(r, h.csrf, "Error", map[string]any{
			"Status":  http.StatusInternalServerError,
			"Message": shared.UserSafeMessage(err),
		})
		if err := h.templates.RenderStatus(w, http.StatusInternalServerError, "pages/error.html", td); err != nil {
			h.logger.Error("render template", slog.Any("error", err))
		}
		return
	}
	td := view.NewTemplateData(r, h.csrf, "Dashboard", summary)
	if err := h.templates.Render(w, "pages/dashboard.html", td); err != nil {
		h.logger.Error("render template", slog.String("template", "pages/dashboard.html"), slog.Any("error", err))
	}
}
