package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inkwell-cms/inkwell/internal/shared"
	"github.com/inkwell-cms/inkwell/internal/view"
)

// Messages shown on the login page for the reason codes carried in the
// query string.
var loginNotices = map[string]shared.FlashMessage{
	"session_expired": {Kind: shared.FlashWarning, Message: "Your session has expired. Please log in again."},
	"access_denied":   {Kind: shared.FlashDanger, Message: "Access denied. You do not have permission to access that resource."},
	"login_required":  {Kind: shared.FlashInfo, Message: "Please sign in to continue."},
	"logged_out":      {Kind: shared.FlashSuccess, Message: "You have been successfully logged out."},
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	activity       shared.ActivityRecorder
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, activity shared.ActivityRecorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		activity:       activity,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Username string `validate:"required,max=50"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
	Notice *shared.FlashMessage
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess.IsAuthenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := loginPageData{Form: loginForm{Username: r.URL.Query().Get("username")}}
	reason := r.URL.Query().Get("error")
	if reason == "" {
		reason = r.URL.Query().Get("message")
	}
	if notice, ok := loginNotices[reason]; ok {
		data.Notice = &notice
	}
	h.render(w, r, data, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
		h.render(w, r, loginPageData{Form: loginForm{Username: form.Username}, Errors: errs}, http.StatusBadRequest)
		return
	}

	identity, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			status = http.StatusInternalServerError
		}
		shared.RecordActivity(r.Context(), h.activity, h.logger, shared.ActivityEntry{
			Action: shared.ActionLoginFailed,
			Entity: "session",
			Meta:   map[string]any{"username": form.Username, "remote_ip": r.RemoteAddr},
		})
		errs["general"] = shared.UserSafeMessage(err)
		h.render(w, r, loginPageData{Form: loginForm{Username: form.Username}, Errors: errs}, status)
		return
	}

	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess.Login(*identity)
	sess.Delete(shared.CSRFSessionKey)
	sess.SetFlash("Welcome back, "+identity.DisplayName+"!", shared.FlashSuccess)
	shared.RecordActivity(r.Context(), h.activity, h.logger, shared.ActivityEntry{
		ActorID: identity.UserID,
		Action:  shared.ActionLogin,
		Entity:  "session",
		Meta:    map[string]any{"remote_ip": r.RemoteAddr},
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if id := sess.Identity(); id != nil {
		shared.RecordActivity(r.Context(), h.activity, h.logger, shared.ActivityEntry{
			ActorID: id.UserID,
			Action:  shared.ActionLogout,
			Entity:  "session",
		})
	}
	if sess != nil {
		sess.Logout()
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login?message=logged_out", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data loginPageData, status int) {
	viewData := view.NewTemplateData(r, h.csrfManager, "Sign in", data)
	if err := h.templates.RenderStatus(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
	}
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required."
	case "max":
		return err.Field() + " is too long."
	default:
		return err.Field() + " is invalid."
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}
