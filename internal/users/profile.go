package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-cms/inkwell/internal/platform/objstore"
	"github.com/inkwell-cms/inkwell/internal/shared"
)

// ImageSource reads stored profile images.
type ImageSource interface {
	Get(ctx context.Context, key string) (io.ReadCloser, objstore.ObjectInfo, error)
}

const avatarPrefix = "profiles/"

// MountProfileRoutes registers the self-service routes. Call it inside a
// chi Group so the login guard stays scoped.
func (h *Handler) MountProfileRoutes(r chi.Router) {
	r.Use(h.rbac.RequireLogin())
	r.Get("/profile", h.showProfile)
	r.Post("/profile", h.updateProfile)
	r.Get("/avatars/{name}", h.serveAvatar)
}

type profileData struct {
	User       *User
	Errors     shared.FieldErrors
	MaxImageMB int64
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	u, err := h.service.Profile(r.Context(), actor)
	if err != nil {
		h.serverError(w, r, "load profile", err)
		return
	}
	h.render(w, r, "pages/profile.html", "My Profile", profileData{User: u, MaxImageMB: h.service.MaxImageBytes() >> 20}, http.StatusOK)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(h.service.MaxImageBytes()); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.redirectWithFlash(w, r, "/profile", shared.FlashDanger, "The upload is too large.")
		return
	}
	in := ProfileInput{
		FullName:        r.PostFormValue("full_name"),
		Email:           r.PostFormValue("email"),
		Phone:           r.PostFormValue("phone"),
		Address:         r.PostFormValue("address"),
		CurrentPassword: r.PostFormValue("current_password"),
		NewPassword:     r.PostFormValue("new_password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	file, header, err := r.FormFile("profile_image")
	switch {
	case err == nil:
		defer file.Close()
		in.Image = imageUpload(file, header)
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.logger.Warn("read profile image", slog.Any("error", err))
	}

	updated, err := h.service.UpdateProfile(r.Context(), actor, in)
	if err != nil {
		var fields shared.FieldErrors
		if errors.As(err, &fields) {
			current, getErr := h.service.Profile(r.Context(), actor)
			if getErr != nil {
				h.serverError(w, r, "load profile", getErr)
				return
			}
			current.FullName, current.Email, current.Phone, current.Address = in.FullName, in.Email, in.Phone, in.Address
			h.render(w, r, "pages/profile.html", "My Profile", profileData{User: current, Errors: fields, MaxImageMB: h.service.MaxImageBytes() >> 20}, http.StatusBadRequest)
			return
		}
		h.fail(w, r, "/profile", err)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.RefreshIdentity(updated.Identity())
	}
	shared.RecordActivity(r.Context(), h.activity, h.logger, shared.ActivityEntry{
		ActorID:  actor.UserID,
		Action:   shared.ActionProfileSaved,
		Entity:   "user",
		EntityID: strconv.FormatInt(actor.UserID, 10),
		Meta:     map[string]any{"password_changed": in.NewPassword != "", "image_changed": in.Image != nil},
	})
	h.redirectWithFlash(w, r, "/profile", shared.FlashSuccess, "Profile updated successfully!")
}

func imageUpload(file multipart.File, header *multipart.FileHeader) *ImageUpload {
	return &ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}

func (h *Handler) serveAvatar(w http.ResponseWriter, r *http.Request) {
	name := path.Base(chi.URLParam(r, "name"))
	if h.avatars == nil || name == "." || name == "/" {
		http.NotFound(w, r)
		return
	}
	body, info, err := h.avatars.Get(r.Context(), avatarPrefix+name)
	if err != nil {
		if errors.Is(err, objstore.ErrObjectNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("read avatar", slog.String("name", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", info.ContentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream avatar", slog.String("name", name), slog.Any("error", err))
	}
}
