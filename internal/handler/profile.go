package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"folio/internal/auth"
	"folio/internal/avatar"
	"folio/internal/events"
	"folio/internal/middleware"
	"folio/internal/profile"
)

const multipartOverhead = 64 << 10

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	profiles *profile.Manager
	avatars  *avatar.Service
	events   events.Publisher
	logger   *slog.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles *profile.Manager, avatars *avatar.Service, pub events.Publisher, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, avatars: avatars, events: pub, logger: logger}
}

func (h *ProfileHandler) caller(w http.ResponseWriter, r *http.Request) (*profile.Profile, bool) {
	p, ok := middleware.GetProfile(r.Context())
	if !ok {
		auth.WriteUnauthorized(w)
	}
	return p, ok
}

func (h *ProfileHandler) publishUpdated(r *http.Request, p *profile.Profile) {
	if err := h.events.Publish(r.Context(), events.New(events.UserUpdated, p.ID)); err != nil {
		h.logger.Warn("failed to publish profile update", "profile_id", p.ID, "error", err)
	}
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.caller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProfileRequest struct {
	FullName string `json:"full_name"`
}

// Update handles PATCH /api/profile. Only the display name is self-service;
// role and active state are admin operations.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updated, err := h.profiles.UpdateFullName(r.Context(), p.ID, req.FullName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.publishUpdated(r, updated)
	writeJSON(w, http.StatusOK, updated)
}

// UploadAvatar handles POST /api/profile/avatar (multipart field "avatar").
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	p, ok := h.caller(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.avatars.MaxBytes()+multipartOverhead)
	file, _, err := r.FormFile("avatar")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, h.logger, avatar.ErrTooLarge)
			return
		}
		writeError(w, r, h.logger, auth.Invalid("avatar", "multipart field avatar is required"))
		return
	}
	defer file.Close()

	url, err := h.avatars.Upload(r.Context(), p.ID, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.profiles.SetAvatarURL(r.Context(), p.ID, url); err != nil {
		if rmErr := h.avatars.Remove(r.Context(), url); rmErr != nil {
			h.logger.Warn("failed to remove orphaned avatar", "url", url, "error", rmErr)
		}
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.avatars.Remove(r.Context(), p.AvatarURL); err != nil {
		h.logger.Warn("failed to remove previous avatar", "url", p.AvatarURL, "error", err)
	}

	h.publishUpdated(r, p)
	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}

// DeleteAvatar handles DELETE /api/profile/avatar
func (h *ProfileHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	p, ok := h.caller(w, r)
	if !ok {
		return
	}
	if p.AvatarURL == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.profiles.SetAvatarURL(r.Context(), p.ID, ""); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.avatars.Remove(r.Context(), p.AvatarURL); err != nil {
		h.logger.Warn("failed to remove avatar object", "url", p.AvatarURL, "error", err)
	}

	h.publishUpdated(r, p)
	w.WriteHeader(http.StatusNoContent)
}

// scrumMasterView is what non-admins see of the scrum master.
type scrumMasterView struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ScrumMaster handles GET /api/scrum-master
func (h *ProfileHandler) ScrumMaster(w http.ResponseWriter, r *http.Request) {
	holder, err := h.profiles.ScrumMaster(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var view *scrumMasterView
	if holder != nil {
		view = &scrumMasterView{ID: holder.ID.String(), FullName: holder.FullName, AvatarURL: holder.AvatarURL}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scrum_master": view})
}
