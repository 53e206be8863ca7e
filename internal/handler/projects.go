package handler

import (
	"log/slog"
	"net/http"

	"folio/internal/auth"
	"folio/internal/middleware"
	"folio/internal/portfolio"
)

// ProjectsHandler serves portfolio projects. Public routes only ever see
// published projects.
type ProjectsHandler struct {
	projects *portfolio.Manager
	logger   *slog.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projects *portfolio.Manager, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{projects: projects, logger: logger}
}

// ListPublished handles GET /api/projects
func (h *ProjectsHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	projects, err := h.projects.ListPublished(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// GetPublished handles GET /api/projects/{slug}
func (h *ProjectsHandler) GetPublished(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.GetPublished(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListAll handles GET /api/admin/projects
func (h *ProjectsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	projects, err := h.projects.ListAll(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// Create handles POST /api/admin/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in portfolio.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	author, _ := middleware.GetProfile(r.Context())
	if author == nil {
		writeError(w, r, h.logger, auth.ErrUnauthenticated)
		return
	}

	p, err := h.projects.Create(r.Context(), in, author.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Update handles PUT /api/admin/projects/{id}
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var in portfolio.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.projects.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/admin/projects/{id}
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.projects.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
