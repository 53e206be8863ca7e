package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"folio/internal/auth"
	"folio/internal/events"
	"folio/internal/identity"
	"folio/internal/middleware"
	"folio/internal/profile"
	"folio/internal/validation"
)

// AdminUsersHandler handles admin user management. Every route is mounted
// behind the admin gate.
type AdminUsersHandler struct {
	profiles  *profile.Manager
	idp       identity.Admin
	events    events.Publisher
	validator *validation.Validator
	logger    *slog.Logger
}

// NewAdminUsersHandler creates a new admin users handler.
func NewAdminUsersHandler(profiles *profile.Manager, idp identity.Admin, pub events.Publisher, v *validation.Validator, logger *slog.Logger) *AdminUsersHandler {
	return &AdminUsersHandler{profiles: profiles, idp: idp, events: pub, validator: v, logger: logger}
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=256"`
	FullName string `json:"full_name" validate:"max=200"`
	Role     string `json:"role" validate:"omitempty,role"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type userIDRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

type repairRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   string    `json:"role" validate:"omitempty,role"`
}

// caller returns the admin's own profile ID.
func (h *AdminUsersHandler) caller(r *http.Request) uuid.UUID {
	if p, ok := middleware.GetProfile(r.Context()); ok {
		return p.ID
	}
	return uuid.Nil
}

func (h *AdminUsersHandler) notSelf(r *http.Request, target uuid.UUID) error {
	if target == h.caller(r) {
		return auth.Invalid("id", "admins cannot change or delete their own account here")
	}
	return nil
}

func (h *AdminUsersHandler) publishUpdated(r *http.Request, id uuid.UUID) {
	if err := h.events.Publish(r.Context(), events.New(events.UserUpdated, id)); err != nil {
		h.logger.Warn("failed to publish user update", "user_id", id, "error", err)
	}
}

// List handles GET /api/admin/users
func (h *AdminUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, err := h.profiles.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Create handles POST /api/admin/users. The identity is created first; if
// the profile cannot be written the identity is deleted again.
func (h *AdminUsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ident, err := h.idp.CreateIdentity(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.profiles.Create(r.Context(), profile.NewProfile{
		ID:       ident.ID,
		Email:    ident.Email,
		FullName: req.FullName,
	})
	if err == nil && req.Role != "" && profile.Role(req.Role) != p.Role {
		if err = h.profiles.SetRole(r.Context(), p.ID, profile.Role(req.Role)); err == nil {
			p.Role = profile.Role(req.Role)
		}
	}
	if err != nil {
		if delErr := h.idp.DeleteIdentity(r.Context(), ident.ID); delErr != nil {
			h.logger.Error("failed to roll back identity", "identity_id", ident.ID, "error", delErr)
		}
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user created", "user_id", p.ID, "role", p.Role, "by", h.caller(r))
	writeJSON(w, http.StatusCreated, p)
}

// Delete handles DELETE /api/admin/users/{id}. The identity goes first so a
// failure never leaves a sign-in-able account without a profile.
func (h *AdminUsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.notSelf(r, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.idp.DeleteIdentity(r.Context(), id); err != nil && !errors.Is(err, identity.ErrIdentityNotFound) {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.profiles.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user deleted", "user_id", id, "by", h.caller(r))
	h.publishUpdated(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// SetRole handles PUT /api/admin/users/{id}/role
func (h *AdminUsersHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.notSelf(r, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.profiles.SetRole(r.Context(), id, profile.Role(req.Role)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.respondProfile(w, r, id)
}

// SetActive handles PUT /api/admin/users/{id}/active. Deactivation also
// revokes the user's live sessions.
func (h *AdminUsersHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.notSelf(r, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req setActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.profiles.SetActive(r.Context(), id, *req.IsActive); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !*req.IsActive {
		if err := h.idp.RevokeSessions(r.Context(), id); err != nil {
			// The gate already refuses inactive profiles; revocation only
			// shortens what a stale session can reach.
			h.logger.Warn("failed to revoke sessions", "user_id", id, "error", err)
		}
	}
	h.respondProfile(w, r, id)
}

func (h *AdminUsersHandler) respondProfile(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	p, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.publishUpdated(r, id)
	writeJSON(w, http.StatusOK, p)
}

// AssignScrumMaster handles PUT /api/admin/scrum-master
func (h *AdminUsersHandler) AssignScrumMaster(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.profiles.AssignScrumMaster(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("scrum master assigned", "user_id", p.ID, "by", h.caller(r))
	h.publishUpdated(r, p.ID)
	writeJSON(w, http.StatusOK, p)
}

// RevokeScrumMaster handles DELETE /api/admin/scrum-master
func (h *AdminUsersHandler) RevokeScrumMaster(w http.ResponseWriter, r *http.Request) {
	revoked, err := h.profiles.RevokeScrumMaster(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// RepairProfile handles POST /api/admin/profiles/repair. Email and name come
// from the identity service, never from the request.
func (h *AdminUsersHandler) RepairProfile(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ident, err := h.idp.GetIdentity(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.profiles.Repair(r.Context(), profile.RepairRequest{
		ID:       ident.ID,
		Email:    ident.Email,
		FullName: ident.FullName,
		Role:     profile.Role(req.Role),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	if res.Created || res.RoleUpdated {
		h.logger.Info("profile repaired", "user_id", ident.ID, "created", res.Created, "role_updated", res.RoleUpdated, "by", h.caller(r))
		h.publishUpdated(r, ident.ID)
	}
	writeJSON(w, status, res)
}
