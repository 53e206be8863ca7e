package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"folio/internal/auth"
	"folio/internal/avatar"
	"folio/internal/identity"
	"folio/internal/portfolio"
	"folio/internal/profile"
)

const maxJSONBody = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return auth.Invalid("body", "request body is required")
		}
		return auth.Invalid("body", "invalid JSON")
	}
	return nil
}

// parseID extracts a UUID path value.
func parseID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, auth.Invalid(name, "must be a valid UUID")
	}
	return id, nil
}

// pagination reads limit and offset query parameters. Managers clamp them.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// writeError translates err into the session error taxonomy and writes it.
// Anything that ends up as a 500 is logged with its cause.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, avatar.ErrTooLarge):
		auth.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error(), auth.TypeInvalidRequest)
		return
	case errors.Is(err, avatar.ErrUnsupportedType):
		auth.WriteJSONError(w, http.StatusUnsupportedMediaType, err.Error(), auth.TypeInvalidRequest)
		return
	}

	mapped := domainError(err)
	if auth.Status(mapped) >= http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	auth.WriteError(w, mapped)
}

func domainError(err error) error {
	var invalid *identity.InvalidInputError
	switch {
	case errors.Is(err, profile.ErrNotFound),
		errors.Is(err, portfolio.ErrNotFound),
		errors.Is(err, identity.ErrIdentityNotFound),
		errors.Is(err, avatar.ErrDisabled):
		return auth.ErrNotFound
	case errors.Is(err, profile.ErrAlreadyExists):
		return auth.Conflict("profile already exists")
	case errors.Is(err, profile.ErrScrumMasterTaken):
		return auth.Conflict(profile.ErrScrumMasterTaken.Error())
	case errors.Is(err, portfolio.ErrSlugTaken):
		return auth.Conflict(portfolio.ErrSlugTaken.Error())
	case errors.Is(err, identity.ErrIdentityExists):
		return auth.Conflict("an account with this email already exists")
	case errors.Is(err, profile.ErrInvalidRole):
		return auth.Invalid("role", profile.ErrInvalidRole.Error())
	case errors.Is(err, profile.ErrInvalidEmail):
		return auth.Invalid("email", profile.ErrInvalidEmail.Error())
	case errors.Is(err, profile.ErrInvalidID):
		return auth.Invalid("user_id", profile.ErrInvalidID.Error())
	case errors.Is(err, profile.ErrNameTooLong):
		return auth.Invalid("full_name", profile.ErrNameTooLong.Error())
	case errors.Is(err, profile.ErrTargetNotAdmin):
		return auth.Invalid("user_id", profile.ErrTargetNotAdmin.Error())
	case errors.Is(err, avatar.ErrEmpty):
		return auth.Invalid("avatar", avatar.ErrEmpty.Error())
	case errors.As(err, &invalid):
		return auth.Invalid(invalid.Field, invalid.Message)
	case errors.Is(err, identity.ErrUnavailable), errors.Is(err, identity.ErrTimeout):
		return auth.Upstream(err)
	default:
		return err
	}
}
