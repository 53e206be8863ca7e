package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error types reported in the "type" field of error responses.
const (
	TypeAuthentication = "authentication_error"
	TypePermission     = "permission_error"
	TypeProfileMissing = "profile_missing"
	TypeInvalidRequest = "invalid_request_error"
	TypeNotFound       = "not_found_error"
	TypeConflict       = "conflict_error"
	TypeRateLimit      = "rate_limit_error"
	TypeUpstream       = "upstream_error"
	TypeServer         = "server_error"
)

// The session error taxonomy. Components return these (possibly wrapped);
// WriteError turns them into responses.
var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrProfileMissing     = errors.New("account profile is missing, contact support")
	ErrUpstream           = errors.New("identity service unavailable")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
)

// ValidationError carries per-field messages for a 400 response.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a validation error for a single field.
func Invalid(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Conflict returns an ErrConflict whose message is safe to show the client.
func Conflict(message string) error {
	return &messageError{kind: ErrConflict, message: message}
}

type messageError struct {
	kind    error
	message string
}

func (e *messageError) Error() string { return e.message }

func (e *messageError) Unwrap() error { return e.kind }

// Upstream marks err as a retryable failure of a remote dependency.
func Upstream(err error) error {
	if err == nil || errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// Retryable reports whether the caller may retry the same request.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// Status maps err onto an HTTP status code.
func Status(err error) int {
	status, _ := classify(err)
	return status
}

// WriteError writes the response for err. Errors outside the taxonomy become
// a generic 500 that reveals nothing about the cause.
func WriteError(w http.ResponseWriter, err error) {
	status, detail := classify(err)
	writeAPIError(w, status, detail)
}

func classify(err error) (int, ErrorDetail) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorDetail{Message: "validation failed", Type: TypeInvalidRequest, Fields: ve.Fields}
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, ErrorDetail{Message: err.Error(), Type: TypeInvalidRequest}
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorDetail{Message: ErrInvalidCredentials.Error(), Type: TypeAuthentication}
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorDetail{Message: "unauthorized", Type: TypeAuthentication}
	case errors.Is(err, ErrAccountDisabled):
		return http.StatusForbidden, ErrorDetail{Message: ErrAccountDisabled.Error(), Type: TypePermission}
	case errors.Is(err, ErrProfileMissing):
		return http.StatusForbidden, ErrorDetail{Message: ErrProfileMissing.Error(), Type: TypeProfileMissing}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, ErrorDetail{Message: "forbidden", Type: TypePermission}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorDetail{Message: "not found", Type: TypeNotFound}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, ErrorDetail{Message: err.Error(), Type: TypeConflict}
	case errors.Is(err, ErrUpstream):
		return http.StatusServiceUnavailable, ErrorDetail{
			Message:   "service temporarily unavailable, please try again",
			Type:      TypeUpstream,
			Retryable: true,
		}
	default:
		return http.StatusInternalServerError, ErrorDetail{Message: "internal error", Type: TypeServer}
	}
}
