// Package auth holds the session error taxonomy and the HTTP helpers shared by
// every authenticated route.
package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Token extraction failures. Log them, never return them to clients.
var (
	ErrMissingToken      = errors.New("missing session token")
	ErrInvalidAuthScheme = errors.New("invalid authorization scheme: expected Bearer")
	ErrEmptyToken        = errors.New("empty bearer token")
)

// SessionToken returns the session token carried by r. The session cookie is
// preferred; non-browser clients may send "Authorization: Bearer <token>".
func SessionToken(r *http.Request, cookieName string) (string, error) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if r.Header.Get("Authorization") == "" {
		return "", ErrMissingToken
	}
	return ExtractBearerToken(r)
}

// ExtractBearerToken extracts the token from an "Authorization: Bearer <token>" header.
func ExtractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", ErrInvalidAuthScheme
	}

	token := strings.TrimPrefix(authHeader, prefix)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

// APIError is the JSON body of every error response.
type APIError struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error message and type.
type ErrorDetail struct {
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// WriteJSONError writes {"error": {"message": ..., "type": ...}} with status.
func WriteJSONError(w http.ResponseWriter, status int, message, errorType string) {
	writeAPIError(w, status, ErrorDetail{Message: message, Type: errorType})
}

func writeAPIError(w http.ResponseWriter, status int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{Error: detail}); err != nil {
		slog.Error("failed to write JSON error response", "error", err)
	}
}

// WriteUnauthorized writes a 401 for requests without a valid session.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusUnauthorized, "unauthorized", TypeAuthentication)
}
