package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, TypeAuthentication},
		{"invalid credentials", fmt.Errorf("sign in: %w", ErrInvalidCredentials), http.StatusUnauthorized, TypeAuthentication},
		{"forbidden", ErrForbidden, http.StatusForbidden, TypePermission},
		{"disabled", ErrAccountDisabled, http.StatusForbidden, TypePermission},
		{"profile missing", ErrProfileMissing, http.StatusForbidden, TypeProfileMissing},
		{"validation", Invalid("email", "is required"), http.StatusBadRequest, TypeInvalidRequest},
		{"not found", ErrNotFound, http.StatusNotFound, TypeNotFound},
		{"conflict", ErrConflict, http.StatusConflict, TypeConflict},
		{"upstream", Upstream(errors.New("dial tcp: timeout")), http.StatusServiceUnavailable, TypeUpstream},
		{"unknown", errors.New("pq: relation \"profiles\" does not exist"), http.StatusInternalServerError, TypeServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if Status(tt.err) != tt.wantStatus {
				t.Errorf("Status() disagrees with WriteError: %d", Status(tt.err))
			}
			var resp APIError
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if resp.Error.Type != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, resp.Error.Type)
			}
		})
	}
}

func TestWriteError_DoesNotLeakInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("password=hunter2 host=db.internal"))

	if strings.Contains(rec.Body.String(), "hunter2") || strings.Contains(rec.Body.String(), "db.internal") {
		t.Errorf("response leaked internals: %s", rec.Body.String())
	}
}

func TestUpstream_IsRetryableAndDistinctFromUnauthenticated(t *testing.T) {
	err := Upstream(errors.New("connection refused"))

	if !Retryable(err) {
		t.Error("upstream failure should be retryable")
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Error("upstream failure must not look like unauthenticated")
	}
	if Upstream(err) != err {
		t.Error("wrapping twice should be a no-op")
	}
	if Upstream(nil) != nil {
		t.Error("Upstream(nil) should be nil")
	}
}

func TestValidationError_Fields(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"password": "too short", "email": "is required"}}

	if !errors.Is(err, ErrValidation) {
		t.Error("expected ValidationError to match ErrValidation")
	}
	if got := err.Error(); got != "validation failed: email: is required; password: too short" {
		t.Errorf("unexpected message %q", got)
	}

	rec := httptest.NewRecorder()
	WriteError(rec, err)
	var resp APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Fields["email"] != "is required" {
		t.Errorf("expected field errors in body, got %+v", resp.Error.Fields)
	}
}

func TestSessionCookie(t *testing.T) {
	cs := CookieSettings{Name: "folio_session", Secure: true}

	rec := httptest.NewRecorder()
	SetSessionCookie(rec, cs, "tok", time.Now().Add(time.Hour))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Value != "tok" || !c.HttpOnly || !c.Secure || c.MaxAge <= 0 {
		t.Errorf("unexpected session cookie: %+v", c)
	}

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, cs)
	c = rec.Result().Cookies()[0]
	if c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("expected cleared cookie, got %+v", c)
	}
}

func TestConflict_MessageIsClientFacing(t *testing.T) {
	err := Conflict("a project with this slug already exists")
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected ErrConflict")
	}

	rec := httptest.NewRecorder()
	WriteError(rec, err)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	var resp APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Message != "a project with this slug already exists" {
		t.Errorf("unexpected message %q", resp.Error.Message)
	}
}
