package handler

import (
	"log/slog"
	"net/http"
	"time"

	"folio/internal/auth"
	"folio/internal/authflow"
	"folio/internal/middleware"
)

// AuthHandler exposes the sign-in, sign-up, sign-out and password flows.
type AuthHandler struct {
	flow    *authflow.Controller
	cookies auth.CookieSettings
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(flow *authflow.Controller, cookies auth.CookieSettings, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{flow: flow, cookies: cookies, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type authResponse struct {
	Profile    any        `json:"profile"`
	RedirectTo string     `json:"redirect_to"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// SignIn handles POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.flow.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, h.cookies, res.Session.Token, res.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, authResponse{
		Profile:    res.Profile,
		RedirectTo: res.RedirectTo,
		ExpiresAt:  &res.Session.ExpiresAt,
	})
}

// SignUp handles POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.flow.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := authResponse{Profile: res.Profile, RedirectTo: res.RedirectTo}
	if res.Session != nil {
		auth.SetSessionCookie(w, h.cookies, res.Session.Token, res.Session.ExpiresAt)
		resp.ExpiresAt = &res.Session.ExpiresAt
	}
	writeJSON(w, http.StatusCreated, resp)
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPassword handles POST /api/auth/reset-password. The response is the
// same whether or not the address has an account.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.flow.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if an account exists for this address, a recovery code has been sent",
	})
}

// SignOut handles POST /api/auth/signout. The cookie is cleared even when
// remote revocation fails; the error is still reported so the client can retry.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		auth.WriteUnauthorized(w)
		return
	}

	res, err := h.flow.SignOut(r.Context(), sess.Token, sess.Identity.ID)
	auth.ClearSessionCookie(w, h.cookies)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"redirect_to": res.RedirectTo})
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

// UpdatePassword handles POST /api/auth/update-password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		auth.WriteUnauthorized(w)
		return
	}

	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.flow.UpdatePassword(r.Context(), sess.Token, sess.Identity.ID, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Session handles GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		auth.WriteUnauthorized(w)
		return
	}
	p, _ := middleware.GetProfile(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"user":        sess.Identity,
		"session":     sess,
		"profile":     p,
		"redirect_to": h.flow.RedirectFor(p),
	})
}
