package handler

import (
	"net/http"

	"folio/internal/config"
	"folio/internal/middleware"
)

// Routes bundles everything RegisterRoutes mounts.
type Routes struct {
	Config     *config.Config
	Auth       *middleware.Auth
	RateLimit  func(http.Handler) http.Handler
	Health     *HealthHandler
	Metrics    http.Handler
	AuthFlows  *AuthHandler
	Profiles   *ProfileHandler
	AdminUsers *AdminUsersHandler
	Projects   *ProjectsHandler
}

// RegisterRoutes registers all HTTP routes with the provided mux.
// Method patterns give 405 responses for the wrong verb.
func RegisterRoutes(mux *http.ServeMux, rt Routes) {
	session := rt.Auth.RequireSession
	admin := rt.Auth.RequireAdmin
	limited := rt.RateLimit
	if limited == nil {
		limited = func(h http.Handler) http.Handler { return h }
	}

	// Health, status and metrics (no auth required)
	mux.Handle("GET /health", rt.Health)
	mux.HandleFunc("GET /api/v1/status", statusHandler(rt.Config))
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	// Public portfolio
	mux.HandleFunc("GET /api/projects", rt.Projects.ListPublished)
	mux.HandleFunc("GET /api/projects/{slug}", rt.Projects.GetPublished)

	// Credential submissions, rate limited per client
	mux.Handle("POST /api/auth/signin", limited(http.HandlerFunc(rt.AuthFlows.SignIn)))
	mux.Handle("POST /api/auth/signup", limited(http.HandlerFunc(rt.AuthFlows.SignUp)))
	mux.Handle("POST /api/auth/reset-password", limited(http.HandlerFunc(rt.AuthFlows.ResetPassword)))

	// Sign-out only needs a live session so that users without a profile
	// can still leave.
	mux.Handle("POST /api/auth/signout", rt.Auth.RequireIdentity(http.HandlerFunc(rt.AuthFlows.SignOut)))
	mux.Handle("POST /api/auth/update-password", session(limited(http.HandlerFunc(rt.AuthFlows.UpdatePassword))))
	mux.Handle("GET /api/auth/session", session(http.HandlerFunc(rt.AuthFlows.Session)))

	mux.Handle("GET /api/profile", session(http.HandlerFunc(rt.Profiles.Get)))
	mux.Handle("PATCH /api/profile", session(http.HandlerFunc(rt.Profiles.Update)))
	mux.Handle("POST /api/profile/avatar", session(http.HandlerFunc(rt.Profiles.UploadAvatar)))
	mux.Handle("DELETE /api/profile/avatar", session(http.HandlerFunc(rt.Profiles.DeleteAvatar)))
	mux.Handle("GET /api/scrum-master", session(http.HandlerFunc(rt.Profiles.ScrumMaster)))

	// Admin. The gate runs on every call; no role is remembered between requests.
	mux.Handle("GET /api/admin/users", admin(http.HandlerFunc(rt.AdminUsers.List)))
	mux.Handle("POST /api/admin/users", admin(http.HandlerFunc(rt.AdminUsers.Create)))
	mux.Handle("DELETE /api/admin/users/{id}", admin(http.HandlerFunc(rt.AdminUsers.Delete)))
	mux.Handle("PUT /api/admin/users/{id}/role", admin(http.HandlerFunc(rt.AdminUsers.SetRole)))
	mux.Handle("PUT /api/admin/users/{id}/active", admin(http.HandlerFunc(rt.AdminUsers.SetActive)))
	mux.Handle("PUT /api/admin/scrum-master", admin(http.HandlerFunc(rt.AdminUsers.AssignScrumMaster)))
	mux.Handle("DELETE /api/admin/scrum-master", admin(http.HandlerFunc(rt.AdminUsers.RevokeScrumMaster)))
	mux.Handle("POST /api/admin/profiles/repair", admin(http.HandlerFunc(rt.AdminUsers.RepairProfile)))

	mux.Handle("GET /api/admin/projects", admin(http.HandlerFunc(rt.Projects.ListAll)))
	mux.Handle("POST /api/admin/projects", admin(http.HandlerFunc(rt.Projects.Create)))
	mux.Handle("PUT /api/admin/projects/{id}", admin(http.HandlerFunc(rt.Projects.Update)))
	mux.Handle("DELETE /api/admin/projects/{id}", admin(http.HandlerFunc(rt.Projects.Delete)))
}
