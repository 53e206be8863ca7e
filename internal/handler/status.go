package handler

import (
	"net/http"

	"folio/internal/config"
)

// Version is set at build time with -ldflags "-X folio/internal/handler.Version=...".
var Version = "0.1.0"

// statusHandler returns an HTTP handler that has access to the config.
func statusHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":     "folio",
			"version":     Version,
			"environment": cfg.Environment,
			"status":      "operational",
		})
	}
}
