package pipeline

import (
	"net/http"

	"github.com/sheetform/SheetForm/models"
)

// ResolveAllowOrigin returns the value for Access-Control-Allow-Origin,
// or "" when the origin is not permitted. This is a header-only gate:
// a disallowed origin still has its request processed server-side, the
// browser just refuses to read the response.
func ResolveAllowOrigin(cfg *models.FormAPIConfig, origin string) string {
	if !cfg.CORSEnabled {
		// External endpoints default open.
		return "*"
	}
	for _, allowed := range cfg.OriginList() {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin && origin != "" {
			return origin
		}
	}
	return ""
}

// ApplyCORS writes the per-config CORS headers onto a response.
func ApplyCORS(w http.ResponseWriter, cfg *models.FormAPIConfig, origin string) {
	allowed := ResolveAllowOrigin(cfg, origin)
	if allowed == "" {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
	if allowed != "*" {
		w.Header().Set("Vary", "Origin")
	}
}

// Preflight answers an OPTIONS request. It always returns 200; the
// allow-origin header is only present when policy permits the origin.
func Preflight(w http.ResponseWriter, cfg *models.FormAPIConfig, origin string) {
	if cfg != nil {
		ApplyCORS(w, cfg, origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
	}
	w.WriteHeader(http.StatusOK)
}
