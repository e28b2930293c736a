package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/af-corp/relay/internal/auth"
)

// NewRouter mounts the handlers. Everything under /v1 requires a valid
// request signature when the verifier has a secret.
func NewRouter(h *Handler, verifier *auth.Verifier, allowedOrigins []string, version string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID", auth.HeaderTimestamp, auth.HeaderSignature},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": version,
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		r.Post("/completions", h.Completions)
		r.Post("/compare", h.Compare)
		r.Post("/commands", h.Command)
		r.Get("/backends", h.Backends)
		r.Get("/stats", h.Stats)
	})
	return r
}
