package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/lorekeeper/pkg/message"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.middleware)

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	if g.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger, g.metrics))
		}
		r.Get("/sessions", g.handleListSessions())
		r.Post("/sessions", g.handleCreateSession())
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", g.handleDeleteSession())
			r.Get("/cards", g.handleCards())
			r.Post("/{phase}", g.handlePhase())
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, message.Error{Error: msg})
}
