package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attest/pkg/platform/httputil"
)

// HealthCheck probes one dependency; a nil slice means always healthy.
type HealthCheck func(ctx context.Context) error

// NewRouter assembles the full route tree. Health and metrics stay outside
// authentication; everything else requires a bearer token.
func NewRouter(h *Handlers, signingKey []byte, registry *prometheus.Registry, logger *slog.Logger, checks ...HealthCheck) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestContext)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		for _, check := range checks {
			if err := check(req.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(auth(signingKey))

		r.Route("/requirements", func(r chi.Router) {
			r.Post("/", h.createRequirement)
			r.Get("/{id}", h.getRequirement)
		})

		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", h.createSubmission)
			r.Get("/{id}", h.getSubmission)
			r.Get("/{id}/events", h.listSubmissionEvents)
			r.Post("/{id}/review", h.reviewSubmission)
			r.Post("/{id}/resubmit", h.resubmit)
			r.Get("/{id}/export", h.exportSubmission)
		})

		r.Route("/escalations", func(r chi.Router) {
			r.Get("/", h.listEscalations)
			r.Post("/{id}/resolve", h.resolveEscalation)
		})
	})

	return r
}
