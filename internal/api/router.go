package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/canvas-studio/engine/internal/api/handlers"
	mw "github.com/canvas-studio/engine/internal/api/middleware"
	"github.com/canvas-studio/engine/internal/metrics"
)

type Dependencies struct {
	CanvasesHandler *handlers.CanvasesHandler
	HealthHandler   *handlers.HealthHandler
	Metrics         *metrics.Collector
	// RateLimiter is optional; the caller owns its lifecycle.
	RateLimiter *mw.RateLimiter
	// CORSOrigins empty allows every origin.
	CORSOrigins []string
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics(dep.Metrics))
	r.Use(mw.Logging)
	r.Use(mw.CORS(dep.CORSOrigins))
	r.Use(chimid.Compress(5))

	// Health endpoints
	hh := dep.HealthHandler
	if hh == nil {
		hh = handlers.NewHealthHandler()
	}
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)
	r.Handle("/metrics", dep.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if dep.RateLimiter != nil {
			api.Use(dep.RateLimiter.Handler)
		}
		api.Use(mw.Owner)
		api.Route("/canvases", dep.CanvasesHandler.Routes)
	})

	return r
}
