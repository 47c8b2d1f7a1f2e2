package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mindhaventaylor/ai-selfi-sub000/internal/http/handlers"
	"github.com/mindhaventaylor/ai-selfi-sub000/internal/middleware"
)

// NewRouter builds the dispatcher API surface.
func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(app.Log))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.Post("/", app.GenerationsCreate)
		r.Get("/{batch_id}", app.GenerationStatus)
	})

	r.Get("/v1/jobs/{job_id}", app.JobStatus)

	return r
}

// NewWorkerRouter builds the worker-side intake surface.
func NewWorkerRouter(h *handlers.WebhookHandler) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.Recoverer, middleware.Logger(h.Log))

	r.Get("/healthz", h.Health)
	r.Post("/webhook/photo-generation", h.PhotoGeneration)

	return r
}
