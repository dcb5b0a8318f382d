// Package api exposes the reconciliation pipeline over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/store"
	"invoice-reconciliation-service/internal/workflow"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(st *store.Store, engine *workflow.Engine, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	h := &Handlers{
		store:  st,
		engine: engine,
		logger: log.WithComponent("api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/invoices", h.SubmitInvoice)
		r.Post("/invoices/{id}/process", h.ProcessInvoice)
		r.Get("/invoices/{id}/result", h.GetResult)
		r.Get("/review-queue", h.ListReviewQueue)
	})

	return r
}
