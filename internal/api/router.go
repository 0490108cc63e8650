package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pastrop/feeaudit/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	logger zerolog.Logger,
	runRepo *repository.RunRepo,
	clusterRepo *repository.ClusterRepo,
	verificationRepo *repository.VerificationRepo,
	discrepancyRepo *repository.DiscrepancyRepo,
	defaults Defaults,
) http.Handler {
	h := &Handlers{
		log:      logger.With().Str("component", "api").Logger(),
		runRepo:  runRepo,
		clusRepo: clusterRepo,
		verRepo:  verificationRepo,
		discRepo: discrepancyRepo,
		defaults: defaults,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Analysis runs.
		r.Post("/runs/verify", h.VerifyRun)
		r.Post("/runs/cluster", h.ClusterRun)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)
		r.Get("/runs/{id}/verifications", h.ListRunVerifications)
		r.Get("/runs/{id}/discrepancies", h.ListRunDiscrepancies)
		r.Get("/runs/{id}/clusters", h.GetRunClusters)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
