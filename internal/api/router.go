package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"crosspromo-engine/internal/observability"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/campaigns", h.Campaigns)
		r.Put("/campaigns", h.ReplaceCampaigns)
		r.Post("/sync", h.Sync)
		r.Delete("/cache", h.InvalidateCache)
		r.Post("/verify", h.Verify)
		r.Get("/verification", h.VerificationRecords)
		r.Get("/icons/{storeID}", h.Icon)
		r.Post("/icons/fetch", h.FetchIcons)
		r.Get("/freshness", h.Freshness)
		r.Post("/freshness/generated", h.ArtifactGenerated)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
