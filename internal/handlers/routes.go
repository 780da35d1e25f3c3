package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the HTTP router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(30 * time.Second)).Group(func(r chi.Router) {
			r.Get("/predictions", h.ListPredictions)
			r.Get("/predictions/{player}/{game}/{stat}", h.GetPrediction)
			r.Get("/performance", h.GetPerformance)
			r.Get("/sports", h.ListSports)
			r.Get("/dates", h.ListGameDates)
			r.Get("/games/upcoming", h.ListUpcomingGames)
			r.Post("/actuals", h.IngestActuals)
		})
		r.Group(func(r chi.Router) {
			r.Use(clearWriteDeadline)
			r.Post("/pipeline/run", h.RunPipeline)
			r.Post("/pipeline/actuals", h.CollectActuals)
		})
	})

	return r
}

// clearWriteDeadline lifts the server WriteTimeout for handlers that wait on
// a whole pipeline run, which may take longer than any other request.
func clearWriteDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Recorders do not support deadlines.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		next.ServeHTTP(w, r)
	})
}
