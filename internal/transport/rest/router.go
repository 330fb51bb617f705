package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/keyword-research-api/internal"
	"github.com/frahmantamala/keyword-research-api/internal/keywords"
	"github.com/frahmantamala/keyword-research-api/internal/searchhistory"
	"github.com/frahmantamala/keyword-research-api/internal/transport/middleware"
	"github.com/frahmantamala/keyword-research-api/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, cfg *internal.Config, keywordHandler *keywords.Handler, historyHandler *searchhistory.Handler, tokenVerifier middleware.TokenVerifier, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, logger)

	// Apply global middleware
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Rate-limited research routes. Paid routes sit behind the same
		// limiter; the payment gate runs inside each handler.
		r.Group(func(lr chi.Router) {
			lr.Use(rateLimiter.Middleware)

			if keywordHandler != nil {
				lr.Route("/keywords", func(kr chi.Router) {
					kr.Post("/overview", keywordHandler.Overview)
					kr.Post("/overview/batch", keywordHandler.Batch)
					kr.Post("/ideas", keywordHandler.Ideas)
				})
				lr.Post("/serp", keywordHandler.Serp)
			}
		})

		// Search history requires authentication, no payment.
		if historyHandler != nil && tokenVerifier != nil {
			r.Route("/search-history", func(sr chi.Router) {
				sr.Use(middleware.RequireAuth(tokenVerifier, logger))
				sr.Get("/", historyHandler.List)
				sr.Post("/", historyHandler.Record)
			})
		}
	})
}
