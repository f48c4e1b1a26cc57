package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Docketgraph/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Docketgraph/internal/api/middlewares"
	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, ing ingestion_engine.Ingestor) *Server {
	webhookHandler := handlers.NewWebhookHandler(ing, cfg.HTTP.WebhookCollection, cfg.HTTP.WebhookEvents)
	docHandler := handlers.NewDocumentHandler(db, ing)
	extractionHandler := handlers.NewExtractionHandler(db, ing, cfg.HTTP.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(appMiddleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appMiddleware.WebhookSecretHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", handlers.Health)

	r.With(appMiddleware.WebhookSecret(cfg.HTTP.WebhookSecret)).
		Post("/webhooks/documents", webhookHandler.Handle)

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.HTTP.JWTSecret))

		api.Post("/ingest", docHandler.Ingest)
		api.Get("/documents/{id}", docHandler.GetDocument)
		api.Post("/documents/{id}/rechunk", docHandler.Rechunk)

		api.Post("/extractions", extractionHandler.Create)
		api.Get("/extractions", extractionHandler.List)
		api.Get("/extractions/{id}", extractionHandler.Get)
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{httpServer: httpSrv}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	logging.Default().Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.From(ctx).Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
