// Package server provides the HTTP API: batch run control, risk result
// retrieval, and system health.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/batch"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/database"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/marketdata"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/modules/portfolio"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/results"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	MarketDB     *database.DB
	AnalyticsDB  *database.DB
	Calendar     *marketdata.Calendar
	Cache        *pricecache.Cache
	Orchestrator *batch.Orchestrator
	Portfolios   *portfolio.Repository
	Results      *results.Repository
	Runs         *results.BatchRunRepository
}

// Server is the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	batchHandlers  *BatchHandlers
	riskHandlers   *RiskHandlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		batchHandlers:  NewBatchHandlers(cfg.Orchestrator, cfg.Runs, cfg.Log),
		riskHandlers:   NewRiskHandlers(cfg.Portfolios, cfg.Results, cfg.Calendar, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.MarketDB, cfg.AnalyticsDB, cfg.Cache, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
		// Batch runs are synchronous and can take minutes
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/batch", func(r chi.Router) {
			r.Post("/run", s.batchHandlers.HandleRun)
			r.Get("/runs", s.batchHandlers.HandleRecentRuns)
			r.Get("/runs/{id}", s.batchHandlers.HandleGetRun)
		})

		r.Get("/portfolios", s.riskHandlers.HandleListPortfolios)
		r.Route("/portfolios/{id}/risk", func(r chi.Router) {
			r.Get("/exposures", s.riskHandlers.HandleExposures)
			r.Get("/correlation", s.riskHandlers.HandleCorrelation)
			r.Get("/stress", s.riskHandlers.HandleStress)
			r.Get("/volatility", s.riskHandlers.HandleVolatility)
		})

		r.Get("/system/health", s.systemHandlers.HandleHealth)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
