// Package server provides the HTTP API described by §6: the distill
// webhook intake, paged/charted sample queries, Monitor and AlertRule
// CRUD, the DEX funding-rate snapshot, and system/webhook status.
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

	"github.com/aristath/ratewatch/internal/config"
	"github.com/aristath/ratewatch/internal/engine"
)

// Config holds server configuration.
type Config struct {
	Port    int
	Log     zerolog.Logger
	Engine  *engine.Engine
	Config  *config.Config
	DevMode bool
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	eng    *engine.Engine
	cfg    *config.Config
	port   int

	startedAt time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		eng:       cfg.Engine,
		cfg:       cfg.Config,
		port:      cfg.Port,
		startedAt: time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) corsOrigins() []string {
	if s.cfg == nil || len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleDashboard)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/webhook", func(r chi.Router) {
		r.Post("/distill", s.handleWebhookDistill)
		r.Get("/status", s.handleWebhookStatus)
	})

	s.router.Get("/data", s.handleData)
	s.router.Get("/chart-data/{monitor_id}", s.handleChartData)

	s.router.Route("/monitors", func(r chi.Router) {
		r.Get("/", s.handleListMonitors)
		r.Post("/", s.handleCreateMonitor)
		r.Get("/{id}", s.handleGetMonitor)
		r.Put("/{id}", s.handleUpdateMonitor)
		r.Delete("/{id}", s.handleDeleteMonitor)
	})

	s.router.Route("/alert-rules", func(r chi.Router) {
		r.Get("/", s.handleListAlertRules)
		r.Post("/", s.handleCreateAlertRule)
		r.Get("/{id}", s.handleGetAlertRule)
		r.Put("/{id}", s.handleUpdateAlertRule)
		r.Delete("/{id}", s.handleDeleteAlertRule)
	})

	s.router.Route("/dex", func(r chi.Router) {
		r.Get("/funding-rates", s.handleDexFundingRates)
		r.Get("/funding-rates/{symbol}", s.handleDexFundingRate)
	})

	s.router.Route("/system", func(r chi.Router) {
		r.Get("/status", s.handleSystemStatus)
	})

	fileServer := http.FileServer(http.Dir("./static"))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleDashboard serves the main dashboard HTML.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "./static/index.html")
}

// handleHealth is a bare liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loggingMiddleware logs HTTP requests.
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
