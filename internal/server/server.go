package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentic-neurodata/nwbconvertd/internal/config"
	"github.com/agentic-neurodata/nwbconvertd/internal/decision"
	"github.com/agentic-neurodata/nwbconvertd/internal/dialogue"
	"github.com/agentic-neurodata/nwbconvertd/internal/report"
	"github.com/agentic-neurodata/nwbconvertd/internal/sessionstore"
	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
)

// Version is reported by GET /api/health. cmd/nwbconvertd/main.go sets it
// from its own Version constant at startup; "dev" is the value otherwise.
var Version = "dev"

// Config holds server-level configuration (port, timeouts).
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: /ws is long-lived
	}
}

// Server is the HTTP/WS server fronting the orchestrator.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	appCfg   *config.Config
	store    *sessionstore.Store
	dialogue *dialogue.Worker
	gate     *decision.Gate
	stream   *streaming.Bus
	renderer report.Renderer
}

// New creates a new Server instance, wiring routes and the /ws hub.
func New(cfg *Config, appCfg *config.Config, store *sessionstore.Store, d *dialogue.Worker, gate *decision.Gate, stream *streaming.Bus, renderer report.Renderer) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		appCfg:   appCfg,
		store:    store,
		dialogue: d,
		gate:     gate,
		stream:   stream,
		renderer: renderer,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/start-conversion", s.handleStartConversion)
		r.Post("/chat", s.handleChat)
		r.Post("/retry-approval", s.handleRetryApproval)
		r.Post("/improvement-decision", s.handleImprovementDecision)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Get("/download/nwb", s.handleDownloadNWB)
		r.Get("/download/report", s.handleDownloadReport)
		r.Get("/download/report.json", s.handleDownloadReportJSON)
		r.Post("/reset", s.handleReset)
		r.Get("/health", s.handleHealth)
	})

	r.Get("/ws", s.handleWS)
}

// Router exposes the chi router for testing.
func (s *Server) Router() *chi.Mux { return s.router }

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
