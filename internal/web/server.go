// Package web exposes the HTTP API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/modu-ai/moai-rank/internal/ingest"
	"github.com/modu-ai/moai-rank/internal/leaderboard"
	"github.com/modu-ai/moai-rank/internal/ports"
	"github.com/modu-ai/moai-rank/internal/ranking"
	"github.com/modu-ai/moai-rank/internal/retention"
)

// Config holds server-specific configuration.
type Config struct {
	Addr            string
	CronSecret      string
	MaxBodyBytes    int64
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
}

// Services are the use cases the handlers call into.
type Services struct {
	Ingest      *ingest.Service
	Leaderboard *leaderboard.Service
	Ranking     *ranking.Service
	Retention   *retention.Service
	Limiter     ports.RateLimiter
}

type Server struct {
	cfg    Config
	svc    Services
	log    *zap.Logger
	router chi.Router
}

func NewServer(cfg Config, svc Services, log *zap.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 100
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, svc: svc, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Post("/sessions/batch", s.handleCreateSessionBatch)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Get("/rank", s.handleRank)
			r.Get("/verify", s.handleVerify)
		})
	})

	r.Route("/api/cron", func(r chi.Router) {
		r.Use(s.requireCronSecret)
		r.Get("/calculate-rankings", s.handleCalculateRankings)
		r.Post("/calculate-rankings", s.handleCalculateRankings)
		r.Get("/cleanup", s.handleCleanup)
		r.Post("/cleanup", s.handleCleanup)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", nil)
	})

	s.router = r
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      6 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info("starting server", zap.String("addr", s.cfg.Addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("server stopped")
	return nil
}
