// Package server exposes the control surface of a running host over HTTP:
// chain layout and levels, parameters and presets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cwbudde/algo-fxhost/internal/engine"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and lifecycle logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is the HTTP control API of one engine.
type Server struct {
	engine *engine.Engine
	router *chi.Mux
	logger *slog.Logger
}

// New creates a server for e.
func New(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine: e,
		router: chi.NewRouter(),
		logger: e.Logger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/chains/{dir}", func(r chi.Router) {
		r.Get("/", s.handleChain)
		r.Get("/levels", s.handleLevels)
		r.Get("/spectrum", s.handleSpectrum)
		r.Post("/stages", s.handleAddStage)
		r.Delete("/stages/{name}", s.handleRemoveStage)
		r.Post("/stages/{name}/up", s.handleMove(true))
		r.Post("/stages/{name}/down", s.handleMove(false))
		r.Put("/stages/{name}/bypass", s.handleBypass)
	})

	r.Get("/settings", s.handleListSettings)
	r.Get("/settings/*", s.handleGetSetting)
	r.Put("/settings/*", s.handlePutSetting)

	r.Route("/presets/{dir}", func(r chi.Router) {
		r.Get("/", s.handleListPresets)
		r.Get("/{name}", s.handleReadPreset)
		r.Delete("/{name}", s.handleRemovePreset)
		r.Post("/{name}/save", s.handleSavePreset)
		r.Post("/{name}/load", s.handleLoadPreset)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("control server starting", slog.String("addr", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down control server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return <-errCh
}
