// Package server provides the REST API for capacity queries and plan
// lifecycle operations.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/virtforge/placementd/internal/config"
	"github.com/virtforge/placementd/internal/plans"
	"github.com/virtforge/placementd/internal/server/middleware"
)

// Server hosts the HTTP API.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	planSvc    *plans.Service
	inventory  InventorySource
	mux        *http.ServeMux
	httpServer *http.Server
}

// New creates a configured server. The inventory source may be nil when the
// process runs without a hypervisor connection; session refresh is then
// rejected.
func New(cfg *config.Config, planSvc *plans.Service, inventory InventorySource, logger *zap.Logger) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger.With(zap.String("component", "server")),
		planSvc:   planSvc,
		inventory: inventory,
		mux:       http.NewServeMux(),
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.setupMiddleware(s.mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/api/capacity", NewCapacityHandler(s))
	s.mux.Handle("/api/plans", NewPlanHandler(s))
	s.mux.Handle("/api/plans/", NewPlanHandler(s))
	s.mux.Handle("/api/session/refresh", NewSessionHandler(s))
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware(handler http.Handler) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   s.config.CORS.AllowedMethods,
		AllowedHeaders:   s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           86400,
	})
	auth := middleware.NewAuth(s.config.Auth, s.logger)

	handler = auth.Handler(handler)
	handler = corsHandler.Handler(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	return handler
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		if r.URL.Path == "/health" {
			return
		}
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// recoveryMiddleware recovers from handler panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panic",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Run starts the server and blocks until the context is canceled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
