package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/oshokin/fall-guard/internal/escalation"
	"github.com/oshokin/fall-guard/internal/logger"
	"github.com/oshokin/fall-guard/internal/version"
)

// Source provides the current status.
type Source interface {
	Snapshot(ctx context.Context) (escalation.Status, error)
}

// Server is the HTTP status server.
type Server struct {
	// source answers status requests.
	source Source
	// router routes requests to handlers.
	router chi.Router
	// requestTimeout bounds a single request.
	requestTimeout time.Duration
}

const (
	// readHeaderTimeout bounds slow clients.
	readHeaderTimeout = 5 * time.Second
	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 5 * time.Second
	// corsMaxAge is the preflight cache lifetime in seconds.
	corsMaxAge = 300
)

// NewServer builds the router over source.
func NewServer(source Source, requestTimeout time.Duration) *Server {
	s := &Server{
		source:         source,
		router:         chi.NewRouter(),
		requestTimeout: requestTimeout,
	}

	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.requestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.requestTimeout))
	}

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         corsMaxAge,
	}))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleStatus returns the current status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	current, err := s.source.Snapshot(r.Context())
	if err != nil {
		logger.ErrorKV(r.Context(), "Status snapshot failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": err.Error(),
		})

		return
	}

	respondJSON(w, http.StatusOK, current)
}

// respondJSON writes payload as JSON.
func respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// Serve listens on address and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.serveListener(ctx, lis)
}

// serveListener serves on lis until ctx is done.
func (s *Server) serveListener(ctx context.Context, lis net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logger.InfoKV(ctx, "HTTP status server listening", "listen_address", lis.Addr().String())

	// Done channel is closed after Shutdown finishes so Serve returns only
	// once the server is fully stopped.
	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorKV(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP status server stopped")

	return nil
}
