// Package api provides the HTTP REST API and WebSocket stream server for the
// message bridge.
//
// It exposes message history queries, publish and subscription mutations, and
// live WebSocket streams backed by the delivery dispatcher. The server follows
// the same lifecycle pattern as the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Handlers contain no business logic; every route maps onto one
// service.BridgeService call.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/msgbridge/internal/infrastructure/config"
	"github.com/nerrad567/msgbridge/internal/infrastructure/logging"
	"github.com/nerrad567/msgbridge/internal/service"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  *config.Config
	Logger  *logging.Logger
	Service *service.BridgeService
	Version string
}

// Server is the HTTP and WebSocket front door of the bridge.
//
// It is a thin adapter: every handler maps onto exactly one
// service.BridgeService call. The server is created with New() and started
// with Start().
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	service *service.BridgeService
	version string
	server  *http.Server
	cancel  context.CancelFunc // cancels per-connection stream goroutines on Close()
	ctx     context.Context    // parent context for WebSocket streams
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("bridge service is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		service: deps.Service,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The HTTP listener runs in a background goroutine; the server is stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It cancels all open WebSocket streams, then waits up to 10 seconds for
// in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
