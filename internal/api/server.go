// Package api serves a local HTTP status endpoint for an orderlink process.
//
// It reports the messaging client's connection health and counters so that
// supervisors and dashboards can poll a running watcher or console:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/orderlink/internal/infrastructure/config"
	"github.com/nerrad567/orderlink/internal/infrastructure/logging"
	"github.com/nerrad567/orderlink/internal/messaging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Source is the messaging client as seen by the status endpoint.
type Source interface {
	HealthCheck(ctx context.Context) error
	Stats() messaging.Stats
	LastError() error
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config  config.StatusConfig
	Logger  *logging.Logger
	Source  Source
	Version string
}

// Server is the HTTP status server.
type Server struct {
	cfg     config.StatusConfig
	logger  *logging.Logger
	source  Source
	version string
	started time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a status server. It does not listen until Start.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the address or source is missing
func New(deps Deps) (*Server, error) {
	if deps.Config.Address == "" {
		return nil, fmt.Errorf("api: status address is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("api: source is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger.With("component", "api"),
		source:  deps.Source,
		version: deps.Version,
	}, nil
}

// Start binds the listen address and serves in the background.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api: already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", s.cfg.Address, err)
	}

	s.started = time.Now()
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	s.logger.Info("status server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
