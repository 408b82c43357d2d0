package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultAPIAddr is the default address for the API server.
	DefaultAPIAddr = ":8080"

	// DefaultAPIReadHeaderTimeout is the default read header timeout for the API server.
	DefaultAPIReadHeaderTimeout = 10 * time.Second

	// DefaultAPIIdleTimeout is the default idle timeout for the API server.
	DefaultAPIIdleTimeout = 120 * time.Second
)

// APIServer serves the HTTP API and health endpoints.
type APIServer struct {
	httpServer *http.Server
	health     *HealthChecker
	addr       string
}

// NewAPIServer creates an API server for api on addr.
func NewAPIServer(addr string, api *API, health *HealthChecker) *APIServer {
	if addr == "" {
		addr = DefaultAPIAddr
	}
	if health == nil {
		health = NewHealthChecker(nil)
	}
	return &APIServer{
		addr:   addr,
		health: health,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           api.Router(health),
			ReadHeaderTimeout: DefaultAPIReadHeaderTimeout,
			IdleTimeout:       DefaultAPIIdleTimeout,
		},
	}
}

// Start starts the API server in a blocking manner.
func (s *APIServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal starts the API server and closes ready once the
// listener is bound. It blocks until the server stops.
func (s *APIServer) StartWithReadySignal(ready chan<- struct{}) error {
	return serveWithReadySignal(s.httpServer, "API", ready)
}

// serveWithReadySignal binds srv.Addr, signals ready and serves until srv is
// shut down. Bind errors are returned before ready is closed.
func serveWithReadySignal(srv *http.Server, name string, ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	slog.Info("starting "+name+" server", "addr", ln.Addr().String())
	if ready != nil {
		close(ready)
	}
	return srv.Serve(ln)
}

// Shutdown marks the server as not ready and drains in-flight requests.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	slog.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured address for the API server.
func (s *APIServer) Addr() string {
	return s.addr
}

// Handler returns the HTTP handler, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.httpServer.Handler
}
