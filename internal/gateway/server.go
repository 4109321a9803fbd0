// Package gateway provides the optional HTTP gateway: health and status
// endpoints plus a websocket controller channel.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"wabridge/internal/config"
	"wabridge/internal/gateway/handlers"
	"wabridge/internal/gateway/middleware"
	"wabridge/internal/gateway/websocket"
	"wabridge/pkg/logger"
)

// Server represents the HTTP gateway server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	hub        *websocket.Hub
	config     config.GatewayConfig
	status     handlers.StatusProvider
	version    string
	startedAt  time.Time
}

// NewServer creates a gateway server. hub may be nil when the controller
// uses stdio; /ws is then not routed.
func NewServer(cfg config.GatewayConfig, version string, status handlers.StatusProvider, hub *websocket.Hub) *Server {
	router := mux.NewRouter()

	// Recovery -> Logging -> router
	handler := middleware.Recovery(middleware.Logging(router))

	s := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		router:    router,
		hub:       hub,
		config:    cfg,
		status:    status,
		version:   version,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", handlers.HealthHandler(s.version, s.startedAt)).Methods(http.MethodGet)

	var clients func() int
	if s.hub != nil {
		clients = s.hub.ClientCount
	}
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", handlers.StatusHandler(s.status, clients)).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(s.hub, w, r)
		})
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "not found")
	})
}

// Handler returns the server's root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the websocket hub, or nil.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Start listens and serves until ctx is done, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", s.httpServer.Addr, err)
	}

	if s.hub != nil {
		go s.hub.Run()
	}

	logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")
	if s.hub != nil {
		_ = s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
