// Package api provides the HTTP REST API and WebSocket server for
// DoorHub Core.
//
// It exposes the device fleet, user and permission management, access
// logs, the card-detection session, and a real-time event stream to the
// operator UI.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/doorhub-io/doorhub-core/internal/accesslog"
	"github.com/doorhub-io/doorhub-core/internal/auth"
	"github.com/doorhub-io/doorhub-core/internal/device"
	"github.com/doorhub-io/doorhub-core/internal/engine"
	"github.com/doorhub-io/doorhub-core/internal/event"
	"github.com/doorhub-io/doorhub-core/internal/infrastructure/config"
	"github.com/doorhub-io/doorhub-core/internal/infrastructure/logging"
	"github.com/doorhub-io/doorhub-core/internal/user"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Users    user.Repository
	Logs     accesslog.Repository
	Engine   *engine.Engine
	Bus      *event.Bus
	Version  string
}

// Server is the HTTP API server for DoorHub Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// hub relaying engine events. Created with New(), started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	registry *device.Registry
	users    user.Repository
	logs     accesslog.Repository
	engine   *engine.Engine
	bus      *event.Bus
	version  string

	tickets *auth.TicketStore
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies. The server
// is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("fleet engine is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		registry: deps.Registry,
		users:    deps.Users,
		logs:     deps.Logs,
		engine:   deps.Engine,
		bus:      deps.Bus,
		version:  deps.Version,
		tickets:  auth.NewTicketStore(0),
	}

	// Device removal cascades to the permissions bound to the device.
	// The registry runs the hook before the hostname stops resolving.
	if s.users != nil {
		s.registry.SetRemovalHook(s.cascadePermissions)
	}

	return s, nil
}

// cascadePermissions drops every permission bound to a device about to
// be removed.
func (s *Server) cascadePermissions(ctx context.Context, dev device.Device) error {
	perms, err := s.users.ListPermissionsByDevice(ctx, dev.Hostname)
	if err != nil {
		return fmt.Errorf("listing device permissions: %w", err)
	}
	for _, perm := range perms {
		if err := s.users.DeletePermission(ctx, perm.UserID, dev.Hostname); err != nil {
			s.logger.Error("permission cascade failed",
				"user_id", perm.UserID, "hostname", dev.Hostname, "error", err)
		}
	}
	return nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, attaches the hub to the engine's event
// bus for real-time relay, and launches the HTTP listener in a
// background goroutine. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	if s.bus != nil {
		go s.relayEvents(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server. It waits up to 10 seconds
// for in-flight requests to complete, then forcefully closes remaining
// connections.
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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
