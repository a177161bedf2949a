// Package api provides the HTTP gateway for usbhubd.
//
// It exposes the hub's device info, channel power and data line control
// over a small REST surface, plus a WebSocket stream of state changes.
// Every device-touching request goes through the session manager, so
// concurrent clients are serialised on the wire without the handlers
// doing any locking of their own.
//
// The server follows the usual lifecycle pattern:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: all methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openusb/usbhubd/internal/hub"
	"github.com/openusb/usbhubd/internal/infrastructure/config"
	"github.com/openusb/usbhubd/internal/infrastructure/logging"
	"github.com/openusb/usbhubd/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown. Device round-trips are sub-second, so this
// is generous.
const gracefulShutdownTimeout = 10 * time.Second

// Session is the device access surface the handlers need.
// *session.Manager satisfies it; tests substitute a mock.
type Session interface {
	Info(ctx context.Context) (hub.DeviceInfo, error)
	PowerStatus(ctx context.Context, channels []hub.Channel) (session.Status, error)
	DatalineStatus(ctx context.Context, channels []hub.Channel) (session.Status, error)
	SetPower(ctx context.Context, channels []hub.Channel, state hub.State) (bool, error)
	SetDataline(ctx context.Context, channels []hub.Channel, state hub.State) (bool, error)
	Stats() session.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Session Session
	Version string
}

// Server is the HTTP gateway. Created with New(), started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	session Session
	version string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server with the given dependencies.
//
// Returns:
//   - *Server: Configured server, not yet listening
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("device session is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		session: deps.Session,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background
// goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.logger)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// BroadcastChange pushes a state change event to WebSocket clients.
// Intended for the session manager's change callback.
func (s *Server) BroadcastChange(ev session.Event) {
	if s.hub != nil {
		s.hub.BroadcastChange(ev)
	}
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
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

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Unknown paths and wrong methods both get the legacy 404 payload;
	// existing clients distinguish endpoints solely by that shape.
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	r.Get("/device/info", s.handleDeviceInfo)

	r.Route("/channel", func(r chi.Router) {
		r.Get("/power/{channel}", s.handleChannelStatus("power"))
		r.Get("/dataline/{channel}", s.handleChannelStatus("dataline"))

		r.Get("/power", s.handleBatchStatus("power"))
		r.Get("/dataline", s.handleBatchStatus("dataline"))

		r.Post("/power", s.handleSetChannels("power"))
		r.Post("/dataline", s.handleSetChannels("dataline"))
	})

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/ws", s.handleWS)

	return r
}
