package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/capture-core/internal/audit"
	"github.com/nerrad567/capture-core/internal/auth"
	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/history"
	"github.com/nerrad567/capture-core/internal/infrastructure/config"
	"github.com/nerrad567/capture-core/internal/infrastructure/logging"
	"github.com/nerrad567/capture-core/internal/permission"
	"github.com/nerrad567/capture-core/internal/prompt"
	"github.com/nerrad567/capture-core/internal/salt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// responseGrace is added to the prompt timeout to bound how long a
// capture request may wait for its completion callback.
const responseGrace = 15 * time.Second

// HealthChecker is implemented by every component reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Prompt      config.PromptConfig
	Logger      *logging.Logger
	Coordinator *capture.Coordinator
	Broker      *prompt.Broker
	Permissions *permission.Controller
	Salts       *salt.Store
	Devices     capture.Enumerator
	History     history.Repository       // optional; /history answers 503 without it
	Audit       audit.Repository         // optional; operator actions go unrecorded without it
	Operators   *auth.Operators          // optional; login is refused without it
	Checks      map[string]HealthChecker // optional
	Terminator  *Terminator              // optional; tokens of terminated processes are refused
	ExternalHub *Hub                     // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server of the capture service.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	coord       *capture.Coordinator
	broker      *prompt.Broker
	perms       *permission.Controller
	salts       *salt.Store
	devices     capture.Enumerator
	history     history.Repository
	audit       audit.Repository
	operators   *auth.Operators
	checks      map[string]HealthChecker
	terminator  *Terminator
	version     string
	waitTimeout time.Duration
	tickets     *ticketStore
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Broker == nil || deps.Permissions == nil {
		return nil, fmt.Errorf("prompt broker and permission controller are required")
	}
	if deps.Salts == nil || deps.Devices == nil {
		return nil, fmt.Errorf("salt store and device enumerator are required")
	}
	if deps.Operators == nil {
		deps.Operators = auth.NewOperators(nil)
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		coord:       deps.Coordinator,
		broker:      deps.Broker,
		perms:       deps.Permissions,
		salts:       deps.Salts,
		devices:     deps.Devices,
		history:     deps.History,
		audit:       deps.Audit,
		operators:   deps.Operators,
		checks:      deps.Checks,
		terminator:  deps.Terminator,
		version:     deps.Version,
		waitTimeout: time.Duration(deps.Prompt.Timeout)*time.Second + responseGrace,
		tickets:     newTicketStore(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub unless one was injected,
// and launches the HTTP listener in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
