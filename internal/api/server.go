// Package api provides the HTTP REST API and WebSocket server for the
// Raptor-X control plane.
//
// It exposes the device registry, the proxied SUT capability routes, the
// inference job queue, and run/campaign management to operator tooling,
// plus a WebSocket hub streaming run and device events.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
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
	"net/http"
	"time"

	"github.com/ShreyX24/Raptor-X-sub001/internal/audit"
	"github.com/ShreyX24/Raptor-X-sub001/internal/device"
	"github.com/ShreyX24/Raptor-X-sub001/internal/gateway"
	"github.com/ShreyX24/Raptor-X-sub001/internal/inference"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/config"
	"github.com/ShreyX24/Raptor-X-sub001/internal/infrastructure/logging"
	"github.com/ShreyX24/Raptor-X-sub001/internal/orchestrator"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SUTGateway is the proxy surface the API forwards device capability
// calls through. Satisfied by *gateway.Gateway.
type SUTGateway interface {
	Screenshot(ctx context.Context, id string) ([]byte, error)
	SendInput(ctx context.Context, id string, action gateway.InputAction) error
	Launch(ctx context.Context, id string, req gateway.LaunchRequest) error
	CheckProcess(ctx context.Context, id, name string) (*gateway.ProcessStatus, error)
	KillProcess(ctx context.Context, id, name string) error
	DisplayModes(ctx context.Context, id string) (*gateway.DisplayState, error)
	SetDisplayMode(ctx context.Context, id string, mode gateway.DisplayMode) error
}

// InferenceQueue is the job queue surface the API exposes. Satisfied by
// *inference.Queue.
type InferenceQueue interface {
	Submit(ctx context.Context, image []byte, override *inference.Override) (string, error)
	Await(ctx context.Context, jobID string, timeout time.Duration) ([]inference.Element, error)
	Get(jobID string) (inference.Job, error)
	Stats() inference.QueueStats
	Health() []inference.BackendStatus
}

// RunScheduler is the orchestrator surface the API exposes. Satisfied by
// *orchestrator.Scheduler.
type RunScheduler interface {
	Submit(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Run, error)
	Stop(ctx context.Context, runID string, killProcess bool) error
	GetRun(ctx context.Context, id string) (*orchestrator.Run, error)
	ListRuns(ctx context.Context) ([]orchestrator.Run, error)
	GetLogs(ctx context.Context, runID string) ([]orchestrator.LogEntry, error)
	SubmitCampaign(ctx context.Context, req orchestrator.CampaignRequest) (*orchestrator.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*orchestrator.Campaign, error)
	StopCampaign(ctx context.Context, id string, killProcess bool) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	RegistryCfg config.RegistryConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Gateway     SUTGateway
	Queue       InferenceQueue
	Scheduler   RunScheduler

	// AgentKey is the shared secret SUT agents present on registration.
	// Empty disables agent authentication (local development).
	AgentKey string

	// JobWaitTimeout bounds synchronous POST /jobs?wait=true requests.
	JobWaitTimeout time.Duration

	// MetricsHandler serves GET /metrics. Optional.
	MetricsHandler http.Handler

	// Audit records control-plane mutations. Optional; nil disables the
	// trail and the /audit route.
	Audit audit.Repository

	// ExternalHub, if set, is used instead of creating a new hub. The
	// caller owns its Run loop.
	ExternalHub *Hub

	Version string
}

// Server is the HTTP API server for the Raptor-X control plane.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	registryCfg config.RegistryConfig
	logger      *logging.Logger
	registry    *device.Registry
	gateway     SUTGateway
	queue       InferenceQueue
	scheduler   RunScheduler
	agentKey    string
	jobWait     time.Duration
	metrics     http.Handler
	audit       audit.Repository
	version     string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("inference queue is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("run scheduler is required")
	}

	jobWait := deps.JobWaitTimeout
	if jobWait <= 0 {
		jobWait = 30 * time.Second
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		registryCfg: deps.RegistryCfg,
		logger:      deps.Logger,
		registry:    deps.Registry,
		gateway:     deps.Gateway,
		queue:       deps.Queue,
		scheduler:   deps.Scheduler,
		agentKey:    deps.AgentKey,
		jobWait:     jobWait,
		metrics:     deps.MetricsHandler,
		audit:       deps.Audit,
		version:     deps.Version,
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub for event broadcasting.
// Available after Start() unless an external hub was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
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

// HealthCheck verifies the API server is running and responsive.
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
