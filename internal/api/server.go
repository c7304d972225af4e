package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openddc/ddc-core/internal/audit"
	"github.com/openddc/ddc-core/internal/auth"
	"github.com/openddc/ddc-core/internal/bridges/ddc"
	"github.com/openddc/ddc-core/internal/display"
	"github.com/openddc/ddc-core/internal/infrastructure/config"
	"github.com/openddc/ddc-core/internal/infrastructure/database"
	"github.com/openddc/ddc-core/internal/infrastructure/influxdb"
	"github.com/openddc/ddc-core/internal/infrastructure/logging"
	"github.com/openddc/ddc-core/internal/infrastructure/mqtt"
	"github.com/openddc/ddc-core/internal/preset"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests before tearing connections down.
const gracefulShutdownTimeout = 10 * time.Second

// BridgeMetricsProvider exposes operational counters from the DDC bridge
// for the system metrics endpoint.
type BridgeMetricsProvider interface {
	GetMetrics() ddc.BridgeMetrics
}

// Deps carries the server's collaborators. Logger, Registry, UserRepo and
// TokenRepo are required; everything else degrades gracefully when nil.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig

	Logger   *logging.Logger
	Registry *display.Registry
	MQTT     *mqtt.Client

	PresetEngine   *preset.Engine
	PresetRegistry *preset.Registry
	PresetRepo     preset.Repository

	UserRepo  auth.UserRepository
	TokenRepo auth.TokenRepository
	AuditRepo audit.Repository

	StateHistory display.StateHistoryRepository
	Influx       *influxdb.Client
	Bridge       BridgeMetricsProvider
	DB           *database.DB

	Version string
}

// Server is the HTTP and WebSocket front end of DDC Core.
type Server struct {
	cfg    config.APIConfig
	wsCfg  config.WebSocketConfig
	secCfg config.SecurityConfig

	logger   *logging.Logger
	registry *display.Registry
	mqtt     *mqtt.Client
	topics   mqtt.Topics

	presetEngine   *preset.Engine
	presetRegistry *preset.Registry
	presetRepo     preset.Repository

	userRepo  auth.UserRepository
	tokenRepo auth.TokenRepository

	auditRepo audit.Repository
	auditCh   chan *audit.Entry

	stateHistory display.StateHistoryRepository
	influx       *influxdb.Client
	bridge       BridgeMetricsProvider
	db           *database.DB

	hub       *Hub
	wsTickets *ticketStore

	server    *http.Server
	cancel    context.CancelFunc
	startTime time.Time
	version   string
}

// New creates an API server from its dependencies.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("api: logger is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("api: display registry is required")
	}
	if deps.UserRepo == nil {
		return nil, errors.New("api: user repository is required")
	}
	if deps.TokenRepo == nil {
		return nil, errors.New("api: token repository is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, errors.New("api: JWT secret is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		secCfg:         deps.Security,
		logger:         deps.Logger,
		registry:       deps.Registry,
		mqtt:           deps.MQTT,
		presetEngine:   deps.PresetEngine,
		presetRegistry: deps.PresetRegistry,
		presetRepo:     deps.PresetRepo,
		userRepo:       deps.UserRepo,
		tokenRepo:      deps.TokenRepo,
		auditRepo:      deps.AuditRepo,
		stateHistory:   deps.StateHistory,
		influx:         deps.Influx,
		bridge:         deps.Bridge,
		db:             deps.DB,
		wsTickets:      newTicketStore(),
		startTime:      time.Now(),
		version:        deps.Version,
	}
	if deps.AuditRepo != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}
	s.hub = NewHub(deps.WS, deps.Logger)
	return s, nil
}

// Hub returns the WebSocket hub. It exists from construction so callers
// can hand it to components that broadcast events, such as the preset
// engine, before Start is called.
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetPresetEngine wires the preset engine. The engine broadcasts through
// the hub, so it is built after New and injected here before Start.
func (s *Server) SetPresetEngine(engine *preset.Engine) {
	s.presetEngine = engine
}

// Start launches the HTTP listener and the background loops. It returns
// once the listener goroutine is running; serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.hub.Run(ctx)

	go s.cleanTicketsLoop(ctx)

	if s.auditCh != nil {
		go s.drainAuditLog(ctx)
	}

	if s.mqtt != nil {
		if err := s.subscribeStateUpdates(); err != nil {
			s.logger.Warn("state update subscription failed", "error", err)
		}
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
			s.logger.Info("API server starting with TLS", "addr", s.server.Addr)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "addr", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", "error", err)
		}
	}()

	return nil
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
