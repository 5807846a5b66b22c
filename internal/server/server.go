package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kgelab/kge-rank/internal/bus"
	"github.com/kgelab/kge-rank/internal/config"
	"github.com/kgelab/kge-rank/internal/pkg/logger"
	"github.com/kgelab/kge-rank/internal/pkg/middleware"
	"github.com/kgelab/kge-rank/internal/report"
)

// Server is the HTTP server exposing stored evaluation reports, metric
// name resolution and observability endpoints.
type Server struct {
	cfg        Config
	appCfg     *config.Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	bus     bus.Bus
	store   report.Store
	metrics *report.Metrics

	// Handlers
	reportHandler  *ReportHandler
	resolveHandler *ResolveHandler

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a new server with all dependencies.
func New(cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg:     cfg,
		appCfg:  appCfg,
		log:     log,
		metrics: report.NewMetrics(),
	}

	// Report store: Redis when configured, otherwise in-memory.
	if appCfg.Redis.URL != "" {
		ttl := time.Duration(appCfg.Redis.TTLHours) * time.Hour
		store, err := report.NewRedisStore(appCfg.Redis.URL, appCfg.Redis.KeyPrefix, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to create report store: %w", err)
		}
		s.store = store
	} else {
		log.Warn("Redis not configured, storing reports in memory")
		s.store = report.NewMemoryStore()
	}

	// Event bus with optional disk event log, metrics always on.
	eventBus, err := bus.NewBus(appCfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	if appCfg.Bus.EventLogEnabled {
		eventLogger, err := bus.NewEventLogger(appCfg.Bus.EventLogPath, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create event log: %w", err)
		}
		eventBus = bus.NewLoggedBus(eventBus, eventLogger, log)
	}
	s.bus = bus.NewInstrumentedBus(eventBus, s.metrics)

	// Persist finished runs and track run counters from bus events.
	if err := s.subscribeRunEvents(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to subscribe to run events: %w", err)
	}

	s.reportHandler = NewReportHandler(s.store)
	s.resolveHandler = NewResolveHandler()

	return s, nil
}

// Bus returns the server's event bus, for wiring evaluation loops that
// should report through this server's event log and metrics.
func (s *Server) Bus() bus.Bus {
	return s.bus
}

// Store returns the server's report store.
func (s *Server) Store() report.Store {
	return s.store
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("Starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
		}
	}

	if s.bus != nil {
		s.bus.Close()
	}
	if s.store != nil {
		s.store.Close()
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// setupRoutes configures all HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/version", s.handleVersion)

	if s.appCfg.Observability.MetricsEnabled {
		path := s.appCfg.Observability.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.HandleFunc(path, s.handleMetrics)
	}

	s.reportHandler.RegisterRoutes(mux)
	s.resolveHandler.RegisterRoutes(mux)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	var handler http.Handler = mux
	handler = ResponseWrapperMiddleware(handler)
	handler = rl.Middleware(handler)
	handler = s.instrumentRequests(handler)

	return handler
}

// instrumentRequests records per-request metrics and debug logs.
func (s *Server) instrumentRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.HTTPRequestsInFlight.Inc()
		defer s.metrics.HTTPRequestsInFlight.Dec()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, wrapped.status, duration)

		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", duration,
		)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVersion handles GET /v1/version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}

// handleMetrics handles GET /metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.metrics.PrometheusFormat()))
}

// Health returns the server health status.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
