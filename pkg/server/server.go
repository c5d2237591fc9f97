// Package server provides the HTTP server for the AI provider proxy.
package server

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/keycheck"
	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/maintenance"
	"mercator-hq/conduit/pkg/providerfactory"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/proxy"
	"mercator-hq/conduit/pkg/proxy/handlers"
	"mercator-hq/conduit/pkg/proxy/middleware"
	"mercator-hq/conduit/pkg/security"
	servertls "mercator-hq/conduit/pkg/security/tls"
	"mercator-hq/conduit/pkg/telemetry/logging"
	"mercator-hq/conduit/pkg/telemetry/metrics"
	"mercator-hq/conduit/pkg/telemetry/tracing"
	"mercator-hq/conduit/pkg/tokens"
	"mercator-hq/conduit/pkg/usage"
)

// Route paths.
const (
	PathProxy    = "/proxy"
	PathStream   = "/stream"
	PathValidate = "/validate"
	PathHealth   = "/health"
)

// Options carries dependencies that tests and the CLI may replace.
type Options struct {
	// Version is reported in traces.
	Version string

	// Logger receives runtime level changes on config reload. Nil leaves
	// the level fixed.
	Logger *logging.Logger

	// Transport replaces the pooled vendor transport.
	Transport *providers.Transport

	// Usage replaces the store selected by the usage section.
	Usage usage.Store
}

// Server is the proxy's HTTP server and owner of every long-lived component.
type Server struct {
	config *config.Config
	logger *logging.Logger

	registry  *providers.Registry
	transport *providers.Transport
	executor  *proxy.Executor
	limiter   *ratelimit.Store
	usage     usage.Store
	gate      *security.Gate
	cache     *keycheck.Cache
	checker   *keycheck.Checker
	collector *metrics.Collector
	tracer    *tracing.Tracer
	scheduler *maintenance.Scheduler
	certs     *servertls.Reloader
	tlsConfig *cryptotls.Config

	handler    http.Handler
	httpServer *http.Server

	mu           sync.RWMutex
	isRunning    bool
	shutdownOnce sync.Once
}

// New builds every component from cfg. Close releases them if the server is
// never started.
func New(cfg *config.Config, opts Options) (*Server, error) {
	s := &Server{
		config:    cfg,
		logger:    opts.Logger,
		transport: opts.Transport,
		usage:     opts.Usage,
	}

	if err := s.build(opts.Version); err != nil {
		s.Close()
		return nil, err
	}
	s.handler = s.setupRoutes()
	return s, nil
}

func (s *Server) build(version string) error {
	var err error

	s.registry, err = providers.NewRegistry(s.config.ProviderOverrides())
	if err != nil {
		return fmt.Errorf("failed to build provider registry: %w", err)
	}

	adapters, err := providerfactory.NewAdapterSet(s.registry)
	if err != nil {
		return fmt.Errorf("failed to build adapters: %w", err)
	}

	if s.transport == nil {
		up := s.config.Upstream
		tc := providers.DefaultTransportConfig()
		tc.MaxIdleConns = up.MaxIdleConns
		tc.MaxIdleConnsPerHost = up.MaxIdleConnsPerHost
		tc.IdleConnTimeout = up.IdleConnTimeout
		tc.DialTimeout = up.ConnectTimeout
		tc.ResponseHeaderTimeout = up.ResponseHeaderTimeout
		s.transport = providers.NewTransport(tc)
	}

	estimator, err := tokens.New(&s.config.Tokens)
	if err != nil {
		return fmt.Errorf("failed to build token estimator: %w", err)
	}
	tokens.LoadEstimator(context.Background(), estimator, s.config.Tokens.LoadTimeout)

	s.tracer, err = tracing.New(&s.config.Telemetry.Tracing, version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if s.config.Telemetry.Metrics.Enabled {
		s.collector = metrics.NewCollector(&s.config.Telemetry.Metrics, nil)
	}

	s.executor, err = proxy.NewExecutor(proxy.ExecutorConfig{
		Registry:          s.registry,
		Adapters:          adapters,
		Transport:         s.transport,
		Estimator:         estimator,
		Tracer:            s.tracer,
		Metrics:           s.collector,
		Timeout:           s.config.Upstream.Timeout,
		StreamIdleTimeout: s.config.Upstream.StreamIdleTimeout,
	})
	if err != nil {
		return err
	}

	if s.config.RateLimit.Enabled {
		s.limiter = ratelimit.NewStore(limiterPolicy(s.config.RateLimit))
	}

	if s.usage == nil && s.config.Usage.Enabled {
		s.usage, err = usage.New(context.Background(), s.config.Usage)
		if err != nil {
			return fmt.Errorf("failed to open usage store: %w", err)
		}
	}

	s.gate, err = security.NewGate(security.GateConfig{
		Limiter:           s.limiter,
		Usage:             s.usage,
		DailyQuota:        s.config.Usage.DailyRequestQuota,
		AdminTokens:       s.config.Security.AdminTokens,
		BlockedNetworks:   s.config.Security.BlockedNetworks,
		MaxBodyBytes:      s.config.Server.MaxBodyBytes,
		TrustForwardedFor: s.config.RateLimit.TrustForwardedFor,
		OnReject:          s.collector.RecordRejection,
	})
	if err != nil {
		return fmt.Errorf("failed to build security gate: %w", err)
	}

	if vc := s.config.ValidateCache; vc.Enabled {
		s.cache, err = keycheck.NewCache(vc.MaxEntries, vc.TTL)
		if err != nil {
			return err
		}
	}
	s.checker = keycheck.NewChecker(s.registry, s.executor, s.cache)

	if t := s.config.Server.TLS; t.Enabled {
		s.certs, err = servertls.NewReloader(t.CertFile, t.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.tlsConfig, err = servertls.NewServerConfig(t, s.certs)
		if err != nil {
			return err
		}
	}

	var tasks []maintenance.Task
	if s.usage != nil {
		tasks = append(tasks, maintenance.UsageRetention(s.usage, s.config.Usage.RetentionDays))
	}
	if s.limiter != nil {
		tasks = append(tasks, maintenance.LimiterPrune(s.limiter, s.config.RateLimit.IdleKeyTTL))
	}
	if len(tasks) > 0 {
		s.scheduler = maintenance.NewScheduler(s.config.Usage.PruneSchedule, tasks...)
	}

	return nil
}

func limiterPolicy(cfg config.RateLimitConfig) ratelimit.Policy {
	return ratelimit.Policy{Requests: cfg.Requests, Window: cfg.Window}
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	validator := proxy.NewValidator(s.registry)
	hcfg := handlers.Config{
		Validator:    validator,
		Executor:     s.executor,
		Usage:        s.usage,
		Metrics:      s.collector,
		MaxBodyBytes: s.config.Server.MaxBodyBytes,
	}

	post := middleware.AllowMethods(http.MethodPost)
	gated := func(h http.Handler) http.Handler {
		return middleware.Chain(h, post, middleware.GateMiddleware(s.gate))
	}

	mux.Handle(PathProxy, gated(handlers.NewProxyHandler(hcfg)))
	mux.Handle(PathStream, gated(handlers.NewStreamHandler(hcfg)))
	mux.Handle(PathValidate, gated(handlers.NewValidateHandler(validator, s.checker, s.collector, s.config.Server.MaxBodyBytes)))
	mux.Handle(PathHealth, middleware.AllowMethods(http.MethodGet, http.MethodHead)(handlers.NewHealthHandler()))

	if s.collector != nil {
		mux.Handle(s.config.Telemetry.Metrics.Path, middleware.AllowMethods(http.MethodGet)(s.collector.Handler()))
	}

	var handler http.Handler = mux
	if s.tracer.Enabled() {
		handler = tracing.HTTPMiddleware(handler)
	}

	return middleware.Chain(handler,
		middleware.SecurityHeadersMiddleware,
		middleware.RecoveryMiddleware,
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware,
		middleware.CORSMiddleware(middleware.DefaultCORSConfig()),
	)
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Checker returns the key checker used by /validate.
func (s *Server) Checker() *keycheck.Checker {
	return s.checker
}

// ApplyConfig applies the hot-reloadable subset of cfg: the rate limit
// policy and the log level. Everything else needs a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if s.limiter != nil {
		s.limiter.SetPolicy(limiterPolicy(cfg.RateLimit))
		slog.Info("rate limit policy updated",
			"requests", cfg.RateLimit.Requests,
			"window", cfg.RateLimit.Window.String(),
		)
	}

	if s.logger != nil {
		if err := s.logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring invalid log level", "level", cfg.Telemetry.Logging.Level, "error", err)
		}
	}
}

// Start listens on the configured address and blocks until ctx is done or
// the listener fails. It shuts the server down before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true

	sc := s.config.Server
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		IdleTimeout:    sc.IdleTimeout,
		MaxHeaderBytes: sc.MaxHeaderBytes,
		TLSConfig:      s.tlsConfig,
	}
	s.mu.Unlock()

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			ln.Close()
			return err
		}
	}

	if s.certs != nil {
		go func() {
			if err := s.certs.Watch(ctx); err != nil {
				slog.Warn("certificate hot reload disabled", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting proxy server",
			"address", ln.Addr().String(),
			"tls_enabled", s.tlsConfig != nil,
		)

		var err error
		if s.tlsConfig != nil {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// Shutdown gracefully shuts down the server and releases its components.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		timeout := s.config.Server.ShutdownTimeout
		slog.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		s.mu.RLock()
		httpServer := s.httpServer
		s.mu.RUnlock()

		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		if s.tracer != nil {
			if err := s.tracer.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to flush traces", "error", err)
			}
		}

		s.Close()

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("proxy server stopped")
	})

	return shutdownErr
}

// Close releases stores, caches and pooled connections. It does not stop a
// running listener; use Shutdown for that.
func (s *Server) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.usage != nil {
		if err := s.usage.Close(); err != nil {
			slog.Error("failed to close usage store", "error", err)
		}
	}
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
