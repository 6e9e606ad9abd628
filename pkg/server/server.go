package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobtrail/jobtrail/pkg/metrics"
	"github.com/jobtrail/jobtrail/pkg/session"
)

// Config holds the HTTP and websocket settings of a Server.
type Config struct {
	// Address is the listen address. Default: "localhost:8080".
	Address string

	// ReadHeaderTimeout bounds reading request headers. Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// IdleTimeout closes idle keep-alive connections. Default: 120 seconds.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 30 seconds.
	ShutdownTimeout time.Duration

	// AllowedOrigins lists extra origins allowed to open the websocket.
	// Same-origin requests are always allowed.
	AllowedOrigins []string

	// WriteWait bounds each websocket write. Default: 10 seconds.
	WriteWait time.Duration

	// PingInterval is the time between websocket pings. It must be shorter
	// than PongWait. Default: 30 seconds.
	PingInterval time.Duration

	// PongWait is how long a socket may stay silent before it is dropped.
	// Default: 60 seconds.
	PongWait time.Duration

	// MaxBodyBytes caps JSON request bodies. Default: 1MB.
	MaxBodyBytes int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:           "localhost:8080",
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		WriteWait:         10 * time.Second,
		PingInterval:      30 * time.Second,
		PongWait:          60 * time.Second,
		MaxBodyBytes:      1 << 20,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = def.ReadHeaderTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the Prometheus collectors served on /metrics and
// updated by the request middleware.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server exposes page sessions to the browser over HTTP and websockets.
type Server struct {
	config   Config
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger

	router     chi.Router
	hub        *hub
	httpServer *http.Server
}

// New creates a server for the sessions held by mgr.
func New(mgr *session.Manager, config Config, opts ...Option) *Server {
	config.applyDefaults()
	s := &Server{
		config:   config,
		sessions: mgr,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	s.hub = newHub(config, s.metrics, s.logger)
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every websocket and session, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.hub.Close()
	if err := s.sessions.Shutdown(ctx); err != nil {
		s.logger.Warn("session shutdown incomplete", "error", err)
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Tracing)
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/sessions", s.handleCreateSession)
	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Use(s.loadSession)

		r.Delete("/", s.handleDeleteSession)
		r.Get("/ws", s.handleWebSocket)
		r.Put("/location", s.handleLocation)
		r.Get("/listings", s.handleListings)
		r.Post("/export", s.handleExport)
		r.Post("/import", s.handleImport)

		r.Route("/drafts", func(r chi.Router) {
			r.Get("/", s.handleListDrafts)
			r.Post("/", s.handleIngest)
			r.Delete("/", s.handleRemoveDrafts)
			r.Post("/save", s.handleSave)
			r.Patch("/{id}", s.handlePatchDraft)
			r.Post("/{id}/reingest", s.handleReingest)
			r.Post("/{id}/move", s.handleMoveDraft)
		})
	})
	return r
}
