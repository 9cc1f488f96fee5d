// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/cinchpay/cinch/internal/access"
	"github.com/cinchpay/cinch/internal/auth"
	"github.com/cinchpay/cinch/internal/config"
	"github.com/cinchpay/cinch/internal/dispute"
	"github.com/cinchpay/cinch/internal/escrow"
	"github.com/cinchpay/cinch/internal/events"
	"github.com/cinchpay/cinch/internal/ledger"
	"github.com/cinchpay/cinch/internal/logging"
	"github.com/cinchpay/cinch/internal/metrics"
	"github.com/cinchpay/cinch/internal/payment"
	"github.com/cinchpay/cinch/internal/realtime"
	"github.com/cinchpay/cinch/internal/registry"
	"github.com/cinchpay/cinch/internal/stakes"
	"github.com/cinchpay/cinch/internal/token"
	"github.com/cinchpay/cinch/internal/traces"
	"github.com/cinchpay/cinch/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	ledger         *ledger.Ledger
	bridge         token.Confidential
	registry       *registry.Static
	stakeLedger    *stakes.Ledger
	escrowService  *escrow.Service
	disputeService *dispute.Service
	escrowTimer    *escrow.Timer
	realtimeHub    *realtime.Hub
	verifier       *auth.Verifier
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc          // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error // flushes the trace exporter

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBridge sets a custom confidential-token bridge (for testing)
func WithBridge(b token.Confidential) Option {
	return func(s *Server) {
		s.bridge = b
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set bridge/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		ledgerStore ledger.Store
		escrowStore escrow.Store
		stakeStore  stakes.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		ledgerStore = ledger.NewPostgresStore(db)
		escrowStore = escrow.NewPostgresStore(db)
		stakeStore = stakes.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		ledgerStore = ledger.NewMemoryStore()
		escrowStore = escrow.NewMemoryStore()
		stakeStore = stakes.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.ledger = ledger.New(ledgerStore)

	// Token layer: plain transfers against the internal ledger, confidential
	// transfers against the external bridge when one is configured.
	fungible := token.NewLedgerToken(s.ledger, cfg.VaultAddress)
	if s.bridge == nil {
		if cfg.ConfidentialBridgeURL != "" {
			s.bridge = token.NewHTTPBridge(cfg.ConfidentialBridgeURL)
			s.logger.Info("confidential transfers enabled", "bridge", cfg.ConfidentialBridgeURL)
		} else {
			s.bridge = token.NewMemoryBridge(false)
			s.logger.Info("confidential transfers disabled (no bridge endpoint)")
		}
	}
	payments := payment.NewAdapter(fungible, s.bridge)

	// External collaborators
	s.registry = registry.NewStatic(cfg.TreasuryAddress, cfg.DefaultArbitrator)

	var approver access.Approver
	if cfg.MultisigApproverURL != "" {
		approver = access.NewHTTPApprover(cfg.MultisigApproverURL)
		s.logger.Info("multisig co-approval enabled", "threshold", cfg.MultisigThreshold)
	}
	guard := access.NewGuard(cfg.MultisigThreshold, approver)

	// Realtime hub doubles as an event emitter so engine events stream to
	// connected WebSocket clients.
	s.realtimeHub = realtime.NewHub(s.logger)
	emitter := events.MultiEmitter{
		events.LogEmitter{Logger: s.logger},
		s.realtimeHub,
	}

	s.stakeLedger = stakes.NewLedger(stakeStore, fungible, s.registry)

	s.escrowService = escrow.NewService(escrowStore, payments, guard).
		WithEmitter(emitter).
		WithLogger(s.logger).
		WithDefaultArbitrator(cfg.DefaultArbitrator)
	s.escrowTimer = escrow.NewTimer(s.escrowService, time.Duration(cfg.ExpirySweepSeconds)*time.Second).
		WithLogger(s.logger)
	s.logger.Info("escrow engine enabled", "vault", cfg.VaultAddress)

	s.disputeService = dispute.NewService(s.escrowService, payments, s.stakeLedger, guard).
		WithEmitter(emitter).
		WithLogger(s.logger).
		WithConfidentialStake(cfg.ConfidentialStake)
	s.logger.Info("dispute resolution enabled", "treasury", cfg.TreasuryAddress)

	// Signed-challenge auth; dev mode accepts a bare address header.
	s.verifier = auth.NewVerifier(cfg.IsDevelopment())
	if cfg.IsDevelopment() {
		s.logger.Warn("development auth mode: unsigned address headers accepted")
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :address URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AddressParamMiddleware())

	// WebSocket for real-time event streaming
	v1.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	escrowHandler := escrow.NewHandler(s.escrowService)
	disputeHandler := dispute.NewHandler(s.disputeService)

	// PUBLIC ROUTES (no auth required)
	// These are the read endpoints
	escrowHandler.RegisterRoutes(v1)

	// PROTECTED ROUTES (require a signed caller address)
	// These move funds and require party authorization
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.verifier), auth.RequireAuth())
	escrowHandler.RegisterProtectedRoutes(protected)
	disputeHandler.RegisterProtectedRoutes(protected)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	if s.bridge.Supported(ctx) {
		checks["bridge"] = "healthy"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !s.healthy.Load() {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Cinch",
		"description": "Escrow and dispute resolution engine",
		"version":     "0.1.0",
		"privacy":     s.cfg.PrivacyAvailable(),
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (noop when no OTLP endpoint configured)
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start escrow expiry sweeper
	go s.escrowTimer.Run(runCtx)

	// Start DB stats collector
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, expiry sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Flush pending trace spans
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
