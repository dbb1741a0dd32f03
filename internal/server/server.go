// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"encoding/json"
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
	"github.com/shopspring/decimal"

	"github.com/hirelens/payments/internal/access"
	"github.com/hirelens/payments/internal/auth"
	"github.com/hirelens/payments/internal/config"
	"github.com/hirelens/payments/internal/health"
	"github.com/hirelens/payments/internal/idgen"
	"github.com/hirelens/payments/internal/ledger"
	"github.com/hirelens/payments/internal/logging"
	"github.com/hirelens/payments/internal/metrics"
	"github.com/hirelens/payments/internal/order"
	"github.com/hirelens/payments/internal/payment"
	"github.com/hirelens/payments/internal/plan"
	"github.com/hirelens/payments/internal/ratelimit"
	"github.com/hirelens/payments/internal/realtime"
	"github.com/hirelens/payments/internal/reconciliation"
	"github.com/hirelens/payments/internal/security"
	"github.com/hirelens/payments/internal/validation"
	"github.com/hirelens/payments/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	plans        *plan.Service
	orders       *order.Service
	orderStore   order.Store
	orderTimer   *order.Timer
	ledger       *ledger.Ledger
	verifier     *payment.Verifier
	gate         *access.Gate
	gateway      order.Gateway
	directory    access.Directory
	dispatcher   *webhooks.Dispatcher
	webhookStore webhooks.Store
	hub          *realtime.Hub
	reconRunner  *reconciliation.Runner
	reconTimer   *reconciliation.Timer
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// WithGateway sets a custom payment gateway (for testing)
func WithGateway(g order.Gateway) Option {
	return func(s *Server) {
		s.gateway = g
	}
}

// WithDirectory sets a custom HR directory (for testing)
func WithDirectory(d access.Directory) Option {
	return func(s *Server) {
		s.directory = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set gateway/directory/logger)
	for _, opt := range opts {
		opt(s)
	}

	demo := cfg.DemoMode || cfg.DatabaseURL == ""

	var (
		planStore    plan.Store
		ledgerStore  ledger.Store
		settler      payment.Settler
		webhookStore webhooks.Store
	)

	if !demo {
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
		planStore = plan.NewPostgresStore(db)
		s.orderStore = order.NewPostgresStore(db)
		ledgerStore = ledger.NewPostgresStore(db)
		webhookStore = webhooks.NewPostgresStore(db)
		settler = payment.NewPostgresSettler(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		planStore = plan.NewMemoryStore()
		s.orderStore = order.NewMemoryStore()
		ledgerStore = ledger.NewMemoryStore()
		webhookStore = webhooks.NewMemoryStore()
		settler = payment.NewMemorySettler(s.orderStore, ledgerStore)
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Razorpay gateway, unless injected (tests) or running the simulator
	gatewaySecret := cfg.RazorpayKeySecret
	if s.gateway == nil {
		if demo {
			if gatewaySecret == "" {
				gatewaySecret = "demo_key_secret"
			}
			s.gateway = payment.NewFakeGateway(gatewaySecret)
			s.logger.Info("payment gateway simulator enabled")
		} else {
			s.gateway = payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
			s.logger.Info("razorpay gateway enabled", "keyId", cfg.RazorpayKeyID)
		}
	}

	// HR directory (company membership + resume ownership), unless injected
	if s.directory == nil {
		if cfg.DirectoryURL != "" {
			s.directory = access.NewHTTPDirectory(cfg.DirectoryURL)
			s.logger.Info("HR directory enabled", "url", cfg.DirectoryURL)
		} else {
			dir := access.NewMemoryDirectory()
			seedDemoDirectory(dir)
			s.directory = dir
			s.logger.Info("using in-memory HR directory (demo data)")
		}
	}

	// Credit ledger
	s.ledger = ledger.New(ledgerStore)

	// Webhooks (push notifications to company integrations)
	s.webhookStore = webhookStore
	s.dispatcher = webhooks.NewDispatcher(webhookStore)
	emitter := webhooks.NewEmitter(s.dispatcher, s.logger)

	// Realtime hub for WebSocket streaming
	s.hub = realtime.NewHub(s.logger)

	// Ledger changes fan out to the dashboard stream and webhooks.
	s.ledger.SetNotifier(ledger.MultiNotifier{s.hub, webhooks.LedgerBridge{Emitter: emitter}})

	// Plan catalog
	s.plans = plan.NewService(planStore)
	if demo {
		s.seedDemoCatalog(context.Background())
	}

	// Checkout
	s.orders = order.NewService(s.orderStore, s.plans, s.gateway, s.directory, cfg.Currency)
	s.orders.SetEvents(webhooks.OrderBridge{Emitter: emitter})
	s.orderTimer = order.NewTimer(s.orders, time.Duration(cfg.OrderTTLHours)*time.Hour, s.logger)

	// Payment verification + settlement
	s.verifier = payment.NewVerifier(s.orderStore, s.plans, settler, gatewaySecret, s.logger)
	s.verifier.SetNotifier(ledger.MultiNotifier{s.hub, webhooks.LedgerBridge{Emitter: emitter}})
	s.verifier.SetEvents(webhooks.PaymentBridge{Emitter: emitter})

	// Resume access gate
	s.gate = access.NewGate(s.directory, s.ledger, cfg.GlobalViewCost, s.logger)

	// Ledger reconciliation
	s.reconRunner = reconciliation.NewRunner(ledgerStore, s.logger)
	s.reconTimer = reconciliation.NewTimer(s.reconRunner, s.logger)

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

// seedDemoCatalog loads the standard catalog into an empty in-memory store.
// Production deployments seed plans through migrations instead.
func (s *Server) seedDemoCatalog(ctx context.Context) {
	seed := []plan.Fields{
		{Name: "Starter", Price: decimal.NewFromInt(999), Credits: 50, Description: "50 resume views for small teams"},
		{Name: "Professional", Price: decimal.NewFromInt(1999), Credits: 150, Description: "150 resume views for growing teams"},
		{Name: "Enterprise", Price: decimal.NewFromInt(4999), Credits: 500, Description: "500 resume views for agencies"},
		{Name: "Premium", Price: decimal.NewFromInt(9999), Credits: 1200, Description: "1200 resume views for high-volume hiring"},
	}
	for _, f := range seed {
		if _, err := s.plans.Create(ctx, f); err != nil {
			s.logger.Warn("failed to seed demo plan", "name", f.Name, "error", err)
		}
	}
}

// seedDemoDirectory loads a couple of companies, HR users and resumes so
// demo deployments can exercise the access gate end to end.
func seedDemoDirectory(dir *access.MemoryDirectory) {
	dir.AddUser("recruiter@acme.example", "acme")
	dir.AddUser("talent@globex.example", "globex")

	dir.AddResume("res_acme_001", "acme", json.RawMessage(`{"name":"Priya Sharma","title":"Backend Engineer","years":6}`))
	dir.AddResume("res_globex_001", "globex", json.RawMessage(`{"name":"Arjun Mehta","title":"Data Analyst","years":3}`))
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

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

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
			requestID = idgen.Hex(16)
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
	s.router.GET("/livez", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/v1/info", s.infoHandler)

	// PUBLIC PAYMENTS API
	payments := s.router.Group("/payments")
	{
		// Plan catalog (read-only)
		planHandler := plan.NewHandler(s.plans)
		planHandler.RegisterRoutes(payments)

		// Checkout
		orderHandler := order.NewHandler(s.orders, time.Duration(s.cfg.OrderTTLHours)*time.Hour)
		orderHandler.RegisterRoutes(payments)

		// Payment verification callback
		paymentHandler := payment.NewHandler(s.verifier)
		paymentHandler.RegisterRoutes(payments)

		// Balances and history
		ledgerHandler := ledger.NewHandler(s.ledger)
		ledgerHandler.RegisterRoutes(payments)

		// Resume access gate (reject malformed emails before touching the ledger)
		gated := payments.Group("", validation.EmailParamMiddleware())
		accessHandler := access.NewHandler(s.gate)
		accessHandler.RegisterRoutes(gated)

		// WebSocket for live credit updates
		payments.GET("/stream", func(c *gin.Context) {
			s.hub.HandleWebSocket(c.Writer, c.Request)
		})
	}

	// ADMIN PAYMENTS API (plan management, refunds, webhooks)
	adminPayments := s.router.Group("/payments")
	adminPayments.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	{
		planHandler := plan.NewHandler(s.plans)
		planHandler.RegisterAdminRoutes(adminPayments)

		ledgerHandler := ledger.NewHandler(s.ledger)
		ledgerHandler.RegisterAdminRoutes(adminPayments)

		webhookHandler := webhooks.NewHandler(s.webhookStore)
		webhookHandler.RegisterAdminRoutes(adminPayments)
	}

	// ADMIN OPS API (reconciliation, manual sweeps)
	adminOps := s.router.Group("/v1/admin")
	adminOps.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	{
		orderHandler := order.NewHandler(s.orders, time.Duration(s.cfg.OrderTTLHours)*time.Hour)
		orderHandler.RegisterAdminRoutes(adminOps)

		reconHandler := reconciliation.NewHandler(s.reconRunner)
		reconHandler.RegisterAdminRoutes(adminOps)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
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
		"name":        "hirelens-payments",
		"description": "Credit-based access control and payment settlement for resume search",
		"version":     "0.1.0",
		"currency":    s.cfg.Currency,
		"view_cost":   s.cfg.GlobalViewCost,
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
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start stale-order expiry sweep
	go s.orderTimer.Start(runCtx)

	// Start ledger reconciliation loop
	go s.reconTimer.Start(runCtx)

	// Start DB pool stats collection
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
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

	// Cancel the context for all background goroutines (hub, timers)
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

	// Stop order expiry timer
	if s.orderTimer != nil {
		s.orderTimer.Stop()
		s.logger.Info("order timer stopped")
	}

	// Stop reconciliation timer
	if s.reconTimer != nil {
		s.reconTimer.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
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

// Gateway returns the configured payment gateway. Demo tooling uses this to
// sign simulated checkout callbacks.
func (s *Server) Gateway() order.Gateway {
	return s.gateway
}

// Directory returns the configured HR directory.
func (s *Server) Directory() access.Directory {
	return s.directory
}
