// Package api provides HTTP API handlers for the dashboard backend.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/alerts"
	"github.com/yourorg/opsboard/pkg/auth"
	"github.com/yourorg/opsboard/pkg/bottleneck"
	"github.com/yourorg/opsboard/pkg/dashboard"
	"github.com/yourorg/opsboard/pkg/events"
	"github.com/yourorg/opsboard/pkg/metrics"
	"github.com/yourorg/opsboard/pkg/workflow"
)

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	Debug           bool          `json:"debug" yaml:"debug"`
	TrustedProxies  []string      `json:"trusted_proxies" yaml:"trusted_proxies"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Debug:           false,
	}
}

// Server represents the HTTP server
type Server struct {
	config     *ServerConfig
	logger     *zap.Logger
	db         *gorm.DB
	router     *gin.Engine
	server     *http.Server
	handlers   *Handlers
	middleware *auth.Middleware
}

// Dependencies contains all dependencies needed by the server
type Dependencies struct {
	DB             *gorm.DB
	Logger         *zap.Logger
	AuthMiddleware *auth.Middleware
	Engine         *workflow.Engine
	EventManager   *events.Manager
	Analyzer       *bottleneck.Analyzer
	AlertManager   *alerts.Manager
	RuleEngine     *alerts.RuleEngine
	Aggregator     *dashboard.Aggregator
}

// NewServer creates a new HTTP server
func NewServer(config *ServerConfig, deps *Dependencies) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(deps.Logger))

	if len(config.TrustedProxies) > 0 {
		router.SetTrustedProxies(config.TrustedProxies)
	}

	handlers := NewHandlers(
		deps.Logger,
		deps.Engine,
		deps.EventManager,
		deps.Analyzer,
		deps.AlertManager,
		deps.RuleEngine,
		deps.Aggregator,
	)

	s := &Server{
		config:     config,
		logger:     deps.Logger,
		db:         deps.DB,
		router:     router,
		handlers:   handlers,
		middleware: deps.AuthMiddleware,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health and metrics (no auth)
	s.router.GET("/health", s.handlers.HealthCheck)
	s.router.GET("/ready", s.handlers.Readiness)
	s.router.GET("/metrics", metrics.Handler())

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	v1.Use(s.middleware.Authenticate())
	{
		// Workflow catalog
		types := v1.Group("/workflow-types")
		{
			types.GET("", s.handlers.ListWorkflowTypes)
			types.GET("/:type_id/steps", s.handlers.ListWorkflowSteps)
		}

		// Workflow instances
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", s.handlers.ListActiveWorkflows)
			workflows.GET("/overdue", s.handlers.ListOverdueWorkflows)
			workflows.POST("", s.handlers.StartWorkflow)
			workflows.GET("/:instance_id", s.handlers.GetWorkflow)
			workflows.GET("/:instance_id/progress", s.handlers.GetWorkflowProgress)
			workflows.GET("/:instance_id/transitions", s.handlers.ListWorkflowTransitions)
			workflows.POST("/:instance_id/advance", s.handlers.AdvanceWorkflow)
			workflows.POST("/:instance_id/pause", s.handlers.PauseWorkflow)
			workflows.POST("/:instance_id/resume", s.handlers.ResumeWorkflow)
			workflows.POST("/:instance_id/abandon", s.handlers.AbandonWorkflow)
		}

		// Micro-events
		eventRoutes := v1.Group("/events")
		{
			eventRoutes.GET("", s.handlers.ListEvents)
			eventRoutes.POST("", s.handlers.ReportEvent)
			eventRoutes.GET("/:event_id", s.handlers.GetEvent)
			eventRoutes.POST("/:event_id/claim", s.handlers.ClaimEvent)
			eventRoutes.POST("/:event_id/resolve", s.handlers.ResolveEvent)
			eventRoutes.POST("/:event_id/ignore", s.handlers.IgnoreEvent)
			eventRoutes.POST("/:event_id/recurrent", s.handlers.MarkEventRecurrent)
			eventRoutes.POST("/:event_id/comments", s.handlers.AddEventComment)
		}
		v1.GET("/departments/:department_id/event-stats", s.handlers.DepartmentEventStats)

		// Bottlenecks
		bottlenecks := v1.Group("/bottlenecks")
		{
			bottlenecks.GET("", s.handlers.ListBottlenecks)
			bottlenecks.GET("/:bottleneck_id", s.handlers.GetBottleneck)
			bottlenecks.POST("/detect", s.handlers.DetectBottlenecks)
			bottlenecks.POST("/:bottleneck_id/review", s.handlers.ReviewBottleneck)
			bottlenecks.POST("/:bottleneck_id/confirm", s.handlers.ConfirmBottleneck)
			bottlenecks.POST("/:bottleneck_id/resolve", s.handlers.ResolveBottleneck)
			bottlenecks.POST("/:bottleneck_id/false-positive", s.handlers.DismissBottleneck)
		}

		// Alerts
		alertRoutes := v1.Group("/alerts")
		{
			alertRoutes.GET("", s.handlers.ListAlerts)
			alertRoutes.GET("/subscriptions", s.handlers.ListSubscriptions)
			alertRoutes.PUT("/subscriptions", s.handlers.UpsertSubscription)
			alertRoutes.POST("/:alert_id/view", s.handlers.ViewAlert)
			alertRoutes.POST("/:alert_id/acknowledge", s.handlers.AcknowledgeAlert)
			alertRoutes.POST("/:alert_id/resolve", s.handlers.ResolveAlert)
			alertRoutes.POST("/:alert_id/ignore", s.handlers.IgnoreAlert)
		}

		// Alert rules (admin only)
		rules := v1.Group("/alert-rules")
		rules.Use(s.middleware.RequireAdmin())
		{
			rules.GET("", s.handlers.ListAlertRules)
			rules.POST("", s.handlers.CreateAlertRule)
			rules.PATCH("/:rule_id", s.handlers.UpdateAlertRule)
			rules.POST("/:rule_id/activate", s.handlers.ActivateAlertRule)
			rules.POST("/:rule_id/deactivate", s.handlers.DeactivateAlertRule)
			rules.POST("/evaluate", s.handlers.EvaluateAlertRules)
		}

		// Dashboard
		v1.GET("/dashboard", s.handlers.GetDashboard)
		v1.GET("/dashboard/overview", s.handlers.GetOverview)
		v1.GET("/dashboard/departments", s.handlers.GetDepartmentBreakdown)
		v1.GET("/dashboard/trends", s.handlers.GetTrends)
		v1.POST("/dashboard/snapshot", s.middleware.RequireAdmin(), s.handlers.Snapshot)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", zap.String("address", addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// RequestLogger returns a gin middleware for logging requests
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}

		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if status >= 500 {
			logger.Error("request completed", fields...)
		} else if status >= 400 {
			logger.Warn("request completed", fields...)
		} else {
			logger.Info("request completed", fields...)
		}
	}
}

// CORS returns a gin middleware for CORS
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
