package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/northstar/services/custops/config"
	"example.com/northstar/services/custops/internal/api/handlers"
	"example.com/northstar/services/custops/internal/commands"
	"example.com/northstar/services/custops/internal/metrics"
	"example.com/northstar/services/custops/internal/repositories"
	"example.com/northstar/services/custops/internal/search"
	"example.com/northstar/services/custops/internal/services"
	"example.com/northstar/services/custops/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
}

// Dependencies carries everything the HTTP layer needs
type Dependencies struct {
	Cases      *commands.CaseCommands
	Lifecycles *commands.LifecycleCommands
	CaseRepo   *repositories.CaseReadRepository
	Lifecycle  *repositories.LifecycleReadRepository
	StageFacts *repositories.StageFactRepository
	Insights   *services.InsightsService
	Search     *search.ElasticClient
	Metrics    *metrics.Metrics
	Tracer     tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Dependencies) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{config: cfg}
	server.router = server.setupRouter(deps)
	server.httpServer = &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      server.router,
		ReadTimeout:  cfg.ServerTimeout,
		WriteTimeout: cfg.ServerTimeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(deps.Metrics))
	if s.config.CorsEnabled {
		router.Use(corsMiddleware(s.config.CorsOrigins))
	}

	caseHandler := handlers.NewCaseHandler(deps.Cases, deps.Tracer, deps.Metrics)
	caseHandler.RegisterRoutes(router)

	lifecycleHandler := handlers.NewLifecycleHandler(deps.Lifecycles, deps.Tracer, deps.Metrics)
	lifecycleHandler.RegisterRoutes(router)

	queryHandler := handlers.NewQueryHandler(deps.CaseRepo, deps.Lifecycle, deps.StageFacts, deps.Insights, deps.Search, deps.Tracer)
	queryHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(deps.Metrics)
	metricsHandler.RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}

// requestID echoes the caller's X-Request-ID or assigns one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// requestLogger logs each request with latency and status
func requestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if m != nil {
			m.RecordTimer("api.request", time.Since(start).Milliseconds())
		}

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("requestID", c.GetString("request_id")).
			Str("clientIP", c.ClientIP()).
			Msg("Request processed")
	}
}

// corsMiddleware applies the configured CORS origins
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
