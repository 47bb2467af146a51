// Package api exposes the scan engine over HTTP: starting scans,
// polling run status and reading the recommendations a run produced.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/db"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/metrics"
	"github.com/CodyDvorak/CryptoOracle-sub001/internal/scan"
)

// scanControl is the orchestrator surface the API drives.
type scanControl interface {
	Start(ctx context.Context, spec scan.Spec) (uuid.UUID, error)
	Status(ctx context.Context, runID uuid.UUID) (*scan.Status, error)
}

// scanReader is the read-side store surface.
type scanReader interface {
	ListRecentScanRuns(ctx context.Context, limit int) ([]*db.ScanRun, error)
	ListRecommendationsByRun(ctx context.Context, runID uuid.UUID) ([]*db.Recommendation, error)
	TopRecommendations(ctx context.Context, runID uuid.UUID, limit int) ([]*db.Recommendation, error)
	Health(ctx context.Context) error
}

// Server represents the REST API server
type Server struct {
	router *gin.Engine
	scans  scanControl
	store  scanReader
	addr   string
	server *http.Server
}

// Config contains server configuration
type Config struct {
	Host  string
	Port  int
	Scans scanControl
	Store scanReader
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	server := &Server{
		router: router,
		scans:  config.Scans,
		store:  config.Store,
		addr:   addr,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
