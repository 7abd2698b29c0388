// internal/web/server.go
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"netsentry/internal/config"
	"netsentry/internal/database"
	"netsentry/internal/metrics"
	"netsentry/internal/monitoring"
	"netsentry/internal/notifications"
)

// Monitor is the read side of the monitoring engine.
type Monitor interface {
	Snapshot() monitoring.Snapshot
}

type Server struct {
	config    *config.Config
	store     database.Store
	retention *database.Retention
	monitor   Monitor
	notifier  notifications.Notifier
	metrics   *metrics.Collector
	hub       *Hub
	router    *gin.Engine
	server    *http.Server
	started   time.Time
}

// NewServer builds the operational API. store may be nil when the journal is
// disabled; the journal endpoints then answer 503.
func NewServer(cfg *config.Config, store database.Store, monitor Monitor, notifier notifications.Notifier, hub *Hub, metricsCollector *metrics.Collector) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	server := &Server{
		config:   cfg,
		store:    store,
		monitor:  monitor,
		notifier: notifier,
		metrics:  metricsCollector,
		hub:      hub,
		router:   router,
		started:  time.Now(),
	}
	if store != nil {
		server.retention = database.NewRetention(store, cfg.Database.HistoryRetention)
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.CloseAll()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthCheck)
		api.GET("/build", s.getBuildInfo)
		api.GET("/stats", s.getStats)
		api.GET("/devices", s.getDevices)

		api.GET("/alerts", s.getAlerts)
		api.GET("/alerts/summary", s.getAlertsSummary)
		api.GET("/alerts/:id", s.getAlert)
		api.DELETE("/alerts/purge", s.purgeAlerts)

		api.GET("/sightings", s.getSightings)
	}

	s.setupNotificationRoutes()

	// WebSocket endpoint
	if s.hub != nil {
		s.router.GET("/ws", s.hub.handleWebSocket)
	}

	// Prometheus metrics
	if config.Enabled(s.config.Prometheus.Enabled) {
		s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"client":   c.ClientIP(),
		}).Debug("HTTP request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
