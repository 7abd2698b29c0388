// internal/web/notification_handlers.go - Notification settings and test endpoint
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"netsentry/internal/notifications"
)

// NotificationSettings is the read-only view of the notification config.
type NotificationSettings struct {
	QueueSize int                      `json:"queue_size"`
	Timeout   string                   `json:"timeout"`
	Desktop   bool                     `json:"desktop_enabled"`
	Redis     bool                     `json:"redis_enabled"`
	Pushover  PushoverSettingsResponse `json:"pushover"`
	Throttle  ThrottleSettingsResponse `json:"throttle"`
}

type PushoverSettingsResponse struct {
	Enabled    bool           `json:"enabled"`
	APIToken   string         `json:"api_token"`
	UserKey    string         `json:"user_key"`
	Sound      string         `json:"sound"`
	Device     string         `json:"device"`
	Priorities map[string]int `json:"priorities"`
}

type ThrottleSettingsResponse struct {
	Enabled      bool `json:"enabled"`
	WindowMin    int  `json:"window_minutes"`
	MaxPerSource int  `json:"max_per_source"`
	MaxTotal     int  `json:"max_total"`
}

// TestNotificationRequest represents a test notification request
type TestNotificationRequest struct {
	Message  string `json:"message" binding:"required"`
	Severity string `json:"severity"`
}

func (s *Server) setupNotificationRoutes() {
	api := s.router.Group("/api/notifications")
	{
		api.GET("/settings", s.getNotificationSettings)
		api.POST("/test", s.sendTestNotification)
	}
}

// GET /api/notifications/settings
func (s *Server) getNotificationSettings(c *gin.Context) {
	cfg := s.config.Notifications

	settings := NotificationSettings{
		QueueSize: cfg.QueueSize,
		Timeout:   cfg.Timeout.String(),
		Desktop:   cfg.Desktop.Enabled,
		Redis:     cfg.Redis.Enabled,
		Pushover: PushoverSettingsResponse{
			Enabled:    cfg.Pushover.Enabled,
			APIToken:   maskToken(cfg.Pushover.APIToken),
			UserKey:    maskToken(cfg.Pushover.UserKey),
			Sound:      cfg.Pushover.Sound,
			Device:     cfg.Pushover.Device,
			Priorities: cfg.Pushover.Priorities,
		},
		Throttle: ThrottleSettingsResponse{
			Enabled:      cfg.Throttle.Enabled,
			WindowMin:    int(cfg.Throttle.Window.Minutes()),
			MaxPerSource: cfg.Throttle.MaxPerSource,
			MaxTotal:     cfg.Throttle.MaxTotal,
		},
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// POST /api/notifications/test - queue a test event on every sink
func (s *Server) sendTestNotification(c *gin.Context) {
	var req TestNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	severity := notifications.SeverityNormal
	if req.Severity != "" {
		severity = notifications.Severity(req.Severity)
		if !severity.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "severity must be low, normal or critical"})
			return
		}
	}

	s.notifier.Notify(notifications.Event{
		Title:    "netsentry test notification",
		Body:     req.Message,
		Severity: severity,
		Category: "Test",
		Source:   "api",
	})

	logrus.WithField("severity", severity).Info("Test notification queued")
	c.JSON(http.StatusAccepted, gin.H{
		"message":   "Test notification queued",
		"timestamp": time.Now(),
	})
}

// maskToken masks sensitive tokens for API responses
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
