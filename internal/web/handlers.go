// internal/web/handlers.go
package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"netsentry/internal/database"
	"netsentry/internal/monitoring"
)

const defaultListLimit = 100

// GET /api/health
func (s *Server) healthCheck(c *gin.Context) {
	snap := s.monitor.Snapshot()

	status := "healthy"
	code := http.StatusOK
	if snap.State == monitoring.StateStopping {
		status = "stopping"
		code = http.StatusServiceUnavailable
	} else if len(snap.FetchErrors) > 0 {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":       status,
		"state":        snap.State,
		"last_cycle":   snap.LastCycle,
		"fetch_errors": snap.FetchErrors,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"timestamp":    time.Now(),
		"version":      Version,
	})
}

// GET /api/devices?category=Lurker&notify=true
func (s *Server) getDevices(c *gin.Context) {
	snap := s.monitor.Snapshot()

	category := c.Query("category")
	notifyOnly := c.Query("notify") == "true"

	devs := make([]monitoring.DeviceStatus, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		if category != "" && !strings.EqualFold(string(d.Category), category) {
			continue
		}
		if notifyOnly && !d.ShouldNotify {
			continue
		}
		devs = append(devs, d)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            devs,
		"count":           len(devs),
		"presence_policy": snap.PresencePolicy,
		"last_cycle":      snap.LastCycle,
	})
}

// GET /api/stats
func (s *Server) getStats(c *gin.Context) {
	snap := s.monitor.Snapshot()

	byCategory := make(map[string]int)
	bySeverity := make(map[string]int)
	for _, d := range snap.Devices {
		byCategory[string(d.Category)]++
		bySeverity[string(d.Severity)]++
	}

	stats := gin.H{
		"state":           snap.State,
		"cycles":          snap.Cycles,
		"devices_present": len(snap.Devices),
		"devices_known":   snap.KnownDevices,
		"by_category":     byCategory,
		"by_severity":     bySeverity,
		"log_watermark":   snap.Watermark,
		"presence_policy": snap.PresencePolicy,
	}
	if s.hub != nil {
		stats["websocket_clients"] = s.hub.ClientCount()
	}
	if s.store != nil {
		dbStats, err := s.store.Stats(c.Request.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to get database stats")
		} else {
			stats["database"] = dbStats
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GET /api/alerts?limit=&severity=&category=&source=&since=
func (s *Server) getAlerts(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	filters := database.AlertFilters{
		Severity: c.Query("severity"),
		Category: c.Query("category"),
		Source:   c.Query("source"),
	}
	var ok bool
	if filters.Limit, ok = queryLimit(c); !ok {
		return
	}
	if filters.Since, ok = querySince(c); !ok {
		return
	}

	alerts, err := s.store.ListAlerts(c.Request.Context(), filters)
	s.metrics.RecordDatabaseOperation("list_alerts", err)
	if err != nil {
		logrus.WithError(err).Error("Failed to list alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  alerts,
		"count": len(alerts),
	})
}

// GET /api/alerts/:id
func (s *Server) getAlert(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	alert, err := s.store.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": alert})
}

// GET /api/alerts/summary - alert counts for the last 24 hours unless since is given
func (s *Server) getAlertsSummary(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	since, ok := querySince(c)
	if !ok {
		return
	}
	if since == nil {
		t := time.Now().Add(-24 * time.Hour)
		since = &t
	}

	alerts, err := s.store.ListAlerts(c.Request.Context(), database.AlertFilters{Since: since})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert summary"})
		return
	}

	summary := map[string]int{
		"total":    len(alerts),
		"critical": 0,
		"normal":   0,
		"low":      0,
	}
	byCategory := make(map[string]int)
	for _, a := range alerts {
		summary[a.Severity]++
		if a.Category != "" {
			byCategory[a.Category]++
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"since":       since,
		"severity":    summary,
		"by_category": byCategory,
	}})
}

// DELETE /api/alerts/purge - apply the retention policy now
func (s *Server) purgeAlerts(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	deleted, err := s.retention.Purge(c.Request.Context())
	s.metrics.RecordDatabaseOperation("purge", err)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge journal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to purge journal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Journal purged",
		"deleted":   deleted,
		"timestamp": time.Now(),
	})
}

// GET /api/sightings?mac=&category=&limit=&since=
func (s *Server) getSightings(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	filters := database.SightingFilters{
		MAC:      strings.ToUpper(c.Query("mac")),
		Category: c.Query("category"),
	}
	var ok bool
	if filters.Limit, ok = queryLimit(c); !ok {
		return
	}
	if filters.Since, ok = querySince(c); !ok {
		return
	}

	sightings, err := s.store.ListSightings(c.Request.Context(), filters)
	s.metrics.RecordDatabaseOperation("list_sightings", err)
	if err != nil {
		logrus.WithError(err).Error("Failed to list sightings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get sightings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  sightings,
		"count": len(sightings),
	})
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Journal is disabled"})
		return false
	}
	return true
}

func queryLimit(c *gin.Context) (int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return limit, true
}

func querySince(c *gin.Context) (*time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return nil, true
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
		return nil, false
	}
	return &since, true
}
