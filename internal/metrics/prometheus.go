// internal/metrics/prometheus.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics
var (
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netsentry_cycle_duration_seconds",
			Help:    "Time spent executing one poll cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_cycles_total",
			Help: "Total number of poll cycles executed",
		},
		[]string{"phase"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_fetch_errors_total",
			Help: "Router fetches that failed or timed out",
		},
		[]string{"source"},
	)

	DevicesPresent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_devices_present",
			Help: "Devices resolved from the ARP table in the last cycle",
		},
	)

	DevicesKnown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_devices_known",
			Help: "MAC addresses held by the presence tracker",
		},
	)

	NewDevices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_new_devices_total",
			Help: "Newly seen devices by classification",
		},
		[]string{"category", "severity"},
	)

	LogAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_log_alerts_total",
			Help: "Router log entries that raised an alert",
		},
	)

	LogEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_log_entries_total",
			Help: "Router log entries evaluated",
		},
	)

	WatermarkResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_log_watermark_resets_total",
			Help: "Times the log watermark was lost and reset to the tail",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_notifications_sent_total",
			Help: "Notifications delivered per sink",
		},
		[]string{"sink"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_notification_failures_total",
			Help: "Notification deliveries that failed per sink",
		},
		[]string{"sink"},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_notifications_dropped_total",
			Help: "Notifications dropped before delivery",
		},
		[]string{"reason"},
	)

	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_database_operations_total",
			Help: "Total database operations performed",
		},
		[]string{"operation", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

// Collector is the handle components record through. A nil *Collector is
// valid and records nothing, which keeps tests free of metric plumbing.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) RecordCycle(phase string, duration time.Duration) {
	if c == nil {
		return
	}
	CyclesTotal.WithLabelValues(phase).Inc()
	CycleDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordFetchError(source string) {
	if c == nil {
		return
	}
	FetchErrors.WithLabelValues(source).Inc()
}

func (c *Collector) UpdateDevices(present, known int) {
	if c == nil {
		return
	}
	DevicesPresent.Set(float64(present))
	DevicesKnown.Set(float64(known))
}

func (c *Collector) RecordNewDevice(category, severity string) {
	if c == nil {
		return
	}
	NewDevices.WithLabelValues(category, severity).Inc()
}

func (c *Collector) RecordLogEntries(evaluated, alerted int) {
	if c == nil {
		return
	}
	LogEntries.Add(float64(evaluated))
	LogAlerts.Add(float64(alerted))
}

func (c *Collector) RecordWatermarkReset() {
	if c == nil {
		return
	}
	WatermarkResets.Inc()
}

func (c *Collector) RecordNotification(sink string, err error) {
	if c == nil {
		return
	}
	if err != nil {
		NotificationFailures.WithLabelValues(sink).Inc()
		return
	}
	NotificationsSent.WithLabelValues(sink).Inc()
}

func (c *Collector) RecordNotificationDropped(reason string) {
	if c == nil {
		return
	}
	NotificationsDropped.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordDatabaseOperation(operation string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	if c == nil {
		return
	}
	WebSocketConnections.Add(float64(delta))
}
