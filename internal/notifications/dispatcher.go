// internal/notifications/dispatcher.go - Fire-and-forget fan-out to sinks
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"netsentry/internal/config"
	"netsentry/internal/metrics"
)

// Dispatcher implements Notifier. Notify only enqueues; a single worker
// delivers to every sink in order with a per-sink timeout. When the queue is
// full the event is dropped and logged.
type Dispatcher struct {
	queue     chan Event
	sinks     []Sink
	throttler *Throttler
	timeout   time.Duration
	metrics   *metrics.Collector
	now       func() time.Time

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewDispatcher(cfg config.NotificationConfig, collector *metrics.Collector, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		queue:   make(chan Event, cfg.QueueSize),
		sinks:   sinks,
		timeout: cfg.Timeout,
		metrics: collector,
		now:     time.Now,
	}
	if cfg.Throttle.Enabled {
		d.throttler = NewThrottler(cfg.Throttle)
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logrus.WithFields(logrus.Fields{
		"sinks":            names,
		"queue_size":       cfg.QueueSize,
		"throttle_enabled": cfg.Throttle.Enabled,
	}).Info("Notification dispatcher initialized")

	return d
}

// Notify never blocks and never reports delivery problems to the caller.
func (d *Dispatcher) Notify(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		logrus.WithField("title", event.Title).Debug("Notification after dispatcher shutdown ignored")
		return
	}

	if d.throttler != nil {
		if d.throttler.IsThrottled(event.Source) {
			logrus.WithFields(logrus.Fields{
				"title":  event.Title,
				"source": event.Source,
			}).Debug("Notification throttled")
			d.metrics.RecordNotificationDropped("throttled")
			return
		}
		d.throttler.RecordNotification(event.Source)
	}

	select {
	case d.queue <- event:
	default:
		logrus.WithFields(logrus.Fields{
			"title":    event.Title,
			"severity": event.Severity,
		}).Warn("Notification queue full, dropping event")
		d.metrics.RecordNotificationDropped("queue_full")
	}
}

// Start launches the delivery worker. It is a no-op after the first call.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.queue {
			d.deliver(event)
		}
	}()
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// Nobody will drain the queue; deliver what is left inline.
		for event := range d.queue {
			d.deliver(event)
		}
		return
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(event Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Send(ctx, event)
		cancel()

		d.metrics.RecordNotification(sink.Name(), err)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"sink":  sink.Name(),
				"title": event.Title,
			}).Warn("Notification delivery failed")
		}
	}
}
