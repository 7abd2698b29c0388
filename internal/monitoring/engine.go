// internal/monitoring/engine.go
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"netsentry/internal/config"
	"netsentry/internal/database"
	"netsentry/internal/devices"
	"netsentry/internal/logwatch"
	"netsentry/internal/metrics"
	"netsentry/internal/notifications"
	"netsentry/internal/routeros"
)

type State string

const (
	StateStarting State = "starting"
	StateBaseline State = "baseline"
	StatePolling  State = "polling"
	StateStopping State = "stopping"
)

// DeviceStatus is a present device with its current classification.
type DeviceStatus struct {
	devices.Record
	devices.Classification
	FirstSeen time.Time `json:"first_seen"`
}

// Snapshot is a copy of the engine's view after the last completed cycle.
type Snapshot struct {
	State          State             `json:"state"`
	PresencePolicy devices.Policy    `json:"presence_policy"`
	Cycles         int               `json:"cycles"`
	LastCycle      time.Time         `json:"last_cycle"`
	Devices        []DeviceStatus    `json:"devices"`
	KnownDevices   int               `json:"known_devices"`
	Watermark      string            `json:"log_watermark"`
	FetchErrors    map[string]string `json:"fetch_errors,omitempty"`
}

// Engine reconciles router snapshots against what it has already seen and
// raises alerts for new devices and new log entries. Presence state and the
// log watermark are owned by the goroutine driving RunCycle.
type Engine struct {
	source     Source
	classifier *devices.Classifier
	presence   *devices.PresenceTracker
	watermark  logwatch.Watermark
	notifier   notifications.Notifier
	journal    database.Store
	metrics    *metrics.Collector
	clock      Clock

	interval     time.Duration
	fetchTimeout time.Duration

	firstSeen map[string]time.Time

	mu       sync.RWMutex
	state    State
	snapshot Snapshot
}

// NewEngine wires the engine. journal and collector may be nil.
func NewEngine(cfg *config.Config, source Source, notifier notifications.Notifier, journal database.Store, collector *metrics.Collector) (*Engine, error) {
	classifier, err := devices.NewClassifier(cfg.Classification)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	policy, err := devices.ParsePolicy(cfg.Monitoring.PresencePolicy)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		source:       source,
		classifier:   classifier,
		presence:     devices.NewPresenceTracker(policy),
		notifier:     notifier,
		journal:      journal,
		metrics:      collector,
		clock:        realClock{},
		interval:     cfg.Monitoring.PollInterval,
		fetchTimeout: cfg.Monitoring.FetchTimeout,
		firstSeen:    make(map[string]time.Time),
		state:        StateStarting,
	}
	e.snapshot = Snapshot{State: StateStarting, PresencePolicy: policy, Watermark: e.watermark.String()}

	logrus.WithFields(logrus.Fields{
		"poll_interval":   e.interval,
		"fetch_timeout":   e.fetchTimeout,
		"presence_policy": policy,
	}).Info("Monitoring engine initialized")

	return e, nil
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != s {
		logrus.WithFields(logrus.Fields{"from": e.state, "to": s}).Debug("Engine state change")
	}
	e.state = s
	e.snapshot.State = s
}

// Snapshot returns a copy that is safe to use from other goroutines.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.snapshot
	s.Devices = append([]DeviceStatus(nil), e.snapshot.Devices...)
	if e.snapshot.FetchErrors != nil {
		s.FetchErrors = make(map[string]string, len(e.snapshot.FetchErrors))
		for k, v := range e.snapshot.FetchErrors {
			s.FetchErrors[k] = v
		}
	}
	return s
}

// RunCycle advances the state machine by one step: Starting establishes the
// log watermark, Baseline records the present devices without alerting, and
// Polling runs a full reconciliation cycle.
func (e *Engine) RunCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	started := e.clock.Now()
	state := e.State()

	switch state {
	case StateStarting:
		e.start(ctx)
		e.setState(StateBaseline)
	case StateBaseline:
		if e.baseline(ctx) {
			e.setState(StatePolling)
		}
	case StatePolling:
		e.poll(ctx)
	default:
		return fmt.Errorf("engine is %s", state)
	}

	e.metrics.RecordCycle(string(state), e.clock.Now().Sub(started))
	return ctx.Err()
}

// start positions the watermark on the current log tail so the backlog is
// never alerted on. A failed fetch leaves it unset; the first successful
// poll then sets it without alerting.
func (e *Engine) start(ctx context.Context) {
	entries, err := e.fetchLog(ctx)
	if err != nil {
		e.reportFetchError(routeros.SourceLog, err)
		return
	}
	_, e.watermark = logwatch.NewEntriesSince(entries, logwatch.Watermark{})

	e.mu.Lock()
	e.snapshot.Watermark = e.watermark.String()
	e.mu.Unlock()

	logrus.WithField("watermark", e.watermark.String()).Info("Log watermark established")
}

// baseline commits every present device without classifying or notifying.
// It reports false when the ARP table could not be read, so the baseline is
// retried instead of alerting on every device next cycle.
func (e *Engine) baseline(ctx context.Context) bool {
	res := e.fetchAll(ctx, true, false)
	if res.arpErr != nil {
		logrus.Warn("Baseline skipped, ARP table unavailable")
		e.publish(nil, res)
		return false
	}

	records := devices.Resolve(res.arp, res.leases)
	e.presence.Commit(records)

	now := e.clock.Now()
	for _, rec := range records {
		if _, ok := e.firstSeen[rec.MAC]; !ok {
			e.firstSeen[rec.MAC] = now
		}
	}

	logrus.WithField("devices", len(records)).Info("Baseline recorded")
	e.publish(e.statuses(records, res), res)
	return true
}

func (e *Engine) poll(ctx context.Context) {
	res := e.fetchAll(ctx, true, true)

	var statuses []DeviceStatus
	if res.arpErr == nil {
		records := devices.Resolve(res.arp, res.leases)
		e.reconcileDevices(ctx, records, res)
		statuses = e.statuses(records, res)
	} else {
		// Without an ARP snapshot there is nothing to reconcile, and a
		// snapshot policy must not forget every device.
		statuses = e.Snapshot().Devices
	}

	if res.logErr == nil {
		e.processLog(res.logs)
	}

	e.publish(statuses, res)
}

func (e *Engine) reconcileDevices(ctx context.Context, records []devices.Record, res *fetchResult) {
	fresh := e.presence.FilterNew(records)
	now := e.clock.Now()

	for _, rec := range fresh {
		cl := e.classifier.Classify(rec, res.hotspot)
		e.firstSeen[rec.MAC] = now
		e.metrics.RecordNewDevice(string(cl.Category), string(cl.Severity))

		logrus.WithFields(logrus.Fields{
			"mac":      rec.MAC,
			"address":  rec.Address,
			"name":     rec.DisplayName,
			"category": cl.Category,
			"notify":   cl.ShouldNotify,
		}).Info("New device detected")

		if cl.ShouldNotify {
			event := cl.Event(rec)
			event.Timestamp = now
			e.notifier.Notify(event)
		}

		e.recordSighting(ctx, rec, cl, now)
	}

	e.presence.Commit(records)

	if e.presence.Policy() == devices.PolicySnapshot {
		for mac := range e.firstSeen {
			if !e.presence.Contains(mac) {
				delete(e.firstSeen, mac)
			}
		}
	}
}

func (e *Engine) recordSighting(ctx context.Context, rec devices.Record, cl devices.Classification, now time.Time) {
	if e.journal == nil {
		return
	}
	err := e.journal.RecordSighting(ctx, &database.Sighting{
		MAC:         rec.MAC,
		Address:     rec.Address,
		Interface:   rec.Interface,
		DisplayName: rec.DisplayName,
		Category:    string(cl.Category),
		Severity:    string(cl.Severity),
		Notified:    cl.ShouldNotify,
		Timestamp:   now,
	})
	e.metrics.RecordDatabaseOperation("record_sighting", err)
	if err != nil {
		logrus.WithError(err).WithField("mac", rec.MAC).Warn("Failed to journal sighting")
	}
}

func (e *Engine) processLog(entries []logwatch.Entry) {
	prev := e.watermark
	fresh, next := logwatch.NewEntriesSince(entries, prev)

	if prev.IsSet() && len(fresh) == 0 && next != prev {
		e.metrics.RecordWatermarkReset()
		logrus.WithFields(logrus.Fields{
			"previous": prev.String(),
			"reset_to": next.String(),
		}).Warn("Log watermark no longer present, resetting to latest entry")
	}
	e.watermark = next

	alerted := 0
	now := e.clock.Now()
	for _, entry := range fresh {
		event, ok := logwatch.Evaluate(entry)
		if !ok {
			continue
		}
		alerted++
		event.Timestamp = now
		e.notifier.Notify(event)
	}
	e.metrics.RecordLogEntries(len(fresh), alerted)

	if len(fresh) > 0 {
		logrus.WithFields(logrus.Fields{
			"entries":   len(fresh),
			"alerts":    alerted,
			"watermark": next.String(),
		}).Debug("Processed new log entries")
	}
}

func (e *Engine) statuses(records []devices.Record, res *fetchResult) []DeviceStatus {
	out := make([]DeviceStatus, 0, len(records))
	for _, rec := range records {
		out = append(out, DeviceStatus{
			Record:         rec,
			Classification: e.classifier.Classify(rec, res.hotspot),
			FirstSeen:      e.firstSeen[rec.MAC],
		})
	}
	return out
}

func (e *Engine) publish(statuses []DeviceStatus, res *fetchResult) {
	known := e.presence.Len()
	e.metrics.UpdateDevices(len(statuses), known)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot.Cycles++
	e.snapshot.LastCycle = e.clock.Now()
	e.snapshot.Devices = statuses
	e.snapshot.KnownDevices = known
	e.snapshot.Watermark = e.watermark.String()
	e.snapshot.FetchErrors = res.errors()
}
