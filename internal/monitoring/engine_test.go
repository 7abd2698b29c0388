package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"netsentry/internal/config"
	"netsentry/internal/database"
	"netsentry/internal/devices"
	"netsentry/internal/logwatch"
	"netsentry/internal/notifications"
	"netsentry/internal/routeros"
)

type fakeSource struct {
	mu         sync.Mutex
	arp        []routeros.ArpEntry
	arpErr     error
	leases     []routeros.Lease
	leasesErr  error
	hotspot    []string
	hotspotErr error
	logs       []logwatch.Entry
	logErr     error
	blockArp   bool
	arpCalls   chan struct{}
}

func (f *fakeSource) FetchArpTable(ctx context.Context) ([]routeros.ArpEntry, error) {
	f.mu.Lock()
	block, arp, err, calls := f.blockArp, f.arp, f.arpErr, f.arpCalls
	f.mu.Unlock()

	if calls != nil {
		calls <- struct{}{}
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return arp, err
}

func (f *fakeSource) FetchDhcpLeases(ctx context.Context) ([]routeros.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leases, f.leasesErr
}

func (f *fakeSource) FetchHotspotActive(ctx context.Context) (routeros.MACSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hotspotErr != nil {
		return nil, f.hotspotErr
	}
	return routeros.NewMACSet(f.hotspot...), nil
}

func (f *fakeSource) FetchSystemLog(ctx context.Context) ([]logwatch.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, f.logErr
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Notify(event notifications.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) all() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  {}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		ticker: &fakeTicker{ch: make(chan time.Time)},
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Ticker(d time.Duration) Ticker { return c.ticker }

func (c *fakeClock) tick() {
	c.mu.Lock()
	c.now = c.now.Add(10 * time.Second)
	now := c.now
	c.mu.Unlock()
	c.ticker.ch <- now
}

func boolPtr(b bool) *bool { return &b }

func testConfig(policy string) *config.Config {
	return &config.Config{
		Monitoring: config.MonitoringConfig{
			PollInterval:   10 * time.Second,
			FetchTimeout:   time.Second,
			PresencePolicy: policy,
		},
		Classification: config.ClassificationConfig{
			TrustedPrefixes:  []string{"192.168.10."},
			UpstreamPrefixes: []string{"192.168.1."},
			GuestPrefixes:    []string{"192.168.20."},
			Notify: config.CategoryNotifyFlags{
				Trusted:       boolPtr(false),
				Upstream:      boolPtr(false),
				Authenticated: boolPtr(false),
				Lurker:        boolPtr(true),
				Unknown:       boolPtr(true),
			},
		},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, src *fakeSource, journal database.Store) (*Engine, *recordingNotifier, *fakeClock) {
	t.Helper()
	notifier := &recordingNotifier{}
	e, err := NewEngine(cfg, src, notifier, journal, nil)
	require.NoError(t, err)
	clock := newFakeClock()
	e.clock = clock
	return e, notifier, clock
}

func cycles(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.RunCycle(context.Background()))
	}
}

func arpEntry(mac, address string) routeros.ArpEntry {
	return routeros.ArpEntry{MACAddress: mac, Address: address, Interface: "bridge"}
}

const (
	routerMAC  = "AA:00:00:00:00:01"
	laptopMAC  = "AA:00:00:00:00:10"
	visitorMAC = "AA:00:00:00:00:20"
)

func TestEngineEndToEndScenario(t *testing.T) {
	src := &fakeSource{
		arp:  []routeros.ArpEntry{arpEntry(routerMAC, "192.168.1.1")},
		logs: []logwatch.Entry{{ID: "*1", Message: "system started"}},
	}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)

	assert.Equal(t, StateStarting, e.State())
	cycles(t, e, 2)
	assert.Equal(t, StatePolling, e.State())

	src.set(func(f *fakeSource) {
		f.arp = append(f.arp, arpEntry(laptopMAC, "192.168.10.5"), arpEntry(visitorMAC, "192.168.20.9"))
	})
	for i := 0; i < 4; i++ {
		cycles(t, e, 1)
	}

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, notifications.SeverityCritical, events[0].Severity)
	assert.Equal(t, string(devices.CategoryLurker), events[0].Category)
	assert.Equal(t, visitorMAC, events[0].Source)

	snap := e.Snapshot()
	require.Len(t, snap.Devices, 3)
	byMAC := make(map[string]DeviceStatus)
	for _, d := range snap.Devices {
		byMAC[d.MAC] = d
	}
	assert.Equal(t, devices.CategoryTrusted, byMAC[laptopMAC].Category)
	assert.False(t, byMAC[laptopMAC].ShouldNotify)
	assert.Equal(t, devices.CategoryLurker, byMAC[visitorMAC].Category)
	assert.Equal(t, 3, snap.KnownDevices)
}

func TestEngineBaselineNeverNotifies(t *testing.T) {
	src := &fakeSource{
		arp: []routeros.ArpEntry{
			arpEntry(visitorMAC, "192.168.20.9"),
			arpEntry("AA:00:00:00:00:30", "10.99.0.1"),
		},
	}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)

	cycles(t, e, 5)
	assert.Empty(t, notifier.all())
	assert.Equal(t, 2, e.Snapshot().KnownDevices)
}

func TestEngineBaselineRetriedWhenArpFails(t *testing.T) {
	src := &fakeSource{arpErr: errors.New("connection refused")}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)

	cycles(t, e, 3)
	assert.Equal(t, StateBaseline, e.State())
	assert.Contains(t, e.Snapshot().FetchErrors, routeros.SourceARP)

	src.set(func(f *fakeSource) {
		f.arpErr = nil
		f.arp = []routeros.ArpEntry{arpEntry(visitorMAC, "192.168.20.9")}
	})
	cycles(t, e, 2)
	assert.Equal(t, StatePolling, e.State())
	assert.Empty(t, notifier.all())
}

func TestEngineLogAlertsExactlyOnce(t *testing.T) {
	src := &fakeSource{
		logs: []logwatch.Entry{{ID: "*1", Topics: []string{"critical"}, Message: "backlog"}},
	}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)
	cycles(t, e, 2)
	assert.Empty(t, notifier.all(), "backlog is never alerted")

	src.set(func(f *fakeSource) {
		f.logs = []logwatch.Entry{
			{ID: "*1", Topics: []string{"critical"}, Message: "backlog"},
			{ID: "*2", Topics: []string{"system", "info"}, Message: "user admin logged in"},
			{ID: "*3", Topics: []string{"system", "error"}, Message: "disk full"},
		}
	})
	cycles(t, e, 2)
	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "*3", events[0].Source)
	assert.Equal(t, "*3", e.Snapshot().Watermark)

	// Rotated past the watermark: the gap is skipped.
	src.set(func(f *fakeSource) {
		f.logs = []logwatch.Entry{{ID: "*9", Topics: []string{"critical"}, Message: "missed"}}
	})
	cycles(t, e, 1)
	assert.Len(t, notifier.all(), 1)
	assert.Equal(t, "*9", e.Snapshot().Watermark)

	src.set(func(f *fakeSource) {
		f.logs = append(f.logs, logwatch.Entry{ID: "*A", Topics: []string{"system"}, Message: "login failure for user admin"})
	})
	cycles(t, e, 1)
	events = notifier.all()
	require.Len(t, events, 2)
	assert.Equal(t, "Router login failure", events[1].Title)
}

func TestEngineStartupLogFailureLeavesWatermarkUnset(t *testing.T) {
	src := &fakeSource{logErr: errors.New("timeout")}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)
	cycles(t, e, 2)
	assert.Equal(t, "<unset>", e.Snapshot().Watermark)

	src.set(func(f *fakeSource) {
		f.logErr = nil
		f.logs = []logwatch.Entry{{ID: "*1", Topics: []string{"critical"}}, {ID: "*2", Topics: []string{"error"}}}
	})
	cycles(t, e, 1)
	assert.Empty(t, notifier.all())

	src.set(func(f *fakeSource) {
		f.logs = append(f.logs, logwatch.Entry{ID: "*3", Topics: []string{"critical"}})
	})
	cycles(t, e, 1)
	assert.Len(t, notifier.all(), 1)
}

func TestEngineFetchFailuresDegrade(t *testing.T) {
	src := &fakeSource{
		logs: []logwatch.Entry{{ID: "*1"}},
	}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)
	cycles(t, e, 2)

	// Hotspot and DHCP down: an authenticated guest is treated as a lurker
	// and its name falls back to Unknown. The log source is down too.
	src.set(func(f *fakeSource) {
		f.arp = []routeros.ArpEntry{arpEntry(visitorMAC, "192.168.20.9")}
		f.hotspot = []string{visitorMAC}
		f.hotspotErr = errors.New("hotspot disabled")
		f.leases = []routeros.Lease{{MACAddress: visitorMAC, HostName: "guest-phone"}}
		f.leasesErr = errors.New("timeout")
		f.logErr = errors.New("timeout")
	})
	cycles(t, e, 1)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(devices.CategoryLurker), events[0].Category)
	assert.Contains(t, events[0].Body, devices.UnknownName)

	snap := e.Snapshot()
	assert.Equal(t, "*1", snap.Watermark)
	assert.Len(t, snap.FetchErrors, 3)
	assert.Equal(t, StatePolling, snap.State)
}

func TestEngineArpFailureSkipsPresenceCommit(t *testing.T) {
	src := &fakeSource{arp: []routeros.ArpEntry{arpEntry(routerMAC, "192.168.1.1")}}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicySnapshot), src, nil)
	cycles(t, e, 2)

	src.set(func(f *fakeSource) { f.arpErr = errors.New("reset by peer") })
	cycles(t, e, 1)
	assert.Equal(t, 1, e.Snapshot().KnownDevices)
	assert.Len(t, e.Snapshot().Devices, 1, "last known devices are kept")

	src.set(func(f *fakeSource) {
		f.arpErr = nil
		f.arp = append(f.arp, arpEntry("AA:00:00:00:00:40", "172.16.5.5"))
	})
	cycles(t, e, 1)
	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, string(devices.CategoryUnknown), events[0].Category)
}

func TestEngineSnapshotPolicyRealertsOnRejoin(t *testing.T) {
	src := &fakeSource{}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicySnapshot), src, nil)
	cycles(t, e, 2)

	visitor := []routeros.ArpEntry{arpEntry(visitorMAC, "192.168.20.9")}
	src.set(func(f *fakeSource) { f.arp = visitor })
	cycles(t, e, 2)
	src.set(func(f *fakeSource) { f.arp = nil })
	cycles(t, e, 1)
	src.set(func(f *fakeSource) { f.arp = visitor })
	cycles(t, e, 1)

	assert.Len(t, notifier.all(), 2)
	assert.Equal(t, devices.PolicySnapshot, e.Snapshot().PresencePolicy)
}

func TestEngineAccumulatePolicyDoesNotRealert(t *testing.T) {
	src := &fakeSource{}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)
	cycles(t, e, 2)

	visitor := []routeros.ArpEntry{arpEntry(visitorMAC, "192.168.20.9")}
	src.set(func(f *fakeSource) { f.arp = visitor })
	cycles(t, e, 1)
	src.set(func(f *fakeSource) { f.arp = nil })
	cycles(t, e, 1)
	src.set(func(f *fakeSource) { f.arp = visitor })
	cycles(t, e, 1)

	assert.Len(t, notifier.all(), 1)
}

func TestEngineAuthenticatedNotifyFlag(t *testing.T) {
	cfg := testConfig(config.PolicyAccumulate)
	cfg.Classification.Notify.Authenticated = boolPtr(true)
	src := &fakeSource{hotspot: []string{visitorMAC}}
	e, notifier, _ := newTestEngine(t, cfg, src, nil)
	cycles(t, e, 2)

	src.set(func(f *fakeSource) { f.arp = []routeros.ArpEntry{arpEntry(visitorMAC, "192.168.20.9")} })
	cycles(t, e, 1)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, notifications.SeverityNormal, events[0].Severity)
}

func TestEngineFetchTimeoutBoundsCycle(t *testing.T) {
	cfg := testConfig(config.PolicyAccumulate)
	cfg.Monitoring.FetchTimeout = 20 * time.Millisecond
	src := &fakeSource{}
	e, _, _ := newTestEngine(t, cfg, src, nil)
	cycles(t, e, 2)

	src.set(func(f *fakeSource) { f.blockArp = true })
	start := time.Now()
	cycles(t, e, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, e.Snapshot().FetchErrors, routeros.SourceARP)
}

func TestEngineJournalsSightings(t *testing.T) {
	store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	src := &fakeSource{}
	e, _, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, store)
	cycles(t, e, 2)

	src.set(func(f *fakeSource) {
		f.arp = []routeros.ArpEntry{arpEntry(laptopMAC, "192.168.10.5"), arpEntry(visitorMAC, "192.168.20.9")}
	})
	cycles(t, e, 2)

	sightings, err := store.ListSightings(context.Background(), database.SightingFilters{})
	require.NoError(t, err)
	require.Len(t, sightings, 2)

	lurker, err := store.ListSightings(context.Background(), database.SightingFilters{MAC: visitorMAC})
	require.NoError(t, err)
	require.Len(t, lurker, 1)
	assert.True(t, lurker[0].Notified)
	assert.Equal(t, string(devices.CategoryLurker), lurker[0].Category)
}

func TestEngineRunTicksAndStopsOnCancel(t *testing.T) {
	src := &fakeSource{arpCalls: make(chan struct{}, 16)}
	e, notifier, clock := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	waitCall := func() {
		select {
		case <-src.arpCalls:
		case <-time.After(2 * time.Second):
			t.Fatal("expected an ARP fetch")
		}
	}

	waitCall() // baseline
	src.set(func(f *fakeSource) { f.arp = []routeros.ArpEntry{arpEntry(visitorMAC, "192.168.20.9")} })
	clock.tick()
	waitCall()
	clock.tick() // blocks until the previous cycle is done
	waitCall()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	assert.Equal(t, StateStopping, e.State())
	assert.Len(t, notifier.all(), 1)
}

func TestEngineRunCycleAfterCancel(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), &fakeSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.RunCycle(ctx), context.Canceled)
	assert.Equal(t, StateStarting, e.State())
}

func TestEngineOnce(t *testing.T) {
	src := &fakeSource{
		arp:    []routeros.ArpEntry{arpEntry(laptopMAC, "192.168.10.5")},
		leases: []routeros.Lease{{MACAddress: laptopMAC, HostName: "laptop"}},
	}
	e, notifier, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), src, nil)

	devs, err := e.Once(context.Background())
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "laptop", devs[0].DisplayName)
	assert.Equal(t, devices.CategoryTrusted, devs[0].Category)
	assert.Empty(t, notifier.all())

	failing := &fakeSource{arpErr: errors.New("down")}
	e2, _, _ := newTestEngine(t, testConfig(config.PolicyAccumulate), failing, nil)
	_, err = e2.Once(context.Background())
	assert.Error(t, err)
}

func TestNewEngineRejectsUnknownPolicy(t *testing.T) {
	_, err := NewEngine(testConfig("sometimes"), &fakeSource{}, &recordingNotifier{}, nil, nil)
	assert.Error(t, err)
}
