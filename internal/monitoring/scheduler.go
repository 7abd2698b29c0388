// internal/monitoring/scheduler.go - Fixed interval poll loop
package monitoring

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Run drives the engine until ctx is cancelled: Starting and Baseline run
// immediately, then one Polling cycle per tick. Cycles never overlap; a tick
// that arrives while a cycle is running is coalesced by the ticker. Run
// returns nil on cancellation.
func (e *Engine) Run(ctx context.Context) error {
	logrus.Info("Starting monitoring engine")

	for _, s := range []State{StateStarting, StateBaseline} {
		if e.State() != s {
			continue
		}
		if err := e.RunCycle(ctx); err != nil {
			return e.stop(err)
		}
	}

	ticker := e.clock.Ticker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.stop(ctx.Err())
		case <-ticker.Chan():
			if err := e.RunCycle(ctx); err != nil {
				return e.stop(err)
			}
		}
	}
}

// Once runs Starting and Baseline and returns the devices found. It backs
// the one-shot CLI mode.
func (e *Engine) Once(ctx context.Context) ([]DeviceStatus, error) {
	for _, s := range []State{StateStarting, StateBaseline} {
		if e.State() != s {
			continue
		}
		if err := e.RunCycle(ctx); err != nil {
			return nil, err
		}
	}
	if e.State() != StatePolling {
		return nil, errors.New("router ARP table unavailable")
	}
	return e.Snapshot().Devices, nil
}

func (e *Engine) stop(err error) error {
	e.setState(StateStopping)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logrus.Info("Monitoring engine stopped")
		return nil
	}
	logrus.WithError(err).Error("Monitoring engine stopped")
	return err
}
