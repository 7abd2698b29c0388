// internal/database/retention.go - Periodic journal purging
package database

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Retention drops journal entries older than a fixed age.
type Retention struct {
	store  Store
	maxAge time.Duration
	now    func() time.Time
}

func NewRetention(store Store, maxAge time.Duration) *Retention {
	return &Retention{
		store:  store,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Purge removes everything recorded before now minus the retention age.
func (r *Retention) Purge(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.maxAge)

	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted_count": deleted,
			"cutoff_time":   cutoff,
		}).Info("Purged old journal entries")
	} else {
		logrus.Debug("No journal entries old enough to purge")
	}
	return deleted, nil
}

// SchedulePeriodicPurge purges once immediately and then every interval
// until ctx is cancelled.
func (r *Retention) SchedulePeriodicPurge(ctx context.Context, interval time.Duration) {
	go func() {
		if _, err := r.Purge(ctx); err != nil {
			logrus.WithError(err).Error("Initial journal purge failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logrus.Debug("Stopping periodic journal purge")
				return
			case <-ticker.C:
				if _, err := r.Purge(ctx); err != nil {
					logrus.WithError(err).Error("Scheduled journal purge failed")
				}
			}
		}
	}()

	logrus.WithFields(logrus.Fields{
		"interval":  interval,
		"retention": r.maxAge,
	}).Info("Scheduled periodic journal purging")
}
