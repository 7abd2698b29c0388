package notifications

import (
	"context"

	"netsentry/internal/database"
	"netsentry/internal/metrics"
)

// JournalSink records every delivered event in the alert journal.
type JournalSink struct {
	store   database.Store
	metrics *metrics.Collector
}

func NewJournalSink(store database.Store, collector *metrics.Collector) *JournalSink {
	return &JournalSink{store: store, metrics: collector}
}

func (j *JournalSink) Name() string { return "journal" }

func (j *JournalSink) Send(ctx context.Context, event Event) error {
	err := j.store.RecordAlert(ctx, &database.Alert{
		Title:     event.Title,
		Body:      event.Body,
		Severity:  string(event.Severity),
		Category:  event.Category,
		Source:    event.Source,
		Timestamp: event.Timestamp,
	})
	j.metrics.RecordDatabaseOperation("record_alert", err)
	return err
}
