package notifications

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes every event to the process log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(ctx context.Context, event Event) error {
	entry := logrus.WithFields(logrus.Fields{
		"severity": event.Severity,
		"category": event.Category,
		"source":   event.Source,
	})
	switch event.Severity {
	case SeverityCritical:
		entry.Warnf("ALERT %s: %s", event.Title, event.Body)
	default:
		entry.Infof("%s: %s", event.Title, event.Body)
	}
	return nil
}
