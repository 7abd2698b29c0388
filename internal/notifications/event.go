// internal/notifications/event.go
package notifications

import (
	"fmt"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityNormal, SeverityCritical:
		return true
	}
	return false
}

// Event is one alert handed to the notifier. It is never acknowledged.
type Event struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  Severity  `json:"severity"`
	Category  string    `json:"category,omitempty"`
	Source    string    `json:"source,omitempty"` // device MAC or log entry id
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Title, e.Body)
}

// Notifier accepts events fire-and-forget. Implementations must not block the
// caller on delivery and never report delivery failures back to it.
type Notifier interface {
	Notify(event Event)
}
