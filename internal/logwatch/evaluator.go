package logwatch

import (
	"fmt"
	"strings"

	"netsentry/internal/notifications"
)

const (
	CategoryRouterLog = "Router Log"

	loginFailure = "login failure"
)

var alertTopics = []string{"critical", "error"}

// Evaluate returns a critical event when the entry carries a critical or
// error topic, or reports a login failure. Matching is case-sensitive.
func Evaluate(e Entry) (notifications.Event, bool) {
	title := ""
	switch {
	case strings.Contains(e.Message, loginFailure):
		title = "Router login failure"
	case hasAlertTopic(e.Topics):
		title = "Router critical event"
	default:
		return notifications.Event{}, false
	}

	return notifications.Event{
		Title:    title,
		Body:     formatBody(e),
		Severity: notifications.SeverityCritical,
		Category: CategoryRouterLog,
		Source:   e.ID,
	}, true
}

func hasAlertTopic(topics []string) bool {
	for _, t := range topics {
		for _, want := range alertTopics {
			if t == want {
				return true
			}
		}
	}
	return false
}

func formatBody(e Entry) string {
	topics := strings.Join(e.Topics, ",")
	if e.Time != "" {
		return fmt.Sprintf("%s [%s] %s", e.Time, topics, e.Message)
	}
	return fmt.Sprintf("[%s] %s", topics, e.Message)
}
