// internal/config/notifications.go - Notification sink configuration
package config

import (
	"text/template"
	"time"
)

type NotificationConfig struct {
	QueueSize int            `yaml:"queue_size"`
	Timeout   time.Duration  `yaml:"timeout"`
	Desktop   DesktopConfig  `yaml:"desktop"`
	Pushover  PushoverConfig `yaml:"pushover"`
	Redis     RedisConfig    `yaml:"redis"`
	Throttle  ThrottleConfig `yaml:"throttle"`
}

// DesktopConfig drives the notify-send sink.
type DesktopConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
	AppName string `yaml:"app_name"`
}

type PushoverConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	UserKey  string `yaml:"user_key"`
	Sound    string `yaml:"sound"`
	Device   string `yaml:"device"`
	Title    string `yaml:"title"`    // title template
	Template string `yaml:"template"` // message template
	Retry    int    `yaml:"retry"`    // emergency priority only (seconds)
	Expire   int    `yaml:"expire"`   // emergency priority only (seconds)
	// Priority per severity: -2 (silent) .. 2 (emergency).
	Priorities map[string]int `yaml:"priorities"`
}

// RedisConfig controls the Redis list sink.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	MaxLen   int64  `yaml:"max_len"`
}

type ThrottleConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Window       time.Duration `yaml:"window"`
	MaxPerSource int           `yaml:"max_per_source"`
	MaxTotal     int           `yaml:"max_total"`
}

func mergeNotificationConfig(main *NotificationConfig, partial *NotificationConfig) {
	if partial.QueueSize != 0 {
		main.QueueSize = partial.QueueSize
	}
	if partial.Timeout != 0 {
		main.Timeout = partial.Timeout
	}
	if partial.Desktop.Enabled {
		main.Desktop = partial.Desktop
	}
	if partial.Pushover.Enabled {
		main.Pushover = partial.Pushover
	}
	if partial.Redis.Enabled {
		main.Redis = partial.Redis
	}
	if partial.Throttle.Enabled {
		main.Throttle = partial.Throttle
	}
}

func setNotificationDefaults(n *NotificationConfig) {
	if n.QueueSize == 0 {
		n.QueueSize = 64
	}
	if n.Timeout == 0 {
		n.Timeout = 10 * time.Second
	}

	if n.Desktop.Command == "" {
		n.Desktop.Command = "notify-send"
	}
	if n.Desktop.AppName == "" {
		n.Desktop.AppName = "netsentry"
	}

	if n.Pushover.APIURL == "" {
		n.Pushover.APIURL = "https://api.pushover.net/1/messages.json"
	}
	if n.Pushover.Title == "" {
		n.Pushover.Title = "{{.Title}}"
	}
	if n.Pushover.Template == "" {
		n.Pushover.Template = "{{.Body}}"
	}
	if n.Pushover.Sound == "" {
		n.Pushover.Sound = "pushover"
	}
	if n.Pushover.Priorities == nil {
		n.Pushover.Priorities = map[string]int{"low": -1, "normal": 0, "critical": 1}
	}

	if n.Redis.Addr == "" {
		n.Redis.Addr = "127.0.0.1:6379"
	}
	if n.Redis.Key == "" {
		n.Redis.Key = "netsentry:alerts"
	}
	if n.Redis.MaxLen == 0 {
		n.Redis.MaxLen = 1000
	}

	if n.Throttle.Window == 0 {
		n.Throttle.Window = 15 * time.Minute
	}
	if n.Throttle.MaxPerSource == 0 {
		n.Throttle.MaxPerSource = 5
	}
	if n.Throttle.MaxTotal == 0 {
		n.Throttle.MaxTotal = 20
	}
}

func validateNotifications(n *NotificationConfig) error {
	if n.QueueSize < 1 {
		return invalid("notifications.queue_size must be at least 1")
	}

	if n.Pushover.Enabled {
		if n.Pushover.APIToken == "" {
			return invalid("notifications.pushover.api_token is required when Pushover is enabled")
		}
		if n.Pushover.UserKey == "" {
			return invalid("notifications.pushover.user_key is required when Pushover is enabled")
		}
		for severity, p := range n.Pushover.Priorities {
			if p < -2 || p > 2 {
				return invalid("notifications.pushover.priorities.%s must be between -2 and 2", severity)
			}
			if p == 2 && (n.Pushover.Retry < 30 || n.Pushover.Expire < 60 || n.Pushover.Expire > 10800) {
				return invalid("notifications.pushover emergency priority needs retry >= 30 and 60 <= expire <= 10800")
			}
		}
		if _, err := template.New("title").Parse(n.Pushover.Title); err != nil {
			return invalid("invalid pushover title template: %v", err)
		}
		if _, err := template.New("message").Parse(n.Pushover.Template); err != nil {
			return invalid("invalid pushover message template: %v", err)
		}
	}

	if n.Redis.Enabled && n.Redis.Key == "" {
		return invalid("notifications.redis.key is required when Redis is enabled")
	}

	if n.Throttle.Enabled && (n.Throttle.MaxPerSource < 1 || n.Throttle.MaxTotal < 1) {
		return invalid("notifications.throttle limits must be at least 1")
	}

	return nil
}
