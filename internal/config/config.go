// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure so callers can tell
// configuration errors apart from I/O errors.
var ErrInvalidConfig = errors.New("invalid configuration")

// Presence policies.
const (
	PolicyAccumulate = "accumulate"
	PolicySnapshot   = "snapshot"
)

type Config struct {
	Router         RouterConfig         `yaml:"router"`
	Monitoring     MonitoringConfig     `yaml:"monitoring"`
	Classification ClassificationConfig `yaml:"classification"`
	Notifications  NotificationConfig   `yaml:"notifications"`
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Prometheus     PrometheusConfig     `yaml:"prometheus"`
	Logging        LoggingConfig        `yaml:"logging"`
	Include        IncludeConfig        `yaml:"include"`
}

// RouterConfig describes how to reach the RouterOS REST API.
type RouterConfig struct {
	Host               string `yaml:"host"`
	Scheme             string `yaml:"scheme"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	CertPath           string `yaml:"cert_path"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type MonitoringConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	PresencePolicy string        `yaml:"presence_policy"`
}

// ClassificationConfig holds the ordered address-prefix rules. A prefix is either
// a literal string prefix ("192.168.10.") or a CIDR ("10.0.0.0/8").
type ClassificationConfig struct {
	TrustedPrefixes  []string           `yaml:"trusted_prefixes"`
	UpstreamPrefixes []string           `yaml:"upstream_prefixes"`
	GuestPrefixes    []string           `yaml:"guest_prefixes"`
	Notify           CategoryNotifyFlags `yaml:"notify"`
}

// CategoryNotifyFlags switches external notification per category. Pointers
// distinguish "unset" from an explicit false so defaults can be applied.
type CategoryNotifyFlags struct {
	Trusted       *bool `yaml:"trusted"`
	Upstream      *bool `yaml:"upstream"`
	Authenticated *bool `yaml:"authenticated"`
	Lurker        *bool `yaml:"lurker"`
	Unknown       *bool `yaml:"unknown"`
}

type DatabaseConfig struct {
	Enabled          *bool         `yaml:"enabled"`
	Path             string        `yaml:"path"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	HistoryRetention time.Duration `yaml:"history_retention"`
}

type ServerConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PrometheusConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type IncludeConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
	Enabled   bool   `yaml:"enabled"`
}

// PartialConfig represents an include file that is merged over the main config.
type PartialConfig struct {
	Router         *RouterConfig         `yaml:"router,omitempty"`
	Monitoring     *MonitoringConfig     `yaml:"monitoring,omitempty"`
	Classification *ClassificationConfig `yaml:"classification,omitempty"`
	Notifications  *NotificationConfig   `yaml:"notifications,omitempty"`
	Logging        *LoggingConfig        `yaml:"logging,omitempty"`
}

// Load reads the YAML file (if it exists), merges includes, applies environment
// overrides and defaults, and validates the result.
func Load(filename string) (*Config, error) {
	config, err := loadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config file: %w", err)
	}

	if config.Include.Enabled && config.Include.Directory != "" {
		if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
			return nil, fmt.Errorf("failed to load includes: %w", err)
		}
	}

	applyEnv(config, os.Getenv)
	setDefaults(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func loadConfigFile(filename string) (*Config, error) {
	var config Config
	if filename == "" {
		return &config, nil
	}

	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		// Running from environment variables alone is allowed.
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func loadIncludes(config *Config, baseDir string) error {
	includeDir := config.Include.Directory
	if !filepath.IsAbs(includeDir) {
		includeDir = filepath.Join(baseDir, includeDir)
	}

	if _, err := os.Stat(includeDir); os.IsNotExist(err) {
		return fmt.Errorf("include directory does not exist: %s", includeDir)
	}

	pattern := config.Include.Pattern
	if pattern == "" {
		pattern = "*.yaml"
	}

	matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to glob include pattern: %w", err)
	}

	if pattern == "*.yaml" {
		ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
		if err != nil {
			return fmt.Errorf("failed to glob .yml files: %w", err)
		}
		matches = append(matches, ymlMatches...)
	}

	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})

	for _, match := range matches {
		if err := loadAndMergeInclude(config, match); err != nil {
			return fmt.Errorf("failed to load include file %s: %w", match, err)
		}
	}

	return nil
}

func loadAndMergeInclude(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read include file: %w", err)
	}

	var partial PartialConfig
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("failed to parse include file YAML: %w", err)
	}

	mergePartialConfig(config, &partial)
	return nil
}

func mergePartialConfig(config *Config, partial *PartialConfig) {
	if partial.Router != nil {
		mergeRouterConfig(&config.Router, partial.Router)
	}
	if partial.Monitoring != nil {
		mergeMonitoringConfig(&config.Monitoring, partial.Monitoring)
	}
	if partial.Classification != nil {
		mergeClassificationConfig(&config.Classification, partial.Classification)
	}
	if partial.Notifications != nil {
		mergeNotificationConfig(&config.Notifications, partial.Notifications)
	}
	if partial.Logging != nil {
		mergeLoggingConfig(&config.Logging, partial.Logging)
	}
}

func mergeRouterConfig(main *RouterConfig, partial *RouterConfig) {
	if partial.Host != "" {
		main.Host = partial.Host
	}
	if partial.Scheme != "" {
		main.Scheme = partial.Scheme
	}
	if partial.Username != "" {
		main.Username = partial.Username
	}
	if partial.Password != "" {
		main.Password = partial.Password
	}
	if partial.CertPath != "" {
		main.CertPath = partial.CertPath
	}
	if partial.InsecureSkipVerify {
		main.InsecureSkipVerify = true
	}
}

func mergeMonitoringConfig(main *MonitoringConfig, partial *MonitoringConfig) {
	if partial.PollInterval != 0 {
		main.PollInterval = partial.PollInterval
	}
	if partial.FetchTimeout != 0 {
		main.FetchTimeout = partial.FetchTimeout
	}
	if partial.PresencePolicy != "" {
		main.PresencePolicy = partial.PresencePolicy
	}
}

// Prefix lists in an include replace the main list rather than append to it,
// because rule order matters.
func mergeClassificationConfig(main *ClassificationConfig, partial *ClassificationConfig) {
	if len(partial.TrustedPrefixes) > 0 {
		main.TrustedPrefixes = partial.TrustedPrefixes
	}
	if len(partial.UpstreamPrefixes) > 0 {
		main.UpstreamPrefixes = partial.UpstreamPrefixes
	}
	if len(partial.GuestPrefixes) > 0 {
		main.GuestPrefixes = partial.GuestPrefixes
	}

	flags := []struct{ dst, src **bool }{
		{&main.Notify.Trusted, &partial.Notify.Trusted},
		{&main.Notify.Upstream, &partial.Notify.Upstream},
		{&main.Notify.Authenticated, &partial.Notify.Authenticated},
		{&main.Notify.Lurker, &partial.Notify.Lurker},
		{&main.Notify.Unknown, &partial.Notify.Unknown},
	}
	for _, f := range flags {
		if *f.src != nil {
			*f.dst = *f.src
		}
	}
}

func mergeLoggingConfig(main *LoggingConfig, partial *LoggingConfig) {
	if partial.Level != "" {
		main.Level = partial.Level
	}
	if partial.Format != "" {
		main.Format = partial.Format
	}
}

// applyEnv lets the environment (or a .env file loaded by main) supply the
// router connection and secrets. Both the ROUTER_* names and the short legacy
// names are accepted; the ROUTER_* names win.
func applyEnv(cfg *Config, getenv func(string) string) {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				return v
			}
		}
		return ""
	}

	if v := pick("ROUTER_IP", "ip_address"); v != "" {
		cfg.Router.Host = v
	}
	if v := pick("ROUTER_USER", "username"); v != "" {
		cfg.Router.Username = v
	}
	if v := pick("ROUTER_PASSWORD", "pass"); v != "" {
		cfg.Router.Password = v
	}
	if v := pick("ROUTER_CERT_PATH", "cert"); v != "" {
		cfg.Router.CertPath = v
	}
	if v := getenv("PUSHOVER_API_TOKEN"); v != "" {
		cfg.Notifications.Pushover.APIToken = v
	}
	if v := getenv("PUSHOVER_USER_KEY"); v != "" {
		cfg.Notifications.Pushover.UserKey = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		cfg.Notifications.Redis.Password = v
	}
}

func boolPtr(b bool) *bool { return &b }

func setDefaults(cfg *Config) {
	if cfg.Router.Scheme == "" {
		cfg.Router.Scheme = "https"
	}

	if cfg.Monitoring.PollInterval == 0 {
		cfg.Monitoring.PollInterval = 10 * time.Second
	}
	if cfg.Monitoring.FetchTimeout == 0 {
		cfg.Monitoring.FetchTimeout = 5 * time.Second
	}
	if cfg.Monitoring.PresencePolicy == "" {
		cfg.Monitoring.PresencePolicy = PolicyAccumulate
	}

	if cfg.Classification.TrustedPrefixes == nil {
		cfg.Classification.TrustedPrefixes = []string{"192.168.10."}
	}
	if cfg.Classification.UpstreamPrefixes == nil {
		cfg.Classification.UpstreamPrefixes = []string{"192.168.1."}
	}
	if cfg.Classification.GuestPrefixes == nil {
		cfg.Classification.GuestPrefixes = []string{"192.168.20."}
	}
	notify := &cfg.Classification.Notify
	if notify.Trusted == nil {
		notify.Trusted = boolPtr(false)
	}
	if notify.Upstream == nil {
		notify.Upstream = boolPtr(false)
	}
	if notify.Authenticated == nil {
		notify.Authenticated = boolPtr(false)
	}
	if notify.Lurker == nil {
		notify.Lurker = boolPtr(true)
	}
	if notify.Unknown == nil {
		notify.Unknown = boolPtr(true)
	}

	setNotificationDefaults(&cfg.Notifications)

	if cfg.Database.Enabled == nil {
		cfg.Database.Enabled = boolPtr(true)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/netsentry.db"
	}
	if cfg.Database.CleanupInterval == 0 {
		cfg.Database.CleanupInterval = 6 * time.Hour
	}
	if cfg.Database.HistoryRetention == 0 {
		cfg.Database.HistoryRetention = 30 * 24 * time.Hour
	}

	if cfg.Server.Enabled == nil {
		cfg.Server.Enabled = boolPtr(true)
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}

	if cfg.Prometheus.Enabled == nil {
		cfg.Prometheus.Enabled = boolPtr(true)
	}
	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Include.Pattern == "" {
		cfg.Include.Pattern = "*.yaml"
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func validate(cfg *Config) error {
	var missing []string
	if cfg.Router.Host == "" {
		missing = append(missing, "router.host (ROUTER_IP)")
	}
	if cfg.Router.Username == "" {
		missing = append(missing, "router.username (ROUTER_USER)")
	}
	if cfg.Router.Password == "" {
		missing = append(missing, "router.password (ROUTER_PASSWORD)")
	}
	if cfg.Router.Scheme == "https" && cfg.Router.CertPath == "" && !cfg.Router.InsecureSkipVerify {
		missing = append(missing, "router.cert_path (ROUTER_CERT_PATH)")
	}
	if len(missing) > 0 {
		return invalid("missing required settings: %s", strings.Join(missing, ", "))
	}

	if cfg.Router.Scheme != "https" && cfg.Router.Scheme != "http" {
		return invalid("router.scheme must be http or https, got %q", cfg.Router.Scheme)
	}
	if cfg.Router.CertPath != "" {
		if _, err := os.Stat(cfg.Router.CertPath); err != nil {
			return invalid("router.cert_path '%s' is not accessible: %v", cfg.Router.CertPath, err)
		}
	}

	if cfg.Monitoring.PollInterval <= 0 {
		return invalid("monitoring.poll_interval must be positive")
	}
	if cfg.Monitoring.FetchTimeout <= 0 {
		return invalid("monitoring.fetch_timeout must be positive")
	}
	switch cfg.Monitoring.PresencePolicy {
	case PolicyAccumulate, PolicySnapshot:
	default:
		return invalid("monitoring.presence_policy must be %q or %q, got %q",
			PolicyAccumulate, PolicySnapshot, cfg.Monitoring.PresencePolicy)
	}

	lists := map[string][]string{
		"classification.trusted_prefixes":  cfg.Classification.TrustedPrefixes,
		"classification.upstream_prefixes": cfg.Classification.UpstreamPrefixes,
		"classification.guest_prefixes":    cfg.Classification.GuestPrefixes,
	}
	for name, prefixes := range lists {
		for _, p := range prefixes {
			if strings.TrimSpace(p) == "" {
				return invalid("%s contains an empty prefix", name)
			}
			if strings.Contains(p, "/") {
				if _, err := netip.ParsePrefix(p); err != nil {
					return invalid("%s contains invalid CIDR %q: %v", name, p, err)
				}
			}
		}
	}

	if err := validateNotifications(&cfg.Notifications); err != nil {
		return err
	}

	if cfg.Database.HistoryRetention < 0 {
		return invalid("database.history_retention must not be negative")
	}

	if cfg.Include.Enabled && cfg.Include.Directory == "" {
		return invalid("include.directory must be specified when include.enabled is true")
	}

	return nil
}

// Enabled reports whether an optional flag is set, treating nil as false.
func Enabled(flag *bool) bool {
	return flag != nil && *flag
}

// BaseURL returns the REST root, e.g. https://192.168.88.1/rest.
func (r RouterConfig) BaseURL() string {
	return fmt.Sprintf("%s://%s/rest", r.Scheme, r.Host)
}
