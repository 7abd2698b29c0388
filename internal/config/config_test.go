package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"ROUTER_IP", "ip_address", "ROUTER_USER", "username", "ROUTER_PASSWORD", "pass",
	"ROUTER_CERT_PATH", "cert", "PUSHOVER_API_TOKEN", "PUSHOVER_USER_KEY", "REDIS_PASSWORD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
router:
  host: 192.168.88.1
  username: monitor
  password: secret
  insecure_skip_verify: true
`

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https", cfg.Router.Scheme)
	assert.Equal(t, 10*time.Second, cfg.Monitoring.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitoring.FetchTimeout)
	assert.Equal(t, PolicyAccumulate, cfg.Monitoring.PresencePolicy)
	assert.Equal(t, []string{"192.168.10."}, cfg.Classification.TrustedPrefixes)
	assert.Equal(t, []string{"192.168.20."}, cfg.Classification.GuestPrefixes)
	assert.False(t, Enabled(cfg.Classification.Notify.Authenticated))
	assert.True(t, Enabled(cfg.Classification.Notify.Lurker))
	assert.True(t, Enabled(cfg.Classification.Notify.Unknown))
	assert.Equal(t, 64, cfg.Notifications.QueueSize)
	assert.Equal(t, "https://192.168.88.1/rest", cfg.Router.BaseURL())
	assert.True(t, *cfg.Database.Enabled)
	assert.Equal(t, "/metrics", cfg.Prometheus.MetricsPath)
}

func TestLoadMissingRouterSettingsIsConfigError(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "monitoring:\n  poll_interval: 30s\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "router.host")
	assert.Contains(t, err.Error(), "router.cert_path")
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cert := writeFile(t, dir, "router.crt", "not-a-real-cert")

	t.Setenv("ip_address", "10.1.1.1")
	t.Setenv("ROUTER_IP", "10.0.0.1")
	t.Setenv("username", "admin")
	t.Setenv("pass", "hunter2")
	t.Setenv("cert", cert)

	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.Router.Host, "ROUTER_IP wins over legacy name")
	assert.Equal(t, "admin", cfg.Router.Username)
	assert.Equal(t, "hunter2", cfg.Router.Password)
	assert.Equal(t, cert, cfg.Router.CertPath)
}

func TestLoadRejectsUnknownPresencePolicy(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML+"monitoring:\n  presence_policy: forever\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "presence_policy")
}

func TestLoadRejectsInvalidCIDR(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML+"classification:\n  guest_prefixes: [\"10.0.0.0/99\"]\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadPushoverRequiresCredentials(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML+"notifications:\n  pushover:\n    enabled: true\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("PUSHOVER_API_TOKEN", "token")
	t.Setenv("PUSHOVER_USER_KEY", "user")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Notifications.Pushover.Priorities["critical"])
}

func TestLoadMergesIncludes(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "conf.d"), 0o755))
	writeFile(t, filepath.Join(dir, "conf.d"), "10-segments.yaml", `
classification:
  guest_prefixes: ["172.16.0.0/16"]
  notify:
    authenticated: true
`)
	writeFile(t, filepath.Join(dir, "conf.d"), "20-policy.yml", `
monitoring:
  presence_policy: snapshot
`)
	path := writeFile(t, dir, "config.yaml", minimalYAML+`
include:
  enabled: true
  directory: conf.d
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"172.16.0.0/16"}, cfg.Classification.GuestPrefixes)
	assert.True(t, Enabled(cfg.Classification.Notify.Authenticated))
	assert.Equal(t, PolicySnapshot, cfg.Monitoring.PresencePolicy)
}
