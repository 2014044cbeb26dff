package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 3, cfg.Redis.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Collect.Interval)
	assert.Equal(t, 800*time.Millisecond, cfg.Collect.Timeout)
	assert.Equal(t, TPSModeCycle, cfg.Collect.TPSMode)
	assert.Equal(t, "/proc/diskstats", cfg.Disk.StatsPath)
	assert.True(t, cfg.Sinks.Console.Enable)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
agent:
  host_id: redis-01
redis:
  host: 10.0.0.5
  port: 6380
  max_attempts: 5
collect:
  interval: 10s
  tps_mode: probe
  probe_window: 2s
liveness:
  pid_file: /var/run/redis.pid
disk:
  enable: true
  aliases:
    vg--redis-lv--redis: vdd
network:
  enable: false
sinks:
  console:
    enable: false
  kafka:
    enabled: true
    brokers: ["kafka:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "redis-01", cfg.Agent.HostID)
	assert.Equal(t, "10.0.0.5:6380", cfg.Redis.Addr())
	assert.Equal(t, 5, cfg.Redis.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Collect.Interval)
	assert.Equal(t, 8*time.Second, cfg.Collect.Timeout)
	assert.Equal(t, TPSModeProbe, cfg.Collect.TPSMode)
	assert.Equal(t, "vdd", cfg.Disk.Aliases["vg--redis-lv--redis"])
	assert.False(t, cfg.Network.Enable)
	assert.Equal(t, "redis-metrics", cfg.Sinks.Kafka.Topic)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"REDIS_ADDRESS":  "cache.internal",
		"REDIS_PORT":     "7000",
		"REDIS_PASSWORD": "s3cret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "cache.internal:7000", cfg.Redis.Addr())
	assert.Equal(t, "s3cret", cfg.Redis.Password)

	env["REDIS_PORT"] = "seven"
	assert.Error(t, cfg.ApplyEnv(lookup))
}

func TestDefaultRetryFitsFetchTimeout(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300*time.Millisecond, cfg.Redis.RetryPolicy().Budget())
	assert.Less(t, cfg.Redis.RetryPolicy().Budget(), cfg.Collect.Timeout)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no sink", func(c *Config) { c.Sinks.Console.Enable = false }},
		{"timeout above interval", func(c *Config) { c.Collect.Timeout = 2 * c.Collect.Interval }},
		{"unknown tps mode", func(c *Config) { c.Collect.TPSMode = "guess" }},
		{"probe window too long", func(c *Config) {
			c.Collect.TPSMode = TPSModeProbe
			c.Collect.ProbeWindow = c.Collect.Interval
		}},
		{"kafka without brokers", func(c *Config) { c.Sinks.Kafka.Enabled = true }},
		{"bad port", func(c *Config) { c.Redis.Port = 70000 }},
		{"zero attempts", func(c *Config) { c.Redis.MaxAttempts = -1 }},
		{"bad console format", func(c *Config) { c.Sinks.Console.Format = "xml" }},
		{"retry backoff beyond fetch timeout", func(c *Config) {
			c.Redis.RetryDelay = 500 * time.Millisecond
			c.Redis.BackoffFactor = 2
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
