package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/essence/internal/remote"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/essence", cfg.StateDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Fallback.Enabled)
	assert.Equal(t, uint16(62), cfg.Fallback.InputHandle)
	assert.Equal(t, uint16(63), cfg.Fallback.CCCHandle)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "localhost", cfg.MQTT.Broker)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "essence", cfg.MQTT.TopicPrefix)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
address: CC:7F:5B:12:34:56
state_dir: /tmp/essence-test
log_level: debug
connect_timeout: 45s
timing:
  multi_press_gap: 300ms
  long_press: 2s
mqtt:
  enabled: true
  broker: broker.local
  port: 8883
  username: essence
  password: hunter2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "CC:7F:5B:12:34:56", cfg.Address)
	assert.Equal(t, "/tmp/essence-test", cfg.StateDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.ConnectTimeout.Std())
	assert.Equal(t, 300*time.Millisecond, cfg.Timing.MultiPressGap.Std())
	assert.Equal(t, 2*time.Second, cfg.Timing.LongPress.Std())
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "broker.local", cfg.MQTT.Broker)
	assert.Equal(t, 8883, cfg.MQTT.Port)

	// Unset sections keep their defaults.
	assert.True(t, cfg.Fallback.Enabled)
	assert.Equal(t, "essence", cfg.MQTT.TopicPrefix)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "timing:\n  long_press: forever\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid duration")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "invalid log_level",
		},
		{
			name: "mqtt enabled without broker",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker = ""
			},
			wantErr: "mqtt.broker is required",
		},
		{
			name: "fallback with zero handle",
			mutate: func(c *Config) {
				c.Fallback.InputHandle = 0
			},
			wantErr: "fallback handles",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestSessionConfigDefaultsTimings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, remote.DefaultMultiPressGap, sc.MultiPressGap)
	assert.Equal(t, remote.DefaultLongPress, sc.LongPress)
	assert.Equal(t, remote.DefaultCCCMinInterval, sc.CCCMinInterval)
	require.NotNil(t, sc.StaticFallback)
	assert.Equal(t, remote.NotifyPair{Input: 62, CCC: 63}, *sc.StaticFallback)
}

func TestSessionConfigHonorsOverrides(t *testing.T) {
	path := writeConfig(t, `
timing:
  multi_press_gap: 250ms
  long_press: 1s
fallback:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	sc := cfg.SessionConfig()
	assert.Equal(t, 250*time.Millisecond, sc.MultiPressGap)
	assert.Equal(t, time.Second, sc.LongPress)
	assert.Nil(t, sc.StaticFallback, "disabled fallback MUST NOT reach the session")
}
