// Package config loads the daemon configuration: YAML file with struct-tag
// defaults, durations accepted in Go syntax ("400ms", "5s").
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/srg/essence/internal/remote"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry human-readable values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// TimingConfig holds the gesture and subscription timing knobs. Zero values
// fall back to the device-calibrated defaults.
type TimingConfig struct {
	MultiPressGap  Duration `yaml:"multi_press_gap"`
	LongPress      Duration `yaml:"long_press"`
	CCCMinInterval Duration `yaml:"ccc_min_interval"`
	RetryFast      Duration `yaml:"retry_fast"`
	RetrySettle    Duration `yaml:"retry_settle"`
	RetryFinal     Duration `yaml:"retry_final"`
}

// FallbackConfig is the static, known-working handle pair used when both the
// cache and discovery come up empty. Handles 62/63 are the measured values of
// the original remote.
type FallbackConfig struct {
	Enabled     bool   `yaml:"enabled" default:"true"`
	InputHandle uint16 `yaml:"input_handle" default:"62"`
	CCCHandle   uint16 `yaml:"ccc_handle" default:"63"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker" default:"localhost"`
	Port        int    `yaml:"port" default:"1883"`
	TopicPrefix string `yaml:"topic_prefix" default:"essence"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type Config struct {
	// Address is the remote's BLE address.
	Address string `yaml:"address"`

	StateDir string `yaml:"state_dir" default:"/var/lib/essence"`
	LogLevel string `yaml:"log_level" default:"info"`

	ConnectTimeout Duration `yaml:"connect_timeout"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`

	Timing   TimingConfig   `yaml:"timing"`
	Fallback FallbackConfig `yaml:"fallback"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// Load reads the config from path (optional; empty path keeps defaults).
func Load(path string) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid log_level %q (must be debug, info, warn, or error)", c.LogLevel)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.Fallback.Enabled && (c.Fallback.InputHandle == 0 || c.Fallback.CCCHandle == 0) {
		return fmt.Errorf("fallback handles must be nonzero when fallback is enabled")
	}
	return nil
}

// SessionConfig maps the config onto the core's session settings.
func (c *Config) SessionConfig() remote.SessionConfig {
	sc := remote.SessionConfig{
		MultiPressGap:  c.Timing.MultiPressGap.Std(),
		LongPress:      c.Timing.LongPress.Std(),
		CCCMinInterval: c.Timing.CCCMinInterval.Std(),
		RetryFast:      c.Timing.RetryFast.Std(),
		RetrySettle:    c.Timing.RetrySettle.Std(),
		RetryFinal:     c.Timing.RetryFinal.Std(),
	}
	if sc.MultiPressGap <= 0 {
		sc.MultiPressGap = remote.DefaultMultiPressGap
	}
	if sc.LongPress <= 0 {
		sc.LongPress = remote.DefaultLongPress
	}
	if sc.CCCMinInterval <= 0 {
		sc.CCCMinInterval = remote.DefaultCCCMinInterval
	}
	if c.Fallback.Enabled {
		sc.StaticFallback = &remote.NotifyPair{
			Input: c.Fallback.InputHandle,
			CCC:   c.Fallback.CCCHandle,
		}
	}
	return sc
}
