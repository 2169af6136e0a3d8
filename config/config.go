// Package config loads the settings of the homie command.
//
// Values come from built-in defaults, then an optional YAML file, then
// environment variables prefixed with HOMIE_ (for example
// HOMIE_MQTT_BROKER or HOMIE_LOGGING_LEVEL). The homie section has no
// section prefix of its own: its base topic is HOMIE_BASE_TOPIC.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "HOMIE_"

// Config is the root configuration structure.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt" envPrefix:"MQTT_"`
	Homie     HomieConfig     `yaml:"homie"`
	Discovery DiscoveryConfig `yaml:"discovery" envPrefix:"DISCOVERY_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

// MQTTConfig contains broker connection settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"BROKER"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	QoS      int    `yaml:"qos" env:"QOS"`

	RetryInterval  time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"`
}

// HomieConfig contains convention settings.
type HomieConfig struct {
	BaseTopic string `yaml:"base_topic" env:"BASE_TOPIC"`
}

// DiscoveryConfig contains topic collection settings.
type DiscoveryConfig struct {
	QuietPeriod time.Duration `yaml:"quiet_period" env:"QUIET_PERIOD"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development" env:"DEVELOPMENT"`
}

// MetricsConfig contains the Prometheus listener. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

// Load reads the configuration. An empty path skips the file and uses
// defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			QoS:            1,
			RetryInterval:  time.Minute,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		Homie: HomieConfig{
			BaseTopic: "homie",
		},
		Discovery: DiscoveryConfig{
			QuietPeriod: time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.RetryInterval <= 0 {
		errs = append(errs, "mqtt.retry_interval must be positive")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.PublishTimeout <= 0 {
		errs = append(errs, "mqtt.publish_timeout must be positive")
	}

	switch {
	case c.Homie.BaseTopic == "":
		errs = append(errs, "homie.base_topic is required")
	case strings.ContainsAny(c.Homie.BaseTopic, "+#"):
		errs = append(errs, "homie.base_topic must not contain wildcards")
	case strings.HasSuffix(c.Homie.BaseTopic, "/"):
		errs = append(errs, "homie.base_topic must not end with /")
	}

	if c.Discovery.QuietPeriod <= 0 {
		errs = append(errs, "discovery.quiet_period must be positive")
	}
	if c.Logging.Level == "" {
		errs = append(errs, "logging.level is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
