package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "homie.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: "tcp://broker:1883"
  client_id: "bridge-1"
  qos: 2
  retry_interval: 30s
homie:
  base_topic: "devices"
discovery:
  quiet_period: 500ms
logging:
  level: debug
metrics:
  listen: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "bridge-1", cfg.MQTT.ClientID)
	assert.Equal(t, 2, cfg.MQTT.QoS)
	assert.Equal(t, 30*time.Second, cfg.MQTT.RetryInterval)
	assert.Equal(t, 10*time.Second, cfg.MQTT.ConnectTimeout, "default kept")
	assert.Equal(t, "devices", cfg.Homie.BaseTopic)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.QuietPeriod)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/homie.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOMIE_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("HOMIE_MQTT_PASSWORD", "secret")
	t.Setenv("HOMIE_BASE_TOPIC", "env-base")
	t.Setenv("HOMIE_DISCOVERY_QUIET_PERIOD", "2s")
	t.Setenv("HOMIE_LOGGING_DEVELOPMENT", "true")

	cfg, err := Load(writeConfig(t, `
mqtt:
  broker: "tcp://file:1883"
homie:
  base_topic: "file-base"
`))
	require.NoError(t, err)

	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.Equal(t, "env-base", cfg.Homie.BaseTopic)
	assert.Equal(t, 2*time.Second, cfg.Discovery.QuietPeriod)
	assert.True(t, cfg.Logging.Development)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
mqtt:
  qos: 3
`))
	assert.ErrorContains(t, err, "mqtt.qos")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no broker", mutate: func(c *Config) { c.MQTT.Broker = "" }, wantErr: "mqtt.broker"},
		{name: "negative qos", mutate: func(c *Config) { c.MQTT.QoS = -1 }, wantErr: "mqtt.qos"},
		{name: "zero retry", mutate: func(c *Config) { c.MQTT.RetryInterval = 0 }, wantErr: "mqtt.retry_interval"},
		{name: "wildcard base", mutate: func(c *Config) { c.Homie.BaseTopic = "homie/#" }, wantErr: "wildcards"},
		{name: "trailing slash", mutate: func(c *Config) { c.Homie.BaseTopic = "homie/" }, wantErr: "must not end"},
		{name: "empty base", mutate: func(c *Config) { c.Homie.BaseTopic = "" }, wantErr: "homie.base_topic"},
		{name: "zero quiet", mutate: func(c *Config) { c.Discovery.QuietPeriod = 0 }, wantErr: "discovery.quiet_period"},
		{name: "no level", mutate: func(c *Config) { c.Logging.Level = "" }, wantErr: "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
