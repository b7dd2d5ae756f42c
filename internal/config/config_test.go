package config_test

import (
	"testing"

	"github.com/berfenger/sungrow2mqtt/internal/config"
	"github.com/berfenger/sungrow2mqtt/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	cfg := util.LoadTestConfig()
	require.NoError(t, config.Validate(&cfg))
}

func TestValidateLowercasesTopics(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.MQTT.BaseTopic = "Sungrow_Roof"
	require.NoError(t, config.Validate(&cfg))
	assert.Equal(t, "sungrow_roof", cfg.MQTT.BaseTopic)
}

func TestValidateBounds(t *testing.T) {
	cases := map[string]func(*config.Config){
		"bad topic":             func(c *config.Config) { c.MQTT.BaseTopic = "a/b" },
		"bad discovery topic":   func(c *config.Config) { c.MQTT.HADiscoveryTopic = "" },
		"fast poll":             func(c *config.Config) { c.MonitorConfig.PollIntervalMillis = 999 },
		"short refresh timeout": func(c *config.Config) { c.MonitorConfig.RefreshTimeoutMillis = 100 },
		"refresh exceeds poll":  func(c *config.Config) { c.MonitorConfig.RefreshTimeoutMillis = 5000 },
		"short modbus timeout":  func(c *config.Config) { c.InverterModbusTcp.TimeoutMillis = 50 },
		"large register gap":    func(c *config.Config) { c.InverterModbusTcp.MaxRegisterGap = 65 },
		"bad unit id":           func(c *config.Config) { c.InverterModbusTcp.UnitId = 248 },
		"missing host":          func(c *config.Config) { c.InverterModbusTcp.Host = "" },
		"valkey without address": func(c *config.Config) {
			c.ValkeyConfig.Enabled = true
			c.ValkeyConfig.Address = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := util.LoadTestConfig()
			mutate(&cfg)
			assert.Error(t, config.Validate(&cfg))
		})
	}
}

func TestValidateSimulatorNeedsNoHost(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.InverterModbusTcp.Host = ""
	cfg.SimulatorConfig.Enabled = true
	assert.NoError(t, config.Validate(&cfg))
}
