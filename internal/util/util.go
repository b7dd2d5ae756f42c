package util

import (
	"github.com/berfenger/sungrow2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		InverterModbusTcp: config.InverterModbusTCPConfig{
			Host:           "-.-.-.-",
			Port:           502,
			UnitId:         1,
			TimeoutMillis:  1000,
			MaxRegisterGap: 10,
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "sungrow",
			HADiscoveryTopic: "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis:   5000,
			RefreshTimeoutMillis: 2000,
		},
		ValkeyConfig: config.ValkeyConfig{
			Address:   "localhost:6379",
			KeyPrefix: "sungrow",
		},
		Port: 8080,
	}
}
