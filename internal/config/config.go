package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel          zapcore.Level
	InverterModbusTcp InverterModbusTCPConfig `mapstructure:"inverter_modbus_tcp"`
	MQTT              MQTTConfig              `mapstructure:"mqtt"`

	MonitorConfig   MonitorConfig   `mapstructure:"monitor"`
	ValkeyConfig    ValkeyConfig    `mapstructure:"valkey"`
	SimulatorConfig SimulatorConfig `mapstructure:"simulator"`
	Port            uint            `mapstructure:"port"`
	HttpLog         bool            `mapstructure:"http_log"`
}

type InverterModbusTCPConfig struct {
	Host           string
	Port           uint
	UnitId         uint   `mapstructure:"unit_id"`
	Device         string `mapstructure:"device"`
	TimeoutMillis  uint32 `mapstructure:"timeout_millis"`
	MaxRegisterGap uint   `mapstructure:"max_register_gap"`
}

func (c InverterModbusTCPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

type MonitorConfig struct {
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`
	RefreshTimeoutMillis uint32 `mapstructure:"refresh_timeout_millis"`
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c MonitorConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutMillis) * time.Millisecond
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SimulatorConfig runs an in-process Modbus-TCP server in place of a real inverter.
type SimulatorConfig struct {
	Enabled    bool
	Port       uint
	DeviceCode uint16 `mapstructure:"device_code"`
	OutputType uint16 `mapstructure:"output_type"`
	Serial     string
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and normalizes topics in place.
func Validate(cfg *Config) error {
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.MonitorConfig.RefreshTimeoutMillis < 500 {
		return errors.New("config param monitor.refresh_timeout_millis should be >= 500")
	}
	if cfg.MonitorConfig.RefreshTimeoutMillis >= cfg.MonitorConfig.PollIntervalMillis {
		return errors.New("config param monitor.refresh_timeout_millis must be < monitor.poll_interval_millis")
	}
	if cfg.InverterModbusTcp.TimeoutMillis < 100 {
		return errors.New("config param inverter_modbus_tcp.timeout_millis should be >= 100")
	}
	if cfg.InverterModbusTcp.MaxRegisterGap > 64 {
		return errors.New("config param inverter_modbus_tcp.max_register_gap should be <= 64")
	}
	if cfg.InverterModbusTcp.UnitId > 247 {
		return errors.New("config param inverter_modbus_tcp.unit_id should be <= 247")
	}
	if !cfg.SimulatorConfig.Enabled && cfg.InverterModbusTcp.Host == "" {
		return errors.New("config param inverter_modbus_tcp.host is required")
	}
	if cfg.ValkeyConfig.Enabled && cfg.ValkeyConfig.Address == "" {
		return errors.New("config param valkey.address is required when valkey is enabled")
	}
	return nil
}
