package mqtt

import (
	"fmt"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device              HADiscoveryDevice         `json:"device"`
	StateTopic          string                    `json:"state_topic"`
	CommandTopic        string                    `json:"command_topic,omitempty"`
	JsonAttributesTopic string                    `json:"json_attributes_topic,omitempty"`
	StateClass          string                    `json:"state_class,omitempty"`
	DeviceClass         string                    `json:"device_class,omitempty"`
	UnitOfMeasurement   string                    `json:"unit_of_measurement,omitempty"`
	Availability        []HADiscoveryAvailability `json:"availability,omitempty"`
	AvailabilityMode    string                    `json:"availability_mode,omitempty"`
	EntityCategory      string                    `json:"entity_category,omitempty"`
	Name                string                    `json:"name"`
	UniqueId            string                    `json:"unique_id"`
	Platform            string                    `json:"platform"`
	EnabledByDefault    *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn           string                    `json:"payload_on,omitempty"`
	PayloadOff          string                    `json:"payload_off,omitempty"`
	Icon                string                    `json:"icon,omitempty"`
	Min                 *float64                  `json:"min,omitempty"`
	Max                 *float64                  `json:"max,omitempty"`
	Step                float64                   `json:"step,omitempty"`
	Mode                string                    `json:"mode,omitempty"`
	Options             []string                  `json:"options,omitempty"`
	Pattern             string                    `json:"pattern,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic string `json:"topic"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func HADiscoverySensorTopic(discoveryTopic string, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryTopic, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func HADiscoverySwitchTopic(discoveryTopic string, sensor domain.GenericSwitch) string {
	return fmt.Sprintf("%s/switch/%s/%s/config", discoveryTopic, sensor.Device.Id, sensor.Id)
}

func HADiscoveryInputNumberTopic(discoveryTopic string, sensor domain.GenericInputNumber) string {
	return fmt.Sprintf("%s/number/%s/%s/config", discoveryTopic, sensor.Device.Id, sensor.Id)
}

func HADiscoverySelectTopic(discoveryTopic string, sel domain.GenericSelect) string {
	return fmt.Sprintf("%s/select/%s/%s/config", discoveryTopic, sel.Device.Id, sel.Id)
}

func HADiscoveryTextTopic(discoveryTopic string, text domain.GenericText) string {
	return fmt.Sprintf("%s/text/%s/%s/config", discoveryTopic, text.Device.Id, text.Id)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.SensorType == domain.SENSOR_TYPE_SENSOR:
		topic = client.SensorStateTopic(sensor.Id)
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		topic = client.BinarySensorStateTopic(sensor.Id)
	}
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.HasAttributes {
		disConfig.JsonAttributesTopic = client.SensorAttributesTopic(sensor.Id)
	}
	switch {
	case sensor.Id == domain.SENSOR_ID_BRIDGE_STATE:
		// the bridge state is always available, its payload says whether it is online
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
		setDeviceAvailability(client, &disConfig)
	default:
		setDeviceAvailability(client, &disConfig)
	}
	return disConfig
}

func GenericSwitchToHADiscoveryMessage(client *MQTTClient, _switch domain.GenericSwitch) HADiscoveryConfig {
	dev := device(_switch.Device)
	disConfig := HADiscoveryConfig{
		Device:         dev,
		StateTopic:     client.SwitchStateTopic(_switch.Id),
		CommandTopic:   client.SwitchCommandTopic(_switch.Id),
		EntityCategory: _switch.EntityCategory,
		Name:           _switch.Name,
		UniqueId:       _switch.UniqueId,
		Icon:           _switch.Icon,
		Platform:       "mqtt",
		PayloadOn:      MQTT_PAYLOAD_ON,
		PayloadOff:     MQTT_PAYLOAD_OFF,
	}
	setDeviceAvailability(client, &disConfig)
	return disConfig
}

func GenericInputNumberToHADiscoveryMessage(client *MQTTClient, inputNumber domain.GenericInputNumber) HADiscoveryConfig {
	dev := device(inputNumber.Device)
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        client.InputNumberStateTopic(inputNumber.Id),
		CommandTopic:      client.InputNumberCommandTopic(inputNumber.Id),
		UnitOfMeasurement: inputNumber.UnitOfMeasurement,
		DeviceClass:       inputNumber.DeviceClass,
		EntityCategory:    inputNumber.EntityCategory,
		Name:              inputNumber.Name,
		UniqueId:          inputNumber.UniqueId,
		Icon:              inputNumber.Icon,
		Platform:          "mqtt",
		Min:               &inputNumber.Min,
		Max:               &inputNumber.Max,
		Step:              inputNumber.Step,
		Mode:              inputNumber.Mode,
	}
	setDeviceAvailability(client, &disConfig)
	return disConfig
}

func GenericSelectToHADiscoveryMessage(client *MQTTClient, sel domain.GenericSelect) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:         device(sel.Device),
		StateTopic:     client.SelectStateTopic(sel.Id),
		CommandTopic:   client.SelectCommandTopic(sel.Id),
		EntityCategory: sel.EntityCategory,
		Name:           sel.Name,
		UniqueId:       sel.UniqueId,
		Icon:           sel.Icon,
		Platform:       "mqtt",
		Options:        sel.Options,
	}
	setDeviceAvailability(client, &disConfig)
	return disConfig
}

func GenericTextToHADiscoveryMessage(client *MQTTClient, text domain.GenericText) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:         device(text.Device),
		StateTopic:     client.TextStateTopic(text.Id),
		CommandTopic:   client.TextCommandTopic(text.Id),
		EntityCategory: text.EntityCategory,
		Name:           text.Name,
		UniqueId:       text.UniqueId,
		Icon:           text.Icon,
		Platform:       "mqtt",
		Pattern:        text.Pattern,
	}
	setDeviceAvailability(client, &disConfig)
	return disConfig
}

// setDeviceAvailability makes an inverter entity available only while the bridge is
// online and the inverter answers.
func setDeviceAvailability(client *MQTTClient, cfg *HADiscoveryConfig) {
	cfg.Availability = []HADiscoveryAvailability{
		{Topic: client.BridgeStateTopic()},
		{Topic: client.DeviceAvailabilityTopic()},
	}
	cfg.AvailabilityMode = "all"
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
