package entity

import (
	"math"
	"strings"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"
)

type Platform string

const (
	PlatformSensor Platform = "sensor"
	PlatformSwitch Platform = "switch"
	PlatformNumber Platform = "number"
	PlatformSelect Platform = "select"
	PlatformText   Platform = "text"
)

// Description is the presentation of one variable as a home automation entity.
type Description struct {
	Key              string
	Platform         Platform
	Name             string
	Icon             string
	Unit             string
	DeviceClass      string
	StateClass       string
	EntityCategory   string
	EnabledByDefault bool
	Battery          bool
	Min              float64
	Max              float64
	Step             float64
	Options          []string
	Pattern          string
}

var unitDeviceClass = map[string]string{
	"A":   domain.DEVICE_CLASS_CURRENT,
	"h":   domain.DEVICE_CLASS_DURATION,
	"min": domain.DEVICE_CLASS_DURATION,
	"s":   domain.DEVICE_CLASS_DURATION,
	"Wh":  domain.DEVICE_CLASS_ENERGY,
	"kWh": domain.DEVICE_CLASS_ENERGY,
	"Hz":  domain.DEVICE_CLASS_FREQUENCY,
	"W":   domain.DEVICE_CLASS_POWER,
	"kW":  domain.DEVICE_CLASS_POWER,
	"var": domain.DEVICE_CLASS_REACTIVE_POWER,
	"°C":  domain.DEVICE_CLASS_TEMPERATURE,
	"V":   domain.DEVICE_CLASS_VOLTAGE,
	"kg":  domain.DEVICE_CLASS_WEIGHT,
}

// variables whose class does not follow from their unit
var keyDeviceClass = map[string]string{
	"battery_level": domain.DEVICE_CLASS_BATTERY,
	"power_factor":  domain.DEVICE_CLASS_POWER_FACTOR,
}

var acronyms = map[string]string{
	"dc":   "DC",
	"arm":  "ARM",
	"dsp":  "DSP",
	"mppt": "MPPT",
	"drm":  "DRM",
	"pv":   "PV",
	"soc":  "SoC",
	"ems":  "EMS",
	"co2":  "CO2",
}

var diagnosticKeys = map[string]bool{
	"protocol_number":      true,
	"protocol_version":     true,
	"arm_software_version": true,
	"dsp_software_version": true,
	"serial_number":        true,
	"device_type":          true,
	"nominal_output_power": true,
	"output_type":          true,
	"drm_state":            true,
	"system_clock":         true,
	"total_running_time":   true,
}

// batteryKeys belong to the battery device even without the battery_ prefix.
var batteryKeys = map[string]bool{
	"max_soc":                      true,
	"min_soc":                      true,
	"reserved_soc_for_backup":      true,
	"daily_battery_charge_from_pv": true,
	"total_battery_charge_from_pv": true,
	"daily_charge_energy":          true,
	"total_charge_energy":          true,
	"charge_discharge_command":     true,
	"charge_discharge":             true,
}

var icons = map[string]string{
	"system_state":             "mdi:state-machine",
	"ems_mode":                 "mdi:home-lightning-bolt",
	"charge_discharge_command": "mdi:battery-sync",
	"start_stop":               "mdi:power",
	"load_adjustment_mode":     "mdi:tune-variant",
	"running_state":            "mdi:information-outline",
	"grid_state":               "mdi:transmission-tower",
	"co2_reduction":            "mdi:molecule-co2",
}

const timeOfDayPattern = "^([01][0-9]|2[0-3]):[0-5][0-9]$"

// Describe derives the entity description of a variable. hasKey tells which other
// variables the device exposes. Only hybrid inverters have a battery device.
func Describe(def *sungrow_modbus.VariableDefinition, hasBattery bool, hasKey func(string) bool) Description {
	battery := hasBattery && isBatteryKey(def.Name)
	d := Description{
		Key:              def.Name,
		Platform:         platformOf(def),
		Name:             displayName(def.Name, battery),
		Icon:             icons[def.Name],
		Unit:             def.Unit,
		EnabledByDefault: true,
		Battery:          battery,
	}
	if diagnosticKeys[def.Name] {
		d.EntityCategory = domain.ENTITY_CLASS_DIAGNOSTIC
	}

	switch d.Platform {
	case PlatformSensor:
		d.DeviceClass = deviceClassOf(def)
		d.StateClass = stateClassOf(def)
		if rest, ok := strings.CutPrefix(def.Name, "total_"); ok && hasKey("daily_"+rest) {
			d.EnabledByDefault = false
		}
	case PlatformNumber:
		d.DeviceClass = deviceClassOf(def)
		if def.Limits != nil {
			d.Min = def.Limits.Min
			d.Max = def.Limits.Max
		}
		d.Step = math.Pow10(-def.Decimals())
	case PlatformSelect:
		d.Options = def.OptionNames()
	case PlatformText:
		if def.Kind == sungrow_modbus.KindTimeOfDay {
			d.Pattern = timeOfDayPattern
		}
	}
	return d
}

// StateDescription is the summary sensor over system_state.
func StateDescription() Description {
	return Description{
		Key:              domain.SENSOR_ID_STATE,
		Platform:         PlatformSensor,
		Name:             "State",
		Icon:             icons["system_state"],
		EnabledByDefault: true,
	}
}

func platformOf(def *sungrow_modbus.VariableDefinition) Platform {
	if !def.Writable {
		return PlatformSensor
	}
	switch def.Kind {
	case sungrow_modbus.KindBool:
		return PlatformSwitch
	case sungrow_modbus.KindEnum:
		return PlatformSelect
	case sungrow_modbus.KindNumber, sungrow_modbus.KindInteger:
		return PlatformNumber
	case sungrow_modbus.KindText, sungrow_modbus.KindTimeOfDay:
		return PlatformText
	}
	return PlatformSensor
}

func deviceClassOf(def *sungrow_modbus.VariableDefinition) string {
	if class, ok := keyDeviceClass[def.Name]; ok {
		return class
	}
	if def.Kind == sungrow_modbus.KindDateTime {
		return domain.DEVICE_CLASS_TIMESTAMP
	}
	return unitDeviceClass[def.Unit]
}

func stateClassOf(def *sungrow_modbus.VariableDefinition) string {
	if def.Kind != sungrow_modbus.KindNumber && def.Kind != sungrow_modbus.KindInteger {
		return ""
	}
	if def.Unit == "kWh" {
		for _, prefix := range []string{"total_", "daily_", "monthly_"} {
			if strings.HasPrefix(def.Name, prefix) {
				return domain.STATE_CLASS_TOTAL_INCREASING
			}
		}
	}
	if def.Unit != "" || keyDeviceClass[def.Name] != "" {
		return domain.STATE_CLASS_MEASUREMENT
	}
	return ""
}

func isBatteryKey(key string) bool {
	return strings.HasPrefix(key, "battery_") || batteryKeys[key]
}

// displayName turns a variable key into a title. Variables of the battery device
// drop their battery_ prefix since the device name already says it.
func displayName(key string, battery bool) string {
	if battery {
		key = strings.TrimPrefix(key, "battery_")
	}
	words := strings.Split(key, "_")
	for i, w := range words {
		if a, ok := acronyms[w]; ok {
			words[i] = a
			continue
		}
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
