package domain

import "time"

// DeviceInfo describes the identified inverter and its battery, if any.
type DeviceInfo struct {
	Serial              string  `json:"serial"`
	Model               string  `json:"model"`
	DeviceCode          uint16  `json:"device_code"`
	OutputType          string  `json:"output_type"`
	NominalWatt         float64 `json:"nominal_watt"`
	ArmVersion          string  `json:"arm_version"`
	DspVersion          string  `json:"dsp_version"`
	ProtocolVersion     uint32  `json:"protocol_version"`
	HasBattery          bool    `json:"has_battery"`
	BatteryType         string  `json:"battery_type,omitempty"`
	BatteryManufacturer string  `json:"battery_manufacturer,omitempty"`
}

// CoordinatorStatus is the availability state kept by the poller.
type CoordinatorStatus struct {
	Available   bool      `json:"available"`
	Polling     bool      `json:"polling"`
	LastSuccess time.Time `json:"last_success"`
	LastFailure time.Time `json:"last_failure"`
	LastError   string    `json:"last_error,omitempty"`
	Polls       uint64    `json:"polls"`
	Failures    uint64    `json:"failures"`
}
