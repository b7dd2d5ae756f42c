package domain

import (
	"fmt"
	"time"

	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"
)

// Coordinator events

type SnapshotUpdatedEvent struct {
	Snapshot *sungrow_modbus.Snapshot
	At       time.Time
}

type RefreshFailedEvent struct {
	Error error
	At    time.Time
}

type AvailabilityChangedEvent struct {
	Available bool
}

// Entity update events

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type SensorAttributesUpdateEvent struct {
	SensorUpdateEventMixIn
	Attributes map[string]any
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type DeviceAvailabilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type InputNumberSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type SelectUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type TextInputUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}
