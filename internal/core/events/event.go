package events

import (
	. "github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/entity"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"
)

// SnapshotToUpdateEvents translates a snapshot into the state update of every entity
// with a value in it. Entities without a value are skipped.
func SnapshotToUpdateEvents(entities []*entity.Entity, snap *sungrow_modbus.Snapshot) []any {
	var events []any
	for _, e := range entities {
		value, ok := e.ValueIn(snap)
		if !ok {
			continue
		}
		events = append(events, entityUpdateEvent(e, value))
		if attrs := e.Attributes(snap); len(attrs) > 0 {
			events = append(events, SensorAttributesUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: e.Key},
				Attributes:             attrs,
			})
		}
	}
	return events
}

func entityUpdateEvent(e *entity.Entity, value any) any {
	mixIn := SensorUpdateEventMixIn{Id: e.Key}
	def := e.Variable()
	switch e.Platform {
	case entity.PlatformSwitch:
		on, _ := value.(bool)
		return SwitchSensorUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: on}
	case entity.PlatformNumber:
		f, decimals := numeric(def, value)
		return InputNumberSensorUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: f, Decimals: decimals}
	case entity.PlatformSelect:
		return SelectUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: def.Format(value)}
	case entity.PlatformText:
		return TextInputUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: def.Format(value)}
	}
	switch value.(type) {
	case float64, int64:
		f, decimals := numeric(def, value)
		return FloatSensorUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: f, Decimals: decimals}
	}
	return TextSensorUpdateEvent{SensorUpdateEventMixIn: mixIn, Value: def.Format(value)}
}

func numeric(def *sungrow_modbus.VariableDefinition, value any) (float64, uint) {
	switch v := value.(type) {
	case float64:
		return v, uint(def.Decimals())
	case int64:
		return float64(v), 0
	}
	return 0, 0
}

func BridgeStateUpdateEvents(online bool) any {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}
