package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"
)

// Entity presents one variable of the polled device. It holds no state of its own:
// values come from the coordinator's client and availability from the coordinator.
type Entity struct {
	Description
	Device   domain.Device
	UniqueId string

	variable    *sungrow_modbus.VariableDefinition
	coordinator port.Coordinator
}

// Build creates the entities of every variable the client exposes, plus the state summary
// sensor when the device reports a system state.
func Build(coordinator port.Coordinator, info domain.DeviceInfo, bridge domain.Device) []*Entity {
	client := coordinator.Client()
	keys := client.Keys()
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	hasKey := func(k string) bool { return present[k] }

	inverter := InverterDevice(info, bridge)
	battery := BatteryDevice(info, inverter)

	entities := make([]*Entity, 0, len(keys)+1)
	if def, ok := client.Variable("system_state"); ok {
		entities = append(entities, newEntity(StateDescription(), def, inverter, coordinator))
	}
	for _, key := range keys {
		def, _ := client.Variable(key)
		desc := Describe(def, info.HasBattery, hasKey)
		dev := inverter
		if desc.Battery {
			dev = battery
		}
		entities = append(entities, newEntity(desc, def, dev, coordinator))
	}
	return entities
}

func newEntity(desc Description, def *sungrow_modbus.VariableDefinition, dev domain.Device, coordinator port.Coordinator) *Entity {
	return &Entity{
		Description: desc,
		Device:      dev,
		UniqueId:    uniqueId(dev.Id, desc.Key),
		variable:    def,
		coordinator: coordinator,
	}
}

func (e *Entity) Variable() *sungrow_modbus.VariableDefinition {
	return e.variable
}

func (e *Entity) Available() bool {
	return e.coordinator.IsAvailable()
}

// Value is the last known value, kept while the device is unavailable.
func (e *Entity) Value() (any, bool) {
	return e.coordinator.Client().Get(e.variable.Name)
}

func (e *Entity) ValueIn(snap *sungrow_modbus.Snapshot) (any, bool) {
	return snap.Get(e.variable.Name)
}

// State is the text form of the last known value.
func (e *Entity) State() (string, bool) {
	v, ok := e.Value()
	if !ok {
		return "", false
	}
	return e.variable.Format(v), true
}

// Attributes of the state sensor: running state flags and grid state.
func (e *Entity) Attributes(snap *sungrow_modbus.Snapshot) map[string]any {
	if e.Key != domain.SENSOR_ID_STATE {
		return nil
	}
	attrs := map[string]any{}
	if v, ok := snap.Get("running_state"); ok {
		if flags, ok := v.(sungrow_modbus.Flags); ok {
			for name, set := range flags {
				attrs[name] = set
			}
		}
	}
	if v, ok := snap.Get("grid_state"); ok {
		attrs["grid_state"] = fmt.Sprint(v)
	}
	return attrs
}

func (e *Entity) Commandable() bool {
	return e.Platform != PlatformSensor
}

// Parse validates a command payload into a value for the variable.
func (e *Entity) Parse(payload string) (any, error) {
	if !e.Commandable() {
		return nil, fmt.Errorf("entity %s is read-only", e.Key)
	}
	return e.variable.Parse(payload)
}

// Command writes payload to the device and requests a refresh so the new value shows up.
func (e *Entity) Command(ctx context.Context, payload string) error {
	value, err := e.Parse(payload)
	if err != nil {
		return err
	}
	if err := e.coordinator.Client().Set(ctx, e.variable.Name, value); err != nil {
		return err
	}
	e.coordinator.TriggerRefresh()
	return nil
}

var ErrUnknownEntity = errors.New("unknown entity")

// Index maps entity keys to entities.
type Index map[string]*Entity

func NewIndex(entities []*Entity) Index {
	idx := make(Index, len(entities))
	for _, e := range entities {
		idx[e.Key] = e
	}
	return idx
}

func (idx Index) Lookup(key string) (*Entity, error) {
	e, ok := idx[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, key)
	}
	return e, nil
}

// PlatformOf reports the platform of a commandable entity.
func (idx Index) PlatformOf(key string) (string, bool) {
	e, ok := idx[key]
	if !ok || !e.Commandable() {
		return "", false
	}
	return string(e.Platform), true
}
