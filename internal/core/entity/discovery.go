package entity

import (
	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
)

// Discovery groups the entities into the announcements of each platform. Only the first
// entity of a device carries the full device description.
func Discovery(entities []*Entity) domain.PublishDiscoveryRequest {
	var req domain.PublishDiscoveryRequest
	described := map[string]bool{}
	deviceOf := func(e *Entity) domain.Device {
		if described[e.Device.Id] {
			return domain.IdDevice(e.Device)
		}
		described[e.Device.Id] = true
		return e.Device
	}

	for _, e := range entities {
		dev := deviceOf(e)
		switch e.Platform {
		case PlatformSensor:
			req.Sensors = append(req.Sensors, domain.GenericSensor{
				Device:            dev,
				Id:                e.Key,
				SensorType:        domain.SENSOR_TYPE_SENSOR,
				Name:              e.Name,
				UniqueId:          e.UniqueId,
				UnitOfMeasurement: e.Unit,
				StateClass:        e.StateClass,
				DeviceClass:       e.DeviceClass,
				EntityCategory:    e.EntityCategory,
				EnabledByDefault:  optionalBool(e.EnabledByDefault),
				Icon:              e.Icon,
				HasAttributes:     e.Key == domain.SENSOR_ID_STATE,
			})
		case PlatformSwitch:
			req.Switches = append(req.Switches, domain.GenericSwitch{
				Device:         dev,
				Id:             e.Key,
				Name:           e.Name,
				UniqueId:       e.UniqueId,
				Icon:           e.Icon,
				EntityCategory: domain.ENTITY_CLASS_CONFIG,
			})
		case PlatformNumber:
			req.InputNumbers = append(req.InputNumbers, domain.GenericInputNumber{
				Device:            dev,
				Id:                e.Key,
				Name:              e.Name,
				UniqueId:          e.UniqueId,
				Icon:              e.Icon,
				UnitOfMeasurement: e.Unit,
				DeviceClass:       e.DeviceClass,
				EntityCategory:    domain.ENTITY_CLASS_CONFIG,
				Min:               e.Min,
				Max:               e.Max,
				Step:              e.Step,
				Mode:              domain.INPUT_NUMBER_MODE_BOX,
			})
		case PlatformSelect:
			req.Selects = append(req.Selects, domain.GenericSelect{
				Device:         dev,
				Id:             e.Key,
				Name:           e.Name,
				UniqueId:       e.UniqueId,
				Icon:           e.Icon,
				EntityCategory: domain.ENTITY_CLASS_CONFIG,
				Options:        e.Options,
			})
		case PlatformText:
			req.Texts = append(req.Texts, domain.GenericText{
				Device:         dev,
				Id:             e.Key,
				Name:           e.Name,
				UniqueId:       e.UniqueId,
				Icon:           e.Icon,
				EntityCategory: domain.ENTITY_CLASS_CONFIG,
				Pattern:        e.Pattern,
			})
		}
	}
	return req
}

// BridgeSensors are the entities of the bridge itself.
func BridgeSensors(bridge domain.Device) []domain.GenericSensor {
	return []domain.GenericSensor{
		{
			Device:         bridge,
			Id:             domain.SENSOR_ID_BRIDGE_STATE,
			SensorType:     domain.SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			UniqueId:       uniqueId(bridge.Id, domain.SENSOR_ID_BRIDGE_STATE),
			DeviceClass:    domain.DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: domain.ENTITY_CLASS_DIAGNOSTIC,
		},
	}
}
