package entity

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const manufacturer = "Sungrow"

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("sungrow2mqtt_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "sungrow2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Sungrow2MQTT %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(info domain.DeviceInfo, bridge domain.Device) domain.Device {
	version := info.ArmVersion
	if info.DspVersion != "" {
		version = fmt.Sprintf("%s / %s", info.ArmVersion, info.DspVersion)
	}
	return domain.Device{
		Id:           fmt.Sprintf("sungrow_inverter_%s", md5HashShort(info.Serial)),
		Version:      version,
		Manufacturer: manufacturer,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", manufacturer, info.Model, md5HashShort(info.Serial)),
		ViaDevice:    bridge.Id,
	}
}

func BatteryDevice(info domain.DeviceInfo, inverter domain.Device) domain.Device {
	maker := info.BatteryManufacturer
	if maker == "" {
		maker = manufacturer
	}
	return domain.Device{
		Id:           inverter.Id + "_battery",
		Manufacturer: maker,
		Model:        info.BatteryType,
		Name:         fmt.Sprintf("%s Battery", inverter.Name),
		ViaDevice:    inverter.Id,
	}
}

// LoadDeviceInfo refreshes the firmware versions and the battery type, which are only
// read once, and combines them with the identification.
func LoadDeviceInfo(ctx context.Context, client port.VariableClient, ident sungrow_modbus.Identification) (domain.DeviceInfo, error) {
	info := domain.DeviceInfo{
		Serial:          ident.Serial,
		Model:           ident.Device.Name,
		DeviceCode:      ident.Device.Code,
		OutputType:      ident.Variant.String(),
		NominalWatt:     ident.Device.NominalWatt,
		ArmVersion:      ident.ArmVersion,
		DspVersion:      ident.DspVersion,
		ProtocolVersion: ident.ProtocolVersion,
		HasBattery:      ident.Device.HasBattery(),
	}

	var names []string
	for _, name := range []string{"arm_software_version", "dsp_software_version", "battery_type"} {
		if _, ok := client.Variable(name); ok {
			names = append(names, name)
		}
	}
	snap, err := client.Refresh(ctx, names...)
	if err != nil {
		return info, err
	}
	if v, ok := snap.Get("arm_software_version"); ok {
		info.ArmVersion = v.(string)
	}
	if v, ok := snap.Get("dsp_software_version"); ok {
		info.DspVersion = v.(string)
	}
	if v, ok := snap.Get("battery_type"); ok {
		option := v.(sungrow_modbus.EnumOption)
		info.BatteryType = option.Name
		info.BatteryManufacturer = sungrow_modbus.BatteryManufacturer(option)
		if option.Code == 0 {
			info.HasBattery = false
		}
	}
	return info, nil
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
