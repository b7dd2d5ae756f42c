package entity

import (
	"context"
	"testing"

	"github.com/berfenger/sungrow2mqtt/internal/core/domain"
	"github.com/berfenger/sungrow2mqtt/internal/core/port"
	"github.com/berfenger/sungrow2mqtt/pkg/sungrow_modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSerial = "A2290412345"

func newTestEntities(t *testing.T, code uint16) (*port.TestCoordinator, *sungrow_modbus.MemoryTransport, domain.DeviceInfo, []*Entity) {
	device, ok := sungrow_modbus.LookupDevice(code)
	require.True(t, ok)
	client, transport, err := sungrow_modbus.NewTestClient(device, sungrow_modbus.OutputThreePhase4L, testSerial)
	require.NoError(t, err)

	ident := sungrow_modbus.Identification{
		Serial:  testSerial,
		Device:  device,
		Variant: sungrow_modbus.OutputThreePhase4L,
	}
	info, err := LoadDeviceInfo(context.Background(), client, ident)
	require.NoError(t, err)

	coordinator := port.NewTestCoordinator(client)
	return coordinator, transport, info, Build(coordinator, info, BridgeDevice("sungrow"))
}

func TestLoadDeviceInfo(t *testing.T) {
	assert := assert.New(t)
	_, _, info, _ := newTestEntities(t, 0x0705)

	assert.Equal("SH10RT", info.Model)
	assert.Equal("three_phase_4l", info.OutputType)
	assert.Equal("ARM_WINALITH_V11_V01_B", info.ArmVersion)
	assert.Equal("DSP_WINALITH_V11_V01_B", info.DspVersion)
	assert.True(info.HasBattery)
	assert.Equal("sungrow_sbr", info.BatteryType)
	assert.Equal("Sungrow", info.BatteryManufacturer)
}

func TestLoadDeviceInfoWithoutBattery(t *testing.T) {
	assert := assert.New(t)
	device, _ := sungrow_modbus.LookupDevice(0x0705)
	client, transport, err := sungrow_modbus.NewTestClient(device, sungrow_modbus.OutputThreePhase4L, testSerial)
	require.NoError(t, err)
	def, _ := client.Variable("battery_type")
	require.NoError(t, transport.Bank.SetValue(def, "no_battery"))

	info, err := LoadDeviceInfo(context.Background(), client, sungrow_modbus.Identification{Serial: testSerial, Device: device})
	require.NoError(t, err)
	assert.False(info.HasBattery)
	assert.Equal("no_battery", info.BatteryType)
}

func TestBuildEntities(t *testing.T) {
	assert := assert.New(t)
	coordinator, _, info, entities := newTestEntities(t, 0x0705)
	idx := NewIndex(entities)

	// one per variable plus the state summary
	assert.Len(entities, len(coordinator.Client().Keys())+1)

	mppt, err := idx.Lookup("mppt_1_voltage")
	require.NoError(t, err)
	assert.Equal("MPPT 1 Voltage", mppt.Name)
	assert.Equal(PlatformSensor, mppt.Platform)
	assert.Equal(domain.DEVICE_CLASS_VOLTAGE, mppt.DeviceClass)
	assert.Equal(domain.STATE_CLASS_MEASUREMENT, mppt.StateClass)

	inverter := InverterDevice(info, BridgeDevice("sungrow"))
	level, err := idx.Lookup("battery_level")
	require.NoError(t, err)
	assert.Equal("Level", level.Name)
	assert.Equal(domain.DEVICE_CLASS_BATTERY, level.DeviceClass)
	assert.Equal(inverter.Id+"_battery", level.Device.Id)
	assert.Equal(inverter.Id, mppt.Device.Id)

	_, err = idx.Lookup("nope")
	assert.ErrorIs(err, ErrUnknownEntity)
}

func TestBuildPlatforms(t *testing.T) {
	assert := assert.New(t)
	_, _, _, entities := newTestEntities(t, 0x0705)
	idx := NewIndex(entities)

	cases := map[string]Platform{
		"power_limitation":         PlatformSwitch,
		"ems_mode":                 PlatformSelect,
		"max_soc":                  PlatformNumber,
		"load_period_1_start":      PlatformText,
		"system_clock":             PlatformSensor,
		"running_state":            PlatformSensor,
		"charge_discharge_command": PlatformSelect,
	}
	for key, platform := range cases {
		e, err := idx.Lookup(key)
		require.NoError(t, err, key)
		assert.Equal(platform, e.Platform, key)
	}

	limit, _ := idx.Lookup("power_limitation_setting")
	assert.Equal(0.0, limit.Min)
	assert.Equal(110.0, limit.Max)
	assert.InDelta(0.1, limit.Step, 1e-9)

	ems, _ := idx.Lookup("ems_mode")
	assert.Equal([]string{"self_consumption", "forced", "external"}, ems.Options)

	start, _ := idx.Lookup("load_period_1_start")
	assert.Equal(timeOfDayPattern, start.Pattern)

	clock, _ := idx.Lookup("system_clock")
	assert.Equal(domain.DEVICE_CLASS_TIMESTAMP, clock.DeviceClass)
	assert.Equal(domain.ENTITY_CLASS_DIAGNOSTIC, clock.EntityCategory)

	platform, ok := idx.PlatformOf("ems_mode")
	assert.True(ok)
	assert.Equal("select", platform)
	_, ok = idx.PlatformOf("mppt_1_voltage")
	assert.False(ok)
}

func TestTotalsWithDailyCounterpartDisabled(t *testing.T) {
	assert := assert.New(t)
	_, _, _, entities := newTestEntities(t, 0x0705)
	idx := NewIndex(entities)

	total, _ := idx.Lookup("total_pv_generation")
	assert.False(total.EnabledByDefault)
	assert.Equal(domain.STATE_CLASS_TOTAL_INCREASING, total.StateClass)

	daily, _ := idx.Lookup("daily_pv_generation")
	assert.True(daily.EnabledByDefault)

	// no daily counterpart
	running, _ := idx.Lookup("total_running_time")
	assert.True(running.EnabledByDefault)
}

func TestStringInverterHasNoBatteryEntities(t *testing.T) {
	assert := assert.New(t)
	_, _, info, entities := newTestEntities(t, 0x243D)

	assert.False(info.HasBattery)
	for _, e := range entities {
		assert.False(e.Battery, e.Key)
		assert.NotEqual(domain.SENSOR_ID_STATE, e.Key)
	}
}

func TestStateSensor(t *testing.T) {
	assert := assert.New(t)
	coordinator, _, _, entities := newTestEntities(t, 0x0705)
	idx := NewIndex(entities)

	state, err := idx.Lookup(domain.SENSOR_ID_STATE)
	require.NoError(t, err)
	assert.Equal("State", state.Name)

	snap, err := coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)

	text, ok := state.State()
	assert.True(ok)
	assert.Equal("running", text)

	attrs := state.Attributes(snap)
	assert.Equal(true, attrs["pv_power"])
	assert.Equal(false, attrs["battery_discharging"])
	assert.Equal("on_grid", attrs["grid_state"])

	mppt, _ := idx.Lookup("mppt_1_voltage")
	assert.Nil(mppt.Attributes(snap))
}

func TestEntityValueKeptWhileUnavailable(t *testing.T) {
	assert := assert.New(t)
	coordinator, transport, _, entities := newTestEntities(t, 0x0705)
	idx := NewIndex(entities)
	level, _ := idx.Lookup("battery_level")

	_, err := coordinator.RequestImmediateRefresh(context.Background())
	require.NoError(t, err)
	assert.True(level.Available())

	transport.ReadHook = func(ctx context.Context, call sungrow_modbus.ReadCall) error {
		return context.DeadlineExceeded
	}
	_, err = coordinator.RequestImmediateRefresh(context.Background())
	assert.Error(err)
	assert.False(level.Available())

	v, ok := level.Value()
	assert.True(ok)
	assert.Equal(76.5, v)
}

func TestEntityCommand(t *testing.T) {
	assert := assert.New(t)
	coordinator, transport, _, entities := newTestEntities(t, 0x0705)
	idx := NewIndex(entities)
	ctx := context.Background()

	ems, _ := idx.Lookup("ems_mode")
	require.NoError(t, ems.Command(ctx, "forced"))
	assert.Len(transport.Writes(), 1)
	assert.Equal(1, coordinator.Triggered())

	err := ems.Command(ctx, "party")
	var validation *sungrow_modbus.ValidationError
	assert.ErrorAs(err, &validation)
	assert.Len(transport.Writes(), 1)

	maxSoc, _ := idx.Lookup("max_soc")
	assert.Error(maxSoc.Command(ctx, "120"))
	assert.Len(transport.Writes(), 1)

	mppt, _ := idx.Lookup("mppt_1_voltage")
	_, err = mppt.Parse("400")
	assert.Error(err)
}

func TestDiscovery(t *testing.T) {
	assert := assert.New(t)
	_, _, _, entities := newTestEntities(t, 0x0705)

	req := Discovery(entities)
	total := len(req.Sensors) + len(req.Switches) + len(req.InputNumbers) + len(req.Selects) + len(req.Texts)
	assert.Equal(len(entities), total)

	// state sensor comes first and carries the full inverter device
	assert.Equal(domain.SENSOR_ID_STATE, req.Sensors[0].Id)
	assert.True(req.Sensors[0].HasAttributes)
	assert.NotEmpty(req.Sensors[0].Device.Manufacturer)
	assert.Empty(req.Sensors[1].Device.Manufacturer)

	full := map[string]int{}
	for _, s := range req.Sensors {
		if s.Device.Manufacturer != "" {
			full[s.Device.Id]++
		}
	}
	for _, n := range full {
		assert.Equal(1, n)
	}

	for _, n := range req.InputNumbers {
		assert.Equal(domain.INPUT_NUMBER_MODE_BOX, n.Mode)
		assert.Equal(domain.ENTITY_CLASS_CONFIG, n.EntityCategory)
	}
}

func TestBridgeSensors(t *testing.T) {
	assert := assert.New(t)
	bridge := BridgeDevice("sungrow")
	sensors := BridgeSensors(bridge)

	assert.Len(sensors, 1)
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)
	assert.Equal(domain.SENSOR_TYPE_BINARY, sensors[0].SensorType)
	assert.Equal(bridge.Id, sensors[0].Device.Id)
	assert.NotEqual(BridgeDevice("other").Id, bridge.Id)
}
