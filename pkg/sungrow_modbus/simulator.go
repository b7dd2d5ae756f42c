package sungrow_modbus

import (
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// Simulator serves a RegisterBank over Modbus-TCP, standing in for an inverter.
type Simulator struct {
	bank   *RegisterBank
	server *modbus.ModbusServer
	logger *zap.Logger
}

func NewSimulator(url string, bank *RegisterBank, logger *zap.Logger) (*Simulator, error) {
	s := &Simulator{
		bank:   bank,
		logger: logger.With(zap.String("simulator", url)),
	}
	server, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    30 * time.Second,
		MaxClients: 5,
	}, s)
	if err != nil {
		return nil, err
	}
	s.server = server
	return s, nil
}

func (s *Simulator) Start() error {
	return s.server.Start()
}

func (s *Simulator) Stop() error {
	return s.server.Stop()
}

func (s *Simulator) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *Simulator) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (s *Simulator) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if uint32(req.Addr)+uint32(req.Quantity) > 0x10000 {
		return nil, modbus.ErrIllegalDataAddress
	}
	if req.IsWrite {
		s.logger.Debug("write", zap.Uint16("addr", req.Addr), zap.Uint16s("values", req.Args))
		s.bank.Set(HoldingRegister, req.Addr, req.Args...)
		return req.Args, nil
	}
	return s.bank.Get(HoldingRegister, req.Addr, req.Quantity), nil
}

func (s *Simulator) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	if uint32(req.Addr)+uint32(req.Quantity) > 0x10000 {
		return nil, modbus.ErrIllegalDataAddress
	}
	return s.bank.Get(InputRegister, req.Addr, req.Quantity), nil
}

// SeedDevice writes the identification block and a plausible set of measurements
// and settings for device into bank.
func SeedDevice(bank *RegisterBank, device *DeviceDefinition, variant OutputType, serial string) error {
	registry := device.Registry(variant)
	values := sampleValues(device, serial)
	for _, def := range registry.Definitions() {
		value, ok := values[def.Name]
		if !ok {
			continue
		}
		if err := bank.SetValue(def, value); err != nil {
			return fmt.Errorf("seeding %s: %w", def.Name, err)
		}
	}
	// both voltage variants share registers; only the identification block carries the variant
	bank.Set(InputRegister, identStart+identOutputType, uint16(variant))
	return nil
}

func sampleValues(device *DeviceDefinition, serial string) map[string]any {
	return map[string]any{
		"protocol_number":                     int64(0x00010502),
		"protocol_version":                    int64(0x00000301),
		"arm_software_version":                "ARM_WINALITH_V11_V01_B",
		"dsp_software_version":                "DSP_WINALITH_V11_V01_B",
		"serial_number":                       serial,
		"device_type":                         EnumOption{Code: device.Code, Name: device.Name},
		"nominal_output_power":                device.NominalWatt / 1000,
		"daily_output_energy":                 12.3,
		"total_output_energy":                 4567.8,
		"total_running_time":                  int64(3120),
		"internal_temperature":                38.5,
		"mppt_1_voltage":                      412.3,
		"mppt_1_current":                      6.4,
		"mppt_2_voltage":                      398.1,
		"mppt_2_current":                      5.9,
		"total_dc_power":                      int64(4987),
		"phase_a_voltage":                     231.2,
		"phase_b_voltage":                     229.8,
		"phase_c_voltage":                     232.4,
		"line_ab_voltage":                     399.6,
		"line_bc_voltage":                     401.2,
		"line_ca_voltage":                     400.3,
		"reactive_power":                      int64(-120),
		"power_factor":                        0.998,
		"grid_frequency":                      50.0,
		"grid_frequency_fine":                 50.01,
		"system_clock":                        time.Date(2024, time.June, 21, 12, 30, 0, 0, time.UTC),
		"start_stop":                          "start",
		"power_limitation":                    false,
		"power_limitation_setting":            100.0,
		"power_limitation_adjustment":         100.0,
		"export_power_limitation":             int64(device.NominalWatt),
		"export_power_limitation_enabled":     false,
		"system_state":                        "running",
		"running_state":                       Flags{"pv_power": true, "battery_charging": true, "feed_in_power": true},
		"daily_pv_generation":                 18.4,
		"total_pv_generation":                 6210.5,
		"daily_export_from_pv":                6.2,
		"total_export_from_pv":                2301.7,
		"load_power":                          int64(812),
		"export_power":                        int64(2140),
		"daily_battery_charge_from_pv":        4.1,
		"total_battery_charge_from_pv":        1530.2,
		"co2_reduction":                       3105.2,
		"daily_direct_energy_consumption":     5.3,
		"total_direct_energy_consumption":     1802.9,
		"battery_voltage":                     321.4,
		"battery_current":                     6.2,
		"battery_power":                       int64(1990),
		"battery_level":                       76.5,
		"battery_health":                      99.0,
		"battery_temperature":                 24.5,
		"daily_battery_discharge_energy":      2.8,
		"total_battery_discharge_energy":      1420.6,
		"daily_self_consumption":              67.2,
		"grid_state":                          "on_grid",
		"phase_a_current":                     3.1,
		"phase_b_current":                     3.0,
		"phase_c_current":                     3.2,
		"total_active_power":                  int64(4300),
		"daily_import_energy":                 1.7,
		"total_import_energy":                 980.4,
		"battery_capacity":                    9.6,
		"daily_charge_energy":                 4.6,
		"total_charge_energy":                 1610.3,
		"drm_state":                           int64(0),
		"daily_export_energy":                 6.2,
		"total_export_energy":                 2301.7,
		"load_adjustment_mode":                "disabled",
		"load_period_1_start":                 TimeOfDay{Hour: 8, Minute: 0},
		"load_period_1_end":                   TimeOfDay{Hour: 12, Minute: 0},
		"load_period_2_start":                 TimeOfDay{Hour: 14, Minute: 30},
		"load_period_2_end":                   TimeOfDay{Hour: 18, Minute: 0},
		"load_on_off_mode":                    "off",
		"load_optimized_start":                TimeOfDay{Hour: 10, Minute: 0},
		"load_optimized_end":                  TimeOfDay{Hour: 16, Minute: 0},
		"load_optimized_power":                int64(1500),
		"ems_mode":                            "self_consumption",
		"charge_discharge_command":            "stop",
		"charge_discharge":                    int64(0),
		"battery_type":                        "sungrow_sbr",
		"battery_nominal_voltage":             320.0,
		"max_soc":                             100.0,
		"min_soc":                             10.0,
		"off_grid_enabled":                    false,
		"battery_maintenance":                 false,
		"reserved_soc_for_backup":             int64(10),
		"battery_over_voltage_threshold":      420.0,
		"battery_under_voltage_threshold":     260.0,
		"battery_over_temperature_threshold":  50.0,
		"battery_under_temperature_threshold": -10.0,
	}
}
