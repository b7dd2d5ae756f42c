package sungrow_modbus

var systemStateOptions = []EnumOption{
	{Code: 0x0002, Name: "stop"},
	{Code: 0x0008, Name: "standby"},
	{Code: 0x0010, Name: "initial_standby"},
	{Code: 0x0020, Name: "startup"},
	{Code: 0x0040, Name: "running"},
	{Code: 0x0100, Name: "fault"},
	{Code: 0x0400, Name: "maintain_mode"},
	{Code: 0x0800, Name: "forced_mode"},
	{Code: 0x1000, Name: "off_grid_mode"},
	{Code: 0x2501, Name: "restarting"},
	{Code: 0x4000, Name: "external_ems_mode"},
}

var gridStateOptions = []EnumOption{
	{Code: 0xAA, Name: "off_grid"},
	{Code: 0x55, Name: "on_grid"},
}

var loadAdjustmentModeOptions = []EnumOption{
	{Code: 0, Name: "timing"},
	{Code: 1, Name: "on_off"},
	{Code: 2, Name: "power_optimized"},
	{Code: 3, Name: "disabled"},
}

var loadOnOffModeOptions = []EnumOption{
	{Code: 0xAA, Name: "on"},
	{Code: 0x55, Name: "off"},
}

var chargeDischargeCommandOptions = []EnumOption{
	{Code: 0xAA, Name: "charge"},
	{Code: 0xBB, Name: "discharge"},
	{Code: 0xCC, Name: "stop"},
}

var batteryTypeOptions = []EnumOption{
	{Code: 0, Name: "no_battery"},
	{Code: 1, Name: "lead_acid"},
	{Code: 2, Name: "sungrow_sbr"},
	{Code: 3, Name: "lg_chem"},
	{Code: 4, Name: "byd"},
	{Code: 5, Name: "pylontech"},
	{Code: 6, Name: "bmz"},
}

var batteryManufacturers = map[string]string{
	"sungrow_sbr": "Sungrow",
	"lg_chem":     "LG Chem",
	"byd":         "BYD",
	"pylontech":   "Pylontech",
	"bmz":         "BMZ",
}

// BatteryManufacturer maps a battery_type option to its manufacturer, empty when unknown.
func BatteryManufacturer(option EnumOption) string {
	return batteryManufacturers[option.Name]
}

// The residential three-phase hybrids have no VPP mode.
var emsModeOptionsRT = []EnumOption{
	{Code: 0, Name: "self_consumption"},
	{Code: 2, Name: "forced"},
	{Code: 3, Name: "external"},
}

var emsModeOptionsSH = []EnumOption{
	{Code: 0, Name: "self_consumption"},
	{Code: 2, Name: "forced"},
	{Code: 3, Name: "external"},
	{Code: 4, Name: "vpp"},
}

// hybridVariables are the battery and energy management variables of SH hybrid inverters.
func hybridVariables(nominalWatt float64, emsModes []EnumOption) []*VariableDefinition {
	return []*VariableDefinition{
		enum("system_state", InputRegister, 12999, systemStateOptions),
		flags("running_state", InputRegister, 13000, "pv_power", "battery_charging", "battery_discharging",
			"positive_load_power", "feed_in_power", "import_power_from_grid", "", "negative_load_power"),
		number("daily_pv_generation", InputRegister, 13001, U16, -1, "kWh"),
		number("total_pv_generation", InputRegister, 13002, U32, -1, "kWh"),
		number("daily_export_from_pv", InputRegister, 13004, U16, -1, "kWh"),
		number("total_export_from_pv", InputRegister, 13005, U32, -1, "kWh"),
		integer("load_power", InputRegister, 13007, S32, "W"),
		integer("export_power", InputRegister, 13009, S32, "W"),
		number("daily_battery_charge_from_pv", InputRegister, 13011, U16, -1, "kWh"),
		number("total_battery_charge_from_pv", InputRegister, 13012, U32, -1, "kWh"),
		number("co2_reduction", InputRegister, 13014, U32, -1, "kg"),
		number("daily_direct_energy_consumption", InputRegister, 13016, U16, -1, "kWh"),
		number("total_direct_energy_consumption", InputRegister, 13017, U32, -1, "kWh"),
		number("battery_voltage", InputRegister, 13019, U16, -1, "V"),
		number("battery_current", InputRegister, 13020, U16, -1, "A"),
		integer("battery_power", InputRegister, 13021, U16, "W"),
		number("battery_level", InputRegister, 13022, U16, -1, "%").limited(0, 100),
		number("battery_health", InputRegister, 13023, U16, -1, "%").limited(0, 100),
		number("battery_temperature", InputRegister, 13024, S16, -1, "°C"),
		number("daily_battery_discharge_energy", InputRegister, 13025, U16, -1, "kWh"),
		number("total_battery_discharge_energy", InputRegister, 13026, U32, -1, "kWh"),
		number("daily_self_consumption", InputRegister, 13028, U16, -1, "%"),
		enum("grid_state", InputRegister, 13029, gridStateOptions),
		number("phase_a_current", InputRegister, 13030, S16, -1, "A"),
		number("phase_b_current", InputRegister, 13031, S16, -1, "A"),
		number("phase_c_current", InputRegister, 13032, S16, -1, "A"),
		integer("total_active_power", InputRegister, 13033, S32, "W"),
		number("daily_import_energy", InputRegister, 13035, U16, -1, "kWh"),
		number("total_import_energy", InputRegister, 13036, U32, -1, "kWh"),
		number("battery_capacity", InputRegister, 13038, U16, -1, "kWh"),
		number("daily_charge_energy", InputRegister, 13039, U16, -1, "kWh"),
		number("total_charge_energy", InputRegister, 13040, U32, -1, "kWh"),
		integer("drm_state", InputRegister, 13042, U16, ""),
		number("daily_export_energy", InputRegister, 13044, U16, -1, "kWh"),
		number("total_export_energy", InputRegister, 13045, U32, -1, "kWh"),

		enum("load_adjustment_mode", HoldingRegister, 13001, loadAdjustmentModeOptions).settable(),
		timeOfDay("load_period_1_start", 13002),
		timeOfDay("load_period_1_end", 13004),
		timeOfDay("load_period_2_start", 13006),
		timeOfDay("load_period_2_end", 13008),
		enum("load_on_off_mode", HoldingRegister, 13010, loadOnOffModeOptions).settable(),
		timeOfDay("load_optimized_start", 13011),
		timeOfDay("load_optimized_end", 13013),
		integer("load_optimized_power", HoldingRegister, 13015, U16, "W").writable(0, nominalWatt),
		enum("ems_mode", HoldingRegister, 13049, emsModes).settable(),
		enum("charge_discharge_command", HoldingRegister, 13050, chargeDischargeCommandOptions).settable(),
		integer("charge_discharge", HoldingRegister, 13051, U16, "W").writable(0, nominalWatt),
		enum("battery_type", HoldingRegister, 13054, batteryTypeOptions),
		number("battery_nominal_voltage", HoldingRegister, 13055, U16, -1, "V"),
		number("max_soc", HoldingRegister, 13057, U16, -1, "%").writable(0, 100),
		number("min_soc", HoldingRegister, 13058, U16, -1, "%").writable(0, 100),
		toggle("off_grid_enabled", 13074, 0xAA, 0x55),
		toggle("battery_maintenance", 13084, 0xAA, 0x55),
		integer("reserved_soc_for_backup", HoldingRegister, 13099, U16, "%").writable(0, 100),
		number("battery_over_voltage_threshold", HoldingRegister, 13101, U16, -1, "V"),
		number("battery_under_voltage_threshold", HoldingRegister, 13102, U16, -1, "V"),
		number("battery_over_temperature_threshold", HoldingRegister, 13103, S16, -1, "°C"),
		number("battery_under_temperature_threshold", HoldingRegister, 13104, S16, -1, "°C"),
	}
}
