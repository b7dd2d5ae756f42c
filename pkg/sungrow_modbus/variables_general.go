package sungrow_modbus

// Addresses are protocol addresses, one below the register numbers of the Sungrow
// communication protocol documentation.

var outputTypeOptions = []EnumOption{
	{Code: 0, Name: "single_phase"},
	{Code: 1, Name: "three_phase_4l"},
	{Code: 2, Name: "three_phase_3l"},
}

var startStopOptions = []EnumOption{
	{Code: 0xCF, Name: "start"},
	{Code: 0xCE, Name: "stop"},
}

func deviceTypeOptions() []EnumOption {
	options := make([]EnumOption, 0, len(deviceModels))
	for _, m := range deviceModels {
		options = append(options, EnumOption{Code: m.code, Name: m.name})
	}
	return options
}

// generalVariables are present on every supported inverter.
func generalVariables(nominalWatt float64) []*VariableDefinition {
	return []*VariableDefinition{
		integer("protocol_number", InputRegister, 4949, U32, ""),
		integer("protocol_version", InputRegister, 4951, U32, ""),
		text("arm_software_version", InputRegister, 4953, 15),
		text("dsp_software_version", InputRegister, 4968, 15),
		text("serial_number", InputRegister, 4989, 10),
		enum("device_type", InputRegister, 4999, deviceTypeOptions()),
		number("nominal_output_power", InputRegister, 5000, U16, -1, "kW"),
		enum("output_type", InputRegister, 5001, outputTypeOptions),
		number("daily_output_energy", InputRegister, 5002, U16, -1, "kWh"),
		number("total_output_energy", InputRegister, 5003, U32, -1, "kWh"),
		integer("total_running_time", InputRegister, 5005, U32, "h"),
		number("internal_temperature", InputRegister, 5007, S16, -1, "°C"),
		number("mppt_1_voltage", InputRegister, 5010, U16, -1, "V"),
		number("mppt_1_current", InputRegister, 5011, U16, -1, "A"),
		number("mppt_2_voltage", InputRegister, 5012, U16, -1, "V"),
		number("mppt_2_current", InputRegister, 5013, U16, -1, "A"),
		integer("total_dc_power", InputRegister, 5016, U32, "W"),
		number("phase_a_voltage", InputRegister, 5018, U16, -1, "V"),
		number("phase_b_voltage", InputRegister, 5019, U16, -1, "V"),
		number("phase_c_voltage", InputRegister, 5020, U16, -1, "V"),
		number("line_ab_voltage", InputRegister, 5018, U16, -1, "V"),
		number("line_bc_voltage", InputRegister, 5019, U16, -1, "V"),
		number("line_ca_voltage", InputRegister, 5020, U16, -1, "V"),
		integer("reactive_power", InputRegister, 5032, S32, "var"),
		number("power_factor", InputRegister, 5034, S16, -3, "").limited(-1, 1),
		number("grid_frequency", InputRegister, 5035, U16, -1, "Hz"),
		number("grid_frequency_fine", InputRegister, 5241, U16, -2, "Hz"),

		dateTime("system_clock", HoldingRegister, 4999),
		enum("start_stop", HoldingRegister, 5005, startStopOptions).settable(),
		toggle("power_limitation", 5006, 0xAA, 0x55),
		number("power_limitation_setting", HoldingRegister, 5007, U16, -1, "%").writable(0, 110),
		number("power_limitation_adjustment", HoldingRegister, 5038, U16, -1, "%").writable(0, 100),
		integer("export_power_limitation", HoldingRegister, 13073, U16, "W").writable(0, nominalWatt),
		toggle("export_power_limitation_enabled", 13086, 0xAA, 0x55),
	}
}

// variantExclusions narrows the variable set by grid connection. The phase and line
// voltage variables share registers; which one applies depends on the output type.
var variantExclusions = map[OutputType][]string{
	OutputSinglePhase: {"phase_b_voltage", "phase_c_voltage", "phase_b_current", "phase_c_current",
		"line_ab_voltage", "line_bc_voltage", "line_ca_voltage"},
	OutputThreePhase4L: {"line_ab_voltage", "line_bc_voltage", "line_ca_voltage"},
	OutputThreePhase3L: {"phase_a_voltage", "phase_b_voltage", "phase_c_voltage"},
	OutputUnknown:      {"line_ab_voltage", "line_bc_voltage", "line_ca_voltage"},
}
