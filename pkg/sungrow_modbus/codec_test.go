package sungrow_modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritableVariablesRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, device := range Devices() {
		values := sampleValues(device, "A2290412345")
		for _, def := range device.Variables() {
			if !def.Writable {
				continue
			}
			value, ok := values[def.Name]
			require.True(t, ok, "no sample for %s", def.Name)
			if s, isString := value.(string); isString && def.Kind == KindEnum {
				value, ok = def.Option(s)
				require.True(t, ok)
			}

			regs, err := def.Encode(value)
			require.NoError(t, err, def.Name)
			assert.Len(regs, int(def.Count), def.Name)

			decoded, err := def.Decode(regs)
			require.NoError(t, err, def.Name)
			assert.Equal(value, decoded, "%s on %s", def.Name, device.Name)
		}
	}
}

func TestScaledValuesAreExact(t *testing.T) {
	assert := assert.New(t)
	def := number("v", HoldingRegister, 0, U16, -1, "V").writable(0, 6000)

	for _, v := range []float64{0, 0.1, 0.3, 55.5, 231.2, 4321.9} {
		regs, err := def.Encode(v)
		assert.NoError(err)
		decoded, err := def.Decode(regs)
		assert.NoError(err)
		assert.Equal(v, decoded)
	}

	regs, err := def.Encode(55.5)
	assert.NoError(err)
	assert.Equal([]uint16{555}, regs)
}

func TestOffsetIsApplied(t *testing.T) {
	assert := assert.New(t)
	def := number("t", HoldingRegister, 0, U16, -1, "°C").writable(-40, 100)
	def.Offset = -40

	regs, err := def.Encode(21.5)
	assert.NoError(err)
	assert.Equal([]uint16{615}, regs)

	v, err := def.Decode([]uint16{615})
	assert.NoError(err)
	assert.Equal(21.5, v)
}

func TestWordOrderIsLowWordFirst(t *testing.T) {
	assert := assert.New(t)

	u32 := integer("u", InputRegister, 0, U32, "W")
	v, err := u32.Decode([]uint16{0x0002, 0x0001})
	assert.NoError(err)
	assert.Equal(int64(0x00010002), v)

	s32 := integer("s", InputRegister, 0, S32, "W")
	v, err = s32.Decode([]uint16{0xFF38, 0xFFFF})
	assert.NoError(err)
	assert.Equal(int64(-200), v)

	s16 := number("t", InputRegister, 0, S16, -1, "°C")
	v, err = s16.Decode([]uint16{0xFF9C})
	assert.NoError(err)
	assert.Equal(-10.0, v)
}

func TestIntegerWritesTruncate(t *testing.T) {
	assert := assert.New(t)
	def := integer("p", HoldingRegister, 0, U16, "W").writable(0, 10000)

	regs, err := def.Encode(2500.9)
	assert.NoError(err)
	assert.Equal([]uint16{2500}, regs)

	_, err = def.Encode(10000.5)
	assert.NoError(err)

	_, err = def.Encode(-0.5)
	assert.NoError(err, "truncates toward zero before the limits check")
}

func TestEncodeRejectsValuesOffTheScaleGrid(t *testing.T) {
	assert := assert.New(t)
	minSoc := number("min_soc", HoldingRegister, 13058, U16, -1, "%").writable(0, 100)

	var validationErr *ValidationError
	_, err := minSoc.Encode(15.55)
	assert.ErrorAs(err, &validationErr)
	assert.Contains(validationErr.Reason, "0.1")

	regs, err := minSoc.Encode(15.5)
	require.NoError(t, err)
	decoded, err := minSoc.Decode(regs)
	assert.NoError(err)
	assert.Equal(15.5, decoded)

	_, err = minSoc.Encode(0.3)
	assert.NoError(err, "float representation error is not off-grid")
}

func TestEncodeValidates(t *testing.T) {
	assert := assert.New(t)
	minSoc := number("min_soc", HoldingRegister, 13058, U16, -1, "%").writable(0, 100)

	var validationErr *ValidationError
	_, err := minSoc.Encode(150)
	assert.ErrorAs(err, &validationErr)
	assert.Equal("min_soc", validationErr.Variable)

	_, err = minSoc.Encode("fifty")
	assert.ErrorAs(err, &validationErr)

	readOnly := number("battery_level", InputRegister, 13022, U16, -1, "%")
	_, err = readOnly.Encode(50.0)
	assert.ErrorAs(err, &validationErr)

	mode := enum("ems_mode", HoldingRegister, 13049, emsModeOptionsRT).settable()
	_, err = mode.Encode("vpp")
	assert.ErrorAs(err, &validationErr)
	regs, err := mode.Encode("forced")
	assert.NoError(err)
	assert.Equal([]uint16{2}, regs)

	tod := timeOfDay("load_period_1_start", 13002)
	_, err = tod.Encode(TimeOfDay{Hour: 24, Minute: 0})
	assert.ErrorAs(err, &validationErr)
}

func TestDecodeWarnings(t *testing.T) {
	assert := assert.New(t)
	var warning *DecodeWarning

	mode := enum("ems_mode", HoldingRegister, 13049, emsModeOptionsRT)
	_, err := mode.Decode([]uint16{0x0009})
	assert.ErrorAs(err, &warning)
	assert.Equal("ems_mode", warning.Variable)
	assert.Equal([]uint16{0x0009}, warning.Raw)

	level := number("battery_level", InputRegister, 13022, U16, -1, "%").limited(0, 100)
	_, err = level.Decode([]uint16{0xFFFF})
	assert.ErrorAs(err, &warning, "out of limits values from the device are not clamped")

	sw := toggle("power_limitation", 5006, 0xAA, 0x55)
	_, err = sw.Decode([]uint16{0x0001})
	assert.ErrorAs(err, &warning)

	_, err = sw.Decode([]uint16{0xAA, 0x55})
	assert.ErrorAs(err, &warning)

	clock := dateTime("system_clock", HoldingRegister, 4999)
	_, err = clock.Decode([]uint16{2024, 2, 30, 0, 0, 0})
	assert.ErrorAs(err, &warning)
}

func TestASCIIDropsPadding(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("A22", decodeASCII([]uint16{0x4132, 0x3200, 0x0000}))
	assert.Equal("", decodeASCII([]uint16{0xFFFF, 0xFFFF}))
	assert.Equal([]uint16{0x4132, 0x3200, 0x0000}, encodeASCII("A22", 3))
}

func TestFormatAndParse(t *testing.T) {
	assert := assert.New(t)

	voltage := number("battery_voltage", InputRegister, 13019, U16, -1, "V")
	assert.Equal("321.4", voltage.Format(321.4))
	assert.Equal("320.0", voltage.Format(320.0))

	pf := number("power_factor", InputRegister, 5034, S16, -3, "")
	assert.Equal("0.998", pf.Format(0.998))

	sw := toggle("battery_maintenance", 13084, 0xAA, 0x55)
	assert.Equal("on", sw.Format(true))
	v, err := sw.Parse("OFF")
	assert.NoError(err)
	assert.Equal(false, v)

	tod := timeOfDay("load_optimized_start", 13011)
	v, err = tod.Parse("07:45")
	assert.NoError(err)
	assert.Equal(TimeOfDay{Hour: 7, Minute: 45}, v)
	assert.Equal("07:45", tod.Format(v))
	_, err = tod.Parse("7:45")
	assert.Error(err)

	mode := enum("ems_mode", HoldingRegister, 13049, emsModeOptionsRT)
	v, err = mode.Parse("Forced")
	assert.NoError(err)
	assert.Equal(EnumOption{Code: 2, Name: "forced"}, v)
	assert.Equal("forced", mode.Format(v))

	running := flags("running_state", InputRegister, 13000, "pv_power", "battery_charging", "battery_discharging")
	f, err := running.Decode([]uint16{0b101})
	assert.NoError(err)
	assert.Equal("pv_power,battery_discharging", running.Format(f))

	clock := dateTime("system_clock", HoldingRegister, 4999)
	ts := time.Date(2024, time.June, 21, 12, 30, 0, 0, time.UTC)
	v, err = clock.Parse(clock.Format(ts))
	assert.NoError(err)
	assert.True(ts.Equal(v.(time.Time)))
}
