package sungrow_modbus

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type DataType uint8

const (
	U16 DataType = iota
	S16
	U32
	S32
	ASCII
	Composite
)

type ValueKind uint8

const (
	KindNumber ValueKind = iota
	KindInteger
	KindBool
	KindEnum
	KindText
	KindTimeOfDay
	KindDateTime
	KindFlags
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindText:
		return "text"
	case KindTimeOfDay:
		return "time"
	case KindDateTime:
		return "datetime"
	case KindFlags:
		return "flags"
	}
	return "unknown"
}

// VariableDefinition describes where a named value lives on the device and how
// its registers map to a domain value. Definitions are built once and never modified.
//
// Domain values are float64 (KindNumber), int64 (KindInteger), bool, EnumOption,
// string, TimeOfDay, time.Time and Flags.
type VariableDefinition struct {
	Name        string
	Register    RegisterKind
	Address     uint16
	Count       uint16
	Type        DataType
	Kind        ValueKind
	ScaleFactor int8
	Offset      float64
	Unit        string
	Limits      *Limits
	Options     []EnumOption
	FlagNames   []string
	OnValue     uint16
	OffValue    uint16
	Writable    bool
}

// End is the first address after the variable.
func (v *VariableDefinition) End() uint32 {
	return uint32(v.Address) + uint32(v.Count)
}

func (v *VariableDefinition) Decimals() int {
	if v.ScaleFactor < 0 {
		return int(-v.ScaleFactor)
	}
	return 0
}

func (v *VariableDefinition) Option(name string) (EnumOption, bool) {
	for _, o := range v.Options {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return EnumOption{}, false
}

func (v *VariableDefinition) OptionByCode(code uint16) (EnumOption, bool) {
	for _, o := range v.Options {
		if o.Code == code {
			return o, true
		}
	}
	return EnumOption{}, false
}

func (v *VariableDefinition) OptionNames() []string {
	names := make([]string, len(v.Options))
	for i, o := range v.Options {
		names[i] = o.Name
	}
	return names
}

// Decode turns raw registers into a domain value. Unexpected raw content is
// reported as a *DecodeWarning; decoding never panics on input of the declared width.
func (v *VariableDefinition) Decode(regs []uint16) (any, error) {
	if len(regs) != int(v.Count) {
		return nil, v.warn(regs, fmt.Sprintf("expected %d registers, got %d", v.Count, len(regs)))
	}

	switch v.Kind {
	case KindNumber:
		f := applySF(v.rawInt(regs), v.ScaleFactor) + v.Offset
		if !v.Limits.Contains(f) {
			return nil, v.warn(regs, fmt.Sprintf("%g outside %s", f, v.Limits))
		}
		return f, nil
	case KindInteger:
		i := v.rawInt(regs)
		if !v.Limits.Contains(float64(i)) {
			return nil, v.warn(regs, fmt.Sprintf("%d outside %s", i, v.Limits))
		}
		return i, nil
	case KindBool:
		switch regs[0] {
		case v.OnValue:
			return true, nil
		case v.OffValue:
			return false, nil
		}
		return nil, v.warn(regs, fmt.Sprintf("unexpected switch value 0x%04X", regs[0]))
	case KindEnum:
		code := uint16(v.rawInt(regs))
		if o, ok := v.OptionByCode(code); ok {
			return o, nil
		}
		return nil, v.warn(regs, fmt.Sprintf("unknown option code 0x%04X", code))
	case KindText:
		return decodeASCII(regs), nil
	case KindTimeOfDay:
		t := TimeOfDay{Hour: int(regs[0]), Minute: int(regs[1])}
		if !t.Valid() {
			return nil, v.warn(regs, "invalid time of day")
		}
		return t, nil
	case KindDateTime:
		t, ok := decodeDateTime(regs)
		if !ok {
			return nil, v.warn(regs, "invalid date")
		}
		return t, nil
	case KindFlags:
		raw := uint32(v.rawInt(regs))
		flags := make(Flags, len(v.FlagNames))
		for bit, name := range v.FlagNames {
			if name != "" {
				flags[name] = raw&(1<<bit) != 0
			}
		}
		return flags, nil
	}
	return nil, v.warn(regs, "unsupported kind")
}

// Encode validates value against the declared domain and produces the registers to write.
// Nothing is written when an error is returned.
func (v *VariableDefinition) Encode(value any) ([]uint16, error) {
	if !v.Writable {
		return nil, v.invalid(value, "variable is read-only")
	}

	switch v.Kind {
	case KindNumber, KindInteger:
		f, ok := toFloat(value)
		if !ok {
			return nil, v.invalid(value, "expected a number")
		}
		if !isFinite(f) {
			return nil, v.invalid(value, "not a finite number")
		}
		if v.Kind == KindInteger {
			f = truncate(f)
		}
		if !v.Limits.Contains(f) {
			return nil, v.invalid(value, "outside "+v.Limits.String())
		}
		scaled := applySFInv(f-v.Offset, v.ScaleFactor)
		if !onGrid(scaled) {
			return nil, v.invalid(value, fmt.Sprintf("not a multiple of %g", applySF(1, v.ScaleFactor)))
		}
		regs, ok := v.fromRawInt(roundToGrid(scaled))
		if !ok {
			return nil, v.invalid(value, "does not fit the register width")
		}
		return regs, nil
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, v.invalid(value, "expected a boolean")
		}
		if b {
			return []uint16{v.OnValue}, nil
		}
		return []uint16{v.OffValue}, nil
	case KindEnum:
		o, ok := v.toOption(value)
		if !ok {
			return nil, v.invalid(value, "expected one of "+strings.Join(v.OptionNames(), ", "))
		}
		return []uint16{o.Code}, nil
	case KindText:
		s, ok := value.(string)
		if !ok {
			return nil, v.invalid(value, "expected a string")
		}
		if len(s) > int(v.Count)*2 {
			return nil, v.invalid(value, "string too long")
		}
		return encodeASCII(s, v.Count), nil
	case KindTimeOfDay:
		t, ok := value.(TimeOfDay)
		if !ok || !t.Valid() {
			return nil, v.invalid(value, "expected a time of day")
		}
		return []uint16{uint16(t.Hour), uint16(t.Minute)}, nil
	case KindDateTime:
		t, ok := value.(time.Time)
		if !ok || t.Year() < 0 || t.Year() > 0xFFFF {
			return nil, v.invalid(value, "expected a date")
		}
		return encodeDateTime(t), nil
	case KindFlags:
		flags, ok := value.(Flags)
		if !ok {
			return nil, v.invalid(value, "expected flags")
		}
		var raw int64
		for bit, name := range v.FlagNames {
			if name != "" && flags[name] {
				raw |= 1 << bit
			}
		}
		regs, _ := v.fromRawInt(raw)
		return regs, nil
	}
	return nil, v.invalid(value, "unsupported kind")
}

// Format renders a domain value as text. Numbers keep the decimals implied by the scale factor.
func (v *VariableDefinition) Format(value any) string {
	switch val := value.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', v.Decimals(), 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		if val {
			return "on"
		}
		return "off"
	case time.Time:
		return val.Format(time.RFC3339)
	case Flags:
		set := make([]string, 0, len(val))
		for _, name := range v.FlagNames {
			if name != "" && val[name] {
				set = append(set, name)
			}
		}
		return strings.Join(set, ",")
	case fmt.Stringer:
		return val.String()
	case string:
		return val
	}
	return fmt.Sprint(value)
}

// Parse is the inverse of Format.
func (v *VariableDefinition) Parse(text string) (any, error) {
	text = strings.TrimSpace(text)
	switch v.Kind {
	case KindNumber:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, v.invalid(text, "expected a number")
		}
		return f, nil
	case KindInteger:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || !isFinite(f) {
			return nil, v.invalid(text, "expected a number")
		}
		return int64(truncate(f)), nil
	case KindBool:
		switch strings.ToLower(text) {
		case "on", "true", "1":
			return true, nil
		case "off", "false", "0":
			return false, nil
		}
		return nil, v.invalid(text, "expected on or off")
	case KindEnum:
		o, ok := v.Option(text)
		if !ok {
			return nil, v.invalid(text, "expected one of "+strings.Join(v.OptionNames(), ", "))
		}
		return o, nil
	case KindText:
		return text, nil
	case KindTimeOfDay:
		t, err := ParseTimeOfDay(text)
		if err != nil {
			return nil, v.invalid(text, err.Error())
		}
		return t, nil
	case KindDateTime:
		t, err := time.Parse(time.RFC3339, text)
		if err != nil {
			return nil, v.invalid(text, "expected an RFC 3339 date")
		}
		return t, nil
	case KindFlags:
		flags := make(Flags, len(v.FlagNames))
		for _, name := range v.FlagNames {
			if name != "" {
				flags[name] = false
			}
		}
		if text == "" {
			return flags, nil
		}
		for _, name := range strings.Split(text, ",") {
			name = strings.TrimSpace(name)
			if _, ok := flags[name]; !ok {
				return nil, v.invalid(text, "unknown flag "+name)
			}
			flags[name] = true
		}
		return flags, nil
	}
	return nil, v.invalid(text, "unsupported kind")
}

func (v *VariableDefinition) toOption(value any) (EnumOption, bool) {
	switch val := value.(type) {
	case EnumOption:
		o, ok := v.OptionByCode(val.Code)
		return o, ok && o.Name == val.Name
	case string:
		return v.Option(val)
	case uint16:
		return v.OptionByCode(val)
	case int:
		if val < 0 || val > 0xFFFF {
			return EnumOption{}, false
		}
		return v.OptionByCode(uint16(val))
	}
	return EnumOption{}, false
}

func (v *VariableDefinition) rawInt(regs []uint16) int64 {
	switch v.Type {
	case S16:
		return int64(int16(regs[0]))
	case U32:
		return int64(joinWords(regs))
	case S32:
		return int64(int32(joinWords(regs)))
	default:
		return int64(regs[0])
	}
}

func (v *VariableDefinition) fromRawInt(raw int64) ([]uint16, bool) {
	switch v.Type {
	case U16:
		if raw < 0 || raw > 0xFFFF {
			return nil, false
		}
		return []uint16{uint16(raw)}, true
	case S16:
		if raw < -0x8000 || raw > 0x7FFF {
			return nil, false
		}
		return []uint16{uint16(int16(raw))}, true
	case U32:
		if raw < 0 || raw > 0xFFFFFFFF {
			return nil, false
		}
		return splitWords(uint32(raw)), true
	case S32:
		if raw < -0x80000000 || raw > 0x7FFFFFFF {
			return nil, false
		}
		return splitWords(uint32(int32(raw))), true
	}
	return nil, false
}

func (v *VariableDefinition) warn(regs []uint16, reason string) *DecodeWarning {
	return &DecodeWarning{Variable: v.Name, Raw: append([]uint16(nil), regs...), Reason: reason}
}

func (v *VariableDefinition) invalid(value any, reason string) *ValidationError {
	return &ValidationError{Variable: v.Name, Value: value, Reason: reason}
}

// table builders

func countOf(t DataType) uint16 {
	switch t {
	case U32, S32:
		return 2
	}
	return 1
}

func number(name string, reg RegisterKind, addr uint16, t DataType, sf int8, unit string) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: reg, Address: addr, Count: countOf(t), Type: t,
		Kind: KindNumber, ScaleFactor: sf, Unit: unit}
}

func integer(name string, reg RegisterKind, addr uint16, t DataType, unit string) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: reg, Address: addr, Count: countOf(t), Type: t,
		Kind: KindInteger, Unit: unit}
}

func text(name string, reg RegisterKind, addr uint16, count uint16) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: reg, Address: addr, Count: count, Type: ASCII, Kind: KindText}
}

func enum(name string, reg RegisterKind, addr uint16, options []EnumOption) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: reg, Address: addr, Count: 1, Type: U16,
		Kind: KindEnum, Options: options}
}

func flags(name string, reg RegisterKind, addr uint16, bits ...string) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: reg, Address: addr, Count: 1, Type: U16,
		Kind: KindFlags, FlagNames: bits}
}

func toggle(name string, addr uint16, on uint16, off uint16) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: HoldingRegister, Address: addr, Count: 1, Type: U16,
		Kind: KindBool, OnValue: on, OffValue: off, Writable: true}
}

func timeOfDay(name string, addr uint16) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: HoldingRegister, Address: addr, Count: 2, Type: Composite,
		Kind: KindTimeOfDay, Writable: true}
}

func dateTime(name string, reg RegisterKind, addr uint16) *VariableDefinition {
	return &VariableDefinition{Name: name, Register: reg, Address: addr, Count: 6, Type: Composite, Kind: KindDateTime}
}

func (v *VariableDefinition) writable(lo float64, hi float64) *VariableDefinition {
	v.Writable = true
	return v.limited(lo, hi)
}

func (v *VariableDefinition) limited(lo float64, hi float64) *VariableDefinition {
	v.Limits = &Limits{Min: lo, Max: hi}
	return v
}

func (v *VariableDefinition) settable() *VariableDefinition {
	v.Writable = true
	return v
}

func sortByAddress(defs []*VariableDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Register != defs[j].Register {
			return defs[i].Register < defs[j].Register
		}
		return defs[i].Address < defs[j].Address
	})
}
