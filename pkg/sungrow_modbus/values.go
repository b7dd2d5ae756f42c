package sungrow_modbus

import (
	"fmt"
	"regexp"
	"strconv"
)

type EnumOption struct {
	Code uint16
	Name string
}

func (o EnumOption) String() string {
	return o.Name
}

type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

var timeOfDayRegexp = regexp.MustCompile(`^([0-9]{2}):([0-9]{2})$`)

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := timeOfDayRegexp.FindStringSubmatch(s)
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	t := TimeOfDay{Hour: h, Minute: minute}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return t, nil
}

// Flags holds one entry per named bit of a bitfield register.
type Flags map[string]bool

type Limits struct {
	Min float64
	Max float64
}

func (l *Limits) Contains(v float64) bool {
	return l == nil || (v >= l.Min && v <= l.Max)
}

func (l *Limits) String() string {
	return fmt.Sprintf("[%g, %g]", l.Min, l.Max)
}
