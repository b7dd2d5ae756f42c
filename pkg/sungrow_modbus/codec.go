package sungrow_modbus

import (
	"math"
	"strings"
	"time"
)

// Scale factors are powers of ten. Negative factors divide so that decimal values
// round-trip exactly through their integer register representation.
func applySF(number int64, sf int8) float64 {
	if sf < 0 {
		return float64(number) / math.Pow(10, float64(-sf))
	}
	return float64(number) * math.Pow(10, float64(sf))
}

func applySFInv(value float64, sf int8) float64 {
	if sf < 0 {
		return value * math.Pow(10, float64(-sf))
	}
	return value / math.Pow(10, float64(sf))
}

func roundToGrid(f float64) int64 {
	return int64(math.Round(f))
}

// onGrid reports whether a scaled value is a whole register count, allowing for
// float representation error.
func onGrid(f float64) bool {
	return math.Abs(f-math.Round(f)) <= 1e-6*math.Max(1, math.Abs(f))
}

func truncate(f float64) float64 {
	return math.Trunc(f)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// 32-bit values are stored low word first.
func joinWords(regs []uint16) uint32 {
	return uint32(regs[1])<<16 | uint32(regs[0])
}

func splitWords(v uint32) []uint16 {
	return []uint16{uint16(v & 0xFFFF), uint16(v >> 16)}
}

// decodeASCII reads two characters per register, high byte first. NUL and 0xFF padding
// (the latter is what a device returns while booting) is dropped.
func decodeASCII(regs []uint16) string {
	bytes := make([]byte, 0, len(regs)*2)
	for _, r := range regs {
		bytes = append(bytes, byte(r>>8), byte(r&0xFF))
	}
	var sb strings.Builder
	for _, b := range bytes {
		if b == 0x00 || b == 0xFF {
			continue
		}
		sb.WriteByte(b)
	}
	return strings.TrimSpace(sb.String())
}

func encodeASCII(s string, count uint16) []uint16 {
	bytes := make([]byte, int(count)*2)
	copy(bytes, s)
	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = uint16(bytes[2*i])<<8 | uint16(bytes[2*i+1])
	}
	return regs
}

// year, month, day, hour, minute, second
func decodeDateTime(regs []uint16) (time.Time, bool) {
	y, mo, d, h, mi, s := int(regs[0]), int(regs[1]), int(regs[2]), int(regs[3]), int(regs[4]), int(regs[5])
	if mo < 1 || mo > 12 || d < 1 || d > 31 || h > 23 || mi > 59 || s > 59 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, h, mi, s, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func encodeDateTime(t time.Time) []uint16 {
	return []uint16{uint16(t.Year()), uint16(t.Month()), uint16(t.Day()),
		uint16(t.Hour()), uint16(t.Minute()), uint16(t.Second())}
}
