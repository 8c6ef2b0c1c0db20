// Package thermal reads device temperature in the controller's fixed-point
// unit.
//
// A Temperature is the sensor's millidegree reading arithmetically shifted
// right by NormShift bits, so one unit is 1/1.024 °C. The truncation is part
// of the control law's behaviour and every backend must go through Normalize.
package thermal

import (
	"fmt"
	"strings"
)

// NormShift is the number of bits millidegrees are shifted right by.
const NormShift = 10

// DefaultSysfsPath is the kernel's first thermal zone.
const DefaultSysfsPath = "/sys/class/thermal/thermal_zone0/temp"

// Temperature is a normalized temperature sample.
type Temperature int

// Source yields the current temperature.
type Source interface {
	Read() (Temperature, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Temperature, error)

func (f SourceFunc) Read() (Temperature, error) { return f() }

// Normalize converts millidegrees Celsius to a Temperature.
func Normalize(milli int) Temperature {
	return Temperature(milli >> NormShift)
}

// Celsius is an approximate conversion for display only.
func (t Temperature) Celsius() float64 {
	return float64(int(t)<<NormShift) / 1000.0
}

// parseMilli parses s the way C atoi does: leading whitespace, an optional
// sign, then digits up to the first non-digit. Unlike atoi, a string with no
// digits is an error instead of zero.
func parseMilli(s string) (int, error) {
	rest := strings.TrimLeft(s, " \t\r\n\v\f")
	neg := false
	if rest != "" && (rest[0] == '-' || rest[0] == '+') {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	n, digits := 0, 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		n = n*10 + int(rest[digits]-'0')
		digits++
	}
	if digits == 0 {
		return 0, fmt.Errorf("thermal: no digits in %q", s)
	}
	if neg {
		n = -n
	}
	return n, nil
}
