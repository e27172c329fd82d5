package sysctl

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"
)

// Hertz is a clock frequency in Hz. 32 bits cover everything up to ~4.29GHz, well above any clock
// on these parts.
type Hertz uint32

// Divider is the raw ordinal of a hardware divider field: ordinal k divides by k+1.
type Divider uint8

const (
	DIV1 Divider = iota
	DIV2
	DIV3
	DIV4
	DIV5
	DIV6
	DIV7
	DIV8
	DIV9
	DIV10
	DIV11
	DIV12
	DIV13
	DIV14
	DIV15
	DIV16
)

// Divisor is the number the divider actually divides by.
func (d Divider) Divisor() uint32 {
	return uint32(d) + 1
}

// Div divides h by d. The result is truncated, exactly like the hardware divider.
func (h Hertz) Div(d Divider) Hertz {
	return Hertz(uint32(h) / d.Divisor())
}

func (h Hertz) String() string {
	return (physic.Frequency(h) * physic.Hertz).String()
}

// ParseHertz accepts anything physic.Frequency understands, e.g. "720MHz" or "24000000Hz".
func ParseHertz(s string) (Hertz, error) {
	var f physic.Frequency
	err := f.Set(s)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse frequency %q: %v", s, err)
	}
	if f < 0 || f/physic.Hertz > math.MaxUint32 {
		return 0, fmt.Errorf("frequency %s out of range", f)
	}
	return Hertz(f / physic.Hertz), nil
}
