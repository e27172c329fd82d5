package sysctl

import (
	"fmt"
)

type AnalogKind int

const (
	ADC AnalogKind = iota
	DAC
)

// AnaClkMux is the second-level mux in front of an analog peripheral.
type AnaClkMux int

const (
	ANACLK_AHB AnaClkMux = iota
	ANACLK_ANA
)

func (m AnaClkMux) String() string {
	if m == ANACLK_ANA {
		return "ANA"
	}
	return "AHB"
}

// AnalogPeripheral is an ADC or DAC that can run either from AHB or from its own analog clock node.
type AnalogPeripheral struct {
	Name     string
	Kind     AnalogKind
	Index    int
	AnaClock string
	Resource string
	Base     uintptr
	IRQ      int
}

func (a AnalogPeripheral) Peripheral() Peripheral {
	return Peripheral{Name: a.Name, Resource: a.Resource, Clock: a.AnaClock, Base: a.Base, IRQ: a.IRQ}
}

func (a AnalogPeripheral) localOffset() uintptr {
	if a.Kind == DAC {
		return SYSCTL_DACCLK + uintptr(a.Index)*4
	}
	return SYSCTL_ADCCLK + uintptr(a.Index)*4
}

// SetAnaClock programs the analog clock node and, once it's stable, moves the peripheral onto it.
// Switching the local mux first could glitch the sample clock.
func (c *Controller) SetAnaClock(a AnalogPeripheral, cfg ClockConfig) {
	c.SetClock(c.v.MustClock(a.AnaClock), cfg)
	off := a.localOffset()
	c.sysctl.SetBits(off, ANACLK_MUX)
	c.spin(fmt.Sprintf("%s clock", a.Name), func() bool { return c.sysctl.HasBits(off, ANACLK_LOC_BUSY) })
}

// SetAHBClock moves the peripheral back onto the AHB clock. Always safe.
func (c *Controller) SetAHBClock(a AnalogPeripheral) {
	off := a.localOffset()
	c.sysctl.ClearBits(off, ANACLK_MUX)
	c.spin(fmt.Sprintf("%s clock", a.Name), func() bool { return c.sysctl.HasBits(off, ANACLK_LOC_BUSY) })
}

func (c *Controller) AnaClockSource(a AnalogPeripheral) AnaClkMux {
	if c.sysctl.HasBits(a.localOffset(), ANACLK_MUX) {
		return ANACLK_ANA
	}
	return ANACLK_AHB
}

// AnalogFrequency is the clock the peripheral currently runs from.
func (c *Controller) AnalogFrequency(a AnalogPeripheral) Hertz {
	if c.AnaClockSource(a) == ANACLK_AHB {
		return c.Clocks().AHB
	}
	return c.ClockFreq(c.v.MustClock(a.AnaClock))
}

// PeripheralFreq is the kernel clock of p.
func (c *Controller) PeripheralFreq(p Peripheral) Hertz {
	switch p.Clock {
	case CLOCK_AHB:
		return c.Clocks().AHB
	case CLOCK_FIXED:
		return CLK_24M
	}
	if a, ok := c.v.AnalogPeripheral(p.Name); ok {
		return c.AnalogFrequency(a)
	}
	return c.ClockFreq(c.v.MustClock(p.Clock))
}

// SetPeripheralClock programs p's own clock node. Peripherals on AHB or the fixed oscillator have
// nothing to program.
func (c *Controller) SetPeripheralClock(p Peripheral, cfg ClockConfig) {
	if p.Clock == CLOCK_AHB || p.Clock == CLOCK_FIXED {
		return
	}
	c.SetClock(c.v.MustClock(p.Clock), cfg)
}

// EnablePeripheral links p's resource into group. Every driver calls this before touching any
// other register of its peripheral; until then the peripheral ignores writes.
func (c *Controller) EnablePeripheral(p Peripheral, group int) {
	if p.Resource == "" {
		return
	}
	c.AddResourceGroup(p.Resource, group)
}
