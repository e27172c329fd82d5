// Package sysctl drives the system controller of HPMicro parts: PLLs, clock muxes and dividers,
// and the resource groups that gate every peripheral's clock. It also owns the snapshot of
// derived clock frequencies that drivers use to size their own dividers.
package sysctl

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/Jon-Bright/hpmctl/regs"
)

// SYSCTL register layout.
const (
	SYSCTL_SIZE         = 0x3000
	SYSCTL_RESOURCE     = uintptr(0x0000)
	SYSCTL_GROUP0       = uintptr(0x0800)
	SYSCTL_GROUP1       = uintptr(0x0840)
	SYSCTL_GROUP_STRIDE = uintptr(0x10)
	SYSCTL_AFFILIATE    = uintptr(0x0900)
	SYSCTL_CLOCK_CPU    = uintptr(0x1800)
	SYSCTL_CLOCK        = uintptr(0x1804)
	SYSCTL_ADCCLK       = uintptr(0x1C00)
	SYSCTL_DACCLK       = uintptr(0x1C20)
	SYSCTL_GLOBAL00     = uintptr(0x2000)

	// Offsets inside a GROUP/AFFILIATE entry
	LINK_VALUE = uintptr(0x0)
	LINK_SET   = uintptr(0x4)
	LINK_CLEAR = uintptr(0x8)

	RESOURCE_START    = 256
	RESOURCE_GLB_BUSY = uint32(1 << 31)
	RESOURCE_LOC_BUSY = uint32(1 << 30)

	CLOCK_GLB_BUSY   = uint32(1 << 31)
	CLOCK_LOC_BUSY   = uint32(1 << 30)
	CLOCK_MUX_SHIFT  = 8
	CLOCK_MUX_WIDTH  = 4
	CLOCK_DIV_WIDTH  = 8
	CLOCK_SUB0_SHIFT = 16
	CLOCK_SUB1_SHIFT = 20
	CLOCK_SUB_WIDTH  = 4

	ANACLK_LOC_BUSY = uint32(1 << 30)
	ANACLK_MUX      = uint32(1 << 8)

	GLOBAL00_PRESET_WIDTH = 4
	GLOBAL00_PRESET_XTAL  = 2

	PCFG_SIZE       = 0x100
	PCFG_DCDC_MODE  = uintptr(0x30)
	DCDC_VOLT_WIDTH = 12
)

func resourceOffset(r int) uintptr {
	return SYSCTL_RESOURCE + uintptr(r)*4
}

func clockOffset(clock int) uintptr {
	return SYSCTL_CLOCK + uintptr(clock)*4
}

// Controller owns the SYSCTL, PLLCTL and PCFG register windows of one part.
type Controller struct {
	v      *Variant
	sysctl *regs.Block
	pllctl *regs.Block
	pcfg   *regs.Block

	// SpinLimit bounds every busy-wait. Zero waits forever; otherwise a wait that exceeds the limit
	// panics rather than carrying on with an unstable clock.
	SpinLimit int

	snapshot atomic.Pointer[Clocks]
	defaults *Clocks
}

// NewController wraps already-mapped register windows.
func NewController(v *Variant, sysctl, pllctl, pcfg *regs.Block) *Controller {
	return &Controller{v: v, sysctl: sysctl, pllctl: pllctl, pcfg: pcfg, defaults: v.defaults()}
}

// Open maps the register windows of v from /dev/mem.
func Open(v *Variant) (*Controller, error) {
	s, err := regs.Map(v.SysctlBase, SYSCTL_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't map SYSCTL: %v", err)
	}
	p, err := regs.Map(v.PllctlBase, PLLCTL_SIZE)
	if err != nil {
		s.Close() // Ignore error
		return nil, fmt.Errorf("couldn't map PLLCTL: %v", err)
	}
	c, err := regs.Map(v.PcfgBase, PCFG_SIZE)
	if err != nil {
		s.Close() // Ignore error
		p.Close() // Ignore error
		return nil, fmt.Errorf("couldn't map PCFG: %v", err)
	}
	log.Printf("Got %s sysctl %08X, pllctl %08X, pcfg %08X", v.Name, v.SysctlBase, v.PllctlBase, v.PcfgBase)
	return NewController(v, s, p, c), nil
}

func (c *Controller) Variant() *Variant {
	return c.v
}

func (c *Controller) Close() error {
	for _, b := range []*regs.Block{c.sysctl, c.pllctl, c.pcfg} {
		err := b.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) spin(what string, busy func() bool) {
	i := 0
	for busy() {
		i++
		if c.SpinLimit > 0 && i >= c.SpinLimit {
			panic(fmt.Sprintf("sysctl: %s still busy after %d polls", what, i))
		}
	}
}

// AddToGroup links resource into group. Resources below RESOURCE_START aren't gated and are
// ignored, as are groups the part doesn't have.
func (c *Controller) AddToGroup(resource, group int) {
	if resource < RESOURCE_START {
		return
	}
	if group >= c.v.Groups {
		return
	}
	index := (resource - RESOURCE_START) / 32
	offset := (resource - RESOURCE_START) % 32
	base := SYSCTL_GROUP0
	if group == 1 {
		base = SYSCTL_GROUP1
	}
	c.sysctl.Set(base+uintptr(index)*SYSCTL_GROUP_STRIDE+LINK_SET, 1<<uint(offset))
	c.spin(fmt.Sprintf("resource %d", resource), func() bool {
		return c.sysctl.HasBits(resourceOffset(resource), RESOURCE_LOC_BUSY)
	})
}

// Affiliate connects group to a CPU core, letting that core clock every resource in the group.
func (c *Controller) Affiliate(group, cpu int) {
	c.sysctl.Set(SYSCTL_AFFILIATE+uintptr(cpu)*SYSCTL_GROUP_STRIDE+LINK_SET, 1<<uint(group))
}

// AddResourceGroup links a named resource. Unknown names are a programming error.
func (c *Controller) AddResourceGroup(name string, group int) {
	r, ok := c.v.Resource(name)
	if !ok {
		panic(fmt.Sprintf("sysctl: %s has no resource %s", c.v.Name, name))
	}
	c.AddToGroup(r, group)
}

// SetClock programs the mux and divider of one clock node.
func (c *Controller) SetClock(clock int, cfg ClockConfig) {
	off := clockOffset(clock)
	v := c.sysctl.Get(off) &^ (CLOCK_GLB_BUSY | CLOCK_LOC_BUSY)
	v &^= (1<<CLOCK_MUX_WIDTH-1)<<CLOCK_MUX_SHIFT | (1<<CLOCK_DIV_WIDTH - 1)
	v |= uint32(cfg.Src)<<CLOCK_MUX_SHIFT | uint32(cfg.RawDiv)
	c.sysctl.Set(off, v)
	c.spin(fmt.Sprintf("clock %d", clock), func() bool { return c.sysctl.HasBits(off, CLOCK_LOC_BUSY) })
}

// ReadClock returns the mux and divider currently programmed for a clock node.
func (c *Controller) ReadClock(clock int) ClockConfig {
	return c.readConfig(clockOffset(clock))
}

func (c *Controller) readConfig(off uintptr) ClockConfig {
	return ClockConfig{
		Src:    ClockMux(c.sysctl.Field(off, CLOCK_MUX_SHIFT, CLOCK_MUX_WIDTH)),
		RawDiv: uint8(c.sysctl.Field(off, 0, CLOCK_DIV_WIDTH)),
	}
}

// ClockFreq reads the live mux/divider of clock and resolves it through the snapshot.
func (c *Controller) ClockFreq(clock int) Hertz {
	return c.Clocks().Freq(c.ReadClock(clock))
}

// CPUClockFreq resolves the clock feeding cpu, wherever this part keeps it.
func (c *Controller) CPUClockFreq(cpu int) Hertz {
	if c.v.CPUSubDivs {
		return c.Clocks().Freq(c.readConfig(SYSCTL_CLOCK_CPU + uintptr(cpu)*4))
	}
	return c.ClockFreq(c.v.MustClock(c.v.CPUClocks[cpu]))
}
