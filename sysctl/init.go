package sysctl

import (
	"fmt"
	"log"
)

// Init brings up the clock tree: oscillator, boot resource groups, core voltage, PLLs, then the
// core and bus clocks. The resulting snapshot is published once; calling Init again panics. An
// out-of-band PLL request is returned as an error before anything is reprogrammed.
func (c *Controller) Init(cfg Config) error {
	if c.snapshot.Load() != nil {
		panic("sysctl: clocks already initialized")
	}
	for n, p := range cfg.Pll {
		if p == nil {
			continue
		}
		if _, _, ok := p.Params(); !ok {
			return fmt.Errorf("couldn't configure PLL%d: %v is outside [%v, %v)", n, p.FreqIn, Hertz(PLL_FREQ_MIN), Hertz(PLL_FREQ_MAX))
		}
	}
	cl := c.Clocks().clone()

	if c.CPUClockFreq(0) == CLK_24M {
		c.pllctl.SetField(PLLCTL_XTAL, 0, XTAL_RAMP_WIDTH, XTAL_RAMP_CYCLES)
		c.sysctl.SetField(SYSCTL_GLOBAL00, 0, GLOBAL00_PRESET_WIDTH, GLOBAL00_PRESET_XTAL)
		log.Printf("%s running from 24MHz, XTAL ramp %d cycles", c.v.Name, XTAL_RAMP_CYCLES)
	}

	for group, names := range c.v.Boot {
		for _, n := range names {
			c.AddResourceGroup(n, group)
		}
		if group < c.v.Cores {
			c.Affiliate(group, group)
		}
	}

	if c.v.DCDCMilliVolt != 0 {
		c.pcfg.SetField(PCFG_DCDC_MODE, 0, DCDC_VOLT_WIDTH, c.v.DCDCMilliVolt)
	}

	for n, p := range cfg.Pll {
		if p == nil {
			continue
		}
		out, err := c.programPll(n, p)
		if err != nil {
			return fmt.Errorf("couldn't program PLL%d: %v", n, err)
		}
		cl.Pll[n] = out
	}

	if c.v.CPUSubDivs {
		c.initSubDivs(cfg, cl)
	} else {
		c.initClockNodes(cfg, cl)
	}

	c.publish(cl)
	log.Printf("%s clocks: %v", c.v.Name, cl)
	return nil
}

// reprogrammed reports whether src selects an output of a PLL that cfg reprograms. Nodes left
// alone by cfg but running from such a PLL have to be resolved again.
func (c *Controller) reprogrammed(cfg Config, src ClockMux) bool {
	if int(src) >= len(c.v.Muxes) {
		return false
	}
	m := c.v.Muxes[src]
	return m.Pll >= 0 && m.Pll < len(cfg.Pll) && cfg.Pll[m.Pll] != nil
}

func (c *Controller) initSubDivs(cfg Config, cl *Clocks) {
	off := SYSCTL_CLOCK_CPU
	if cfg.CPU0 == nil {
		live := c.readConfig(off)
		if !c.reprogrammed(cfg, live.Src) {
			return
		}
		sub0 := Divider(c.sysctl.Field(off, CLOCK_SUB0_SHIFT, CLOCK_SUB_WIDTH))
		sub1 := Divider(c.sysctl.Field(off, CLOCK_SUB1_SHIFT, CLOCK_SUB_WIDTH))
		cl.CPU0 = cl.Freq(live)
		if c.v.AXISubDiv {
			cl.AXI = cl.CPU0.Div(sub0)
			cl.AHB = cl.CPU0.Div(sub1)
		} else {
			cl.AHB = cl.CPU0.Div(sub0)
		}
		return
	}
	v := c.sysctl.Get(off) &^ (CLOCK_GLB_BUSY | CLOCK_LOC_BUSY)
	v &^= (1<<CLOCK_MUX_WIDTH-1)<<CLOCK_MUX_SHIFT | (1<<CLOCK_DIV_WIDTH - 1) |
		(1<<CLOCK_SUB_WIDTH-1)<<CLOCK_SUB0_SHIFT | (1<<CLOCK_SUB_WIDTH-1)<<CLOCK_SUB1_SHIFT
	v |= uint32(cfg.CPU0.Src)<<CLOCK_MUX_SHIFT | uint32(cfg.CPU0.RawDiv)
	if c.v.AXISubDiv {
		v |= uint32(cfg.AXIDiv)<<CLOCK_SUB0_SHIFT | uint32(cfg.AHBDiv)<<CLOCK_SUB1_SHIFT
	} else {
		v |= uint32(cfg.AHBDiv) << CLOCK_SUB0_SHIFT
	}
	c.sysctl.Set(off, v)
	c.spin("CPU0 clock", func() bool { return c.sysctl.HasBits(off, CLOCK_GLB_BUSY) })

	cl.CPU0 = cl.Freq(*cfg.CPU0)
	cl.AHB = cl.CPU0.Div(cfg.AHBDiv)
	if c.v.AXISubDiv {
		cl.AXI = cl.CPU0.Div(cfg.AXIDiv)
	}
}

func (c *Controller) initClockNodes(cfg Config, cl *Clocks) {
	var last int
	set := func(name string, cc *ClockConfig, f *Hertz) {
		n := c.v.MustClock(name)
		off := clockOffset(n)
		if cc == nil {
			if live := c.readConfig(off); c.reprogrammed(cfg, live.Src) {
				*f = cl.Freq(live)
			}
			return
		}
		v := c.sysctl.Get(off) &^ (CLOCK_GLB_BUSY | CLOCK_LOC_BUSY)
		v &^= (1<<CLOCK_MUX_WIDTH-1)<<CLOCK_MUX_SHIFT | (1<<CLOCK_DIV_WIDTH - 1)
		c.sysctl.Set(off, v|uint32(cc.Src)<<CLOCK_MUX_SHIFT|uint32(cc.RawDiv))
		*f = cl.Freq(*cc)
		last = n
	}
	set(c.v.CPUClocks[0], cfg.CPU0, &cl.CPU0)
	if len(c.v.CPUClocks) > 1 {
		set(c.v.CPUClocks[1], cfg.CPU1, &cl.CPU1)
	}
	set(c.v.AHBClock, cfg.AHB, &cl.AHB)
	c.spin("core clocks", func() bool { return c.sysctl.HasBits(clockOffset(last), CLOCK_GLB_BUSY) })
}
