package dac

import (
	"fmt"

	"github.com/Jon-Bright/hpmctl/regs"
	"github.com/Jon-Bright/hpmctl/sysctl"
)

var simRegs = []uintptr{DAC_CFG0, DAC_CFG1, DAC_CFG2, DAC_ANA_CFG0, DAC_CFG0_BAK}

// NewSimBlock returns simulated registers for the named DAC. Like the real part, they ignore
// writes while the DAC's resource isn't clocked.
func NewSimBlock(sc *sysctl.Sim, name string) (*regs.Block, sysctl.AnalogPeripheral, error) {
	a, ok := sc.Variant().AnalogPeripheral(name)
	if !ok || a.Kind != sysctl.DAC {
		return nil, a, fmt.Errorf("%s has no DAC %s", sc.Variant().Name, name)
	}
	b, err := regs.NewSim(a.Base, DAC_SIZE)
	if err != nil {
		return nil, a, fmt.Errorf("couldn't create %s: %v", name, err)
	}
	gate := sc.Gate(a.Resource)
	for _, off := range simRegs {
		b.OnStore(off, gate)
	}
	for i := 0; i < STEP_CONFIGS; i++ {
		b.OnStore(DAC_STEP_CFG+uintptr(i)*4, gate)
	}
	return b, a, nil
}

// NewSim brings up the named DAC on simulated registers.
func NewSim(sc *sysctl.Sim, name string, cfg Config) (*DAC, error) {
	b, a, err := NewSimBlock(sc, name)
	if err != nil {
		return nil, err
	}
	return New(sc.Controller, a, b, cfg), nil
}

// Regs exposes the register block, e.g. to attach it to a simulated DMA controller.
func (d *DAC) Regs() *regs.Block {
	return d.regs
}
