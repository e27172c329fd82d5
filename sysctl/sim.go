package sysctl

import (
	"fmt"

	"github.com/Jon-Bright/hpmctl/regs"
)

// Sim is a Controller over simulated register windows. Busy bits never stick, group and
// affiliate SET/CLEAR writes update their VALUE registers, and Clocked answers whether a resource
// would be running.
type Sim struct {
	*Controller
	Sysctl *regs.Block
	Pllctl *regs.Block
	Pcfg   *regs.Block
}

func dropBusy(busy uint32) regs.StoreHook {
	return func(old, v uint32) uint32 {
		return v&^busy | old&busy
	}
}

func NewSim(v *Variant) (*Sim, error) {
	s, err := regs.NewSim(v.SysctlBase, SYSCTL_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't create SYSCTL: %v", err)
	}
	p, err := regs.NewSim(v.PllctlBase, PLLCTL_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't create PLLCTL: %v", err)
	}
	c, err := regs.NewSim(v.PcfgBase, PCFG_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't create PCFG: %v", err)
	}

	words := (len(v.Resources) + 31) / 32
	link := func(base uintptr) {
		value := base + LINK_VALUE
		s.OnStore(base+LINK_SET, func(_, v uint32) uint32 {
			s.Modify(value, func(o uint32) uint32 { return o | v })
			return 0
		})
		s.OnStore(base+LINK_CLEAR, func(_, v uint32) uint32 {
			s.Modify(value, func(o uint32) uint32 { return o &^ v })
			return 0
		})
	}
	for i := 0; i < words; i++ {
		link(SYSCTL_GROUP0 + uintptr(i)*SYSCTL_GROUP_STRIDE)
		link(SYSCTL_GROUP1 + uintptr(i)*SYSCTL_GROUP_STRIDE)
	}
	for cpu := 0; cpu < 2; cpu++ {
		link(SYSCTL_AFFILIATE + uintptr(cpu)*SYSCTL_GROUP_STRIDE)
	}

	for i := range v.Resources {
		s.OnStore(resourceOffset(RESOURCE_START+i), dropBusy(RESOURCE_GLB_BUSY|RESOURCE_LOC_BUSY))
	}
	s.OnStore(SYSCTL_CLOCK_CPU, dropBusy(CLOCK_GLB_BUSY|CLOCK_LOC_BUSY))
	for i := range v.ClockNames {
		s.OnStore(clockOffset(i), dropBusy(CLOCK_GLB_BUSY|CLOCK_LOC_BUSY))
	}
	for _, a := range v.Analog {
		s.OnStore(a.localOffset(), dropBusy(ANACLK_LOC_BUSY))
	}

	for n, divs := range v.PllDivs {
		p.OnStore(pllOffset(n, PLL_MFI), dropBusy(PLL_BUSY))
		for i := 0; i < divs; i++ {
			p.OnStore(pllDivOffset(n, i), dropBusy(PLL_BUSY))
		}
	}

	return &Sim{
		Controller: NewController(v, s, p, c),
		Sysctl:     s,
		Pllctl:     p,
		Pcfg:       c,
	}, nil
}

// Linked reports whether resource is a member of group.
func (s *Sim) Linked(resource, group int) bool {
	if resource < RESOURCE_START {
		return true
	}
	base := SYSCTL_GROUP0
	if group == 1 {
		base = SYSCTL_GROUP1
	}
	index := (resource - RESOURCE_START) / 32
	bit := uint32(1) << uint((resource-RESOURCE_START)%32)
	return s.Sysctl.HasBits(base+uintptr(index)*SYSCTL_GROUP_STRIDE+LINK_VALUE, bit)
}

// Clocked reports whether resource is linked into a group that is affiliated to cpu.
func (s *Sim) Clocked(resource, cpu int) bool {
	aff := s.Sysctl.Get(SYSCTL_AFFILIATE + uintptr(cpu)*SYSCTL_GROUP_STRIDE + LINK_VALUE)
	for g := 0; g < s.v.Groups; g++ {
		if aff&(1<<uint(g)) != 0 && s.Linked(resource, g) {
			return true
		}
	}
	return false
}

// ClockedName is Clocked for a named resource. Ungated peripherals (empty name) are always clocked.
func (s *Sim) ClockedName(name string, cpu int) bool {
	if name == "" {
		return true
	}
	r, ok := s.v.Resource(name)
	if !ok {
		return false
	}
	return s.Clocked(r, cpu)
}

// Gate returns a StoreHook that drops writes while the named resource isn't clocked from cpu 0,
// the way an unclocked peripheral ignores its bus.
func (s *Sim) Gate(name string) regs.StoreHook {
	return func(old, v uint32) uint32 {
		if !s.ClockedName(name, 0) {
			return old
		}
		return v
	}
}
