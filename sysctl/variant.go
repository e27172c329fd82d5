package sysctl

import (
	"fmt"
	"sort"
	"strings"
)

// Special values for Peripheral.Clock.
const (
	CLOCK_AHB   = ""    // runs from the AHB bus clock
	CLOCK_FIXED = "24M" // runs from the 24MHz oscillator, no mux
)

// Peripheral binds one peripheral instance to its resource gate, clock node, register block and
// interrupt.
type Peripheral struct {
	Name     string
	Resource string // "" if the peripheral isn't gated
	Clock    string
	Base     uintptr
	IRQ      int
}

// PowerOn is the clock tree a part comes out of reset with.
type PowerOn struct {
	CPU0, CPU1, AHB, AXI Hertz
	Pll                  [][]Hertz
}

// Config says which PLLs to reprogram and how to derive the core and bus clocks. Nil entries are
// left at whatever they are.
type Config struct {
	// Pll[n] configures PLLn.
	Pll  []*Pll
	CPU0 *ClockConfig
	CPU1 *ClockConfig
	// AHB is used on parts that clock the AHB from its own clock node.
	AHB *ClockConfig
	// AXIDiv and AHBDiv are the CPU0 sub-dividers on parts that derive the buses from CPU0.
	AXIDiv Divider
	AHBDiv Divider
}

// Variant is everything that differs between the supported parts.
type Variant struct {
	Name string

	SysctlBase uintptr
	PllctlBase uintptr
	PcfgBase   uintptr
	DMAMUXBase uintptr
	HDMABase   uintptr
	XDMABase   uintptr // 0 if absent

	HDMAChannels int
	XDMAChannels int
	HDMAIRQ      int
	XDMAIRQ      int

	Cores  int
	Groups int

	// CPUSubDivs is set on parts whose CPU0 clock lives in CLOCK_CPU and derives the bus clocks with
	// its sub-dividers. AXISubDiv then says sub0 feeds AXI and sub1 AHB; otherwise sub0 feeds AHB.
	CPUSubDivs bool
	AXISubDiv  bool
	// CPUClocks and AHBClock name the clock nodes used on the other parts.
	CPUClocks []string
	AHBClock  string

	Muxes      []MuxSource
	PllDivs    []int
	Resources  []string
	ClockNames []string
	// Boot lists, per group, the resources linked during Init.
	Boot [][]string

	Analog      []AnalogPeripheral
	Peripherals []Peripheral

	DCDCMilliVolt uint32
	PowerOn       PowerOn
	defaultConfig func(v *Variant) Config
}

// Variants holds all supported parts, by name.
var Variants = map[string]*Variant{}

func register(v *Variant) {
	Variants[v.Name] = v
}

// Lookup finds a part by name, e.g. "hpm53".
func Lookup(name string) (*Variant, error) {
	v, ok := Variants[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(Variants))
		for n := range Variants {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown chip %q, want one of %s", name, strings.Join(names, ", "))
	}
	return v, nil
}

func (v *Variant) Resource(name string) (int, bool) {
	for i, r := range v.Resources {
		if r == name {
			return RESOURCE_START + i, true
		}
	}
	return 0, false
}

func (v *Variant) Clock(name string) (int, bool) {
	for i, c := range v.ClockNames {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

func (v *Variant) MustClock(name string) int {
	c, ok := v.Clock(name)
	if !ok {
		panic(fmt.Sprintf("sysctl: %s has no clock %s", v.Name, name))
	}
	return c
}

func (v *Variant) Mux(name string) (ClockMux, bool) {
	for i, m := range v.Muxes {
		if m.Name == name {
			return ClockMux(i), true
		}
	}
	return 0, false
}

func (v *Variant) MustMux(name string) ClockMux {
	m, ok := v.Mux(name)
	if !ok {
		panic(fmt.Sprintf("sysctl: %s has no clock source %s", v.Name, name))
	}
	return m
}

// Peripheral looks up a peripheral by name, including the analog ones.
func (v *Variant) Peripheral(name string) (Peripheral, bool) {
	for _, p := range v.Peripherals {
		if p.Name == name {
			return p, true
		}
	}
	if a, ok := v.AnalogPeripheral(name); ok {
		return a.Peripheral(), true
	}
	return Peripheral{}, false
}

func (v *Variant) AnalogPeripheral(name string) (AnalogPeripheral, bool) {
	for _, a := range v.Analog {
		if a.Name == name {
			return a, true
		}
	}
	return AnalogPeripheral{}, false
}

// DefaultConfig is the clock setup used when the board doesn't ask for anything else.
func (v *Variant) DefaultConfig() Config {
	if v.defaultConfig == nil {
		return Config{}
	}
	return v.defaultConfig(v)
}

func (v *Variant) defaults() *Clocks {
	cl := &Clocks{
		CPU0:  v.PowerOn.CPU0,
		CPU1:  v.PowerOn.CPU1,
		AHB:   v.PowerOn.AHB,
		AXI:   v.PowerOn.AXI,
		Pll:   v.PowerOn.Pll,
		muxes: v.Muxes,
	}
	return cl.clone()
}

func seq(prefix string, n int) []string {
	s := make([]string, n)
	for i := range s {
		s[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return s
}

func list(parts ...interface{}) []string {
	var s []string
	for _, p := range parts {
		switch p := p.(type) {
		case string:
			s = append(s, p)
		case []string:
			s = append(s, p...)
		}
	}
	return s
}

func muxes(names ...string) []MuxSource {
	m := make([]MuxSource, len(names))
	for i, n := range names {
		m[i] = MuxSource{Name: n, Pll: -1}
		var pll, out int
		if _, err := fmt.Sscanf(n, "PLL%dCLK%d", &pll, &out); err == nil {
			m[i].Pll = pll
			m[i].Out = out
		}
	}
	return m
}

func ccp(cc ClockConfig) *ClockConfig {
	return &cc
}

func init() {
	register(&Variant{
		Name:         "hpm53",
		SysctlBase:   0xF4000000,
		PllctlBase:   0xF40C0000,
		PcfgBase:     0xF4104000,
		DMAMUXBase:   0xF00C4000,
		HDMABase:     0xF00C8000,
		HDMAChannels: 32,
		HDMAIRQ:      34,
		Cores:        1,
		Groups:       1,
		CPUSubDivs:   true,
		Muxes:        muxes("CLK_24M", "PLL0CLK0", "PLL0CLK1", "PLL0CLK2", "PLL1CLK0", "PLL1CLK1", "PLL1CLK2", "PLL1CLK3"),
		PllDivs:      []int{3, 4},
		Resources: list("CPU0", "CPX0", "AHB0", "LMM0", "MCT0", "ROM0", seq("CAN", 4), "PTPC", seq("TMR", 4),
			seq("I2C", 4), seq("SPI", 4), seq("URT", 8), "WDG0", "WDG1", "MBX0", "TSNS", "CRC0", "ADC0", "ADC1",
			"DAC0", "DAC1", "ACMP", "OPA0", "OPA1", "MOT0", "MOT1", "RNG0", "SDP0", "KMAN", "GPIO", "HDMA", "XPI0",
			"USB0", "REF0", "REF1"),
		ClockNames: list("MCT0", seq("CAN", 4), seq("TMR", 4), seq("I2C", 4), seq("SPI", 4), seq("URT", 8),
			"XPI0", seq("ANA", 4), "REF0", "REF1"),
		Boot: [][]string{{"CPU0", "AHB0", "LMM0", "MCT0", "ROM0", "TMR0", "TMR1", "I2C2", "SPI1", "URT0", "URT3",
			"WDG0", "WDG1", "MBX0", "TSNS", "CRC0", "ADC0", "ACMP", "KMAN", "GPIO", "HDMA", "XPI0", "USB0"}},
		Analog: []AnalogPeripheral{
			{Name: "ADC0", Kind: ADC, Index: 0, AnaClock: "ANA0", Resource: "ADC0", Base: 0xF0050000, IRQ: 22},
			{Name: "ADC1", Kind: ADC, Index: 1, AnaClock: "ANA1", Resource: "ADC1", Base: 0xF0054000, IRQ: 23},
			{Name: "DAC0", Kind: DAC, Index: 0, AnaClock: "ANA2", Resource: "DAC0", Base: 0xF0060000, IRQ: 24},
			{Name: "DAC1", Kind: DAC, Index: 1, AnaClock: "ANA3", Resource: "DAC1", Base: 0xF0064000, IRQ: 25},
		},
		Peripherals: []Peripheral{
			{Name: "URT0", Resource: "URT0", Clock: "URT0", Base: 0xF0040000, IRQ: 13},
			{Name: "SPI1", Resource: "SPI1", Clock: "SPI1", Base: 0xF0034000, IRQ: 10},
			{Name: "I2C2", Resource: "I2C2", Clock: "I2C2", Base: 0xF0028000, IRQ: 5},
			{Name: "QEI0", Resource: "MOT0", Clock: CLOCK_AHB, Base: 0xF0200000, IRQ: 44},
			{Name: "QEI1", Resource: "MOT0", Clock: CLOCK_AHB, Base: 0xF0204000, IRQ: 45},
			{Name: "PUART", Clock: CLOCK_FIXED, Base: 0xF40E4000, IRQ: 61},
			{Name: "PTMR", Clock: CLOCK_FIXED, Base: 0xF40E0000, IRQ: 60},
		},
		DCDCMilliVolt: 1175,
		PowerOn: PowerOn{
			CPU0: 360000000, // PLL0CLK0 / 2
			AHB:  180000000, // CPU0 / 2
			Pll: [][]Hertz{
				{720000000, 600000000, 400000000},
				{800000000, 666666667, 500000000, 266666667},
			},
		},
		defaultConfig: func(v *Variant) Config {
			return Config{
				Pll:    make([]*Pll, 2),
				CPU0:   ccp(NewClockConfig(v.MustMux("PLL0CLK0"), 2)),
				AHBDiv: DIV2,
			}
		},
	})

	register(&Variant{
		Name:         "hpm6e",
		SysctlBase:   0xF4000000,
		PllctlBase:   0xF40C0000,
		PcfgBase:     0xF4104000,
		DMAMUXBase:   0xF00C4000,
		HDMABase:     0xF00C8000,
		XDMABase:     0xF3008000,
		HDMAChannels: 32,
		XDMAChannels: 32,
		HDMAIRQ:      34,
		XDMAIRQ:      35,
		Cores:        2,
		Groups:       2,
		CPUClocks:    []string{"CPU0", "CPU1"},
		AHBClock:     "AHB0",
		Muxes:        muxes("CLK_24M", "PLL0CLK0", "PLL0CLK1", "PLL1CLK0", "PLL1CLK1", "PLL1CLK2", "PLL2CLK0", "PLL2CLK1"),
		PllDivs:      []int{2, 3, 2},
		Resources: list("CPU0", "CPU1", "AHBP", "AXIC", "AXIN", "AXIS", "ROM0", "RAM0", "RAM1", "XPI0", "FEMC",
			"MCT0", "MCT1", "LMM0", "LMM1", "GPIO", "HDMA", "XDMA", "USB0", seq("URT", 8), seq("SPI", 4),
			seq("I2C", 4), seq("ADC", 4), seq("MOT", 4), seq("TMR", 4)),
		ClockNames: list("CPU0", "CPU1", "AHB0", "MCT0", "MCT1", "CAN0", "CAN1", seq("TMR", 4), seq("I2C", 4),
			seq("SPI", 4), seq("URT", 8), "XPI0", "FEMC", seq("ANA", 4)),
		Boot: [][]string{
			{"CPU0", "AHBP", "AXIC", "AXIN", "AXIS", "ROM0", "RAM0", "RAM1", "XPI0", "FEMC", "MCT0", "LMM0",
				"LMM1", "GPIO", "HDMA", "XDMA", "USB0", "CPU1"},
			{"MCT1"},
		},
		Analog: []AnalogPeripheral{
			{Name: "ADC0", Kind: ADC, Index: 0, AnaClock: "ANA0", Resource: "ADC0", Base: 0xF1000000, IRQ: 50},
			{Name: "ADC1", Kind: ADC, Index: 1, AnaClock: "ANA1", Resource: "ADC1", Base: 0xF1004000, IRQ: 51},
			{Name: "ADC2", Kind: ADC, Index: 2, AnaClock: "ANA2", Resource: "ADC2", Base: 0xF1008000, IRQ: 52},
			{Name: "ADC3", Kind: ADC, Index: 3, AnaClock: "ANA3", Resource: "ADC3", Base: 0xF100C000, IRQ: 53},
		},
		Peripherals: []Peripheral{
			{Name: "URT0", Resource: "URT0", Clock: "URT0", Base: 0xF0040000, IRQ: 13},
			{Name: "SPI0", Resource: "SPI0", Clock: "SPI0", Base: 0xF0030000, IRQ: 9},
			{Name: "I2C0", Resource: "I2C0", Clock: "I2C0", Base: 0xF0020000, IRQ: 3},
			{Name: "QEI0", Resource: "MOT0", Clock: CLOCK_AHB, Base: 0xF1200000, IRQ: 70},
			{Name: "PUART", Clock: CLOCK_FIXED, Base: 0xF4124000, IRQ: 90},
			{Name: "PTMR", Clock: CLOCK_FIXED, Base: 0xF4120000, IRQ: 89},
		},
		DCDCMilliVolt: 1200,
		PowerOn: PowerOn{
			CPU0: 600000000, // PLL0CLK0
			CPU1: 600000000, // PLL0CLK0
			AHB:  200000000, // PLL1CLK0 / 2
			Pll: [][]Hertz{
				{600000000, 500000000},
				{400000000, 333333333, 250000000},
				{516096000, 451584000},
			},
		},
		defaultConfig: func(v *Variant) Config {
			return Config{
				Pll:  make([]*Pll, 3),
				CPU0: ccp(NewClockConfig(v.MustMux("PLL0CLK0"), 1)),
				CPU1: ccp(NewClockConfig(v.MustMux("PLL0CLK0"), 1)),
				AHB:  ccp(NewClockConfig(v.MustMux("PLL1CLK0"), 2)),
			}
		},
	})

	register(&Variant{
		Name:         "hpm63",
		SysctlBase:   0xF4000000,
		PllctlBase:   0xF4100000,
		PcfgBase:     0xF4104000,
		DMAMUXBase:   0xF00C4000,
		HDMABase:     0xF00C8000,
		XDMABase:     0xF3008000,
		HDMAChannels: 8,
		XDMAChannels: 8,
		HDMAIRQ:      34,
		XDMAIRQ:      35,
		Cores:        1,
		Groups:       1,
		CPUSubDivs:   true,
		AXISubDiv:    true,
		Muxes:        muxes("CLK_24M", "PLL0CLK0", "PLL0CLK1", "PLL0CLK2", "PLL1CLK0", "PLL1CLK1", "PLL2CLK0", "PLL2CLK1"),
		PllDivs:      []int{3, 2, 2},
		Resources: list("CPU0", "AHBP", "AXIC", "AXIS", "MCT0", "FEMC", "XPI0", "XPI1", seq("TMR", 4), "WDG0",
			"WDG1", "LMM0", "GPIO", "MBX0", "HDMA", "XDMA", "USB0", seq("URT", 8), seq("I2C", 4), seq("SPI", 4),
			seq("ADC", 3), "DAC0", seq("MOT", 2)),
		ClockNames: list("MCT0", "FEMC", "XPI0", "XPI1", seq("TMR", 4), seq("I2C", 4), seq("SPI", 4),
			seq("URT", 8), seq("ANA", 4)),
		Boot: [][]string{{"CPU0", "AHBP", "AXIC", "AXIS", "MCT0", "FEMC", "XPI0", "XPI1", "TMR0", "WDG0", "LMM0",
			"GPIO", "MBX0"}},
		Analog: []AnalogPeripheral{
			{Name: "ADC0", Kind: ADC, Index: 0, AnaClock: "ANA0", Resource: "ADC0", Base: 0xF0050000, IRQ: 22},
			{Name: "ADC1", Kind: ADC, Index: 1, AnaClock: "ANA1", Resource: "ADC1", Base: 0xF0054000, IRQ: 23},
			{Name: "ADC2", Kind: ADC, Index: 2, AnaClock: "ANA2", Resource: "ADC2", Base: 0xF0058000, IRQ: 24},
			{Name: "DAC0", Kind: DAC, Index: 0, AnaClock: "ANA3", Resource: "DAC0", Base: 0xF0060000, IRQ: 26},
		},
		Peripherals: []Peripheral{
			{Name: "URT0", Resource: "URT0", Clock: "URT0", Base: 0xF0040000, IRQ: 13},
			{Name: "SPI0", Resource: "SPI0", Clock: "SPI0", Base: 0xF0030000, IRQ: 9},
			{Name: "I2C0", Resource: "I2C0", Clock: "I2C0", Base: 0xF0020000, IRQ: 3},
			{Name: "QEI0", Resource: "MOT0", Clock: CLOCK_AHB, Base: 0xF0200000, IRQ: 44},
			{Name: "PUART", Clock: CLOCK_FIXED, Base: 0xF40E4000, IRQ: 61},
			{Name: "PTMR", Clock: CLOCK_FIXED, Base: 0xF40E0000, IRQ: 60},
		},
		PowerOn: PowerOn{
			CPU0: 400000000,
			AXI:  133333333,
			AHB:  133333333,
			Pll: [][]Hertz{
				{400000000, 333333333, 250000000},
				{480000000, 320000000},
				{516096000, 451584000},
			},
		},
		defaultConfig: func(v *Variant) Config {
			return Config{
				Pll:    make([]*Pll, 3),
				CPU0:   ccp(NewClockConfig(v.MustMux("PLL0CLK0"), 2)),
				AXIDiv: DIV1,
				AHBDiv: DIV3,
			}
		},
	})

	register(&Variant{
		Name:         "hpm67",
		SysctlBase:   0xF4000000,
		PllctlBase:   0xF4100000,
		PcfgBase:     0xF4104000,
		DMAMUXBase:   0xF00C4000,
		HDMABase:     0xF00C8000,
		XDMABase:     0xF3048000,
		HDMAChannels: 8,
		XDMAChannels: 8,
		HDMAIRQ:      34,
		XDMAIRQ:      35,
		Cores:        2,
		Groups:       2,
		CPUClocks:    []string{"CPU0", "CPU1"},
		AHBClock:     "AHB0",
		Muxes:        muxes("CLK_24M", "PLL0CLK0", "PLL1CLK0", "PLL1CLK1", "PLL2CLK0", "PLL2CLK1", "PLL3CLK0", "PLL4CLK0"),
		PllDivs:      []int{1, 2, 2, 1, 1},
		Resources: list("CPU0_CORE", "CPU1_CORE", "AHBAPB_BUS", "AXI_BUS", "AXI_SRAM0", "AXI_SRAM1", "ROM", "XPI0",
			"XPI1", "FEMC", "MCHTMR0", "MCHTMR1", "LMM0", "LMM1", "GPIO", "MBX0", "MBX1", "HDMA", "XDMA", "USB0",
			seq("URT", 4), seq("I2C", 2), seq("SPI", 2), seq("ADC", 4), seq("MOT", 4)),
		ClockNames: list("CPU0", "MCT0", "CPU1", "MCT1", "AXI0", "AXI1", "AXI2", "AHB0", "FEMC", "XPI0", "XPI1",
			seq("I2C", 2), seq("SPI", 2), seq("URT", 4), seq("ANA", 3)),
		Boot: [][]string{
			{"CPU0_CORE", "AHBAPB_BUS", "AXI_BUS", "AXI_SRAM0", "AXI_SRAM1", "ROM", "XPI0", "XPI1", "FEMC",
				"MCHTMR0", "LMM0", "LMM1", "GPIO", "MBX0"},
			{"MCHTMR1", "MBX1"},
		},
		Analog: []AnalogPeripheral{
			{Name: "ADC0", Kind: ADC, Index: 0, AnaClock: "ANA0", Resource: "ADC0", Base: 0xF0050000, IRQ: 22},
			{Name: "ADC1", Kind: ADC, Index: 1, AnaClock: "ANA1", Resource: "ADC1", Base: 0xF0054000, IRQ: 23},
			{Name: "ADC2", Kind: ADC, Index: 2, AnaClock: "ANA2", Resource: "ADC2", Base: 0xF0058000, IRQ: 24},
			{Name: "ADC3", Kind: ADC, Index: 3, AnaClock: "ANA2", Resource: "ADC3", Base: 0xF005C000, IRQ: 25},
		},
		Peripherals: []Peripheral{
			{Name: "URT0", Resource: "URT0", Clock: "URT0", Base: 0xF0040000, IRQ: 13},
			{Name: "SPI0", Resource: "SPI0", Clock: "SPI0", Base: 0xF0030000, IRQ: 9},
			{Name: "I2C0", Resource: "I2C0", Clock: "I2C0", Base: 0xF0020000, IRQ: 3},
			{Name: "QEI0", Resource: "MOT0", Clock: CLOCK_AHB, Base: 0xF0200000, IRQ: 44},
			{Name: "PUART", Clock: CLOCK_FIXED, Base: 0xF40E4000, IRQ: 61},
			{Name: "PTMR", Clock: CLOCK_FIXED, Base: 0xF40E0000, IRQ: 60},
		},
		DCDCMilliVolt: 1200,
		PowerOn: PowerOn{
			CPU0: 324000000,
			CPU1: 324000000,
			AHB:  100000000,
			Pll: [][]Hertz{
				{648000000},
				{266666667, 400000000},
				{333333333, 250000000},
				{614400000},
				{594000000},
			},
		},
		// The boot ROM leaves the tree as it is wanted; nothing to reprogram.
		defaultConfig: func(v *Variant) Config {
			return Config{Pll: make([]*Pll, 5)}
		},
	})

	register(&Variant{
		Name:         "hpm68",
		SysctlBase:   0xF4000000,
		PllctlBase:   0xF40C0000,
		PcfgBase:     0xF4104000,
		DMAMUXBase:   0xF00C4000,
		HDMABase:     0xF00C8000,
		XDMABase:     0xF3008000,
		HDMAChannels: 32,
		XDMAChannels: 32,
		HDMAIRQ:      34,
		XDMAIRQ:      35,
		Cores:        1,
		Groups:       1,
		CPUClocks:    []string{"CPU0"},
		AHBClock:     "AXIS",
		Muxes:        muxes("CLK_24M", "PLL0CLK0", "PLL1CLK0", "PLL1CLK1", "PLL2CLK0", "PLL2CLK1", "PLL3CLK0", "PLL4CLK0"),
		PllDivs:      []int{1, 2, 2, 1, 1},
		Resources: list("CPU0", "AXIC", "AXIS", "AXIG", "AXIV", "ROM0", "XPI0", "MCT0", "LMM0", "GPIO", "HDMA",
			"XDMA", "USB0", "MBX0", "MBX1", seq("URT", 4), seq("I2C", 2), seq("SPI", 2), seq("ADC", 2), seq("MOT", 2)),
		ClockNames: list("CPU0", "MCT0", "AXIS", "AXIC", "AXIF", "AXID", "AXIV", "AXIG", seq("I2C", 2),
			seq("SPI", 2), seq("URT", 4), "XPI0", "FEMC", seq("ANA", 2)),
		Boot: [][]string{{"CPU0", "AXIC", "AXIS", "AXIG", "AXIV", "ROM0", "XPI0", "MCT0", "LMM0", "GPIO", "HDMA",
			"XDMA", "USB0", "MBX0", "MBX1"}},
		Analog: []AnalogPeripheral{
			{Name: "ADC0", Kind: ADC, Index: 0, AnaClock: "ANA0", Resource: "ADC0", Base: 0xF0050000, IRQ: 22},
			{Name: "ADC1", Kind: ADC, Index: 1, AnaClock: "ANA1", Resource: "ADC1", Base: 0xF0054000, IRQ: 23},
		},
		Peripherals: []Peripheral{
			{Name: "URT0", Resource: "URT0", Clock: "URT0", Base: 0xF0040000, IRQ: 13},
			{Name: "SPI0", Resource: "SPI0", Clock: "SPI0", Base: 0xF0030000, IRQ: 9},
			{Name: "I2C0", Resource: "I2C0", Clock: "I2C0", Base: 0xF0020000, IRQ: 3},
			{Name: "QEI0", Resource: "MOT0", Clock: CLOCK_AHB, Base: 0xF0200000, IRQ: 44},
			{Name: "PUART", Clock: CLOCK_FIXED, Base: 0xF40E4000, IRQ: 61},
			{Name: "PTMR", Clock: CLOCK_FIXED, Base: 0xF40E0000, IRQ: 60},
		},
		DCDCMilliVolt: 1200,
		PowerOn: PowerOn{
			CPU0: 500000000,
			AHB:  400000000,
			Pll: [][]Hertz{
				{500000000},
				{800000000, 666666667},
				{600000000, 500000000},
				{516096000},
				{594000000},
			},
		},
		defaultConfig: func(v *Variant) Config {
			return Config{
				Pll:  make([]*Pll, 5),
				CPU0: ccp(NewClockConfig(v.MustMux("PLL0CLK0"), 1)),
				AHB:  ccp(NewClockConfig(v.MustMux("PLL1CLK0"), 4)),
			}
		},
	})
}
