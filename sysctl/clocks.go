package sysctl

import (
	"fmt"
	"strings"
	"sync/atomic"
)

const CLK_24M = Hertz(24000000)

// ClockMux is the raw value of a clock node's source selector. What each value selects depends on
// the part, see Variant.Muxes.
type ClockMux uint8

// ClockConfig is the mux and divider pair of one clock node. RawDiv holds div-1.
type ClockConfig struct {
	Src    ClockMux
	RawDiv uint8
}

// NewClockConfig panics unless 1 <= div <= 256.
func NewClockConfig(src ClockMux, div int) ClockConfig {
	if div < 1 || div > 256 {
		panic(fmt.Sprintf("sysctl: clock divider %d outside 1..256", div))
	}
	return ClockConfig{Src: src, RawDiv: uint8(div - 1)}
}

func (cc ClockConfig) Divider() Divider {
	return Divider(cc.RawDiv)
}

// MuxSource names what a ClockMux value selects: the 24MHz oscillator when Pll is negative,
// otherwise output Out of PLL Pll.
type MuxSource struct {
	Name string
	Pll  int
	Out  int
}

// Clocks is a snapshot of every derived clock frequency. Once published by Init it is never
// modified; treat it as read-only.
type Clocks struct {
	CPU0 Hertz
	CPU1 Hertz
	AHB  Hertz
	AXI  Hertz
	// Pll[n][k] is PLLnCLKk.
	Pll [][]Hertz

	muxes []MuxSource
}

func (cl *Clocks) clone() *Clocks {
	n := *cl
	n.Pll = make([][]Hertz, len(cl.Pll))
	for i, p := range cl.Pll {
		n.Pll[i] = append([]Hertz(nil), p...)
	}
	return &n
}

// Of returns the frequency behind a mux value. Every mux value of the part resolves; anything else
// is a programming error.
func (cl *Clocks) Of(src ClockMux) Hertz {
	if int(src) >= len(cl.muxes) {
		panic(fmt.Sprintf("sysctl: clock mux %d out of range", src))
	}
	m := cl.muxes[src]
	if m.Pll < 0 {
		return CLK_24M
	}
	return cl.Pll[m.Pll][m.Out]
}

// Freq is the output of a clock node configured with cfg.
func (cl *Clocks) Freq(cfg ClockConfig) Hertz {
	return cl.Of(cfg.Src).Div(cfg.Divider())
}

func (cl *Clocks) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cpu0 %v", cl.CPU0)
	if cl.CPU1 != 0 {
		fmt.Fprintf(&b, ", cpu1 %v", cl.CPU1)
	}
	if cl.AXI != 0 {
		fmt.Fprintf(&b, ", axi %v", cl.AXI)
	}
	fmt.Fprintf(&b, ", ahb %v", cl.AHB)
	for i, m := range cl.muxes {
		if m.Pll < 0 {
			continue
		}
		fmt.Fprintf(&b, ", %s %v", strings.ToLower(m.Name), cl.Of(ClockMux(i)))
	}
	return b.String()
}

// Clocks returns the published snapshot, or the power-on defaults of the part if Init hasn't run.
func (c *Controller) Clocks() *Clocks {
	if cl := c.snapshot.Load(); cl != nil {
		return cl
	}
	return c.defaults
}

func (c *Controller) publish(cl *Clocks) {
	if !c.snapshot.CompareAndSwap(nil, cl) {
		panic("sysctl: clocks already initialized")
	}
}

var global atomic.Pointer[Controller]

// Init brings up the clock tree of ctl and makes it the controller behind Snapshot. It must
// succeed exactly once, before any driver is constructed. A failed Init may be retried, e.g. with
// the part's DefaultConfig.
func Init(ctl *Controller, cfg Config) error {
	if !global.CompareAndSwap(nil, ctl) {
		panic("sysctl: Init called twice")
	}
	err := ctl.Init(cfg)
	if err != nil {
		global.Store(nil)
		return err
	}
	return nil
}

// Snapshot returns the clocks published by Init. Readers anywhere in the program use it to size
// their dividers.
func Snapshot() *Clocks {
	ctl := global.Load()
	if ctl == nil {
		panic("sysctl: Snapshot called before Init")
	}
	return ctl.Clocks()
}

// Default returns the controller passed to Init, or nil.
func Default() *Controller {
	return global.Load()
}
