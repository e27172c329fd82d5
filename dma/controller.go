// Package dma drives the HDMA and XDMA controllers and the DMAMUX that routes peripheral request
// lines to their channels. A Transfer owns one channel from configuration until it completes or is
// closed; completion is signalled by the controller's shared interrupt handler.
package dma

import (
	"context"
	"fmt"
	"log"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/Jon-Bright/hpmctl/regs"
	"github.com/Jon-Bright/hpmctl/sysctl"
)

const (
	DMA_SIZE    = 0x1000
	DMAMUX_SIZE = 0x100

	DMA_CHABORT     = uintptr(0x24)
	DMA_INTHALFSTS  = uintptr(0x30)
	DMA_INTTCSTS    = uintptr(0x34)
	DMA_INTABORTSTS = uintptr(0x38)
	DMA_INTERRSTS   = uintptr(0x3C)
	DMA_CHCTRL      = uintptr(0x40)
	DMA_CHCTRL_SIZE = uintptr(0x20)

	// Offsets inside a CHCTRL entry
	CH_CTRL        = uintptr(0x00)
	CH_TRANSIZE    = uintptr(0x04)
	CH_SRCADDR     = uintptr(0x08)
	CH_CHANREQCTRL = uintptr(0x0C)
	CH_DSTADDR     = uintptr(0x10)
	CH_LLPOINTER   = uintptr(0x18)

	CTRL_ENABLE         = uint32(1 << 0)
	CTRL_INTTCMASK      = uint32(1 << 1)
	CTRL_INTERRMASK     = uint32(1 << 2)
	CTRL_INTABTMASK     = uint32(1 << 3)
	CTRL_INTHALFCNTMASK = uint32(1 << 4)
	CTRL_INFINITELOOP   = uint32(1 << 10)
	CTRL_HANDSHAKEOPT   = uint32(1 << 11)
	CTRL_DSTADDRCTRL    = 12
	CTRL_SRCADDRCTRL    = 14
	CTRL_ADDRCTRL_WIDTH = 2
	CTRL_DSTMODE        = uint32(1 << 16)
	CTRL_SRCMODE        = uint32(1 << 17)
	CTRL_DSTWIDTH       = 18
	CTRL_SRCWIDTH       = 21
	CTRL_WIDTH_WIDTH    = 3
	CTRL_SRCBURSTSIZE   = 24
	CTRL_BURSTSIZE_BITS = 4
	CTRL_BURSTOPT       = uint32(1 << 28)
	CTRL_PRIORITY       = uint32(1 << 29)

	CHANREQ_DSTREQSEL = 0
	CHANREQ_SRCREQSEL = 16
	CHANREQ_WIDTH     = 6

	DMAMUX_ENABLE       = uint32(1 << 31)
	DMAMUX_SOURCE_WIDTH = 7
)

func chOffset(ch int, reg uintptr) uintptr {
	return DMA_CHCTRL + uintptr(ch)*DMA_CHCTRL_SIZE + reg
}

// Kind tells the two controllers apart. Its String is the controller's resource name.
type Kind int

const (
	HDMA Kind = iota
	XDMA
)

func (k Kind) String() string {
	if k == XDMA {
		return "XDMA"
	}
	return "HDMA"
}

// Controller is one physical DMA controller and its slice of the DMAMUX.
type Controller struct {
	kind      Kind
	regs      *regs.Block
	mux       *regs.Block
	muxOffset int
	irq       int
	states    []ChannelState
	bound     atomic.Bool
}

// New gates the controller's resource through sc and wraps already-mapped register windows.
func New(sc *sysctl.Controller, kind Kind, dma, mux *regs.Block) (*Controller, error) {
	v := sc.Variant()
	channels, muxOffset, irq := v.HDMAChannels, 0, v.HDMAIRQ
	if kind == XDMA {
		if v.XDMABase == 0 {
			return nil, fmt.Errorf("%s has no XDMA", v.Name)
		}
		channels, muxOffset, irq = v.XDMAChannels, v.HDMAChannels, v.XDMAIRQ
	}
	sc.AddResourceGroup(kind.String(), 0)
	c := &Controller{
		kind:      kind,
		regs:      dma,
		mux:       mux,
		muxOffset: muxOffset,
		irq:       irq,
		states:    make([]ChannelState, channels),
	}
	for i := range c.states {
		c.states[i] = newChannelState()
	}
	return c, nil
}

// Open maps the controller and the DMAMUX from /dev/mem.
func Open(sc *sysctl.Controller, kind Kind) (*Controller, error) {
	v := sc.Variant()
	base := v.HDMABase
	if kind == XDMA {
		base = v.XDMABase
	}
	if base == 0 {
		return nil, fmt.Errorf("%s has no %v", v.Name, kind)
	}
	d, err := regs.Map(base, DMA_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't map %v: %v", kind, err)
	}
	m, err := regs.Map(v.DMAMUXBase, DMAMUX_SIZE)
	if err != nil {
		d.Close() // Ignore error
		return nil, fmt.Errorf("couldn't map DMAMUX: %v", err)
	}
	c, err := New(sc, kind, d, m)
	if err != nil {
		d.Close() // Ignore error
		m.Close() // Ignore error
		return nil, err
	}
	log.Printf("Got %v at %08X, %d channels, IRQ %d", kind, base, len(c.states), c.irq)
	return c, nil
}

func (c *Controller) Kind() Kind {
	return c.kind
}

func (c *Controller) Channels() int {
	return len(c.states)
}

func (c *Controller) IRQ() int {
	return c.irq
}

func (c *Controller) Close() error {
	err := c.regs.Close()
	if err != nil {
		return err
	}
	return c.mux.Close()
}

// Channel returns the type-erased handle of channel n.
func (c *Controller) Channel(n int) AnyChannel {
	if n < 0 || n >= len(c.states) {
		panic(fmt.Sprintf("dma: %v has no channel %d", c.kind, n))
	}
	return AnyChannel{ctl: c, n: n}
}

// HDMA returns a typed handle for channel n. It panics if c isn't the HDMA controller.
func (c *Controller) HDMA(n int) HDMAChannel {
	if c.kind != HDMA {
		panic(fmt.Sprintf("dma: HDMA channel requested from %v", c.kind))
	}
	return HDMAChannel{c.Channel(n)}
}

// XDMA returns a typed handle for channel n. It panics if c isn't the XDMA controller.
func (c *Controller) XDMA(n int) XDMAChannel {
	if c.kind != XDMA {
		panic(fmt.Sprintf("dma: XDMA channel requested from %v", c.kind))
	}
	return XDMAChannel{c.Channel(n)}
}

// BindIRQ claims the controller's interrupt. Each controller has exactly one handler; binding
// it twice panics.
func (c *Controller) BindIRQ() {
	if !c.bound.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("dma: %v IRQ %d bound twice", c.kind, c.irq))
	}
}

// OnIRQ is the handler shared by every channel of the controller. Any error status is fatal.
// Half, complete and abort statuses are cleared, then every channel that had one is woken.
func (c *Controller) OnIRQ() {
	half := c.regs.Get(DMA_INTHALFSTS)
	tc := c.regs.Get(DMA_INTTCSTS)
	errs := c.regs.Get(DMA_INTERRSTS)
	abort := c.regs.Get(DMA_INTABORTSTS)

	if errs != 0 {
		panic(fmt.Sprintf("dma: %v %08X error, INTERRSTS %08X", c.kind, c.regs.Base(), errs))
	}

	if half != 0 {
		c.regs.Set(DMA_INTHALFSTS, half)
	}
	if tc != 0 {
		c.regs.Set(DMA_INTTCSTS, tc)
	}
	if abort != 0 {
		c.regs.Set(DMA_INTABORTSTS, abort)
	}

	for m := tc; m != 0; m &= m - 1 {
		n := bits.TrailingZeros32(m)
		if n < len(c.states) {
			c.states[n].complete.Add(1)
		}
	}
	for m := half | tc | abort; m != 0; m &= m - 1 {
		n := bits.TrailingZeros32(m)
		if n < len(c.states) {
			c.states[n].fire()
		}
	}
}

func (c *Controller) pending() bool {
	for _, off := range []uintptr{DMA_INTHALFSTS, DMA_INTTCSTS, DMA_INTABORTSTS, DMA_INTERRSTS} {
		if c.regs.Get(off) != 0 {
			return true
		}
	}
	return false
}

// ServeIRQ binds the controller's interrupt and, until ctx is done, runs OnIRQ whenever a status
// bit is latched. Userspace has no interrupt vectors, so the status registers are checked every
// interval.
func (c *Controller) ServeIRQ(ctx context.Context, every time.Duration) error {
	c.BindIRQ()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if c.pending() {
				c.OnIRQ()
			}
		}
	}
}
