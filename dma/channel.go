package dma

import (
	"fmt"
)

// Channel is implemented by the typed channel handles of this package only.
type Channel interface {
	// Degrade erases the controller type, e.g. to keep channels of both controllers in one slice.
	Degrade() AnyChannel
	sealed()
}

// AnyChannel is a channel of either controller.
type AnyChannel struct {
	ctl *Controller
	n   int
}

func (ch AnyChannel) Degrade() AnyChannel {
	return ch
}

func (AnyChannel) sealed() {}

// HDMAChannel can only be created from the HDMA controller.
type HDMAChannel struct {
	AnyChannel
}

// XDMAChannel can only be created from the XDMA controller, and is the only kind that moves
// double words.
type XDMAChannel struct {
	AnyChannel
}

func (ch AnyChannel) Controller() *Controller {
	return ch.ctl
}

// Num is the channel's number inside its controller.
func (ch AnyChannel) Num() int {
	return ch.n
}

// MuxNum is the DMAMUX output feeding the channel. XDMA channels follow the HDMA ones.
func (ch AnyChannel) MuxNum() int {
	return ch.ctl.muxOffset + ch.n
}

func (ch AnyChannel) String() string {
	return fmt.Sprintf("%v%d", ch.ctl.kind, ch.n)
}

func (ch AnyChannel) state() *ChannelState {
	return &ch.ctl.states[ch.n]
}

func (ch AnyChannel) bit() uint32 {
	return 1 << uint(ch.n)
}

// ChannelConfig is everything Configure programs. Addresses are bus addresses, Bytes the total
// length of the transfer.
type ChannelConfig struct {
	Request  uint8
	Dir      Dir
	Src      uint32
	SrcWidth WordSize
	SrcCtrl  AddrCtrl
	Dst      uint32
	DstWidth WordSize
	DstCtrl  AddrCtrl
	Bytes    int
	Options  TransferOptions
}

func (cfg *ChannelConfig) check(kind Kind) {
	if cfg.Bytes <= 0 {
		panic(fmt.Sprintf("dma: transfer of %d bytes", cfg.Bytes))
	}
	if !cfg.SrcWidth.Aligned(cfg.Src) || !cfg.DstWidth.Aligned(cfg.Dst) ||
		!cfg.SrcWidth.Aligned(uint32(cfg.Bytes)) || !cfg.DstWidth.Aligned(uint32(cfg.Bytes)) {
		panic(fmt.Sprintf("dma: address not aligned, src %08X/%v, dst %08X/%v, %d bytes",
			cfg.Src, cfg.SrcWidth, cfg.Dst, cfg.DstWidth, cfg.Bytes))
	}
	if kind != XDMA && (cfg.SrcWidth == EightBytes || cfg.DstWidth == EightBytes) {
		panic(fmt.Sprintf("dma: %v can't move double words", kind))
	}
	if !cfg.Options.Burst.valid() {
		panic(fmt.Sprintf("dma: invalid burst %v", cfg.Options.Burst))
	}
}

// Configure programs the channel and routes cfg.Request to it. The channel isn't enabled; call
// Start. Misaligned addresses or lengths panic.
func (ch AnyChannel) Configure(cfg ChannelConfig) {
	cfg.check(ch.ctl.kind)
	r := ch.ctl.regs
	n := ch.n

	r.Set(chOffset(n, CH_SRCADDR), cfg.Src)
	r.Set(chOffset(n, CH_DSTADDR), cfg.Dst)
	r.Set(chOffset(n, CH_TRANSIZE), uint32(cfg.Bytes/cfg.SrcWidth.Bytes()))

	if cfg.Dir == MemoryToPeripheral {
		r.Set(chOffset(n, CH_CHANREQCTRL), uint32(ch.MuxNum())<<CHANREQ_DSTREQSEL)
	} else {
		r.Set(chOffset(n, CH_CHANREQCTRL), uint32(ch.MuxNum())<<CHANREQ_SRCREQSEL)
	}
	r.Set(chOffset(n, CH_LLPOINTER), 0)

	ch.clearStatus()

	o := cfg.Options
	v := uint32(0)
	if o.Circular {
		v |= CTRL_INFINITELOOP
	}
	if o.Handshake != Normal {
		v |= CTRL_HANDSHAKEOPT
	}
	if o.Burst.burstopt() {
		v |= CTRL_BURSTOPT
	}
	if o.Priority {
		v |= CTRL_PRIORITY
	}
	if o.Handshake.srcHandshake() {
		v |= CTRL_SRCMODE
	}
	if o.Handshake.dstHandshake() {
		v |= CTRL_DSTMODE
	}
	if !o.HalfTransferIRQ {
		v |= CTRL_INTHALFCNTMASK
	}
	if !o.CompleteTransferIRQ {
		v |= CTRL_INTTCMASK
	}
	v |= uint32(o.Burst.n) << CTRL_SRCBURSTSIZE
	v |= cfg.SrcWidth.width()<<CTRL_SRCWIDTH | cfg.DstWidth.width()<<CTRL_DSTWIDTH
	v |= uint32(cfg.SrcCtrl)<<CTRL_SRCADDRCTRL | uint32(cfg.DstCtrl)<<CTRL_DSTADDRCTRL
	r.Set(chOffset(n, CH_CTRL), v)

	if cfg.Dir != MemoryToMemory {
		ch.ctl.mux.Set(uintptr(ch.MuxNum())*4, DMAMUX_ENABLE|uint32(cfg.Request)&(1<<DMAMUX_SOURCE_WIDTH-1))
	}
}

func (ch AnyChannel) clearStatus() {
	r := ch.ctl.regs
	for _, off := range []uintptr{DMA_INTHALFSTS, DMA_INTTCSTS, DMA_INTABORTSTS, DMA_INTERRSTS} {
		r.Set(off, ch.bit())
	}
}

// Start enables the channel. It doesn't wait for anything.
func (ch AnyChannel) Start() {
	ch.ctl.regs.SetBits(chOffset(ch.n, CH_CTRL), CTRL_ENABLE)
}

// RequestAbort asks the controller to stop the channel. The abort completes asynchronously; poll
// IsRunning.
func (ch AnyChannel) RequestAbort() {
	ch.ctl.regs.Set(DMA_CHABORT, ch.bit())
}

// IsRunning is true while the channel is enabled, not aborted and either not yet complete or
// circular.
func (ch AnyChannel) IsRunning() bool {
	r := ch.ctl.regs
	ctrl := r.Get(chOffset(ch.n, CH_CTRL))
	if ctrl&CTRL_ENABLE == 0 {
		return false
	}
	if r.Get(DMA_INTABORTSTS)&ch.bit() != 0 {
		return false
	}
	return r.Get(DMA_INTTCSTS)&ch.bit() == 0 || ctrl&CTRL_INFINITELOOP != 0
}

// RemainingTransfers is the number of source beats still to go.
func (ch AnyChannel) RemainingTransfers() uint32 {
	return ch.ctl.regs.Get(chOffset(ch.n, CH_TRANSIZE))
}

// DisableCircular lets a circular transfer finish at the end of its current pass.
func (ch AnyChannel) DisableCircular() {
	ch.ctl.regs.ClearBits(chOffset(ch.n, CH_CTRL), CTRL_INFINITELOOP)
}

// CompleteCount is the number of completions the interrupt handler has seen on the channel.
func (ch AnyChannel) CompleteCount() uint32 {
	return ch.state().complete.Load()
}

// Wakes is the number of wakes delivered to the channel's waiter.
func (ch AnyChannel) Wakes() uint32 {
	return ch.state().wakes.Load()
}
