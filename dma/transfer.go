package dma

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
)

// Transfer is one configured and started use of a channel. It keeps its buffers referenced until
// Close has made sure the controller no longer touches them.
type Transfer struct {
	ch     AnyChannel
	bufs   []Buffer
	closed atomic.Bool
}

// newTransfer panics if ch is still running a transfer; Close that first.
func newTransfer(ch Channel, cfg ChannelConfig, bufs ...Buffer) *Transfer {
	a := ch.Degrade()
	if a.IsRunning() {
		panic(fmt.Sprintf("dma: channel %d is still running", a.n))
	}
	t := &Transfer{ch: a, bufs: bufs}
	t.ch.Configure(cfg)
	t.ch.Start()
	return t
}

// NewRead starts moving len(buf) bytes from the peripheral register at periph into buf, one
// word of size w per request.
func NewRead(ch Channel, request uint8, periph uint32, buf Buffer, w WordSize, opts TransferOptions) *Transfer {
	return newTransfer(ch, ChannelConfig{
		Request:  request,
		Dir:      PeripheralToMemory,
		Src:      periph,
		SrcWidth: w,
		SrcCtrl:  Fixed,
		Dst:      buf.PhysAddr(),
		DstWidth: w,
		DstCtrl:  Increment,
		Bytes:    len(buf.Bytes()),
		Options:  opts,
	}, buf)
}

// NewWrite starts moving buf into the peripheral register at periph.
func NewWrite(ch Channel, request uint8, buf Buffer, periph uint32, w WordSize, opts TransferOptions) *Transfer {
	return newTransfer(ch, ChannelConfig{
		Request:  request,
		Dir:      MemoryToPeripheral,
		Src:      buf.PhysAddr(),
		SrcWidth: w,
		SrcCtrl:  Increment,
		Dst:      periph,
		DstWidth: w,
		DstCtrl:  Fixed,
		Bytes:    len(buf.Bytes()),
		Options:  opts,
	}, buf)
}

// NewWriteRepeated writes the first word of buf to periph count times.
func NewWriteRepeated(ch Channel, request uint8, buf Buffer, count int, periph uint32, w WordSize, opts TransferOptions) *Transfer {
	return newTransfer(ch, ChannelConfig{
		Request:  request,
		Dir:      MemoryToPeripheral,
		Src:      buf.PhysAddr(),
		SrcWidth: w,
		SrcCtrl:  Fixed,
		Dst:      periph,
		DstWidth: w,
		DstCtrl:  Fixed,
		Bytes:    count * w.Bytes(),
		Options:  opts,
	}, buf)
}

// NewMemToMem copies src into dst. The length is that of the shorter buffer.
func NewMemToMem(ch Channel, src, dst Buffer, w WordSize, opts TransferOptions) *Transfer {
	n := len(src.Bytes())
	if len(dst.Bytes()) < n {
		n = len(dst.Bytes())
	}
	return newTransfer(ch, ChannelConfig{
		Dir:      MemoryToMemory,
		Src:      src.PhysAddr(),
		SrcWidth: w,
		SrcCtrl:  Increment,
		Dst:      dst.PhysAddr(),
		DstWidth: w,
		DstCtrl:  Increment,
		Bytes:    n,
		Options:  opts,
	}, src, dst)
}

func (t *Transfer) Channel() AnyChannel {
	return t.ch
}

func (t *Transfer) IsRunning() bool {
	return t.ch.IsRunning()
}

func (t *Transfer) RemainingTransfers() uint32 {
	return t.ch.RemainingTransfers()
}

func (t *Transfer) RequestAbort() {
	t.ch.RequestAbort()
}

// Poll arms the channel's waker and reports whether the transfer has stopped. The waker is armed
// before the check so that an interrupt arriving in between is never lost.
func (t *Transfer) Poll() bool {
	t.ch.state().register()
	return !t.ch.IsRunning()
}

// Wait blocks until the transfer stops or ctx is done. Giving up on ctx leaves the transfer
// running; Close stops it.
func (t *Transfer) Wait(ctx context.Context) error {
	s := t.ch.state()
	for {
		if t.Poll() {
			return nil
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the transfer if it's still running and only returns once the controller has let go
// of the buffers. Closing again does nothing.
func (t *Transfer) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if t.ch.IsRunning() {
		t.ch.RequestAbort()
		for t.ch.IsRunning() {
			runtime.Gosched()
		}
	}
	// IsRunning's atomic loads order every later buffer access after the controller stopped.
	t.bufs = nil
	return nil
}
