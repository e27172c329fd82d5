package dma

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jon-Bright/hpmctl/regs"
	"github.com/Jon-Bright/hpmctl/sysctl"
)

func newTestSysctl(t *testing.T, chip string) *sysctl.Sim {
	v, err := sysctl.Lookup(chip)
	if err != nil {
		t.Fatalf("Failed Lookup: %v", err)
	}
	sc, err := sysctl.NewSim(v)
	if err != nil {
		t.Fatalf("Failed sysctl.NewSim: %v", err)
	}
	t.Cleanup(func() { sc.Close() })
	return sc
}

func newTestSim(t *testing.T, chip string, kind Kind) *Sim {
	sc := newTestSysctl(t, chip)
	s, err := NewSim(sc.Controller, kind)
	if err != nil {
		t.Fatalf("Failed NewSim: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if !sc.Linked(mustResource(t, sc.Variant(), kind.String()), 0) {
		t.Fatalf("%v not linked into group 0", kind)
	}
	return s
}

func mustResource(t *testing.T, v *sysctl.Variant, name string) int {
	r, ok := v.Resource(name)
	if !ok {
		t.Fatalf("No resource %s", name)
	}
	return r
}

func expectPanic(t *testing.T, what string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s didn't panic", what)
		}
	}()
	f()
}

func fill(b Buffer) {
	for i := range b.Bytes() {
		b.Bytes()[i] = byte(i*7 + 3)
	}
}

func TestConfigureAlignment(t *testing.T) {
	s := newTestSim(t, "hpm6e", XDMA)
	ch := s.Channel(0)
	const base = uint32(0x01080000)
	for _, w := range WordSizes {
		for off := 1; off < w.Bytes(); off++ {
			cfg := ChannelConfig{
				Dir:      MemoryToMemory,
				Src:      base,
				SrcWidth: w,
				Dst:      base + 0x100 + uint32(off),
				DstWidth: w,
				Bytes:    64,
				Options:  DefaultOptions(),
			}
			expectPanic(t, "Misaligned destination", func() { ch.Configure(cfg) })

			cfg.Dst = base + 0x100
			cfg.Src = base + uint32(off)
			expectPanic(t, "Misaligned source", func() { ch.Configure(cfg) })

			cfg.Src = base
			cfg.Bytes = 64 + off
			expectPanic(t, "Misaligned size", func() { ch.Configure(cfg) })
		}
		ch.Configure(ChannelConfig{ // Must not panic
			Dir:      MemoryToMemory,
			Src:      base,
			SrcWidth: w,
			Dst:      base + 0x100,
			DstWidth: w,
			Bytes:    64,
			Options:  DefaultOptions(),
		})
	}
	expectPanic(t, "Zero length", func() {
		ch.Configure(ChannelConfig{Src: base, Dst: base + 0x100, Options: DefaultOptions()})
	})
	expectPanic(t, "Oversized burst", func() {
		o := DefaultOptions()
		o.Burst = Exponential(11)
		ch.Configure(ChannelConfig{Src: base, Dst: base + 0x100, Bytes: 4, Options: o})
	})
}

func TestHDMARejectsDoubleWords(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	expectPanic(t, "Double word on HDMA", func() {
		s.Channel(0).Configure(ChannelConfig{
			Src:      0x01080000,
			SrcWidth: EightBytes,
			Dst:      0x01080100,
			DstWidth: EightBytes,
			Bytes:    64,
			Options:  DefaultOptions(),
		})
	})
}

func TestConfigureRegisters(t *testing.T) {
	s := newTestSim(t, "hpm6e", XDMA)
	ch := s.XDMA(3).Degrade()
	if ch.MuxNum() != 35 {
		t.Errorf("MuxNum, got: %d, want: 35", ch.MuxNum())
	}
	s.Regs.Force(DMA_INTTCSTS, 0xFFFFFFFF)
	o := DefaultOptions()
	o.Burst = Exponential(2)
	o.Priority = true
	o.HalfTransferIRQ = true
	o.Handshake = Destination
	ch.Configure(ChannelConfig{
		Request:  17,
		Dir:      MemoryToPeripheral,
		Src:      0x01080000,
		SrcWidth: FourBytes,
		SrcCtrl:  Increment,
		Dst:      0xF0060010,
		DstWidth: FourBytes,
		DstCtrl:  Fixed,
		Bytes:    1024,
		Options:  o,
	})

	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"SRCADDR", s.Regs.Get(chOffset(3, CH_SRCADDR)), 0x01080000},
		{"DSTADDR", s.Regs.Get(chOffset(3, CH_DSTADDR)), 0xF0060010},
		{"TRANSIZE", s.Regs.Get(chOffset(3, CH_TRANSIZE)), 256},
		{"CHANREQCTRL", s.Regs.Get(chOffset(3, CH_CHANREQCTRL)), 35 << CHANREQ_DSTREQSEL},
		{"INTTCSTS", s.Regs.Get(DMA_INTTCSTS), 0xFFFFFFF7},
		{"MUXCFG", s.Mux.Get(35 * 4), DMAMUX_ENABLE | 17},
		{"CTRL", s.Regs.Get(chOffset(3, CH_CTRL)), CTRL_HANDSHAKEOPT | CTRL_PRIORITY | CTRL_DSTMODE |
			2<<CTRL_SRCBURSTSIZE | 2<<CTRL_SRCWIDTH | 2<<CTRL_DSTWIDTH | uint32(Fixed)<<CTRL_DSTADDRCTRL},
	}
	for _, test := range tests {
		if test.got != test.want {
			t.Errorf("%s, got: %08X, want: %08X", test.name, test.got, test.want)
		}
	}
	if ch.IsRunning() {
		t.Errorf("Channel running before Start")
	}
}

func TestMemToMem(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(256)
	dst := s.NewBuffer(256)
	fill(src)
	o := DefaultOptions()
	o.Burst = Liner(7)
	tr := NewMemToMem(s.HDMA(2), src, dst, OneByte, o)
	defer tr.Close()

	if !tr.IsRunning() {
		t.Fatalf("Transfer not running after start")
	}
	if got := s.Regs.Get(chOffset(2, CH_CTRL)); got&CTRL_BURSTOPT == 0 || got>>CTRL_SRCBURSTSIZE&0xF != 7 {
		t.Errorf("CTRL burst, got: %08X, want Liner(7)", got)
	}
	if s.Mux.Get(2*4) != 0 {
		t.Errorf("Memory to memory transfer routed a request, MUXCFG: %08X", s.Mux.Get(2*4))
	}
	if !s.Step() {
		t.Fatalf("Step didn't raise the interrupt")
	}
	s.OnIRQ()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		t.Fatalf("Failed Wait: %v", err)
	}
	if got := tr.RemainingTransfers(); got != 0 {
		t.Errorf("RemainingTransfers, got: %d, want: 0", got)
	}
	if !bytes.Equal(src.Bytes(), dst.Bytes()) {
		t.Errorf("Destination differs from source")
	}
	if got := tr.Channel().CompleteCount(); got != 1 {
		t.Errorf("CompleteCount, got: %d, want: 1", got)
	}
}

func TestWakeOnce(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(64)
	dst := s.NewBuffer(64)
	tr := NewMemToMem(s.HDMA(0), src, dst, FourBytes, DefaultOptions())
	defer tr.Close()

	if tr.Poll() {
		t.Fatalf("Poll ready before the transfer ran")
	}
	s.Step()
	s.OnIRQ()
	s.OnIRQ() // Nothing latched, no wake
	if got := tr.Channel().Wakes(); got != 1 {
		t.Errorf("Wakes, got: %d, want: 1", got)
	}
	if got := len(tr.Channel().state().wake); got != 1 {
		t.Errorf("Pending wakes, got: %d, want: 1", got)
	}
	if !tr.Poll() {
		t.Errorf("Poll not ready after the interrupt")
	}
}

func TestCloseAfterCompletion(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(32)
	dst := s.NewBuffer(32)
	ch := s.HDMA(5)
	tr := NewMemToMem(ch, src, dst, TwoBytes, DefaultOptions())
	s.Step()
	s.OnIRQ()

	aborts := 0
	s.Regs.OnStore(DMA_CHABORT, func(_, v uint32) uint32 {
		aborts++
		return 0
	})
	if err := tr.Close(); err != nil {
		t.Errorf("Failed Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Failed second Close: %v", err)
	}
	if aborts != 0 {
		t.Errorf("Close of a finished transfer aborted %d times", aborts)
	}

	tr = NewMemToMem(ch, src, dst, TwoBytes, DefaultOptions())
	if !tr.IsRunning() {
		t.Errorf("Restarted transfer isn't running")
	}
	s.Step()
	if tr.IsRunning() {
		t.Errorf("Restarted transfer didn't complete")
	}
}

func TestCloseAbortsRunning(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(128)
	dst := s.NewBuffer(128)
	fill(src)
	tr := NewMemToMem(s.HDMA(1), src, dst, FourBytes, DefaultOptions())
	tr.Poll()
	if err := tr.Close(); err != nil {
		t.Fatalf("Failed Close: %v", err)
	}
	if tr.IsRunning() {
		t.Errorf("Transfer running after Close")
	}
	if !s.Regs.HasBits(DMA_INTABORTSTS, 1<<1) {
		t.Errorf("Abort status not latched, got: %08X", s.Regs.Get(DMA_INTABORTSTS))
	}
	s.Step()
	if !bytes.Equal(dst.Bytes(), make([]byte, 128)) {
		t.Errorf("Aborted transfer wrote to its destination")
	}
	s.OnIRQ()
	if got := tr.Channel().Wakes(); got != 1 {
		t.Errorf("Wakes after abort, got: %d, want: 1", got)
	}
	if got := tr.Channel().CompleteCount(); got != 0 {
		t.Errorf("CompleteCount after abort, got: %d, want: 0", got)
	}
}

func TestCloseDuringPass(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	p, err := regs.NewSim(0xF0060000, 0x100)
	if err != nil {
		t.Fatalf("Failed regs.NewSim: %v", err)
	}
	defer p.Close()
	var stores atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	p.OnStore(0x10, func(_, v uint32) uint32 {
		if stores.Add(1) == 1 {
			close(started)
			<-release
		}
		return v
	})
	s.Attach(p)

	buf := s.NewBuffer(64)
	o := DefaultOptions()
	o.Circular = true
	tr := NewWrite(s.HDMA(2), 9, buf, 0xF0060010, FourBytes, o)

	stepped := make(chan struct{})
	go func() {
		s.Step()
		close(stepped)
	}()
	<-started
	closed := make(chan struct{})
	go func() {
		tr.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Errorf("Close returned while a pass was moving data")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-stepped
	<-closed

	n := stores.Load()
	if n != 16 {
		t.Errorf("Stores in the interrupted pass, got: %d, want: 16", n)
	}
	s.Step()
	if got := stores.Load(); got != n {
		t.Errorf("Stores after Close returned, got: %d, want: 0", got-n)
	}
	if tr.IsRunning() {
		t.Errorf("Transfer running after Close")
	}
	if !s.Regs.HasBits(DMA_INTABORTSTS, 1<<2) {
		t.Errorf("Abort status not latched, got: %08X", s.Regs.Get(DMA_INTABORTSTS))
	}
}

func TestStartOnRunningChannelPanics(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(16)
	dst := s.NewBuffer(16)
	tr := NewMemToMem(s.HDMA(3), src, dst, FourBytes, DefaultOptions())
	expectPanic(t, "Second transfer on a running channel", func() {
		NewMemToMem(s.HDMA(3), src, dst, FourBytes, DefaultOptions())
	})
	tr.Close()
	tr = NewMemToMem(s.HDMA(3), src, dst, FourBytes, DefaultOptions())
	if !tr.IsRunning() {
		t.Errorf("Transfer on an aborted channel isn't running")
	}
	tr.Close()
}

func TestCircular(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(16)
	dst := s.NewBuffer(16)
	o := DefaultOptions()
	o.Circular = true
	tr := NewMemToMem(s.HDMA(7), src, dst, FourBytes, o)
	defer tr.Close()

	for i := 0; i < 3; i++ {
		s.Step()
		s.OnIRQ()
		if !tr.IsRunning() {
			t.Fatalf("Circular transfer stopped after pass %d", i)
		}
		if got := tr.RemainingTransfers(); got != 4 {
			t.Errorf("RemainingTransfers after pass %d, got: %d, want: 4", i, got)
		}
	}
	tr.Channel().DisableCircular()
	s.Step()
	s.OnIRQ()
	if tr.IsRunning() {
		t.Errorf("Transfer still running after DisableCircular")
	}
	if got := tr.Channel().CompleteCount(); got != 4 {
		t.Errorf("CompleteCount, got: %d, want: 4", got)
	}
}

func TestErrorPanics(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(16)
	tr := NewWrite(s.HDMA(0), 3, src, 0xF0000000, FourBytes, DefaultOptions())
	defer tr.Close()
	s.Step()
	if !s.Regs.HasBits(DMA_INTERRSTS, 1) {
		t.Fatalf("Bus error not latched, got: %08X", s.Regs.Get(DMA_INTERRSTS))
	}
	expectPanic(t, "OnIRQ with an error", s.OnIRQ)
}

func TestWriteToPeripheral(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	p, err := regs.NewSim(0xF0060000, 0x100)
	if err != nil {
		t.Fatalf("Failed regs.NewSim: %v", err)
	}
	defer p.Close()
	var got []uint32
	p.OnStore(0x10, func(_, v uint32) uint32 {
		got = append(got, v)
		return v
	})
	s.Attach(p)

	buf := s.NewBuffer(16)
	copy(Uint32Slice(buf), []uint32{0x100, 0x200, 0x300, 0xFFF})
	tr := NewWrite(s.HDMA(4), 9, buf, 0xF0060010, FourBytes, DefaultOptions())
	defer tr.Close()
	if got := s.Mux.Get(4 * 4); got != DMAMUX_ENABLE|9 {
		t.Errorf("MUXCFG, got: %08X, want: %08X", got, DMAMUX_ENABLE|9)
	}
	if got := s.Regs.Get(chOffset(4, CH_CHANREQCTRL)); got != 4<<CHANREQ_DSTREQSEL {
		t.Errorf("CHANREQCTRL, got: %08X, want: %08X", got, 4<<CHANREQ_DSTREQSEL)
	}
	s.Step()
	want := []uint32{0x100, 0x200, 0x300, 0xFFF}
	if len(got) != len(want) {
		t.Fatalf("Peripheral stores, got: %v, want: %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Store %d, got: %03X, want: %03X", i, got[i], want[i])
		}
	}

	got = nil
	rep := NewWriteRepeated(s.HDMA(6), 9, buf, 3, 0xF0060010, FourBytes, DefaultOptions())
	defer rep.Close()
	s.Step()
	if len(got) != 3 || got[0] != 0x100 || got[2] != 0x100 {
		t.Errorf("Repeated stores, got: %v, want three of 100", got)
	}
}

func TestReadFromPeripheral(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	p, err := regs.NewSim(0xF0050000, 0x100)
	if err != nil {
		t.Fatalf("Failed regs.NewSim: %v", err)
	}
	defer p.Close()
	p.Force(0x20, 0xABCD)
	s.Attach(p)
	buf := s.NewBuffer(8)
	tr := NewRead(s.HDMA(3), 2, 0xF0050020, buf, FourBytes, DefaultOptions())
	defer tr.Close()
	if got := s.Regs.Get(chOffset(3, CH_CHANREQCTRL)); got != 3<<CHANREQ_SRCREQSEL {
		t.Errorf("CHANREQCTRL, got: %08X, want: %08X", got, 3<<CHANREQ_SRCREQSEL)
	}
	s.Step()
	if w := Uint32Slice(buf); w[0] != 0xABCD || w[1] != 0xABCD {
		t.Errorf("Read words, got: %X, want: [ABCD ABCD]", w)
	}
}

func TestWaitContext(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	src := s.NewBuffer(8)
	dst := s.NewBuffer(8)
	tr := NewMemToMem(s.HDMA(0), src, dst, OneByte, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait on a cancelled context, got: %v, want: %v", err, context.Canceled)
	}
	if !tr.IsRunning() {
		t.Errorf("Cancelled Wait stopped the transfer")
	}
	tr.Close()
}

func TestServeIRQ(t *testing.T) {
	s := newTestSim(t, "hpm6e", XDMA)
	stop := s.Serve(time.Millisecond)
	defer stop()

	src := s.NewBuffer(4096)
	dst := s.NewBuffer(4096)
	fill(src)
	tr := NewMemToMem(s.XDMA(31), src, dst, EightBytes, DefaultOptions())
	defer tr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		t.Fatalf("Failed Wait: %v", err)
	}
	if !bytes.Equal(src.Bytes(), dst.Bytes()) {
		t.Errorf("Destination differs from source")
	}
}

func TestBindIRQTwice(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	s.BindIRQ()
	expectPanic(t, "Second BindIRQ", s.BindIRQ)
}

func TestChannelHandles(t *testing.T) {
	s := newTestSim(t, "hpm53", HDMA)
	expectPanic(t, "XDMA channel from HDMA", func() { s.XDMA(0) })
	expectPanic(t, "Channel out of range", func() { s.Channel(32) })
	chans := []Channel{s.HDMA(1), s.Channel(2)}
	if chans[0].Degrade().Num() != 1 || chans[1].Degrade().String() != "HDMA2" {
		t.Errorf("Degraded channels, got: %v, %v", chans[0].Degrade(), chans[1].Degrade())
	}
	if _, err := NewSim(newTestSysctl(t, "hpm53").Controller, XDMA); err == nil {
		t.Errorf("NewSim(XDMA) succeeded on a part without XDMA")
	}
}

func TestOptions(t *testing.T) {
	o := DefaultOptions()
	if o.Burst != Liner(1) || o.Handshake != Normal || o.Priority || o.Circular || o.HalfTransferIRQ || !o.CompleteTransferIRQ {
		t.Errorf("DefaultOptions, got: %+v", o)
	}
	tests := []struct {
		b    Burst
		want int
	}{
		{Liner(0), 1},
		{Liner(7), 8},
		{Liner(15), 16},
		{Exponential(0), 1},
		{Exponential(3), 8},
		{Exponential(10), 1024},
	}
	for _, test := range tests {
		if got := test.b.Transfers(); got != test.want {
			t.Errorf("%v.Transfers(), got: %d, want: %d", test.b, got, test.want)
		}
	}
}
