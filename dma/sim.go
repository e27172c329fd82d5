package dma

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/Jon-Bright/hpmctl/regs"
	"github.com/Jon-Bright/hpmctl/sysctl"
)

// SIM_MEM_BASE is where simulated buffers are placed in the simulated bus address space.
const SIM_MEM_BASE = uint32(0x01080000)

type simRegion struct {
	base uint32
	mem  []byte
}

type simShadow struct {
	src, dst uint32
	size     uint32
}

// Sim is a Controller over simulated registers, plus an engine that plays the controller's part:
// Step moves the data of every enabled channel, latches the unmasked statuses and reports whether
// the interrupt would fire. An abort waits for a pass in progress to finish, then takes effect.
type Sim struct {
	*Controller
	Regs *regs.Block
	Mux  *regs.Block

	mu      sync.Mutex
	next    uint32
	mem     []*simRegion
	periph  []*regs.Block
	shadows []simShadow
}

func NewSim(sc *sysctl.Controller, kind Kind) (*Sim, error) {
	v := sc.Variant()
	base := v.HDMABase
	if kind == XDMA {
		base = v.XDMABase
	}
	d, err := regs.NewSim(base, DMA_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't create %v: %v", kind, err)
	}
	m, err := regs.NewSim(v.DMAMUXBase, DMAMUX_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't create DMAMUX: %v", err)
	}
	c, err := New(sc, kind, d, m)
	if err != nil {
		return nil, err
	}
	s := &Sim{
		Controller: c,
		Regs:       d,
		Mux:        m,
		next:       SIM_MEM_BASE,
		shadows:    make([]simShadow, c.Channels()),
	}

	for _, off := range []uintptr{DMA_INTHALFSTS, DMA_INTTCSTS, DMA_INTABORTSTS, DMA_INTERRSTS} {
		d.OnStore(off, regs.W1C)
	}
	d.OnStore(DMA_CHABORT, func(_, v uint32) uint32 {
		// An abort lands between passes, never inside one.
		s.mu.Lock()
		defer s.mu.Unlock()
		for n := 0; n < c.Channels(); n++ {
			bit := uint32(1) << uint(n)
			if v&bit == 0 || d.Get(chOffset(n, CH_CTRL))&CTRL_ENABLE == 0 {
				continue
			}
			d.Modify(chOffset(n, CH_CTRL), func(o uint32) uint32 { return o &^ CTRL_ENABLE })
			if d.Get(chOffset(n, CH_CTRL))&CTRL_INTABTMASK == 0 {
				d.Modify(DMA_INTABORTSTS, func(o uint32) uint32 { return o | bit })
			}
		}
		return 0
	})
	for n := 0; n < c.Channels(); n++ {
		n := n
		d.OnStore(chOffset(n, CH_CTRL), func(old, v uint32) uint32 {
			if v&CTRL_ENABLE != 0 && old&CTRL_ENABLE == 0 {
				s.mu.Lock()
				defer s.mu.Unlock()
				s.shadows[n] = simShadow{
					src:  d.Get(chOffset(n, CH_SRCADDR)),
					dst:  d.Get(chOffset(n, CH_DSTADDR)),
					size: d.Get(chOffset(n, CH_TRANSIZE)),
				}
			}
			return v
		})
	}
	return s, nil
}

type simBuf struct {
	s *Sim
	r *simRegion
}

func (b *simBuf) Bytes() []byte {
	return b.r.mem
}

func (b *simBuf) PhysAddr() uint32 {
	return b.r.base
}

func (b *simBuf) Close() error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	for i, r := range b.s.mem {
		if r == b.r {
			b.s.mem = append(b.s.mem[:i], b.s.mem[i+1:]...)
			break
		}
	}
	return nil
}

// NewBuffer returns size bytes of simulated memory at a fresh, 8-byte aligned bus address.
func (s *Sim) NewBuffer(size int) Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &simRegion{base: s.next, mem: make([]byte, size)}
	s.next += (uint32(size) + 7) &^ 7
	s.mem = append(s.mem, r)
	return &simBuf{s: s, r: r}
}

// Attach makes a register block reachable by the simulated controller. Accesses go through the
// block's Get and Set, so its store hooks see every beat.
func (s *Sim) Attach(b *regs.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periph = append(s.periph, b)
}

func (s *Sim) region(addr uint32, n int) ([]byte, bool) {
	for _, r := range s.mem {
		if addr >= r.base && int(addr-r.base)+n <= len(r.mem) {
			return r.mem[addr-r.base : int(addr-r.base)+n], true
		}
	}
	return nil, false
}

func (s *Sim) block(addr uint32) (*regs.Block, uintptr, bool) {
	for _, b := range s.periph {
		if uintptr(addr) >= b.Base() && uintptr(addr) < b.Base()+uintptr(b.Size()) {
			return b, uintptr(addr) - b.Base(), true
		}
	}
	return nil, 0, false
}

func (s *Sim) read(addr uint32, p []byte) bool {
	if m, ok := s.region(addr, len(p)); ok {
		copy(p, m)
		return true
	}
	b, off, ok := s.block(addr)
	if !ok {
		return false
	}
	var w [8]byte
	binary.LittleEndian.PutUint32(w[:], b.Get(off&^3))
	if len(p) == 8 {
		binary.LittleEndian.PutUint32(w[4:], b.Get(off+4))
	}
	copy(p, w[off&3:])
	return true
}

func (s *Sim) write(addr uint32, p []byte) bool {
	if m, ok := s.region(addr, len(p)); ok {
		copy(m, p)
		return true
	}
	b, off, ok := s.block(addr)
	if !ok {
		return false
	}
	if len(p) == 8 {
		b.Set(off, binary.LittleEndian.Uint32(p))
		b.Set(off+4, binary.LittleEndian.Uint32(p[4:]))
		return true
	}
	var w [4]byte
	binary.LittleEndian.PutUint32(w[:], b.Get(off&^3))
	copy(w[off&3:], p)
	b.Set(off&^3, binary.LittleEndian.Uint32(w[:]))
	return true
}

func step(base uint32, ctrl AddrCtrl, i, w int) uint32 {
	switch ctrl {
	case Increment:
		return base + uint32(i*w)
	case Decrement:
		return base - uint32(i*w)
	}
	return base
}

// Step runs one pass of every enabled channel. It returns true if an unmasked status was latched,
// i.e. if the controller's interrupt would now fire.
func (s *Sim) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.Regs
	raised := false
	for n := range s.shadows {
		ctrl := d.Get(chOffset(n, CH_CTRL))
		if ctrl&CTRL_ENABLE == 0 {
			continue
		}
		bit := uint32(1) << uint(n)
		sh := s.shadows[n]
		sw := WordSize((ctrl >> CTRL_SRCWIDTH) & (1<<CTRL_WIDTH_WIDTH - 1)).Bytes()
		dw := WordSize((ctrl >> CTRL_DSTWIDTH) & (1<<CTRL_WIDTH_WIDTH - 1)).Bytes()
		sc := AddrCtrl((ctrl >> CTRL_SRCADDRCTRL) & (1<<CTRL_ADDRCTRL_WIDTH - 1))
		dc := AddrCtrl((ctrl >> CTRL_DSTADDRCTRL) & (1<<CTRL_ADDRCTRL_WIDTH - 1))

		data := make([]byte, int(sh.size)*sw)
		ok := true
		for i := 0; ok && i < int(sh.size); i++ {
			ok = s.read(step(sh.src, sc, i, sw), data[i*sw:(i+1)*sw])
		}
		for j := 0; ok && j < len(data)/dw; j++ {
			ok = s.write(step(sh.dst, dc, j, dw), data[j*dw:(j+1)*dw])
		}
		if !ok {
			d.Modify(chOffset(n, CH_CTRL), func(o uint32) uint32 { return o &^ CTRL_ENABLE })
			if ctrl&CTRL_INTERRMASK == 0 {
				d.Modify(DMA_INTERRSTS, func(o uint32) uint32 { return o | bit })
				raised = true
			}
			continue
		}

		d.Force(chOffset(n, CH_TRANSIZE), 0)
		if ctrl&CTRL_INTHALFCNTMASK == 0 {
			d.Modify(DMA_INTHALFSTS, func(o uint32) uint32 { return o | bit })
			raised = true
		}
		if ctrl&CTRL_INTTCMASK == 0 {
			d.Modify(DMA_INTTCSTS, func(o uint32) uint32 { return o | bit })
			raised = true
		}
		if ctrl&CTRL_INFINITELOOP != 0 {
			d.Force(chOffset(n, CH_TRANSIZE), sh.size)
		} else {
			d.Modify(chOffset(n, CH_CTRL), func(o uint32) uint32 { return o &^ CTRL_ENABLE })
		}
	}
	return raised
}

// Run steps the simulation every interval until ctx is done.
func (s *Sim) Run(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Step()
		}
	}
}

// Serve runs the simulation and the controller's interrupt handler until the returned function
// is called. That function waits for both to return, after which the registers may be closed.
func (s *Sim) Serve(every time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Run(ctx, every) // Ignore error, always ctx.Err()
	}()
	go func() {
		defer wg.Done()
		s.ServeIRQ(ctx, every) // Ignore error, always ctx.Err()
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
