// Package regs maps memory-mapped peripheral register blocks into the process, either from
// /dev/mem on a real part or as anonymous memory for simulation.
package regs

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

const MEM_FILE = "/dev/mem"

// StoreHook is called with the current register contents and the value being written. It
// returns what the register should contain afterwards.
type StoreHook func(old, v uint32) uint32

// Block is a window of 32-bit registers. All accesses are single 32-bit atomic loads and stores
// so that the compiler never merges or elides them.
type Block struct {
	mem  mmap.MMap
	offs uintptr
	base uintptr
	size int

	mu    sync.Mutex
	hooks map[uintptr]StoreHook
}

// Map opens /dev/mem and maps size bytes at the physical address phys. Since the mapping has to
// start at a page boundary, the mapping is rounded down and the returned Block hides the offset.
func Map(phys uintptr, size int) (*Block, error) {
	fd, err := unix.Open(MEM_FILE, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %v", MEM_FILE, err)
	}
	f := os.NewFile(uintptr(fd), MEM_FILE)
	defer f.Close() // Ignore error, the mapping survives the close

	pagemask := ^uintptr(unix.Getpagesize() - 1)
	mapAddr := phys & pagemask
	mapSize := size + int(phys-mapAddr)
	mm, err := mmap.MapRegion(f, mapSize, mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		return nil, fmt.Errorf("couldn't map region (%08X, %v): %v", phys, size, err)
	}
	log.Printf("Mapped %d bytes at %08X, offset %d", mapSize, mapAddr, phys-mapAddr)
	return &Block{mem: mm, offs: phys - mapAddr, base: phys, size: size}, nil
}

// NewSim returns a zeroed Block that pretends to live at base. Nothing outside the process sees
// it; simulators attach store hooks to model hardware side effects.
func NewSim(base uintptr, size int) (*Block, error) {
	mm, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("couldn't map %d anonymous bytes for %08X: %v", size, base, err)
	}
	return &Block{mem: mm, base: base, size: size}, nil
}

func (b *Block) reg(off uintptr) *uint32 {
	if off&3 != 0 || int(off)+4 > b.size {
		panic(fmt.Sprintf("regs: offset %#x outside block %08X[%d]", off, b.base, b.size))
	}
	return (*uint32)(unsafe.Pointer(&b.mem[b.offs+off]))
}

// Base is the physical address of the first register.
func (b *Block) Base() uintptr {
	return b.base
}

// Size of the window in bytes.
func (b *Block) Size() int {
	return b.size
}

func (b *Block) Get(off uintptr) uint32 {
	return atomic.LoadUint32(b.reg(off))
}

// Set stores v at off. If a hook is registered for off, it decides the resulting contents.
func (b *Block) Set(off uintptr, v uint32) {
	r := b.reg(off)
	b.mu.Lock()
	if h, ok := b.hooks[off]; ok {
		v = h(atomic.LoadUint32(r), v)
	}
	atomic.StoreUint32(r, v)
	b.mu.Unlock()
}

// Force stores v at off without running any hook. It's meant for simulators playing the
// hardware side of a register.
func (b *Block) Force(off uintptr, v uint32) {
	atomic.StoreUint32(b.reg(off), v)
}

// Modify atomically applies fn to the register, bypassing hooks. Used by simulators.
func (b *Block) Modify(off uintptr, fn func(uint32) uint32) {
	r := b.reg(off)
	for {
		old := atomic.LoadUint32(r)
		if atomic.CompareAndSwapUint32(r, old, fn(old)) {
			return
		}
	}
}

func (b *Block) SetBits(off uintptr, mask uint32) {
	b.Set(off, b.Get(off)|mask)
}

func (b *Block) ClearBits(off uintptr, mask uint32) {
	b.Set(off, b.Get(off)&^mask)
}

func (b *Block) HasBits(off uintptr, mask uint32) bool {
	return b.Get(off)&mask == mask
}

// Field extracts width bits starting at shift.
func (b *Block) Field(off uintptr, shift, width uint) uint32 {
	return (b.Get(off) >> shift) & (1<<width - 1)
}

// SetField replaces width bits starting at shift with v, leaving the rest of the register alone.
func (b *Block) SetField(off uintptr, shift, width uint, v uint32) {
	mask := uint32(1<<width-1) << shift
	b.Set(off, b.Get(off)&^mask|(v<<shift)&mask)
}

// OnStore installs h for the register at off. Only useful on simulated blocks.
func (b *Block) OnStore(off uintptr, h StoreHook) {
	b.reg(off) // bounds check
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hooks == nil {
		b.hooks = make(map[uintptr]StoreHook)
	}
	b.hooks[off] = h
}

// W1C is a StoreHook for write-one-to-clear status registers.
func W1C(old, v uint32) uint32 {
	return old &^ v
}

func (b *Block) Close() error {
	if b.mem == nil {
		return nil
	}
	err := b.mem.Unmap()
	if err != nil {
		return fmt.Errorf("couldn't unmap block %08X: %v", b.base, err)
	}
	return nil
}
