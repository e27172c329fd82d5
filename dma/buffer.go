package dma

import (
	"encoding/binary"
	"fmt"
	"log"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

const PAGEMAP_FILE = "/proc/self/pagemap"

const (
	PAGEMAP_PRESENT  = uint64(1) << 63
	PAGEMAP_PFN_MASK = uint64(1)<<55 - 1
)

// Buffer is memory a channel can read or write. PhysAddr is the bus address of Bytes()[0].
type Buffer interface {
	Bytes() []byte
	PhysAddr() uint32
	Close() error
}

// Uint32Slice views a buffer as words. The buffer length must be a multiple of 4.
func Uint32Slice(b Buffer) []uint32 {
	buf := b.Bytes()
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&buf[0])), len(buf)/4)
}

type physBuf struct {
	mem  mmap.MMap
	phys uint32
}

func (pb *physBuf) Bytes() []byte {
	return pb.mem
}

func (pb *physBuf) PhysAddr() uint32 {
	return pb.phys
}

func (pb *physBuf) Close() error {
	if pb.mem == nil {
		return nil
	}
	err := pb.mem.Unlock()
	if err != nil {
		return fmt.Errorf("couldn't unlock buffer %08X: %v", pb.phys, err)
	}
	err = pb.mem.Unmap()
	if err != nil {
		return fmt.Errorf("couldn't unmap buffer %08X: %v", pb.phys, err)
	}
	pb.mem = nil
	return nil
}

// AllocBuffer gets size bytes of locked memory and looks up its physical address. The memory has
// to be physically contiguous, which in practice limits it to one page unless the kernel happens
// to hand out neighbouring frames. Reading physical addresses needs CAP_SYS_ADMIN.
func AllocBuffer(size int) (Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer size %d", size)
	}
	mm, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("couldn't map %d bytes: %v", size, err)
	}
	err = mm.Lock()
	if err != nil {
		mm.Unmap() // Ignore error
		return nil, fmt.Errorf("couldn't lock %d bytes: %v", size, err)
	}
	pageSize := unix.Getpagesize()
	for i := 0; i < len(mm); i += pageSize {
		mm[i] = 0 // Fault the page in
	}
	phys, err := physAddr(mm, pageSize)
	if err != nil {
		mm.Unlock() // Ignore error
		mm.Unmap()  // Ignore error
		return nil, err
	}
	log.Printf("Allocated %d byte DMA buffer at %08X", size, phys)
	return &physBuf{mem: mm, phys: phys}, nil
}

func physAddr(mm mmap.MMap, pageSize int) (uint32, error) {
	fd, err := unix.Open(PAGEMAP_FILE, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("couldn't open %s: %v", PAGEMAP_FILE, err)
	}
	defer unix.Close(fd) // Ignore error

	virt := uintptr(unsafe.Pointer(&mm[0]))
	var first uint64
	entry := make([]byte, 8)
	for i := 0; i*pageSize < len(mm); i++ {
		page := (virt + uintptr(i*pageSize)) / uintptr(pageSize)
		_, err := unix.Pread(fd, entry, int64(page*8))
		if err != nil {
			return 0, fmt.Errorf("couldn't read pagemap for %X: %v", page, err)
		}
		e := binary.LittleEndian.Uint64(entry)
		if e&PAGEMAP_PRESENT == 0 {
			return 0, fmt.Errorf("page %X not present", page)
		}
		pfn := e & PAGEMAP_PFN_MASK
		if pfn == 0 {
			return 0, fmt.Errorf("pagemap hides frame numbers, need CAP_SYS_ADMIN")
		}
		if i == 0 {
			first = pfn
		} else if pfn != first+uint64(i) {
			return 0, fmt.Errorf("buffer isn't physically contiguous at page %d", i)
		}
	}
	phys := first*uint64(pageSize) + uint64(virt%uintptr(pageSize))
	if phys > 0xFFFFFFFF {
		return 0, fmt.Errorf("buffer at %X is above 4GB", phys)
	}
	return uint32(phys), nil
}
