package dma

import (
	"fmt"
)

// WordSize is the width of one DMA beat.
type WordSize int

const (
	OneByte WordSize = iota
	TwoBytes
	FourBytes
	EightBytes
)

var WordSizes = []WordSize{OneByte, TwoBytes, FourBytes, EightBytes}

// Bytes is the number of bytes moved per beat.
func (w WordSize) Bytes() int {
	return 1 << uint(w)
}

// Aligned reports whether addr is a multiple of the word size.
func (w WordSize) Aligned(addr uint32) bool {
	return addr%uint32(w.Bytes()) == 0
}

// width is the SRCWIDTH/DSTWIDTH encoding.
func (w WordSize) width() uint32 {
	return uint32(w)
}

func (w WordSize) String() string {
	switch w {
	case OneByte:
		return "byte"
	case TwoBytes:
		return "half-word"
	case FourBytes:
		return "word"
	case EightBytes:
		return "double-word"
	}
	return fmt.Sprintf("WordSize(%d)", int(w))
}

// AddrCtrl says how an address moves after each beat.
type AddrCtrl int

const (
	Increment AddrCtrl = iota
	Decrement
	Fixed
)

// Dir is the direction of a transfer. It decides which side's request line the channel listens to.
type Dir int

const (
	MemoryToMemory Dir = iota
	MemoryToPeripheral
	PeripheralToMemory
)

func (d Dir) String() string {
	switch d {
	case MemoryToMemory:
		return "mem->mem"
	case MemoryToPeripheral:
		return "mem->periph"
	case PeripheralToMemory:
		return "periph->mem"
	}
	return fmt.Sprintf("Dir(%d)", int(d))
}
