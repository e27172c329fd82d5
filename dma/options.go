package dma

import (
	"fmt"
)

type burstKind int

const (
	liner burstKind = iota
	exponential
)

// Burst is the number of beats per burst.
type Burst struct {
	kind burstKind
	n    uint8
}

// Liner bursts are n+1 beats long, n in 0..15.
func Liner(n uint8) Burst {
	return Burst{kind: liner, n: n}
}

// Exponential bursts are 1<<n beats long, n in 0..10.
func Exponential(n uint8) Burst {
	return Burst{kind: exponential, n: n}
}

// Transfers is the number of beats per burst.
func (b Burst) Transfers() int {
	if b.kind == liner {
		return int(b.n) + 1
	}
	return 1 << b.n
}

func (b Burst) burstopt() bool {
	return b.kind == liner
}

func (b Burst) valid() bool {
	if b.kind == liner {
		return b.n <= 15
	}
	return b.n <= 10
}

func (b Burst) String() string {
	if b.kind == liner {
		return fmt.Sprintf("Liner(%d)", b.n)
	}
	return fmt.Sprintf("Exponential(%d)", b.n)
}

// HandshakeMode picks which side, if any, is paced by its peripheral's request line.
type HandshakeMode int

const (
	Normal HandshakeMode = iota
	Source
	Destination
)

func (h HandshakeMode) srcHandshake() bool {
	return h == Source
}

func (h HandshakeMode) dstHandshake() bool {
	return h == Destination
}

type TransferOptions struct {
	Burst    Burst
	Priority bool
	// Circular restarts the transfer each time it completes (INFINITELOOP)
	Circular            bool
	HalfTransferIRQ     bool
	CompleteTransferIRQ bool
	Handshake           HandshakeMode
}

func DefaultOptions() TransferOptions {
	return TransferOptions{
		Burst:               Liner(1),
		Handshake:           Normal,
		CompleteTransferIRQ: true,
	}
}
