package dma

import (
	"sync/atomic"
)

// ChannelState is shared between the interrupt handler, which only wakes, and the single
// Transfer currently using the channel, which registers and waits.
type ChannelState struct {
	wake     chan struct{}
	armed    atomic.Bool
	wakes    atomic.Uint32
	complete atomic.Uint32
}

func newChannelState() ChannelState {
	return ChannelState{wake: make(chan struct{}, 1)}
}

// register arms the waker. A wake that arrived before an earlier register is discarded.
func (s *ChannelState) register() {
	select {
	case <-s.wake:
	default:
	}
	s.armed.Store(true)
}

// fire delivers at most one wake per register.
func (s *ChannelState) fire() {
	if !s.armed.Swap(false) {
		return
	}
	s.wakes.Add(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
