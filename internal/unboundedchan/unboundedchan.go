// Package unboundedchan provides a FIFO queue whose ends are channels, so
// producers never block on a slow consumer.
package unboundedchan

import (
	"sync"
	"sync/atomic"
)

// UnboundedChannel represents an unbounded queue, but data are entered and removed via channels.
// Use pointers or small values for T; every queued item is held in memory.
type UnboundedChannel[T any] struct {
	in      chan T
	out     chan T
	pending atomic.Int64
	closed  bool
	mu      sync.RWMutex
}

// NewUnboundedChannel creates an UnboundedChannel and starts the goroutine
// that moves items from In to Out.
func NewUnboundedChannel[T any]() *UnboundedChannel[T] {
	uc := &UnboundedChannel[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go uc.run()
	return uc
}

func (uc *UnboundedChannel[T]) run() {
	defer close(uc.out)
	var queue []T
	for {
		if len(queue) == 0 {
			val, ok := <-uc.in
			if !ok {
				return
			}
			queue = append(queue, val)
			continue
		}
		select {
		case uc.out <- queue[0]:
			var zero T
			queue[0] = zero
			queue = queue[1:]
			uc.pending.Add(-1)
		case val, ok := <-uc.in:
			if !ok {
				// Input closed: drain what is queued, then close Out.
				for _, item := range queue {
					uc.out <- item
					uc.pending.Add(-1)
				}
				return
			}
			queue = append(queue, val)
		}
	}
}

// Send queues val. It blocks only until the queue goroutine accepts it.
// It returns false, dropping val, if the channel is already closed.
func (uc *UnboundedChannel[T]) Send(val T) bool {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.closed {
		return false
	}
	uc.pending.Add(1)
	uc.in <- val
	return true
}

// Close stops accepting items. Queued items are still delivered on Out,
// which is closed after the last one. Closing twice is harmless.
func (uc *UnboundedChannel[T]) Close() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if !uc.closed {
		uc.closed = true
		close(uc.in)
	}
}

// Len is the number of items sent but not yet received.
func (uc *UnboundedChannel[T]) Len() int {
	return int(uc.pending.Load())
}

// Out returns the output channel for receiving data
func (uc *UnboundedChannel[T]) Out() <-chan T {
	return uc.out
}
