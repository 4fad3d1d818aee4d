package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBufferOverflow is returned by Add when the buffer is full and
	// overflow is disabled.
	ErrBufferOverflow = errors.New("ingest: buffer overflow")

	// ErrBufferClosed is returned by Add after Close, and by Remove once
	// a closed buffer is drained.
	ErrBufferClosed = errors.New("ingest: buffer closed")
)

// Buffer is a bounded FIFO of packet frames between one producer and one
// consumer. It holds capacity+1 slots so that a full ring is
// distinguishable from an empty one.
type Buffer struct {
	mu            sync.Mutex
	slots         [][]byte
	read, write   int
	frameSize     int
	allowOverflow bool
	dropped       uint64
	closed        bool

	wake chan struct{}
	done chan struct{}
}

// NewBuffer creates a Buffer holding up to capacity frames of at most
// frameSize bytes. With allowOverflow, Add on a full buffer evicts the
// oldest unread frame instead of failing.
func NewBuffer(capacity, frameSize int, allowOverflow bool) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	slots := make([][]byte, capacity+1)
	for i := range slots {
		slots[i] = make([]byte, 0, frameSize)
	}
	return &Buffer{
		slots:         slots,
		frameSize:     frameSize,
		allowOverflow: allowOverflow,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Add copies frame into the buffer.
func (b *Buffer) Add(frame []byte) error {
	if len(frame) > b.frameSize {
		return fmt.Errorf("ingest: frame of %d bytes exceeds slot size %d", len(frame), b.frameSize)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}
	next := (b.write + 1) % len(b.slots)
	if next == b.read {
		if !b.allowOverflow {
			b.mu.Unlock()
			return ErrBufferOverflow
		}
		b.read = (b.read + 1) % len(b.slots)
		b.dropped++
	}
	b.slots[b.write] = append(b.slots[b.write][:0], frame...)
	b.write = next
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

// Remove returns the oldest frame, blocking until one is available. It
// fails with ctx.Err() when ctx ends first, or ErrBufferClosed when the
// buffer is closed and empty.
func (b *Buffer) Remove(ctx context.Context) ([]byte, error) {
	for {
		b.mu.Lock()
		if b.read != b.write {
			slot := b.slots[b.read]
			frame := make([]byte, len(slot))
			copy(frame, slot)
			b.read = (b.read + 1) % len(b.slots)
			b.mu.Unlock()
			return frame, nil
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return nil, ErrBufferClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.wake:
		case <-b.done:
		}
	}
}

// Close stops further Adds. Frames already queued can still be removed.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

// Len returns the number of unread frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return (b.write - b.read + len(b.slots)) % len(b.slots)
}

// Cap returns the number of frames the buffer can hold.
func (b *Buffer) Cap() int { return len(b.slots) - 1 }

// Dropped returns the number of frames evicted by overflow.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
