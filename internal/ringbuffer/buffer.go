// Package ringbuffer implements the bounded per-channel sample history used
// by every detector: a FIFO of floats with a fixed capacity, oldest element
// evicted on overflow.
package ringbuffer

import "errors"

// ErrCapacityTooSmall is returned by New/Resize when cap < MinCapacity.
var ErrCapacityTooSmall = errors.New("ringbuffer: capacity must be >= 2")

// MinCapacity is the smallest capacity a Buffer may hold. A detector always
// needs at least a current sample plus one prior element to compare against.
const MinCapacity = 2

// Buffer is a bounded FIFO of float64 samples. It is not safe for concurrent
// use; callers own a Buffer exclusively (one orchestrator, one channel).
type Buffer struct {
	data []float64 // contiguous slab, logical order starts at head
	head int        // index of oldest element
	n    int        // number of valid elements
}

// New creates an empty Buffer with the given capacity.
func New(capacity int) (*Buffer, error) {
	if capacity < MinCapacity {
		return nil, ErrCapacityTooSmall
	}
	return &Buffer{data: make([]float64, capacity)}, nil
}

// Cap returns the buffer's capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of elements currently stored.
func (b *Buffer) Len() int { return b.n }

// Push appends x, evicting the oldest element if the buffer is full.
func (b *Buffer) Push(x float64) {
	cap := len(b.data)
	if b.n < cap {
		idx := (b.head + b.n) % cap
		b.data[idx] = x
		b.n++
		return
	}
	// full: overwrite oldest slot, advance head
	b.data[b.head] = x
	b.head = (b.head + 1) % cap
}

// Snapshot returns a newly allocated, oldest-first slice of the current
// contents. Detectors operate on this materialized view (see DESIGN.md's
// note on the source's ambiguous ring-buffer-vs-list boundary, resolved in
// favor of a list snapshot at the orchestrator boundary).
func (b *Buffer) Snapshot() []float64 {
	out := make([]float64, b.n)
	cap := len(b.data)
	for i := 0; i < b.n; i++ {
		out[i] = b.data[(b.head+i)%cap]
	}
	return out
}

// Last returns the most recently pushed value and true, or (0, false) if
// the buffer is empty.
func (b *Buffer) Last() (float64, bool) {
	if b.n == 0 {
		return 0, false
	}
	cap := len(b.data)
	idx := (b.head + b.n - 1) % cap
	return b.data[idx], true
}

// Resize changes the buffer's capacity, preserving the tail (most recent)
// contents. If the new capacity is smaller than the current length, the
// oldest excess elements are discarded.
func (b *Buffer) Resize(newCapacity int) error {
	if newCapacity < MinCapacity {
		return ErrCapacityTooSmall
	}
	snap := b.Snapshot()
	if len(snap) > newCapacity {
		snap = snap[len(snap)-newCapacity:]
	}
	nb := make([]float64, newCapacity)
	copy(nb, snap)
	b.data = nb
	b.head = 0
	b.n = len(snap)
	return nil
}

// Reset empties the buffer without changing its capacity.
func (b *Buffer) Reset() {
	b.head = 0
	b.n = 0
}
