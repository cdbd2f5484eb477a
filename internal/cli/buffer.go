package cli

import "sync"

// RingBuffer is a thread-safe circular buffer with fixed capacity.
// When the buffer is full, new items overwrite the oldest items.
type RingBuffer[T any] struct {
	items []T
	head  int // next write position
	count int // number of items currently in buffer
	cap   int // maximum capacity
	mu    sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		items: make([]T, capacity),
		cap:   capacity,
	}
}

// Push adds an item to the buffer.
// If the buffer is full, the oldest item is overwritten.
func (b *RingBuffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.cap

	if b.count < b.cap {
		b.count++
	}
}

// All returns all items in the buffer, oldest first.
// Allocates a new slice on each call; each query is a discrete command,
// so the copy keeps readers independent of later pushes.
func (b *RingBuffer[T]) All() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return nil
	}

	result := make([]T, b.count)

	// Calculate the start position (oldest item)
	start := 0
	if b.count == b.cap {
		start = b.head // head points to oldest when full
	}

	for i := 0; i < b.count; i++ {
		idx := (start + i) % b.cap
		result[i] = b.items[idx]
	}

	return result
}

// Last returns up to n of the most recent items, oldest first.
func (b *RingBuffer[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]T, n)

	// head is the next write position, so head-1 holds the newest item
	// and head-n the oldest of the n requested.
	for i := 0; i < n; i++ {
		idx := (b.head - n + i + b.cap) % b.cap
		result[i] = b.items[idx]
	}

	return result
}

// Len returns the current number of items in the buffer.
func (b *RingBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *RingBuffer[T]) Cap() int {
	return b.cap
}

// Clear removes all items from the buffer.
func (b *RingBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Zero out items to allow GC
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}

	b.head = 0
	b.count = 0
}
