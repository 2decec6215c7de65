// Package ring provides the bounded, concurrency-safe buffer behind the
// per-session observability feeds (console, page errors, network requests,
// dialogs). Overflow evicts the oldest entry; writes never fail.
package ring

import "sync"

// Buffer is a fixed-capacity FIFO. The zero value is not usable; call New.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int
	total uint64
}

// New creates a Buffer holding at most cap items. cap must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends an item, evicting the oldest when full.
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = item
	if b.size < len(b.items) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.items)
	}
	b.total++
}

// Last returns up to n items, oldest first, ending at the newest entry.
// n <= 0 returns everything retained.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]T, n)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}

// Len reports how many items are currently retained.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Total reports how many items were ever pushed, including evicted ones.
func (b *Buffer[T]) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Clear drops all retained items. The total count is preserved.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head, b.size = 0, 0
}
