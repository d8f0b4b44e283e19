package supervisor

import "sync"

// RingBuffer keeps the most recent lines of a server's console output.
// Single writer (the drain goroutine), many readers.
type RingBuffer struct {
	mu       sync.RWMutex
	lines    []string
	capacity int
	start    int
	count    int
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Append adds a line, evicting the oldest when full.
func (b *RingBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < b.capacity {
		b.lines[(b.start+b.count)%b.capacity] = line
		b.count++
		return
	}
	b.lines[b.start] = line
	b.start = (b.start + 1) % b.capacity
}

// Last returns up to n of the most recent lines, oldest first.
func (b *RingBuffer) Last(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}

	out := make([]string, n)
	first := b.count - n
	for i := 0; i < n; i++ {
		out[i] = b.lines[(b.start+first+i)%b.capacity]
	}
	return out
}

// Len returns the number of buffered lines.
func (b *RingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
