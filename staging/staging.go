// Package staging provides the growable byte buffer used by the media
// I/O workers.
//
// A Buffer keeps independent read and write cursors over a single
// backing slice, so a worker can accumulate raw PCM (or undecoded
// wire bytes) across iterations and hand the codec framer a
// contiguous view of everything still pending. The buffer grows
// geometrically and never shrinks during steady-state operation,
// which keeps the hot transcoding loop free of per-iteration
// allocation.
package staging

// Buffer is a growable byte buffer with separate read and write
// cursors. It is not safe for concurrent use; each worker owns
// exactly one.
type Buffer struct {
	data []byte
	r    int
	w    int
}

// New creates a Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Reserve guarantees at least n contiguous writable bytes and returns
// the writable region. Data written into the returned slice becomes
// visible to readers only after a matching Commit. Previously written
// but not yet consumed data is preserved.
//
// Growth is geometric (capacity at least doubles), so the amortized
// cost of repeated reservations is constant. An allocation failure
// panics; the owning worker cannot make progress without buffer
// capacity, and its deferred release path still runs.
func (b *Buffer) Reserve(n int) []byte {
	if b.free() < n {
		b.grow(n)
	}
	return b.data[b.w : b.w+n]
}

// Commit marks n bytes of the most recent Reserve region as written.
func (b *Buffer) Commit(n int) {
	if n < 0 || b.w+n > len(b.data) {
		panic("staging: commit beyond reserved region")
	}
	b.w += n
}

// Consume advances the read cursor by n bytes. Consuming everything
// rewinds both cursors so the full capacity becomes writable again;
// a partial consume compacts the pending tail to the front of the
// backing slice, keeping the unread region contiguous.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("staging: consume beyond pending data")
	}
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
		return
	}
	if b.r > 0 {
		copy(b.data, b.data[b.r:b.w])
		b.w -= b.r
		b.r = 0
	}
}

// Bytes returns the pending (written but not yet consumed) region.
// The slice is valid until the next Reserve or Consume.
func (b *Buffer) Bytes() []byte {
	return b.data[b.r:b.w]
}

// Len returns the number of pending bytes.
func (b *Buffer) Len() int {
	return b.w - b.r
}

// Cap returns the total capacity of the backing slice.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Reset discards all pending data without releasing capacity. Used by
// the Drop control signal to resynchronize a stalled stream.
func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}

func (b *Buffer) free() int {
	return len(b.data) - b.w
}

func (b *Buffer) grow(n int) {
	// Compact first; pending data always starts at zero afterwards.
	if b.r > 0 {
		copy(b.data, b.data[b.r:b.w])
		b.w -= b.r
		b.r = 0
	}
	if len(b.data)-b.w >= n {
		return
	}
	capacity := len(b.data) * 2
	if capacity == 0 {
		capacity = 64
	}
	for capacity < b.w+n {
		capacity *= 2
	}
	grown := make([]byte, capacity)
	copy(grown, b.data[:b.w])
	b.data = grown
}
