package audio

import "sync"

// Ring is a bounded PCM buffer between the intake and playback loops. Writes never
// block; when the buffer is full the oldest samples are overwritten.
type Ring struct {
	mu   sync.Mutex
	buf  []float32
	head int
	size int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Write appends samples and returns how many unplayed samples were discarded to make room.
func (r *Ring) Write(samples []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	if len(samples) > len(r.buf) {
		dropped = len(samples) - len(r.buf)
		samples = samples[dropped:]
	}
	if over := r.size + len(samples) - len(r.buf); over > 0 {
		r.head = (r.head + over) % len(r.buf)
		r.size -= over
		dropped += over
	}

	tail := (r.head + r.size) % len(r.buf)
	n := copy(r.buf[tail:], samples)
	copy(r.buf, samples[n:])
	r.size += len(samples)
	return dropped
}

// Read fills dst from the oldest samples and returns the count copied.
func (r *Ring) Read(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(dst)
	if n > r.size {
		n = r.size
	}
	first := copy(dst[:n], r.buf[r.head:])
	if first < n {
		copy(dst[first:n], r.buf)
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return n
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *Ring) Cap() int {
	return len(r.buf)
}

func (r *Ring) Reset() {
	r.mu.Lock()
	r.head = 0
	r.size = 0
	r.mu.Unlock()
}
