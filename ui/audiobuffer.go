package ui

import (
	"io"
	"sync"
)

// AudioRingBuffer holds int16 samples between the playback goroutine and
// oto's reader. Write never blocks and drops the oldest samples when full;
// Read blocks until samples arrive and hands them out as little-endian
// bytes.
type AudioRingBuffer struct {
	buf      []int16
	readPos  int
	writePos int
	count    int // Samples held
	odd      int // High byte of a sample split across two Reads, or -1
	mu       sync.Mutex
	cond     *sync.Cond
	closed   bool
}

// NewAudioRingBuffer creates a ring buffer holding up to capacity samples.
func NewAudioRingBuffer(capacity int) *AudioRingBuffer {
	rb := &AudioRingBuffer{
		buf: make([]int16, capacity),
		odd: -1,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Write queues samples, evicting the oldest on overflow.
func (rb *AudioRingBuffer) Write(samples []int16) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed || len(samples) == 0 {
		return
	}
	capacity := len(rb.buf)
	if len(samples) > capacity {
		samples = samples[len(samples)-capacity:]
	}
	n := len(samples)

	if overflow := rb.count + n - capacity; overflow > 0 {
		rb.readPos = (rb.readPos + overflow) % capacity
		rb.count -= overflow
	}

	first := copy(rb.buf[rb.writePos:], samples)
	copy(rb.buf, samples[first:])
	rb.writePos = (rb.writePos + n) % capacity
	rb.count += n

	rb.cond.Signal()
}

// Read implements io.Reader. It returns io.EOF once closed and drained.
func (rb *AudioRingBuffer) Read(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 && rb.odd < 0 {
		if rb.closed {
			return 0, io.EOF
		}
		rb.cond.Wait()
	}

	n := 0
	if rb.odd >= 0 && len(p) > 0 {
		p[0] = byte(rb.odd)
		rb.odd = -1
		n = 1
	}
	for n < len(p) && rb.count > 0 {
		s := rb.buf[rb.readPos]
		rb.readPos = (rb.readPos + 1) % len(rb.buf)
		rb.count--
		p[n] = byte(s)
		n++
		if n == len(p) {
			rb.odd = int(uint8(s >> 8))
			break
		}
		p[n] = byte(s >> 8)
		n++
	}
	return n, nil
}

// Buffered returns the number of bytes waiting to be read.
func (rb *AudioRingBuffer) Buffered() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	n := rb.count * 2
	if rb.odd >= 0 {
		n++
	}
	return n
}

// Clear discards everything queued.
func (rb *AudioRingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.writePos = 0
	rb.count = 0
	rb.odd = -1
}

// Close unblocks readers. Reads drain what is left, then return io.EOF.
func (rb *AudioRingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}
