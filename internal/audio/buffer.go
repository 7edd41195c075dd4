package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring that decouples the capture callback from
// the frame pump. One slot is kept free to tell full from empty, so a buffer of
// size n holds at most n-1 bytes.
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.Mutex
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	if size < 2 {
		size = 2
	}
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write copies as much of data as fits and returns the number of bytes taken.
// Bytes that do not fit are dropped by the caller.
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), rb.space())
	for written := 0; written < n; {
		end := rb.size
		if rb.read > rb.write {
			end = rb.read
		}
		c := copy(rb.buffer[rb.write:end], data[written:n])
		written += c
		rb.write = (rb.write + c) % rb.size
	}
	return n
}

// Read fills data from the buffer and returns the number of bytes read
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), rb.available())
	for read := 0; read < n; {
		end := rb.size
		if rb.write > rb.read {
			end = rb.write
		}
		c := copy(data[read:n], rb.buffer[rb.read:end])
		read += c
		rb.read = (rb.read + c) % rb.size
	}
	return n
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

func (rb *RingBuffer) space() int {
	return rb.size - rb.available() - 1
}
