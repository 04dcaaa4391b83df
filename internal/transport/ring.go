package transport

// RingBuffer is a fixed-capacity byte FIFO. It is not safe for concurrent
// use; the receive loop owns it.
type RingBuffer struct {
	buf     []byte
	start   int
	n       int
	scratch []byte
}

// NewRingBuffer returns an empty buffer holding up to capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buf:     make([]byte, capacity),
		scratch: make([]byte, 0, capacity),
	}
}

// Len returns the number of buffered bytes.
func (r *RingBuffer) Len() int { return r.n }

// Cap returns the capacity.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Full reports whether another byte would not fit.
func (r *RingBuffer) Full() bool { return r.n == len(r.buf) }

// Append adds b at the tail. It returns false, leaving the buffer unchanged,
// when the buffer is full.
func (r *RingBuffer) Append(b byte) bool {
	if r.Full() {
		return false
	}
	r.buf[(r.start+r.n)%len(r.buf)] = b
	r.n++
	return true
}

// Bytes returns the buffered bytes in order. The slice is only valid until
// the next mutating call.
func (r *RingBuffer) Bytes() []byte {
	r.scratch = r.scratch[:0]
	end := r.start + r.n
	if end <= len(r.buf) {
		return append(r.scratch, r.buf[r.start:end]...)
	}
	r.scratch = append(r.scratch, r.buf[r.start:]...)
	return append(r.scratch, r.buf[:end-len(r.buf)]...)
}

// Discard drops the first n bytes.
func (r *RingBuffer) Discard(n int) {
	if n >= r.n {
		r.Reset()
		return
	}
	if n <= 0 {
		return
	}
	r.start = (r.start + n) % len(r.buf)
	r.n -= n
}

// Reset empties the buffer.
func (r *RingBuffer) Reset() {
	r.start = 0
	r.n = 0
}
