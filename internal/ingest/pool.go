package ingest

// bufferPool is a fixed-capacity pool of packet buffers. Acquisition prefers
// a pooled buffer and falls back to an ad-hoc allocation when the pool is
// exhausted; releases beyond capacity are discarded. The pool is only touched
// from the receiver worker in steady state, but the channel makes it safe to
// drain from Stop as well.
type bufferPool struct {
	free    chan []byte
	bufSize int
}

func newBufferPool(bufSize, prewarm, capacity int) *bufferPool {
	p := &bufferPool{
		free:    make(chan []byte, capacity),
		bufSize: bufSize,
	}
	for i := 0; i < prewarm && i < capacity; i++ {
		p.free <- make([]byte, bufSize)
	}
	return p
}

// acquire returns a buffer of the pool's configured size. The second return
// value reports whether the buffer came from the pool.
func (p *bufferPool) acquire() ([]byte, bool) {
	select {
	case buf := <-p.free:
		return buf, true
	default:
		return make([]byte, p.bufSize), false
	}
}

// release returns a buffer to the pool, dropping it once the pool is full.
func (p *bufferPool) release(buf []byte) {
	if cap(buf) < p.bufSize {
		return
	}
	select {
	case p.free <- buf[:p.bufSize]:
	default:
	}
}
