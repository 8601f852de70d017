package resource

import (
	"sync"
)

const (
	// DefaultBodyLimit caps an in-memory body copy. Bytes past the cap are dropped.
	DefaultBodyLimit = 3 << 20
	// DefaultBodyChunk is the growth step of the body buffer.
	DefaultBodyChunk = 16 << 10
)

// Body is an in-memory copy of a response body that the browser will not keep
// (no-store responses). It is written by the host's response tee, possibly
// from another goroutine than the one reading it.
type Body struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	chunk     int
	truncated bool
	complete  bool
}

// NewBody creates a body buffer. Non-positive arguments select the defaults.
func NewBody(limit, chunk int) *Body {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	if chunk <= 0 {
		chunk = DefaultBodyChunk
	}
	return &Body{limit: limit, chunk: chunk}
}

// Write copies p up to the limit. It never fails: the tee feeding it must not
// be able to break the page load.
func (b *Body) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - len(b.buf)
	data := p
	if len(data) > room {
		data = data[:max(room, 0)]
		b.truncated = true
	}
	if len(data) == 0 {
		return len(p), nil
	}

	if need := len(b.buf) + len(data); need > cap(b.buf) {
		grown := ((need + b.chunk - 1) / b.chunk) * b.chunk
		grown = min(grown, b.limit)
		buf := make([]byte, len(b.buf), grown)
		copy(buf, b.buf)
		b.buf = buf
	}
	b.buf = append(b.buf, data...)

	return len(p), nil
}

// Close marks the body as fully received
func (b *Body) Close() error {
	b.mu.Lock()
	b.complete = true
	b.mu.Unlock()
	return nil
}

// Bytes returns a copy of the captured bytes
func (b *Body) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

func (b *Body) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Truncated reports whether bytes past the limit were dropped
func (b *Body) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// Complete reports whether the tee has finished writing
func (b *Body) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}
