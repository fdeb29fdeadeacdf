package sandbox

import "sync"

// truncationMarker prefixes a capture whose oldest bytes were dropped.
const truncationMarker = "[...truncated]\n"

// captureBuffer is a size-bounded writer. Once the limit is exceeded
// the oldest bytes are dropped, so the capture always holds the tail of
// the stream: the end of a tool's output is where the error is.
type captureBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	truncated bool
}

func newCaptureBuffer(limit int) *captureBuffer {
	return &captureBuffer{limit: limit}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	return len(p), nil
}

// String returns the captured tail, prefixed with a marker when bytes
// were dropped.
func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return truncationMarker + string(b.buf)
	}
	return string(b.buf)
}
