package service

import "sync"

func NewOutputBuffer(limit int64) *OutputBuffer {
	if limit <= 0 {
		limit = 64 * 1024
	}
	return &OutputBuffer{limit: int(limit)}
}

// OutputBuffer captures step output up to a byte limit. When the limit is
// exceeded the oldest bytes are dropped, so the newest output survives.
type OutputBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func (ob *OutputBuffer) Write(p []byte) (int, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.buf = append(ob.buf, p...)
	if len(ob.buf) > ob.limit {
		ob.buf = ob.buf[len(ob.buf)-ob.limit:]
		ob.truncated = true
	}
	return len(p), nil
}

func (ob *OutputBuffer) String() string {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return string(ob.buf)
}

func (ob *OutputBuffer) Truncated() bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.truncated
}
