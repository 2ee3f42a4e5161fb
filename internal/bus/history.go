package bus

// ring is a fixed-capacity FIFO of messages that overwrites its oldest entry
// when full.
type ring struct {
	buf   []Message
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{buf: make([]Message, capacity)}
}

// push appends m and reports whether an older message was evicted.
func (r *ring) push(m Message) bool {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = m
		r.size++
		return false
	}
	r.buf[r.start] = m
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// each visits messages oldest first.
func (r *ring) each(fn func(Message)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}

func (r *ring) len() int { return r.size }
func (r *ring) cap() int { return len(r.buf) }

func (r *ring) reset() {
	for i := range r.buf {
		r.buf[i] = Message{}
	}
	r.start, r.size = 0, 0
}
