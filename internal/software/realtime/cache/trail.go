package cache

import "fleet-realtime/internal/domain/geo"

// trail is a fixed-capacity FIFO ring. Not safe for concurrent use.
type trail struct {
	buf   []geo.Location
	start int
	size  int
}

func newTrail(capacity int) *trail {
	return &trail{buf: make([]geo.Location, capacity)}
}

func (t *trail) push(loc geo.Location) {
	if t.size < len(t.buf) {
		t.buf[(t.start+t.size)%len(t.buf)] = loc
		t.size++
		return
	}
	// full: overwrite the oldest
	t.buf[t.start] = loc
	t.start = (t.start + 1) % len(t.buf)
}

func (t *trail) snapshot() []geo.Location {
	out := make([]geo.Location, 0, t.size)
	for i := 0; i < t.size; i++ {
		out = append(out, t.buf[(t.start+i)%len(t.buf)].Clone())
	}
	return out
}
