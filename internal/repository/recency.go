package repository

// RecencyBuffer is a bounded FIFO set of ids. Once full, adding a new id
// evicts the oldest one, so membership is a sliding window, not global.
type RecencyBuffer struct {
	ring  []string
	head  int // next slot to overwrite once full
	size  int
	index map[string]struct{}
}

func NewRecencyBuffer(capacity int) *RecencyBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RecencyBuffer{
		ring:  make([]string, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

func (b *RecencyBuffer) Contains(id string) bool {
	_, ok := b.index[id]
	return ok
}

// Add inserts id and returns the evicted id, if any. Adding an id that is
// already present is a no-op.
func (b *RecencyBuffer) Add(id string) (evicted string, ok bool) {
	if b.Contains(id) {
		return "", false
	}
	if b.size == len(b.ring) {
		evicted = b.ring[b.head]
		delete(b.index, evicted)
		ok = true
	} else {
		b.size++
	}
	b.ring[b.head] = id
	b.index[id] = struct{}{}
	b.head = (b.head + 1) % len(b.ring)
	return evicted, ok
}

func (b *RecencyBuffer) Len() int { return b.size }

func (b *RecencyBuffer) Cap() int { return len(b.ring) }
