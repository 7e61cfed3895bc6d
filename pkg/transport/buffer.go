package transport

// Buffer retains signaling events that arrived before anyone subscribed
// to their event name, so a late subscriber gets them replayed in the
// original arrival order. An entry exists only while no live handler has
// seen it: Take hands the payloads out exactly once and clears the entry.
type Buffer struct {
	pending map[string][][]byte
	perName int
}

// defaultPerName caps retained events per name, oldest dropped first.
// A client that never subscribes must not grow without bound.
const defaultPerName = 64

func NewBuffer() *Buffer {
	return &Buffer{pending: make(map[string][][]byte), perName: defaultPerName}
}

func (b *Buffer) Push(event string, payload []byte) {
	q := b.pending[event]
	if len(q) >= b.perName {
		q = q[1:]
	}
	// the payload aliases the read buffer, keep own copy
	p := make([]byte, len(payload))
	copy(p, payload)
	b.pending[event] = append(q, p)
}

// Take removes and returns all pending payloads for the event
// in arrival order.
func (b *Buffer) Take(event string) [][]byte {
	q, ok := b.pending[event]
	if !ok {
		return nil
	}
	delete(b.pending, event)
	return q
}

func (b *Buffer) Len() (n int) {
	for _, q := range b.pending {
		n += len(q)
	}
	return
}

func (b *Buffer) Clear() { b.pending = make(map[string][][]byte) }
