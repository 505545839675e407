package relay

import (
	"sync"

	"teamlink/domain"
)

// InboundQueue bridges every read loop (and the host's local mirrors) into
// the single-threaded dispatcher tick. Insertion order is arrival order
// across all producers; no cross-producer ordering beyond that.
type InboundQueue struct {
	mu    sync.Mutex
	items []domain.Message
}

func NewInboundQueue() *InboundQueue {
	return &InboundQueue{}
}

func (q *InboundQueue) Enqueue(m domain.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
}

// DrainAll swaps the backing slice out under the lock and returns it in
// arrival order. Draining an empty queue returns nil.
func (q *InboundQueue) DrainAll() []domain.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	drained := q.items
	q.items = nil
	return drained
}

func (q *InboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
