package sink

import (
	"sync"

	"teamlink/domain"
)

// Timeline keeps an ordered local record of every consumed message. The test
// harness and the host's own display both read it back after the fact.
type Timeline struct {
	mu       sync.Mutex
	Owner    string
	messages []domain.Message
}

func NewTimeline(owner string) *Timeline {
	return &Timeline{Owner: owner}
}

func (t *Timeline) Consume(m domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
	return nil
}

// Messages returns a copy in consumption order.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Payloads flattens the timeline for assertions and summaries.
func (t *Timeline) Payloads() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.messages))
	for _, m := range t.messages {
		out = append(out, m.Payload)
	}
	return out
}
