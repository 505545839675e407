package relay

import (
	"fmt"
	"log/slog"
	"sync"

	"teamlink/contract"
	"teamlink/observability"
)

type subscription struct {
	id   uint64
	sink contract.MessageSink
}

// Dispatcher fans queued messages out to subscribers. Tick runs exclusively
// on the external, single-threaded tick source, so nothing here may block:
// the queue swap happens under a short lock and sinks are invoked outside it.
type Dispatcher struct {
	mu      sync.RWMutex
	log     *slog.Logger
	queue   *InboundQueue
	monitor *observability.RelayMonitor
	nextID  uint64
	sinks   []subscription
}

func NewDispatcher(log *slog.Logger, queue *InboundQueue, monitor *observability.RelayMonitor) *Dispatcher {
	return &Dispatcher{log: log, queue: queue, monitor: monitor}
}

// Subscribe registers a sink and returns its cancel function. Every sink
// sees every dispatched message.
func (d *Dispatcher) Subscribe(sink contract.MessageSink) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.sinks = append(d.sinks, subscription{id: id, sink: sink})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, sub := range d.sinks {
			if sub.id == id {
				d.sinks = append(d.sinks[:i], d.sinks[i+1:]...)
				return
			}
		}
	}
}

// Tick drains the queue and delivers each message to every subscriber in
// dequeue order. Draining an empty queue is a no-op.
func (d *Dispatcher) Tick() int {
	batch := d.queue.DrainAll()
	if len(batch) == 0 {
		return 0
	}

	d.mu.RLock()
	sinks := make([]subscription, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, m := range batch {
		for _, sub := range sinks {
			if err := sub.sink.Consume(m); err != nil {
				d.log.Debug(fmt.Sprintf("Sink rejected message %s", m.ID), "err", err)
			}
		}
	}
	d.monitor.AddMessagesDispatched(uint64(len(batch)))
	return len(batch)
}
