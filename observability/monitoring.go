package observability

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// RelayStats aggregates every metric reported by the heartbeat worker.
type RelayStats struct {
	// --- CONNECTION METRICS ---
	SessionsAccepted uint64 `json:"sessions_accepted"`
	SessionsClosed   uint64 `json:"sessions_closed"`
	ActiveSessions   int    `json:"active_sessions"`

	// --- TRAFFIC METRICS ---
	MessagesIn         uint64 `json:"messages_in"`
	MessagesRelayed    uint64 `json:"messages_relayed"`
	MessagesDispatched uint64 `json:"messages_dispatched"`
	BytesIn            uint64 `json:"bytes_in"`
	BytesOut           uint64 `json:"bytes_out"`
	WriteFaults        uint64 `json:"write_faults"`

	// --- SYSTEM METRICS ---
	AllocMemMb uint64 `json:"alloc_mem_mb"`
	NumGC      uint32 `json:"num_gc"`
	QueueDepth int    `json:"queue_depth"`
}

// RelayMonitor collects real-time telemetry from the accept loop, the read
// loops and the dispatcher. Counters are atomic so the hot paths never take
// a lock; the snapshot side is guarded separately.
type RelayMonitor struct {
	mu          sync.RWMutex
	latestStats RelayStats

	sessionsAccepted   uint64
	sessionsClosed     uint64
	messagesIn         uint64
	messagesRelayed    uint64
	messagesDispatched uint64
	bytesIn            uint64
	bytesOut           uint64
	writeFaults        uint64

	LastCheck time.Time
}

func NewRelayMonitor() *RelayMonitor {
	return &RelayMonitor{LastCheck: time.Now()}
}

func (rm *RelayMonitor) IncrSessionsAccepted() {
	atomic.AddUint64(&rm.sessionsAccepted, 1)
}

func (rm *RelayMonitor) IncrSessionsClosed() {
	atomic.AddUint64(&rm.sessionsClosed, 1)
}

func (rm *RelayMonitor) IncrMessagesIn() {
	atomic.AddUint64(&rm.messagesIn, 1)
}

func (rm *RelayMonitor) IncrMessagesRelayed() {
	atomic.AddUint64(&rm.messagesRelayed, 1)
}

func (rm *RelayMonitor) AddMessagesDispatched(n uint64) {
	atomic.AddUint64(&rm.messagesDispatched, n)
}

// IncrBytesIn counts bytes read from sockets, handshake lines included.
func (rm *RelayMonitor) IncrBytesIn(n uint64) {
	atomic.AddUint64(&rm.bytesIn, n)
}

// IncrBytesOut counts bytes written to sockets, newline delimiters included.
func (rm *RelayMonitor) IncrBytesOut(n uint64) {
	atomic.AddUint64(&rm.bytesOut, n)
}

func (rm *RelayMonitor) IncrWriteFaults() {
	atomic.AddUint64(&rm.writeFaults, 1)
}

// Refresh recomputes the aggregated view. activeSessions and queueDepth come
// from the caller because the monitor has no reference to the registry or the
// queue; the dependency runs the other way.
func (rm *RelayMonitor) Refresh(activeSessions, queueDepth int) RelayStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := RelayStats{
		SessionsAccepted:   atomic.LoadUint64(&rm.sessionsAccepted),
		SessionsClosed:     atomic.LoadUint64(&rm.sessionsClosed),
		ActiveSessions:     activeSessions,
		MessagesIn:         atomic.LoadUint64(&rm.messagesIn),
		MessagesRelayed:    atomic.LoadUint64(&rm.messagesRelayed),
		MessagesDispatched: atomic.LoadUint64(&rm.messagesDispatched),
		BytesIn:            atomic.LoadUint64(&rm.bytesIn),
		BytesOut:           atomic.LoadUint64(&rm.bytesOut),
		WriteFaults:        atomic.LoadUint64(&rm.writeFaults),
		AllocMemMb:         memStats.Alloc / 1024 / 1024,
		NumGC:              memStats.NumGC,
		QueueDepth:         queueDepth,
	}

	rm.mu.Lock()
	rm.latestStats = stats
	rm.LastCheck = time.Now()
	rm.mu.Unlock()
	return stats
}

// GetLatest returns the last refreshed view without recomputing it.
func (rm *RelayMonitor) GetLatest() RelayStats {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.latestStats
}
