// Package relay implements the dual-mode networking core: a host-side
// listener fanning messages out to every connected peer, and a peer-side
// connector exchanging messages with the host. Blocking socket I/O is
// confined to dedicated goroutines; consumption happens on the external
// dispatcher tick.
package relay

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"teamlink/contract"
	"teamlink/domain"
	errs "teamlink/errors"
	"teamlink/observability"
)

const defaultShutdownGrace = 2 * time.Second

// Options is the immutable configuration handed to the core at construction.
// No process-wide settings holder: the caller decides role and team up front.
type Options struct {
	Role        domain.Role
	Port        int
	HostAddress string
	Team        domain.TeamTag

	// ShutdownGrace bounds the wait for read loops to exit during Stop.
	ShutdownGrace time.Duration
}

func (o Options) grace() time.Duration {
	if o.ShutdownGrace <= 0 {
		return defaultShutdownGrace
	}
	return o.ShutdownGrace
}

// Core is the relay manager, parameterized by role. One instance serves the
// whole process lifetime: Start once, Stop once.
type Core struct {
	log     *slog.Logger
	opts    Options
	monitor *observability.RelayMonitor

	registry   *Registry
	queue      *InboundQueue
	dispatcher *Dispatcher

	mu       sync.Mutex
	started  bool
	listener net.Listener // host only
	peer     *Session     // peer only

	stopping atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCore(log *slog.Logger, opts Options, monitor *observability.RelayMonitor) *Core {
	queue := NewInboundQueue()
	return &Core{
		log:        log,
		opts:       opts,
		monitor:    monitor,
		registry:   NewRegistry(),
		queue:      queue,
		dispatcher: NewDispatcher(log, queue, monitor),
	}
}

// Start binds the listener (host) or dials the host (peer) and spawns the
// blocking loops. It fails fast: ErrBind / ErrConnect are not retried.
func (c *Core) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errs.ErrAlreadyStarted
	}

	if c.opts.Role.IsHost() {
		if err := c.startListener(); err != nil {
			return err
		}
	} else {
		if err := c.connect(); err != nil {
			return err
		}
	}
	c.started = true
	return nil
}

// Addr returns the bound listener address, nil before Start or on a peer.
func (c *Core) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Subscribe registers a message sink; the returned function unregisters it.
func (c *Core) Subscribe(sink contract.MessageSink) func() {
	return c.dispatcher.Subscribe(sink)
}

// DispatchPending drains the inbound queue and fans out to subscribers.
// Must be driven by the external tick source; never called concurrently.
func (c *Core) DispatchPending() int {
	return c.dispatcher.Tick()
}

// Registry exposes the live session set for status reporting.
func (c *Core) Registry() *Registry { return c.registry }

// QueueDepth reports how many messages await the next tick.
func (c *Core) QueueDepth() int { return c.queue.Len() }

// Broadcast writes payload to every registered session except the excluded
// one. A write fault on one session is logged and closes that session only;
// delivery to the rest continues. With no exclusion the payload is also
// mirrored into the inbound queue so the host's own subscribers observe it.
func (c *Core) Broadcast(payload string, exclude *Session) {
	for _, s := range c.registry.Snapshot() {
		if exclude != nil && s.ID() == exclude.ID() {
			continue
		}
		if err := c.writeLine(s, payload); err != nil {
			c.monitor.IncrWriteFaults()
			c.log.Warn("Broadcast write failed, dropping session",
				"remote", s.RemoteAddr(), "team", s.Team(), "err", err)
			// The session's own read loop unblocks on the closed socket
			// and performs the single removal.
			_ = s.Close()
		}
	}
	if exclude == nil {
		c.queue.Enqueue(domain.NewMessage(payload, ""))
	}
}

// Send writes payload to the host over the single outbound connection.
// Reported as ErrNotConnected when the connection is down.
func (c *Core) Send(payload string) error {
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()

	if peer == nil || !peer.Connected() {
		return errs.ErrNotConnected
	}
	if err := c.writeLine(peer, payload); err != nil {
		return fmt.Errorf("peer send: %w", err)
	}
	return nil
}

func (c *Core) writeLine(s *Session, payload string) error {
	n, err := s.WriteLine(payload)
	c.monitor.IncrBytesOut(uint64(n))
	return err
}

// Stop is idempotent. Host: the listening socket closes first so no new
// session can register after teardown begins, then every session is closed
// under the registry mutex and the registry cleared. Peer: the single
// connection closes. Either way the blocked reads fail, the loops exit on
// their own and are joined with a bounded grace period; a loop that does not
// exit in time is abandoned, never force-killed.
func (c *Core) Stop() {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)

		c.mu.Lock()
		if c.listener != nil {
			_ = c.listener.Close()
		}
		peer := c.peer
		c.mu.Unlock()

		closed := c.registry.CloseAll()
		if closed > 0 {
			c.log.Info(fmt.Sprintf("Closed %d session(s)", closed))
		}
		if peer != nil {
			_ = peer.Close()
		}

		if !c.joinLoops(c.opts.grace()) {
			c.log.Warn("Some read loops did not exit within grace period, abandoning",
				"grace", c.opts.grace())
		}

		// Pending messages die with the core; the queue is never recreated.
		_ = c.queue.DrainAll()
	})
}

func (c *Core) joinLoops(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
