package relay

import (
	"errors"
	"fmt"
	"io"
	"net"

	"teamlink/domain"
	errs "teamlink/errors"
)

// startListener binds the host port. Called under c.mu from Start.
func (c *Core) startListener() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.opts.Port))
	if err != nil {
		return fmt.Errorf("%w: %d: %v", errs.ErrBind, c.opts.Port, err)
	}
	c.listener = ln
	c.log.Info("Listening for peers", "addr", ln.Addr())

	c.wg.Add(1)
	go c.acceptLoop(ln)
	return nil
}

// acceptLoop blocks on Accept on its own goroutine. Each accepted connection
// becomes a session, registered before its read loop starts. An accept fault
// outside shutdown is terminal for the host's ability to accept new peers:
// it is logged and the loop exits, no retry. External supervision restarts
// the process to recover.
func (c *Core) acceptLoop(ln net.Listener) {
	defer c.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if c.stopping.Load() || errors.Is(err, net.ErrClosed) {
				c.log.Debug("Accept loop stopped")
				return
			}
			c.log.Error("Accept failed, host no longer accepting peers", "err", err)
			return
		}

		s := NewSession(conn, StateAwaitingHandshake)
		c.registry.Add(s)
		c.monitor.IncrSessionsAccepted()
		c.log.Info("Peer connected", "remote", s.RemoteAddr())

		c.wg.Add(1)
		go c.hostReadLoop(s)
	}
}

// hostReadLoop serves one peer connection: a one-time handshake read, then
// the steady-state line loop. On exit, whatever the reason, the loop itself
// removes the session from the registry and closes the handle, exactly once.
func (c *Core) hostReadLoop(s *Session) {
	defer c.wg.Done()
	defer func() {
		_ = s.Close()
		c.registry.Remove(s.ID())
		c.monitor.IncrSessionsClosed()
		c.log.Info("Peer disconnected", "remote", s.RemoteAddr(), "team", s.Team())
	}()

	// Handshake: the first line is always consumed. A malformed one defaults
	// the team and the session proceeds regardless.
	line, n, err := s.ReadLine()
	c.monitor.IncrBytesIn(uint64(n))
	if err != nil {
		c.logReadEnd("handshake", s, err)
		return
	}
	team, ok := parseHandshake(line)
	if !ok {
		c.log.Warn("Malformed handshake, defaulting team",
			"remote", s.RemoteAddr(), "line", line)
	}
	s.SetTeam(team)
	s.MarkActive()
	c.log.Info("Peer joined", "remote", s.RemoteAddr(), "team", team)

	for {
		line, n, err := s.ReadLine()
		c.monitor.IncrBytesIn(uint64(n))
		if err != nil {
			c.logReadEnd("read", s, err)
			return
		}
		c.monitor.IncrMessagesIn()
		c.queue.Enqueue(domain.NewMessage(line, s.Team()))

		// Relay to every other peer, tagged with the sender's team. The
		// exclusion also means no local mirror: host subscribers already got
		// the raw frame through the queue.
		c.Broadcast(fmt.Sprintf("[%s] %s", s.Team(), line), s)
		c.monitor.IncrMessagesRelayed()
	}
}

// logReadEnd keeps teardown logging quiet for expected endings (EOF, our own
// close) and loud for genuine per-connection faults.
func (c *Core) logReadEnd(op string, s *Session, err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.stopping.Load() {
		return
	}
	c.log.Warn("Connection fault", "op", op, "remote", s.RemoteAddr(), "err", err)
}
