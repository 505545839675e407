package relay

import (
	"fmt"
	"net"

	"teamlink/domain"
	errs "teamlink/errors"
)

// connect opens the single outbound connection to the host and performs the
// join handshake. Called under c.mu from Start. No automatic retry: an
// unreachable host fails the peer's start-up.
func (c *Core) connect() error {
	addr := fmt.Sprintf("%s:%d", c.opts.HostAddress, c.opts.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrConnect, addr, err)
	}

	s := NewSession(conn, StateConnecting)
	s.SetTeam(c.teamOrUnknown())

	// The handshake is the first frame on the wire; the host reads it before
	// anything else.
	if err := c.writeLine(s, handshakePrefix+string(s.Team())); err != nil {
		_ = s.Close()
		return fmt.Errorf("%w: handshake to %s: %v", errs.ErrConnect, addr, err)
	}
	s.MarkActive()
	c.peer = s
	c.log.Info("Connected to host", "addr", addr, "team", s.Team())

	c.wg.Add(1)
	go c.peerReadLoop(s)
	return nil
}

func (c *Core) teamOrUnknown() domain.TeamTag {
	if c.opts.Team == "" {
		return domain.UnknownTeam
	}
	return c.opts.Team
}

// peerReadLoop consumes host frames on the single connection. No handshake
// read on this side; frames arrive already prefixed by the host when they
// originate from another peer's team.
func (c *Core) peerReadLoop(s *Session) {
	defer c.wg.Done()
	defer func() {
		_ = s.Close()
		c.monitor.IncrSessionsClosed()
		c.log.Info("Disconnected from host")
	}()

	for {
		line, n, err := s.ReadLine()
		c.monitor.IncrBytesIn(uint64(n))
		if err != nil {
			c.logReadEnd("read", s, err)
			return
		}
		c.monitor.IncrMessagesIn()
		c.queue.Enqueue(domain.NewMessage(line, ""))
	}
}
