package relay

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"teamlink/domain"
)

// SessionState tracks the lifecycle of one connection.
// Transitions: Connecting -> AwaitingHandshake -> Active -> Disconnected.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAwaitingHandshake
	StateActive
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateAwaitingHandshake:
		return "AwaitingHandshake"
	case StateActive:
		return "Active"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Session is one live TCP connection plus its negotiated team tag.
// The registry owns it once registered; the read loop keeps a reference only
// to detect liveness and trigger its own removal on exit.
type Session struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader

	teamMu sync.RWMutex
	team   domain.TeamTag

	state     atomic.Int32
	connected atomic.Bool

	// writeMu serializes writers: the broadcast path and subscriber-originated
	// sends may hit the same socket concurrently.
	writeMu sync.Mutex
}

func NewSession(conn net.Conn, initial SessionState) *Session {
	s := &Session{
		id:     uuid.NewString(),
		conn:   conn,
		reader: bufio.NewReader(conn),
		team:   domain.UnknownTeam,
	}
	s.state.Store(int32(initial))
	s.connected.Store(true)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (s *Session) Team() domain.TeamTag {
	s.teamMu.RLock()
	defer s.teamMu.RUnlock()
	return s.team
}

func (s *Session) SetTeam(team domain.TeamTag) {
	s.teamMu.Lock()
	defer s.teamMu.Unlock()
	s.team = team
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) MarkActive() {
	s.state.Store(int32(StateActive))
}

func (s *Session) Connected() bool {
	return s.connected.Load()
}

// ReadLine blocks until one newline-delimited frame arrives and returns it
// without the delimiter. The returned size counts the raw bytes read.
func (s *Session) ReadLine() (string, int, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", len(line), err
	}
	return strings.TrimRight(line, "\r\n"), len(line), nil
}

// WriteLine appends the newline delimiter and writes the frame, serialized
// against other writers on this session.
func (s *Session) WriteLine(payload string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write([]byte(payload + "\n"))
}

// Close is safe to call from any goroutine and any number of times. Closing
// the socket is also the cancellation signal for a blocked read loop.
func (s *Session) Close() error {
	if !s.connected.CompareAndSwap(true, false) {
		return nil
	}
	s.state.Store(int32(StateDisconnected))
	return s.conn.Close()
}

// handshakePrefix starts the first frame a peer sends after connecting.
const handshakePrefix = "JOIN:"

// parseHandshake extracts the team from a `JOIN:<team>` frame. Anything else
// falls back to UnknownTeam; a malformed handshake is consumed, not fatal.
func parseHandshake(line string) (domain.TeamTag, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, handshakePrefix) {
		return domain.UnknownTeam, false
	}
	team := strings.TrimSpace(strings.TrimPrefix(trimmed, handshakePrefix))
	if team == "" {
		return domain.UnknownTeam, false
	}
	return domain.TeamTag(team), true
}
