package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"teamlink/domain"
	errs "teamlink/errors"
	"teamlink/observability"
)

const (
	waitFor  = 2 * time.Second
	pollTick = 10 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHost(t *testing.T) *Core {
	t.Helper()
	core := NewCore(testLogger(), Options{Role: domain.RoleHost, Port: 0}, observability.NewRelayMonitor())
	require.NoError(t, core.Start())
	t.Cleanup(core.Stop)
	return core
}

func hostPort(core *Core) int {
	return core.Addr().(*net.TCPAddr).Port
}

func startPeer(t *testing.T, port int, team domain.TeamTag) *Core {
	t.Helper()
	core := NewCore(testLogger(), Options{
		Role:        domain.RolePeer,
		Port:        port,
		HostAddress: "127.0.0.1",
		Team:        team,
	}, observability.NewRelayMonitor())
	require.NoError(t, core.Start())
	t.Cleanup(core.Stop)
	return core
}

// recorder collects dispatched messages without blocking the tick.
type recorder struct {
	messages []domain.Message
}

func (r *recorder) Consume(m domain.Message) error {
	r.messages = append(r.messages, m)
	return nil
}

func (r *recorder) payloads() []string {
	return lo.Map(r.messages, func(m domain.Message, _ int) string { return m.Payload })
}

func TestCore_RelayBetweenTeams(t *testing.T) {
	req := require.New(t)

	// Given a host with two peers, Red and Blue
	host := startHost(t)
	hostSink := &recorder{}
	host.Subscribe(hostSink)

	red := startPeer(t, hostPort(host), "Red")
	redSink := &recorder{}
	red.Subscribe(redSink)

	blue := startPeer(t, hostPort(host), "Blue")
	blueSink := &recorder{}
	blue.Subscribe(blueSink)

	req.Eventually(func() bool { return host.Registry().Len() == 2 }, waitFor, pollTick)

	// When Red sends an action
	req.NoError(red.Send("move:3,4"))

	// Then Blue receives exactly one relayed frame, team-prefixed
	req.Eventually(func() bool {
		blue.DispatchPending()
		return len(blueSink.messages) == 1
	}, waitFor, pollTick)
	req.Equal("[Red] move:3,4", blueSink.messages[0].Payload)

	// And the host's own subscriber sees the raw frame, tagged with the team,
	// never the prefixed relay copy
	req.Eventually(func() bool {
		host.DispatchPending()
		return len(hostSink.messages) == 1
	}, waitFor, pollTick)
	req.Equal("move:3,4", hostSink.messages[0].Payload)
	req.Equal(domain.TeamTag("Red"), hostSink.messages[0].Team)
	req.NotContains(hostSink.payloads(), "[Red] move:3,4")

	// And Red never gets its own echo
	red.DispatchPending()
	req.Empty(redSink.messages)
}

func TestCore_MalformedHandshakeDefaultsToUnknown(t *testing.T) {
	req := require.New(t)
	host := startHost(t)
	hostSink := &recorder{}
	host.Subscribe(hostSink)

	// Given a peer that skips the JOIN frame entirely
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", hostPort(host)))
	req.NoError(err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello\nping\n"))
	req.NoError(err)

	// Then the malformed first line is consumed as the handshake and the
	// session stays functional under the Unknown team
	req.Eventually(func() bool {
		host.DispatchPending()
		return len(hostSink.messages) == 1
	}, waitFor, pollTick)
	req.Equal("ping", hostSink.messages[0].Payload)
	req.Equal(domain.UnknownTeam, hostSink.messages[0].Team)
	req.NotContains(hostSink.payloads(), "hello")

	req.Eventually(func() bool {
		sessions := host.Registry().Snapshot()
		return len(sessions) == 1 && sessions[0].Team() == domain.UnknownTeam
	}, waitFor, pollTick)
}

func TestCore_AbruptDisconnectRemovesSession(t *testing.T) {
	req := require.New(t)
	host := startHost(t)

	// Given a joined peer
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", hostPort(host)))
	req.NoError(err)
	_, err = conn.Write([]byte("JOIN:Red\n"))
	req.NoError(err)
	req.Eventually(func() bool { return host.Registry().Len() == 1 }, waitFor, pollTick)

	// When the socket dies without any goodbye
	req.NoError(conn.Close())

	// Then the registry drops to zero, synchronously with the read loop exit
	req.Eventually(func() bool { return host.Registry().Len() == 0 }, waitFor, pollTick)

	// And a subsequent broadcast simply excludes it without error
	host.Broadcast("after the fact", nil)
}

func TestCore_BroadcastMirrorsOnlyWithoutExclusion(t *testing.T) {
	req := require.New(t)
	host := startHost(t)
	hostSink := &recorder{}
	host.Subscribe(hostSink)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", hostPort(host)))
	req.NoError(err)
	defer conn.Close()
	_, err = conn.Write([]byte("JOIN:Red\n"))
	req.NoError(err)
	req.Eventually(func() bool { return host.Registry().Len() == 1 }, waitFor, pollTick)

	// When the host broadcasts with no exclusion
	host.Broadcast("announce", nil)

	// Then the peer receives the frame on the wire
	reader := bufio.NewReader(conn)
	req.NoError(conn.SetReadDeadline(time.Now().Add(waitFor)))
	line, err := reader.ReadString('\n')
	req.NoError(err)
	req.Equal("announce\n", line)

	// And the host's own subscribers observe the local mirror
	req.Eventually(func() bool {
		host.DispatchPending()
		return lo.Contains(hostSink.payloads(), "announce")
	}, waitFor, pollTick)

	// When broadcasting with an excluded sender
	excluded := host.Registry().Snapshot()[0]
	host.Broadcast("relayed elsewhere", excluded)

	// Then no local mirror is queued
	host.DispatchPending()
	req.NotContains(hostSink.payloads(), "relayed elsewhere")
}

func TestCore_StopClosesListenerAndClearsRegistry(t *testing.T) {
	req := require.New(t)
	host := startHost(t)
	port := hostPort(host)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	req.NoError(err)
	defer conn.Close()
	req.Eventually(func() bool { return host.Registry().Len() == 1 }, waitFor, pollTick)

	// When the host stops
	host.Stop()

	// Then the registry is empty and new connection attempts are refused
	req.Equal(0, host.Registry().Len())
	_, err = net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	req.Error(err)

	// And stopping again is harmless
	host.Stop()
}

func TestCore_StartFailures(t *testing.T) {
	req := require.New(t)

	t.Run("bind error on busy port", func(t *testing.T) {
		blocker, err := net.Listen("tcp", "127.0.0.1:0")
		req.NoError(err)
		defer blocker.Close()
		busyPort := blocker.Addr().(*net.TCPAddr).Port

		core := NewCore(testLogger(), Options{Role: domain.RoleHost, Port: busyPort}, observability.NewRelayMonitor())
		err = core.Start()
		req.ErrorIs(err, errs.ErrBind)
	})

	t.Run("connect error when host unreachable", func(t *testing.T) {
		// A port that was just freed is as close to guaranteed-closed as it gets.
		probe, err := net.Listen("tcp", "127.0.0.1:0")
		req.NoError(err)
		deadPort := probe.Addr().(*net.TCPAddr).Port
		req.NoError(probe.Close())

		core := NewCore(testLogger(), Options{
			Role:        domain.RolePeer,
			Port:        deadPort,
			HostAddress: "127.0.0.1",
		}, observability.NewRelayMonitor())
		err = core.Start()
		req.ErrorIs(err, errs.ErrConnect)
	})

	t.Run("second start rejected", func(t *testing.T) {
		host := startHost(t)
		req.ErrorIs(host.Start(), errs.ErrAlreadyStarted)
	})
}

func TestCore_PeerSendWithoutConnection(t *testing.T) {
	req := require.New(t)

	// Given a peer core that never started
	core := NewCore(testLogger(), Options{Role: domain.RolePeer}, observability.NewRelayMonitor())

	// Then sending is a reported no-op
	req.ErrorIs(core.Send("lost"), errs.ErrNotConnected)
}

func TestCore_PeerSendAfterHostGone(t *testing.T) {
	req := require.New(t)
	host := startHost(t)
	peer := startPeer(t, hostPort(host), "Red")

	req.Eventually(func() bool { return host.Registry().Len() == 1 }, waitFor, pollTick)

	// When the host goes away
	host.Stop()

	// Then the peer's read loop observes the close and Send degrades to
	// NotConnected instead of writing into the void
	req.Eventually(func() bool {
		return errors.Is(peer.Send("into the void"), errs.ErrNotConnected)
	}, waitFor, pollTick)
}

func TestCore_PeerDefaultsTeamWhenUnset(t *testing.T) {
	req := require.New(t)
	host := startHost(t)

	// Given a peer started without a team tag
	startPeer(t, hostPort(host), "")

	// Then the host registers it under the Unknown team
	req.Eventually(func() bool {
		sessions := host.Registry().Snapshot()
		return len(sessions) == 1 && sessions[0].Team() == domain.UnknownTeam
	}, waitFor, pollTick)
}

func TestCore_EveryPeerGetsExactlyOneCopy(t *testing.T) {
	req := require.New(t)
	host := startHost(t)

	red := startPeer(t, hostPort(host), "Red")
	sinks := make([]*recorder, 0, 3)
	others := make([]*Core, 0, 3)
	for i := 0; i < 3; i++ {
		p := startPeer(t, hostPort(host), domain.TeamTag(fmt.Sprintf("Team-%d", i)))
		sink := &recorder{}
		p.Subscribe(sink)
		others = append(others, p)
		sinks = append(sinks, sink)
	}
	req.Eventually(func() bool { return host.Registry().Len() == 4 }, waitFor, pollTick)

	// When Red sends one payload
	req.NoError(red.Send("fire"))

	// Then every other peer receives exactly one prefixed copy
	req.Eventually(func() bool {
		for i, p := range others {
			p.DispatchPending()
			if len(sinks[i].messages) != 1 {
				return false
			}
		}
		return true
	}, waitFor, pollTick)
	for _, sink := range sinks {
		req.Equal([]string{"[Red] fire"}, sink.payloads())
	}
}
