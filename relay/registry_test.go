package relay

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func newPipeSession() *Session {
	server, _ := net.Pipe()
	return NewSession(server, StateAwaitingHandshake)
}

func TestRegistry_AddAndSnapshot(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s1 := newPipeSession()
	s2 := newPipeSession()

	// Given an empty registry
	req.Equal(0, registry.Len())

	// When two sessions register
	registry.Add(s1)
	registry.Add(s2)

	// Then both appear exactly once
	req.Equal(2, registry.Len())
	req.ElementsMatch([]*Session{s1, s2}, registry.Snapshot())
}

func TestRegistry_Remove_ExactlyOnce(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s := newPipeSession()
	registry.Add(s)

	// When the owning read loop removes its session
	req.True(registry.Remove(s.ID()))

	// Then a second removal attempt reports absence instead of double counting
	req.False(registry.Remove(s.ID()))
	req.Equal(0, registry.Len())
}

func TestRegistry_CloseAll_ClearsAndCloses(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	s1 := newPipeSession()
	s2 := newPipeSession()
	registry.Add(s1)
	registry.Add(s2)

	// When shutdown closes everything
	closed := registry.CloseAll()

	// Then the registry is empty and the handles are dead
	req.Equal(2, closed)
	req.Equal(0, registry.Len())
	req.False(s1.Connected())
	req.False(s2.Connected())

	// And a read loop racing the shutdown finds nothing left to remove
	req.False(registry.Remove(s1.ID()))
}
