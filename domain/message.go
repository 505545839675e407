// Package domain contains core concepts of the relay system.
// Messages are immutable once created and carry no transport details.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TeamTag identifies the team a participant announced during the handshake.
type TeamTag string

// UnknownTeam is assigned when a peer sends no handshake or a malformed one.
const UnknownTeam TeamTag = "Unknown"

// Message is one inbound text frame, queued until the next dispatcher tick.
// Team is the origin team attached by the host read loop; it stays empty for
// frames received on the peer side and for the host's local mirrors.
type Message struct {
	ID      uuid.UUID
	Payload string
	Team    TeamTag
	At      time.Time
}

// NewMessage stamps a payload with identity and arrival time.
func NewMessage(payload string, team TeamTag) Message {
	return Message{
		ID:      uuid.New(),
		Payload: payload,
		Team:    team,
		At:      time.Now().UTC(),
	}
}
