package internal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"teamlink/domain"
)

// Config is loaded once from the environment at start-up and treated as
// immutable for the process lifetime. Role decides which fields are read:
// Port for the host side, HostAddress/TeamTag for the peer side.
type Config struct {
	Role        string `env:"RELAY_ROLE,required=true" validate:"oneof=host peer"`
	Port        int    `env:"RELAY_PORT,default=9000" validate:"gte=0,lte=65535"`
	HostAddress string `env:"RELAY_HOST_ADDRESS" validate:"required_if=Role peer"`
	TeamTag     string `env:"RELAY_TEAM"`

	TickInterval      time.Duration `env:"TICK_INTERVAL,default=50ms" validate:"gt=0"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=5s" validate:"gt=0"`
	ShutdownGrace     time.Duration `env:"SHUTDOWN_GRACE,default=2s" validate:"gt=0"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid relay config: %w", err)
	}
	return nil
}

func (c Config) RoleValue() domain.Role {
	return domain.Role(c.Role)
}

// Team falls back to UnknownTeam so a peer without RELAY_TEAM still joins.
func (c Config) Team() domain.TeamTag {
	if c.TeamTag == "" {
		return domain.UnknownTeam
	}
	return domain.TeamTag(c.TeamTag)
}
