package domain

// Role selects which side of the relay a process runs.
// It is decided by the caller before the core starts and never changes mid-run.
type Role string

const (
	RoleHost Role = "host"
	RolePeer Role = "peer"
)

func (r Role) IsHost() bool {
	return r == RoleHost
}
