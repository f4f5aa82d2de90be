package session

import (
	"time"

	"github.com/google/uuid"
)

// Role describes what kind of client a session represents.
type Role string

const (
	// RoleUnknown is the role every session starts with until it identifies.
	RoleUnknown Role = "unknown"
	// RoleMobile marks a mobile safety device.
	RoleMobile Role = "mobile"
	// RoleWeb marks a monitoring web console.
	RoleWeb Role = "web"
	// RoleAdmin marks an administrative console.
	RoleAdmin Role = "admin"
)

// ParseRole maps a wire role string to a Role, falling back to RoleUnknown.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleMobile, RoleWeb, RoleAdmin:
		return Role(s)
	case RoleUnknown:
		return RoleUnknown
	default:
		return RoleUnknown
	}
}

// Session is one live connection and its declared identity.
// It exists only for the lifetime of the connection and is never persisted.
type Session struct {
	// ID uniquely identifies the connection for its lifetime.
	ID string `json:"id"`
	// Role is the declared client role, RoleUnknown until identify.
	Role Role `json:"role"`
	// DisplayName is the human-readable name supplied on identify.
	DisplayName string `json:"displayName,omitempty"`
	// Platform is the client platform supplied on identify.
	Platform string `json:"platform,omitempty"`
	// ConnectedAt is when the connection was established.
	ConnectedAt time.Time `json:"connectedAt"`
}

// NewID returns a fresh unique session identifier.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a copy of the session to avoid leaking internal references.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}
