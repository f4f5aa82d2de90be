package relay

import (
	"sync"
	"time"

	"github.com/oshokin/sos-relay/internal/domain/session"
)

// ConnectionRegistry tracks live client sessions and their declared role.
// Sessions exist only for the lifetime of their connection.
type ConnectionRegistry struct {
	// mu protects concurrent access to the session map.
	mu sync.RWMutex
	// sessions maps session id to its record.
	sessions map[string]*session.Session
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sessions: make(map[string]*session.Session),
	}
}

// Register creates a session with role unknown and returns a copy of it.
func (r *ConnectionRegistry) Register(sessionID string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &session.Session{
		ID:          sessionID,
		Role:        session.RoleUnknown,
		ConnectedAt: time.Now(),
	}
	r.sessions[sessionID] = s

	return s.Clone()
}

// Identify merges the declared identity into the session and returns a copy
// of the updated record. An unknown session id is a silent no-op returning nil.
func (r *ConnectionRegistry) Identify(
	sessionID string,
	role session.Role,
	displayName, platform string,
) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}

	s.Role = role
	s.DisplayName = displayName
	s.Platform = platform

	return s.Clone()
}

// Get returns a copy of the session, or nil if the id is unknown.
func (r *ConnectionRegistry) Get(sessionID string) *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[sessionID].Clone()
}

// Remove destroys the session.
func (r *ConnectionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
}

// ListByRole returns a snapshot of sessions whose role is in the given set.
// Order is unspecified.
func (r *ConnectionRegistry) ListByRole(roles ...session.Role) []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[session.Role]struct{}, len(roles))
	for _, role := range roles {
		wanted[role] = struct{}{}
	}

	result := make([]*session.Session, 0, len(r.sessions))

	for _, s := range r.sessions {
		if _, ok := wanted[s.Role]; ok {
			result = append(result, s.Clone())
		}
	}

	return result
}

// All returns a snapshot of every session. Order is unspecified.
func (r *ConnectionRegistry) All() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s.Clone())
	}

	return result
}

// CountByRole returns how many sessions currently hold each role.
func (r *ConnectionRegistry) CountByRole() map[session.Role]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[session.Role]int, 4)
	for _, s := range r.sessions {
		counts[s.Role]++
	}

	return counts
}

// Len returns the number of live sessions.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
