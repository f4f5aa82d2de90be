package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-relay/internal/domain/session"
)

// TestRegistry_RegisterIdentifyRemove covers the session lifecycle.
func TestRegistry_RegisterIdentifyRemove(t *testing.T) {
	t.Parallel()

	r := NewConnectionRegistry()

	s := r.Register("s1")
	require.Equal(t, "s1", s.ID)
	require.Equal(t, session.RoleUnknown, s.Role)
	require.False(t, s.ConnectedAt.IsZero())
	require.Equal(t, 1, r.Len())

	updated := r.Identify("s1", session.RoleMobile, "Unit 7", "android")
	require.NotNil(t, updated)
	require.Equal(t, session.RoleMobile, updated.Role)
	require.Equal(t, "Unit 7", updated.DisplayName)
	require.Equal(t, "android", updated.Platform)

	// Identify may run repeatedly.
	updated = r.Identify("s1", session.RoleAdmin, "Ops", "web")
	require.Equal(t, session.RoleAdmin, updated.Role)

	// Unknown session id is a silent no-op.
	require.Nil(t, r.Identify("ghost", session.RoleWeb, "", ""))
	require.Equal(t, 1, r.Len())

	r.Remove("s1")
	require.Equal(t, 0, r.Len())
	require.Nil(t, r.Get("s1"))
}

// TestRegistry_ListByRole verifies role-filtered snapshots.
func TestRegistry_ListByRole(t *testing.T) {
	t.Parallel()

	r := NewConnectionRegistry()

	r.Register("m1")
	r.Identify("m1", session.RoleMobile, "", "")
	r.Register("w1")
	r.Identify("w1", session.RoleWeb, "", "")
	r.Register("a1")
	r.Identify("a1", session.RoleAdmin, "", "")
	r.Register("u1")

	consoles := r.ListByRole(session.RoleWeb, session.RoleAdmin)
	require.Len(t, consoles, 2)

	for _, s := range consoles {
		require.Contains(t, []string{"w1", "a1"}, s.ID)
	}

	require.Len(t, r.All(), 4)

	counts := r.CountByRole()
	require.Equal(t, 1, counts[session.RoleMobile])
	require.Equal(t, 1, counts[session.RoleWeb])
	require.Equal(t, 1, counts[session.RoleAdmin])
	require.Equal(t, 1, counts[session.RoleUnknown])
}

// TestRegistry_SnapshotsAreClones ensures returned sessions do not alias
// registry internals.
func TestRegistry_SnapshotsAreClones(t *testing.T) {
	t.Parallel()

	r := NewConnectionRegistry()
	r.Register("s1")

	snapshot := r.Get("s1")
	snapshot.DisplayName = "mutated"

	require.Empty(t, r.Get("s1").DisplayName)
}
