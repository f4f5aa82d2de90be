package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-relay/internal/domain/session"
)

// routerFixture builds a registry with one session per role plus the
// mobile sender, and returns the router over it.
func routerFixture(t *testing.T) *FanoutRouter {
	t.Helper()

	r := NewConnectionRegistry()

	r.Register("sender")
	r.Identify("sender", session.RoleMobile, "Unit 7", "android")
	r.Register("mobile2")
	r.Identify("mobile2", session.RoleMobile, "Unit 8", "ios")
	r.Register("web1")
	r.Identify("web1", session.RoleWeb, "Console", "browser")
	r.Register("admin1")
	r.Identify("admin1", session.RoleAdmin, "Ops", "browser")
	r.Register("fresh")

	return NewFanoutRouter(r)
}

// ids collects session ids from a recipient list.
func ids(sessions []*session.Session) []string {
	result := make([]string, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s.ID)
	}

	return result
}

// TestRouter_AlertAccepted pins the contract: consoles only, sender excluded.
func TestRouter_AlertAccepted(t *testing.T) {
	t.Parallel()

	router := routerFixture(t)

	recipients := ids(router.Recipients(EventAlertAccepted, "sender"))
	require.ElementsMatch(t, []string{"web1", "admin1"}, recipients)

	// A console sender is excluded from its own alert broadcast.
	recipients = ids(router.Recipients(EventAlertAccepted, "web1"))
	require.ElementsMatch(t, []string{"admin1"}, recipients)
}

// TestRouter_GeofenceCreated pins the contract: everyone except the sender.
func TestRouter_GeofenceCreated(t *testing.T) {
	t.Parallel()

	router := routerFixture(t)

	recipients := ids(router.Recipients(EventGeofenceCreated, "admin1"))
	require.ElementsMatch(t, []string{"sender", "mobile2", "web1", "fresh"}, recipients)
}

// TestRouter_SenderInclusiveEvents pins updates, deletes, and violations:
// all sessions, sender included, no role filter.
func TestRouter_SenderInclusiveEvents(t *testing.T) {
	t.Parallel()

	router := routerFixture(t)
	everyone := []string{"sender", "mobile2", "web1", "admin1", "fresh"}

	for _, event := range []RoutedEvent{EventGeofenceUpdated, EventGeofenceDeleted, EventViolationReported} {
		recipients := ids(router.Recipients(event, "sender"))
		require.ElementsMatch(t, everyone, recipients, "event %s", event)
	}
}

// TestRouter_UnknownEvent returns no recipients for unrouted events.
func TestRouter_UnknownEvent(t *testing.T) {
	t.Parallel()

	router := routerFixture(t)
	require.Empty(t, router.Recipients(RoutedEvent("bogus"), "sender"))
}
