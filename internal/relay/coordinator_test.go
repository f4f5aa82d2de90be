package relay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-relay/internal/domain/geofence"
	"github.com/oshokin/sos-relay/internal/protocol"
)

// sentEnvelope records one fire-and-forget delivery.
type sentEnvelope struct {
	// sessionID is the delivery target.
	sessionID string
	// env is the delivered envelope.
	env *protocol.Envelope
}

// captureSender is a Sender that records every delivery for assertions.
type captureSender struct {
	// mu protects the sent slice.
	mu sync.Mutex
	// sent holds deliveries in order.
	sent []sentEnvelope
}

// Send records the delivery.
func (c *captureSender) Send(sessionID string, env *protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, sentEnvelope{sessionID: sessionID, env: env})
}

// byKind returns the recorded deliveries of one envelope kind.
func (c *captureSender) byKind(kind string) []sentEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []sentEnvelope

	for _, s := range c.sent {
		if s.env.Type == kind {
			result = append(result, s)
		}
	}

	return result
}

// reset forgets all recorded deliveries.
func (c *captureSender) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = nil
}

// mustEnvelope builds an envelope or fails the test.
func mustEnvelope(t *testing.T, kind string, payload any) *protocol.Envelope {
	t.Helper()

	env, err := protocol.NewEnvelope(kind, payload)
	require.NoError(t, err)

	return env
}

// coordinatorFixture wires a coordinator over a capture sender with one
// connected session per role.
func coordinatorFixture(t *testing.T) (*Coordinator, *captureSender) {
	t.Helper()

	sender := new(captureSender)
	c := NewCoordinator(sender)
	ctx := context.Background()

	for id, role := range map[string]string{"mobile1": "mobile", "web1": "web", "admin1": "admin"} {
		c.Connect(ctx, id)
		c.Dispatch(ctx, id, mustEnvelope(t, protocol.KindIdentify, &protocol.Identify{Role: role}))
	}

	sender.reset()

	return c, sender
}

// TestCoordinator_IdentifyPushesSnapshotToMobile verifies identify causes
// no broadcast, and that a session becoming mobile receives the full
// geofence snapshot when the store is non-empty.
func TestCoordinator_IdentifyPushesSnapshotToMobile(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindCreateGeofence, &geofence.Patch{ID: "g1", Name: "Zone"}))
	sender.reset()

	c.Connect(ctx, "late")
	c.Dispatch(ctx, "late", mustEnvelope(t, protocol.KindIdentify, &protocol.Identify{
		Role:        "mobile",
		DisplayName: "Unit 9",
		Platform:    "android",
	}))

	snapshots := sender.byKind(protocol.KindAllGeofences)
	require.Len(t, snapshots, 1)
	require.Equal(t, "late", snapshots[0].sessionID)

	payload, err := protocol.DecodeData[protocol.AllGeofences](snapshots[0].env)
	require.NoError(t, err)
	require.Len(t, payload.Geofences, 1)
	require.Equal(t, "g1", payload.Geofences[0].ID)

	// Nothing else went out: identify never broadcasts.
	require.Len(t, sender.sent, 1)

	// A web console identifying sees no snapshot.
	sender.reset()
	c.Connect(ctx, "console")
	c.Dispatch(ctx, "console", mustEnvelope(t, protocol.KindIdentify, &protocol.Identify{Role: "web"}))
	require.Empty(t, sender.sent)
}

// TestCoordinator_SOSFanout verifies role-filtered alert broadcasts and
// the sender confirmation with recipient count.
func TestCoordinator_SOSFanout(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "mobile1", mustEnvelope(t, protocol.KindSOS, &protocol.SOS{
		AlertID:  "a1",
		Reporter: "Unit 7",
		Lat:      55.7,
		Lon:      37.6,
	}))

	// Consoles receive the alert under every broadcast kind; the mobile
	// sender receives none of them.
	for _, kind := range protocol.AlertBroadcastKinds {
		deliveries := sender.byKind(kind)
		require.Len(t, deliveries, 2, "kind %s", kind)

		for _, d := range deliveries {
			require.Contains(t, []string{"web1", "admin1"}, d.sessionID)
		}
	}

	confirmations := sender.byKind(protocol.KindSOSConfirmation)
	require.Len(t, confirmations, 1)
	require.Equal(t, "mobile1", confirmations[0].sessionID)

	confirmation, err := protocol.DecodeData[protocol.SOSConfirmation](confirmations[0].env)
	require.NoError(t, err)
	require.True(t, confirmation.Success)
	require.Equal(t, "a1", confirmation.AlertID)
	require.Equal(t, 2, confirmation.RecipientCount)
}

// TestCoordinator_SOSDuplicate verifies a replayed alert id mutates
// nothing, broadcasts nothing, and still acknowledges success.
func TestCoordinator_SOSDuplicate(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	submit := func() {
		c.Dispatch(ctx, "mobile1", mustEnvelope(t, protocol.KindSOS, &protocol.SOS{AlertID: "a1", Reporter: "Unit 7"}))
	}

	submit()
	require.Equal(t, 1, c.Ledger().Len())

	sender.reset()
	submit()

	require.Equal(t, 1, c.Ledger().Len())

	for _, kind := range protocol.AlertBroadcastKinds {
		require.Empty(t, sender.byKind(kind))
	}

	// Still a success-shaped acknowledgment, not an error.
	confirmations := sender.byKind(protocol.KindSOSConfirmation)
	require.Len(t, confirmations, 1)

	confirmation, err := protocol.DecodeData[protocol.SOSConfirmation](confirmations[0].env)
	require.NoError(t, err)
	require.True(t, confirmation.Success)
	require.Equal(t, 0, confirmation.RecipientCount)
	require.Empty(t, sender.byKind(protocol.KindError))
}

// TestCoordinator_CreateGeofence verifies the creator acknowledgment and
// the sender-exclusive broadcast of the stored record.
func TestCoordinator_CreateGeofence(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindCreateGeofence, &geofence.Patch{
		ID:     "g1",
		Name:   "Zone",
		Center: &geofence.Point{Lat: 0, Lon: 0},
	}))

	acks := sender.byKind(protocol.KindGeofenceCreated)
	require.Len(t, acks, 1)
	require.Equal(t, "admin1", acks[0].sessionID)

	ack, err := protocol.DecodeData[protocol.GeofenceCreated](acks[0].env)
	require.NoError(t, err)
	require.True(t, ack.Success)
	require.Equal(t, "g1", ack.Geofence.ID)
	require.Equal(t, geofence.ShapeCircle, ack.Geofence.ShapeType)

	broadcasts := sender.byKind(protocol.KindUpdateGeofence)
	require.Len(t, broadcasts, 2)

	for _, b := range broadcasts {
		require.NotEqual(t, "admin1", b.sessionID)
	}
}

// TestCoordinator_CreateGeofenceValidation verifies a rejected create
// mutates nothing and broadcasts nothing.
func TestCoordinator_CreateGeofenceValidation(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindCreateGeofence, &geofence.Patch{ID: "g1"}))

	require.Equal(t, 0, c.Store().Len())
	require.Empty(t, sender.byKind(protocol.KindUpdateGeofence))
	require.Empty(t, sender.byKind(protocol.KindGeofenceCreated))

	errs := sender.byKind(protocol.KindError)
	require.Len(t, errs, 1)
	require.Equal(t, "admin1", errs[0].sessionID)
}

// TestCoordinator_UpdateGeofenceUpserts verifies update-on-missing creates
// a record and broadcasts it to everyone, the sender included.
func TestCoordinator_UpdateGeofenceUpserts(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindUpdateGeofence, &geofence.Patch{ID: "missing", Name: "X"}))

	require.Equal(t, 1, c.Store().Len())

	broadcasts := sender.byKind(protocol.KindUpdateGeofence)
	require.Len(t, broadcasts, 3)

	targets := make([]string, 0, len(broadcasts))
	for _, b := range broadcasts {
		targets = append(targets, b.sessionID)
	}

	require.Contains(t, targets, "admin1")
	require.Empty(t, sender.byKind(protocol.KindError))
}

// TestCoordinator_UpdateGeofenceRequiresID verifies the upsert tolerance
// does not extend to an absent id: the update is rejected, nothing is
// stored, and nothing is broadcast.
func TestCoordinator_UpdateGeofenceRequiresID(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindUpdateGeofence, &geofence.Patch{Name: "Nameless"}))

	require.Equal(t, 0, c.Store().Len())
	require.Empty(t, sender.byKind(protocol.KindUpdateGeofence))

	errs := sender.byKind(protocol.KindError)
	require.Len(t, errs, 1)
	require.Equal(t, "admin1", errs[0].sessionID)
}

// TestCoordinator_DeleteGeofence verifies deletion broadcast and the
// explicit error for unknown ids.
func TestCoordinator_DeleteGeofence(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindDeleteGeofence, &protocol.DeleteGeofence{ID: "ghost"}))

	require.Len(t, sender.byKind(protocol.KindError), 1)
	require.Empty(t, sender.byKind(protocol.KindDeleteGeofence))

	sender.reset()
	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindCreateGeofence, &geofence.Patch{ID: "g1", Name: "Zone"}))
	sender.reset()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindDeleteGeofence, &protocol.DeleteGeofence{ID: "g1"}))

	broadcasts := sender.byKind(protocol.KindDeleteGeofence)
	require.Len(t, broadcasts, 3)
	require.Equal(t, 0, c.Store().Len())
}

// TestCoordinator_ViolationBroadcast verifies violations reach every
// session with the reporter resolved from the sender's identity.
func TestCoordinator_ViolationBroadcast(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "mobile1", mustEnvelope(t, protocol.KindIdentify, &protocol.Identify{
		Role:        "mobile",
		DisplayName: "Unit 7",
	}))
	sender.reset()

	c.Dispatch(ctx, "mobile1", mustEnvelope(t, protocol.KindGeofenceViolation, &protocol.ViolationReport{
		Action:       "entered",
		GeofenceID:   "g1",
		GeofenceName: "Zone",
		Lat:          55.7,
		Lng:          37.6,
	}))

	broadcasts := sender.byKind(protocol.KindGeofenceViolation)
	require.Len(t, broadcasts, 3)

	payload, err := protocol.DecodeData[map[string]any](broadcasts[0].env)
	require.NoError(t, err)
	require.Equal(t, "Unit 7", (*payload)["reporter"])
	require.Equal(t, "entered", (*payload)["action"])
	require.Equal(t, "g1", (*payload)["geofenceId"])
}

// TestCoordinator_PullRequests verifies the read-only event variants.
func TestCoordinator_PullRequests(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)
	ctx := context.Background()

	c.Dispatch(ctx, "admin1", mustEnvelope(t, protocol.KindCreateGeofence, &geofence.Patch{ID: "g1", Name: "Zone"}))
	c.Dispatch(ctx, "mobile1", mustEnvelope(t, protocol.KindSOS, &protocol.SOS{AlertID: "a1"}))
	sender.reset()

	c.Dispatch(ctx, "web1", mustEnvelope(t, protocol.KindGetGeofences, nil))
	c.Dispatch(ctx, "web1", mustEnvelope(t, protocol.KindGetRecentAlerts, &protocol.GetRecentAlerts{Limit: 5}))
	c.Dispatch(ctx, "web1", mustEnvelope(t, protocol.KindGetServerStatus, nil))

	snapshots := sender.byKind(protocol.KindAllGeofences)
	require.Len(t, snapshots, 1)

	alerts := sender.byKind(protocol.KindRecentAlerts)
	require.Len(t, alerts, 1)

	recent, err := protocol.DecodeData[protocol.RecentAlerts](alerts[0].env)
	require.NoError(t, err)
	require.Len(t, recent.Alerts, 1)
	require.Equal(t, "a1", recent.Alerts[0].ID)

	statuses := sender.byKind(protocol.KindServerStatus)
	require.Len(t, statuses, 1)

	status, err := protocol.DecodeData[protocol.ServerStatus](statuses[0].env)
	require.NoError(t, err)
	require.Equal(t, 1, status.Sessions.Mobile)
	require.Equal(t, 1, status.Sessions.Web)
	require.Equal(t, 1, status.Sessions.Admin)
	require.Equal(t, 1, status.Geofences)
	require.Equal(t, 1, status.AlertsStored)
}

// TestCoordinator_UnknownEvent verifies unrecognized kinds are answered
// with an error event.
func TestCoordinator_UnknownEvent(t *testing.T) {
	t.Parallel()

	c, sender := coordinatorFixture(t)

	c.Dispatch(context.Background(), "web1", &protocol.Envelope{Type: "bogus"})

	errs := sender.byKind(protocol.KindError)
	require.Len(t, errs, 1)
	require.Equal(t, "web1", errs[0].sessionID)
}
