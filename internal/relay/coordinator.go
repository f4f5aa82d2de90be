package relay

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/sos-relay/internal/domain/alert"
	"github.com/oshokin/sos-relay/internal/domain/geofence"
	"github.com/oshokin/sos-relay/internal/domain/session"
	"github.com/oshokin/sos-relay/internal/logger"
	"github.com/oshokin/sos-relay/internal/protocol"
)

// Sender delivers an envelope to one session. Delivery is fire-and-forget:
// implementations must not block the caller waiting for the remote side,
// and partial delivery on disconnect mid-fan-out is acceptable.
type Sender interface {
	Send(sessionID string, env *protocol.Envelope)
}

// Coordinator owns the shared relay state and processes each inbound event
// to completion before the next one. The single mutex makes a mutation and
// its fan-out one atomic unit as observed by all recipients.
type Coordinator struct {
	// mu serializes event cycles.
	mu sync.Mutex
	// registry tracks live sessions.
	registry *ConnectionRegistry
	// store holds geofence definitions.
	store *GeofenceStore
	// ledger holds accepted alerts and the dedup window.
	ledger *AlertLedger
	// router decides fan-out recipients per event kind.
	router *FanoutRouter
	// sender delivers outbound envelopes.
	sender Sender
	// startedAt is when the relay came up, for status reporting.
	startedAt time.Time
}

// NewCoordinator creates a coordinator with fresh, empty stores.
func NewCoordinator(sender Sender) *Coordinator {
	registry := NewConnectionRegistry()

	return &Coordinator{
		registry:  registry,
		store:     NewGeofenceStore(),
		ledger:    NewAlertLedger(),
		router:    NewFanoutRouter(registry),
		sender:    sender,
		startedAt: time.Now(),
	}
}

// Registry exposes the session registry for read-only mirrors.
func (c *Coordinator) Registry() *ConnectionRegistry { return c.registry }

// Store exposes the geofence store for read-only mirrors.
func (c *Coordinator) Store() *GeofenceStore { return c.store }

// Ledger exposes the alert ledger for read-only mirrors.
func (c *Coordinator) Ledger() *AlertLedger { return c.ledger }

// StartedAt reports when the relay came up.
func (c *Coordinator) StartedAt() time.Time { return c.startedAt }

// Connect registers a new session with role unknown.
func (c *Coordinator) Connect(ctx context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Register(sessionID)
	logger.InfoKV(ctx, "Client connected", "session_id", sessionID)
}

// Disconnect destroys the session.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Remove(sessionID)
	logger.InfoKV(ctx, "Client disconnected", "session_id", sessionID)
}

// Dispatch processes one inbound event to completion: it mutates the
// shared stores and performs the resulting fan-out as one atomic unit.
func (c *Coordinator) Dispatch(ctx context.Context, sessionID string, env *protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Type {
	case protocol.KindIdentify:
		c.handleIdentify(ctx, sessionID, env)
	case protocol.KindSOS:
		c.handleSOS(ctx, sessionID, env)
	case protocol.KindCreateGeofence:
		c.handleCreateGeofence(ctx, sessionID, env)
	case protocol.KindUpdateGeofence:
		c.handleUpdateGeofence(ctx, sessionID, env)
	case protocol.KindDeleteGeofence:
		c.handleDeleteGeofence(ctx, sessionID, env)
	case protocol.KindGeofenceViolation:
		c.handleViolation(ctx, sessionID, env)
	case protocol.KindGetGeofences:
		c.sendSnapshot(ctx, sessionID)
	case protocol.KindGetRecentAlerts:
		c.handleGetRecentAlerts(ctx, sessionID, env)
	case protocol.KindGetServerStatus:
		c.sendServerStatus(ctx, sessionID)
	default:
		logger.WarnKV(ctx, "Unknown event type", "session_id", sessionID, "type", env.Type)
		c.sendError(ctx, sessionID, "unknown event type: "+env.Type)
	}
}

// handleIdentify merges the declared identity into the session. There is
// no broadcast; a session that just became a mobile device receives the
// full geofence snapshot so it can start monitoring immediately.
func (c *Coordinator) handleIdentify(ctx context.Context, sessionID string, env *protocol.Envelope) {
	payload, err := protocol.DecodeData[protocol.Identify](env)
	if err != nil {
		c.sendError(ctx, sessionID, err.Error())
		return
	}

	role := session.ParseRole(payload.Role)

	updated := c.registry.Identify(sessionID, role, payload.DisplayName, payload.Platform)
	if updated == nil {
		logger.DebugKV(ctx, "Identify for unknown session ignored", "session_id", sessionID)
		return
	}

	logger.InfoKV(ctx, "Client identified",
		"session_id", sessionID,
		"role", updated.Role,
		"display_name", updated.DisplayName,
		"platform", updated.Platform)

	if updated.Role == session.RoleMobile && c.store.Len() > 0 {
		c.sendSnapshot(ctx, sessionID)
	}
}

// handleSOS records the alert unless its id was already seen. Duplicates
// are silent no-ops, but the sender still receives a success-shaped
// acknowledgment so its submission state machine can settle.
func (c *Coordinator) handleSOS(ctx context.Context, sessionID string, env *protocol.Envelope) {
	payload, err := protocol.DecodeData[protocol.SOS](env)
	if err != nil {
		c.sendError(ctx, sessionID, err.Error())
		return
	}

	sub := alert.Submission{
		ID:       payload.AlertID,
		Reporter: payload.Reporter,
		Lat:      payload.Lat,
		Lon:      payload.Lon,
		Message:  payload.Message,
		Priority: payload.Priority,
	}

	accepted, duplicate := c.ledger.Submit(sub, sessionID)
	if duplicate {
		logger.InfoKV(ctx, "Duplicate alert ignored", "session_id", sessionID, "alert_id", sub.ID)
		c.send(ctx, sessionID, protocol.KindSOSConfirmation, &protocol.SOSConfirmation{
			Success:        true,
			AlertID:        sub.ID,
			RecipientCount: 0,
		})

		return
	}

	recipients := c.router.Recipients(EventAlertAccepted, sessionID)
	for _, recipient := range recipients {
		for _, kind := range protocol.AlertBroadcastKinds {
			c.send(ctx, recipient.ID, kind, accepted)
		}
	}

	logger.InfoKV(ctx, "Alert accepted",
		"session_id", sessionID,
		"alert_id", accepted.ID,
		"reporter", accepted.Reporter,
		"recipients", len(recipients))

	c.send(ctx, sessionID, protocol.KindSOSConfirmation, &protocol.SOSConfirmation{
		Success:        true,
		AlertID:        accepted.ID,
		RecipientCount: len(recipients),
	})
}

// handleCreateGeofence validates and stores a new geofence. The sender
// receives a distinct "created" acknowledgment carrying the stored record;
// everyone else receives the record as an update broadcast.
func (c *Coordinator) handleCreateGeofence(ctx context.Context, sessionID string, env *protocol.Envelope) {
	patch, err := protocol.DecodeData[geofence.Patch](env)
	if err != nil {
		c.sendError(ctx, sessionID, err.Error())
		return
	}

	created, err := c.store.Create(patch)
	if err != nil {
		logger.WarnKV(ctx, "Geofence create rejected", "session_id", sessionID, "error", err)
		c.sendError(ctx, sessionID, err.Error())

		return
	}

	logger.InfoKV(ctx, "Geofence created", "session_id", sessionID, "geofence_id", created.ID, "name", created.Name)

	c.send(ctx, sessionID, protocol.KindGeofenceCreated, &protocol.GeofenceCreated{
		Success:  true,
		Geofence: created,
	})

	for _, recipient := range c.router.Recipients(EventGeofenceCreated, sessionID) {
		c.send(ctx, recipient.ID, protocol.KindUpdateGeofence, created)
	}
}

// handleUpdateGeofence merges the patch over the stored record, or upserts
// a new record when the id is unknown. Everyone receives the canonical
// merged record, the sender included. The upsert tolerance covers an
// unknown id only: a patch with no id at all is rejected, never stored.
func (c *Coordinator) handleUpdateGeofence(ctx context.Context, sessionID string, env *protocol.Envelope) {
	patch, err := protocol.DecodeData[geofence.Patch](env)
	if err != nil {
		c.sendError(ctx, sessionID, err.Error())
		return
	}

	if patch.ID == "" {
		logger.WarnKV(ctx, "Geofence update rejected", "session_id", sessionID, "error", geofence.ErrIDRequired)
		c.sendError(ctx, sessionID, geofence.ErrIDRequired.Error())

		return
	}

	updated, created := c.store.Update(patch)

	logger.InfoKV(ctx, "Geofence updated",
		"session_id", sessionID,
		"geofence_id", updated.ID,
		"upserted", created)

	for _, recipient := range c.router.Recipients(EventGeofenceUpdated, sessionID) {
		c.send(ctx, recipient.ID, protocol.KindUpdateGeofence, updated)
	}
}

// handleDeleteGeofence removes the geofence and tells every session,
// the sender included. Deleting an unknown id is an explicit error.
func (c *Coordinator) handleDeleteGeofence(ctx context.Context, sessionID string, env *protocol.Envelope) {
	payload, err := protocol.DecodeData[protocol.DeleteGeofence](env)
	if err != nil {
		c.sendError(ctx, sessionID, err.Error())
		return
	}

	removed, err := c.store.Delete(payload.ID)
	if err != nil {
		logger.WarnKV(ctx, "Geofence delete rejected", "session_id", sessionID, "geofence_id", payload.ID, "error", err)
		c.sendError(ctx, sessionID, err.Error())

		return
	}

	logger.InfoKV(ctx, "Geofence deleted", "session_id", sessionID, "geofence_id", removed.ID)

	for _, recipient := range c.router.Recipients(EventGeofenceDeleted, sessionID) {
		c.send(ctx, recipient.ID, protocol.KindDeleteGeofence, &protocol.DeleteGeofence{ID: removed.ID})
	}
}

// handleViolation forwards a boundary-crossing report to every session.
// Violations are never stored server-side.
func (c *Coordinator) handleViolation(ctx context.Context, sessionID string, env *protocol.Envelope) {
	report, err := protocol.DecodeData[protocol.ViolationReport](env)
	if err != nil {
		c.sendError(ctx, sessionID, err.Error())
		return
	}

	reporter := alert.DefaultReporter
	if s := c.registry.Get(sessionID); s != nil && s.DisplayName != "" {
		reporter = s.DisplayName
	}

	violation := &alert.Violation{
		Reporter:     reporter,
		Action:       alert.Action(report.Action),
		GeofenceID:   report.GeofenceID,
		GeofenceName: report.GeofenceName,
		Lat:          report.Lat,
		Lng:          report.Lng,
		Priority:     report.Priority,
		Timestamp:    time.Now(),
	}

	logger.InfoKV(ctx, "Geofence violation reported",
		"session_id", sessionID,
		"geofence_id", violation.GeofenceID,
		"action", violation.Action)

	for _, recipient := range c.router.Recipients(EventViolationReported, sessionID) {
		c.send(ctx, recipient.ID, protocol.KindGeofenceViolation, violation)
	}
}

// handleGetRecentAlerts answers with the most recent alerts, newest first.
func (c *Coordinator) handleGetRecentAlerts(ctx context.Context, sessionID string, env *protocol.Envelope) {
	payload, err := protocol.DecodeData[protocol.GetRecentAlerts](env)
	if err != nil {
		c.sendError(ctx, sessionID, err.Error())
		return
	}

	c.send(ctx, sessionID, protocol.KindRecentAlerts, &protocol.RecentAlerts{
		Alerts: c.ledger.Recent(payload.Limit),
	})
}

// sendSnapshot sends the full geofence set as one message.
func (c *Coordinator) sendSnapshot(ctx context.Context, sessionID string) {
	c.send(ctx, sessionID, protocol.KindAllGeofences, &protocol.AllGeofences{
		Geofences: c.store.List(),
	})
}

// sendServerStatus answers with live store counters.
func (c *Coordinator) sendServerStatus(ctx context.Context, sessionID string) {
	counts := c.registry.CountByRole()

	c.send(ctx, sessionID, protocol.KindServerStatus, &protocol.ServerStatus{
		UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
		Sessions: protocol.SessionCounts{
			Mobile:  counts[session.RoleMobile],
			Web:     counts[session.RoleWeb],
			Admin:   counts[session.RoleAdmin],
			Unknown: counts[session.RoleUnknown],
		},
		Geofences:    c.store.Len(),
		AlertsStored: c.ledger.Len(),
	})
}

// sendError sends an explicit error event to the originator.
func (c *Coordinator) sendError(ctx context.Context, sessionID, message string) {
	c.send(ctx, sessionID, protocol.KindError, &protocol.ErrorMessage{Message: message})
}

// send wraps the payload into an envelope and hands it to the sender.
func (c *Coordinator) send(ctx context.Context, sessionID, kind string, payload any) {
	env, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode outbound event", "session_id", sessionID, "type", kind, "error", err)
		return
	}

	c.sender.Send(sessionID, env)
}
