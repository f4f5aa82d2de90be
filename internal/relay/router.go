package relay

import (
	"github.com/oshokin/sos-relay/internal/domain/session"
)

// RoutedEvent names a fan-out decision the router knows how to make.
type RoutedEvent string

const (
	// EventAlertAccepted is a newly accepted SOS alert.
	EventAlertAccepted RoutedEvent = "alertAccepted"
	// EventGeofenceCreated is a newly created geofence.
	EventGeofenceCreated RoutedEvent = "geofenceCreated"
	// EventGeofenceUpdated is a merged or upserted geofence.
	EventGeofenceUpdated RoutedEvent = "geofenceUpdated"
	// EventGeofenceDeleted is a removed geofence.
	EventGeofenceDeleted RoutedEvent = "geofenceDeleted"
	// EventViolationReported is a forwarded boundary-crossing event.
	EventViolationReported RoutedEvent = "violationReported"
)

// routeRule captures the recipient set for one event kind.
type routeRule struct {
	// roles restricts recipients; nil means every session.
	roles []session.Role
	// includeSender keeps the originating session in the recipient set.
	includeSender bool
}

// routingTable is the authoritative per-event recipient contract. It
// decides who is warned of an emergency, so changes here are changes to
// the system's safety behavior.
//
//nolint:gochecknoglobals // Fixed routing policy, read-only after init.
var routingTable = map[RoutedEvent]routeRule{
	// Consoles are warned; the sender gets a confirmation instead.
	EventAlertAccepted: {roles: []session.Role{session.RoleWeb, session.RoleAdmin}, includeSender: false},
	// Everyone learns about the new zone; the sender gets a distinct
	// "created" acknowledgment carrying the stored record.
	EventGeofenceCreated: {roles: nil, includeSender: false},
	// The sender needs the canonical merged record too.
	EventGeofenceUpdated: {roles: nil, includeSender: true},
	EventGeofenceDeleted: {roles: nil, includeSender: true},
	// No role filter: consoles and other mobiles all receive it.
	EventViolationReported: {roles: nil, includeSender: true},
}

// FanoutRouter decides, per event kind, which sessions receive a broadcast.
// It is pure policy over a registry snapshot.
type FanoutRouter struct {
	// registry supplies the live session snapshot.
	registry *ConnectionRegistry
}

// NewFanoutRouter creates a router over the given registry.
func NewFanoutRouter(registry *ConnectionRegistry) *FanoutRouter {
	return &FanoutRouter{registry: registry}
}

// Recipients returns the sessions the event must be delivered to,
// honoring the per-event role filter and sender-inclusion rule.
func (r *FanoutRouter) Recipients(event RoutedEvent, senderID string) []*session.Session {
	rule, ok := routingTable[event]
	if !ok {
		return nil
	}

	var candidates []*session.Session
	if rule.roles == nil {
		candidates = r.registry.All()
	} else {
		candidates = r.registry.ListByRole(rule.roles...)
	}

	if rule.includeSender {
		return candidates
	}

	result := candidates[:0]

	for _, s := range candidates {
		if s.ID != senderID {
			result = append(result, s)
		}
	}

	return result
}
