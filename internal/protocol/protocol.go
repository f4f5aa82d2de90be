package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/oshokin/sos-relay/internal/domain/alert"
	"github.com/oshokin/sos-relay/internal/domain/geofence"
)

// Inbound event kinds (client to relay).
const (
	KindIdentify          = "identify"
	KindSOS               = "sos"
	KindCreateGeofence    = "createGeofence"
	KindUpdateGeofence    = "updateGeofence"
	KindDeleteGeofence    = "deleteGeofence"
	KindGeofenceViolation = "geofenceViolation"
	KindGetGeofences      = "getGeofences"
	KindGetRecentAlerts   = "getRecentAlerts"
	KindGetServerStatus   = "getServerStatus"
)

// Outbound event kinds (relay to client). Accepted alerts are emitted under
// three kinds for compatibility with older console builds that subscribe to
// "emergency" or "alert".
const (
	KindSOSAlert        = "sosAlert"
	KindEmergency       = "emergency"
	KindAlert           = "alert"
	KindSOSConfirmation = "sosConfirmation"
	KindAllGeofences    = "allGeofences"
	KindGeofenceCreated = "geofenceCreated"
	KindError           = "error"
	KindRecentAlerts    = "recentAlerts"
	KindServerStatus    = "serverStatus"
)

// AlertBroadcastKinds lists every kind an accepted alert is emitted under.
//
//nolint:gochecknoglobals // Fixed protocol constant shared by router and tests.
var AlertBroadcastKinds = []string{KindSOSAlert, KindEmergency, KindAlert}

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	// Type is the event kind.
	Type string `json:"type"`
	// Data is the kind-specific payload, absent for parameterless events.
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope wraps a payload into an envelope of the given kind.
func NewEnvelope(kind string, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Type: kind}, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	return &Envelope{Type: kind, Data: raw}, nil
}

// DecodeData unmarshals the envelope payload into the requested type.
// An absent payload decodes to the zero value.
func DecodeData[T any](env *Envelope) (*T, error) {
	var payload T

	if len(env.Data) == 0 {
		return &payload, nil
	}

	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}

	return &payload, nil
}

// Identify is the payload of KindIdentify.
type Identify struct {
	// Role is the declared client role.
	Role string `json:"role"`
	// DisplayName is the human-readable client name.
	DisplayName string `json:"displayName"`
	// Platform is the client platform string.
	Platform string `json:"platform"`
}

// SOS is the payload of KindSOS.
type SOS struct {
	// AlertID is the submission-supplied id; empty for relay-assigned.
	AlertID string `json:"alertId,omitempty"`
	// Reporter identifies who raised the alert.
	Reporter string `json:"reporter"`
	// Lat is the reported latitude.
	Lat float64 `json:"lat"`
	// Lon is the reported longitude.
	Lon float64 `json:"lon"`
	// Message is the optional free-text message.
	Message string `json:"message,omitempty"`
	// Priority is the optional alert priority.
	Priority string `json:"priority,omitempty"`
}

// DeleteGeofence is the payload of inbound KindDeleteGeofence and of the
// outbound deletion broadcast.
type DeleteGeofence struct {
	// ID identifies the removed geofence.
	ID string `json:"id"`
}

// ViolationReport is the payload of inbound KindGeofenceViolation.
type ViolationReport struct {
	// Action is the crossing direction ("entered" or "exited").
	Action string `json:"action"`
	// GeofenceID identifies the crossed geofence.
	GeofenceID string `json:"geofenceId"`
	// GeofenceName is the crossed geofence's name.
	GeofenceName string `json:"geofenceName"`
	// Lat is the confirming sample latitude.
	Lat float64 `json:"lat"`
	// Lng is the confirming sample longitude.
	Lng float64 `json:"lng"`
	// Priority is carried over from the geofence definition.
	Priority string `json:"priority,omitempty"`
}

// GetRecentAlerts is the payload of KindGetRecentAlerts.
type GetRecentAlerts struct {
	// Limit bounds how many alerts to return; zero means the default.
	Limit int `json:"limit,omitempty"`
}

// SOSConfirmation is the acknowledgment the alert submitter receives.
type SOSConfirmation struct {
	// Success is true for accepted and duplicate submissions alike.
	Success bool `json:"success"`
	// AlertID echoes the id the submission was recorded (or deduplicated) under.
	AlertID string `json:"alertId"`
	// RecipientCount is how many console sessions received the broadcast.
	RecipientCount int `json:"recipientCount"`
}

// GeofenceCreated is the acknowledgment a geofence creator receives,
// carrying the canonical stored record.
type GeofenceCreated struct {
	// Success is true when the geofence was stored.
	Success bool `json:"success"`
	// Geofence is the stored record with defaults applied.
	Geofence *geofence.Geofence `json:"geofence"`
}

// AllGeofences is the payload of the full snapshot broadcast. The snapshot
// is always sent as one message.
type AllGeofences struct {
	// Geofences is the full definition set in creation order.
	Geofences []*geofence.Geofence `json:"geofences"`
}

// RecentAlerts is the payload answering KindGetRecentAlerts.
type RecentAlerts struct {
	// Alerts are the most recent alerts, newest first.
	Alerts []*alert.Alert `json:"alerts"`
}

// ErrorMessage is the payload of KindError.
type ErrorMessage struct {
	// Message describes what was rejected and why.
	Message string `json:"message"`
}

// SessionCounts breaks down connected sessions by role.
type SessionCounts struct {
	// Mobile is the number of identified mobile devices.
	Mobile int `json:"mobile"`
	// Web is the number of identified web consoles.
	Web int `json:"web"`
	// Admin is the number of identified admin consoles.
	Admin int `json:"admin"`
	// Unknown is the number of sessions that have not identified yet.
	Unknown int `json:"unknown"`
}

// ServerStatus is the payload answering KindGetServerStatus.
type ServerStatus struct {
	// UptimeSeconds is how long the relay has been running.
	UptimeSeconds int64 `json:"uptimeSeconds"`
	// Sessions breaks down connected sessions by role.
	Sessions SessionCounts `json:"sessions"`
	// Geofences is the number of stored geofence definitions.
	Geofences int `json:"geofences"`
	// AlertsStored is the number of alerts currently in the ledger.
	AlertsStored int `json:"alertsStored"`
}
