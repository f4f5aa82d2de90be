package alert

import "time"

// Action describes the direction of a geofence boundary crossing.
type Action string

const (
	// ActionEntered means the device crossed into the geofence.
	ActionEntered Action = "entered"
	// ActionExited means the device crossed out of the geofence.
	ActionExited Action = "exited"
)

// Violation is an ephemeral boundary-crossing event. It is generated on
// the device, forwarded once through the relay, and never stored.
type Violation struct {
	// Reporter identifies the device that crossed the boundary.
	Reporter string `json:"reporter"`
	// Action is the crossing direction.
	Action Action `json:"action"`
	// GeofenceID identifies the crossed geofence.
	GeofenceID string `json:"geofenceId"`
	// GeofenceName is the crossed geofence's human-readable name.
	GeofenceName string `json:"geofenceName"`
	// Lat is the latitude of the sample that confirmed the crossing.
	Lat float64 `json:"lat"`
	// Lng is the longitude of the sample that confirmed the crossing.
	Lng float64 `json:"lng"`
	// Priority is carried over from the geofence definition.
	Priority string `json:"priority,omitempty"`
	// Timestamp is when the crossing was confirmed.
	Timestamp time.Time `json:"timestamp"`
}
