// Package alert contains the domain model for emergency signals: the SOS
// Submission as it arrives from a device, the normalized stored Alert, and
// the ephemeral geofence Violation event.
package alert
