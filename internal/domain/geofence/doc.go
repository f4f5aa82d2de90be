// Package geofence contains the domain model for geographic boundaries:
// the Geofence record, the Patch wire shape for create and merge-update
// requests, and the containment test used by device-side monitoring.
package geofence
