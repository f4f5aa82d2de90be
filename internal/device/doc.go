// Package device implements the device side of the relay protocol:
// a reconnecting websocket client, a geofence monitor that debounces
// position jitter into confirmed boundary crossings, and a single-flight
// emergency alert submitter.
package device
