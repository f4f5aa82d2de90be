// Package protocol defines the JSON event envelope exchanged between the
// relay and its clients, plus the payload types for every inbound and
// outbound event kind.
package protocol
