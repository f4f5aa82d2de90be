// Package relay implements the central relay's shared state and fan-out
// logic: the connection registry, the geofence store, the alert ledger
// with its deduplication window, the per-event routing policy, and the
// coordinator that processes each inbound event to completion so that a
// mutation and its fan-out are observed as one atomic unit.
//
// All state is process-memory-resident and lost on restart.
package relay
