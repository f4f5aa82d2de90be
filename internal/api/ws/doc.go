// Package ws is the relay's bidirectional event transport: it accepts
// websocket connections, assigns each one a session, decodes the JSON
// event envelopes into the coordinator, and delivers fan-out messages
// through a bounded per-session outbound queue.
package ws
