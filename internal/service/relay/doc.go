// Package relay wires the relay server process: configuration, the
// websocket event endpoint, the read-only REST mirror, and graceful
// shutdown.
package relay
