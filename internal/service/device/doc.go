// Package device wires the device agent process: configuration, the
// reconnecting relay connection, position sampling from stdin, and the
// SIGUSR1 emergency trigger.
package device
