// Package session contains the domain model for live client connections:
// the Session record and the Role taxonomy (mobile device, web console,
// admin console, unknown).
package session
