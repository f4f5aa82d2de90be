package device

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/sos-relay/internal/domain/alert"
	"github.com/oshokin/sos-relay/internal/domain/geofence"
	"github.com/oshokin/sos-relay/internal/logger"
)

const (
	// stabilityWindowSize is how many raw containment results are kept per
	// geofence. A transition needs at least two unanimous samples, so a
	// single noisy GPS fix can never flip the stable status.
	stabilityWindowSize = 3

	// violationCooldown suppresses any new violation for this long after
	// the last one fired, regardless of which geofence triggered it.
	// The cooldown is device-wide, not per-geofence.
	violationCooldown = 60 * time.Second
)

// membership is the device-local monitoring state for one geofence.
// It is transient and never sent to the relay.
type membership struct {
	// window holds the last raw containment results, oldest first.
	window []bool
	// stableInside is the last confirmed containment status.
	stableInside bool
}

// Monitor converts a stream of location samples plus the synced geofence
// set into stabilized entry/exit violations. Observe runs synchronously
// per sample; the caller owns the sample stream.
type Monitor struct {
	// mu protects the geofence set and memberships.
	mu sync.Mutex
	// reporter identifies this device in emitted violations.
	reporter string
	// fences is the synced geofence set, keyed by id.
	fences map[string]*geofence.Geofence
	// members holds per-geofence monitoring state.
	members map[string]*membership
	// lastViolationAt is when the last violation fired, for the
	// device-wide cooldown.
	lastViolationAt time.Time
}

// NewMonitor creates a monitor with an empty geofence set.
func NewMonitor(reporter string) *Monitor {
	return &Monitor{
		reporter: reporter,
		fences:   make(map[string]*geofence.Geofence),
		members:  make(map[string]*membership),
	}
}

// SetGeofences replaces the synced set with a full snapshot. Memberships
// of surviving geofences are preserved; memberships of removed ones are
// destroyed.
func (m *Monitor) SetGeofences(fences []*geofence.Geofence) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*geofence.Geofence, len(fences))
	for _, g := range fences {
		next[g.ID] = g.Clone()
	}

	for id := range m.members {
		if _, ok := next[id]; !ok {
			delete(m.members, id)
		}
	}

	m.fences = next
}

// Upsert adds or replaces one geofence definition, keeping any existing
// membership state.
func (m *Monitor) Upsert(g *geofence.Geofence) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fences[g.ID] = g.Clone()
}

// Remove drops one geofence and its membership state.
func (m *Monitor) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.fences, id)
	delete(m.members, id)
}

// Len returns the number of synced geofences.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.fences)
}

// Observe processes one location sample against every active geofence and
// returns the violations it confirmed, if any. A containment test that
// fails for a malformed geofence counts as outside for that cycle and
// monitoring continues for the others.
func (m *Monitor) Observe(ctx context.Context, lat, lon float64) []*alert.Violation {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	var violations []*alert.Violation

	for id, g := range m.fences {
		if !g.Active {
			continue
		}

		inside, err := g.Contains(lat, lon)
		if err != nil {
			logger.DebugKV(ctx, "Containment test failed, treating as outside",
				"geofence_id", id, "error", err)

			inside = false
		}

		member, ok := m.members[id]
		if !ok {
			member = new(membership)
			m.members[id] = member
		}

		member.window = append(member.window, inside)
		if len(member.window) > stabilityWindowSize {
			member.window = member.window[1:]
		}

		stable, agreed := stableReading(member.window)
		if !agreed {
			// A non-unanimous window leaves the stable status untouched.
			continue
		}

		previous := member.stableInside
		member.stableInside = stable

		var action alert.Action

		switch {
		case stable && !previous && g.AlertOnEntry:
			action = alert.ActionEntered
		case !stable && previous && g.AlertOnExit:
			action = alert.ActionExited
		default:
			continue
		}

		if !m.lastViolationAt.IsZero() && now.Sub(m.lastViolationAt) < violationCooldown {
			logger.DebugKV(ctx, "Violation suppressed by cooldown", "geofence_id", id, "action", action)
			continue
		}

		m.lastViolationAt = now

		violations = append(violations, &alert.Violation{
			Reporter:     m.reporter,
			Action:       action,
			GeofenceID:   g.ID,
			GeofenceName: g.Name,
			Lat:          lat,
			Lng:          lon,
			Priority:     g.Priority,
			Timestamp:    now,
		})
	}

	return violations
}

// stableReading reports the unanimous containment value of the window.
// Fewer than two samples, or any disagreement, means no stable reading.
func stableReading(window []bool) (value, agreed bool) {
	if len(window) < 2 {
		return false, false
	}

	first := window[0]

	for _, sample := range window[1:] {
		if sample != first {
			return false, false
		}
	}

	return first, true
}
