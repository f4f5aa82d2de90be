package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/oshokin/sos-relay/internal/domain/geofence"
)

// ErrGeofenceNotFound is returned when deleting a geofence id that was
// never created. Updates never return it: an update for a missing id
// upserts instead, tolerating out-of-order create/update delivery.
var ErrGeofenceNotFound = errors.New("geofence not found")

// GeofenceStore is the authoritative mutable set of geofence definitions.
// List returns records in creation order.
type GeofenceStore struct {
	// mu protects concurrent access to the definition set.
	mu sync.RWMutex
	// byID maps geofence id to its record.
	byID map[string]*geofence.Geofence
	// order holds geofence ids in creation order.
	order []string
}

// NewGeofenceStore creates an empty store.
func NewGeofenceStore() *GeofenceStore {
	return &GeofenceStore{
		byID: make(map[string]*geofence.Geofence),
	}
}

// Create validates and inserts a new geofence, applying defaults for
// omitted fields. Creating an id that already exists overwrites the
// existing record in place, keeping its creation-order slot.
func (s *GeofenceStore) Create(p *geofence.Patch) (*geofence.Geofence, error) {
	g, err := geofence.New(p, time.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[g.ID]; !ok {
		s.order = append(s.order, g.ID)
	}

	s.byID[g.ID] = g

	return g.Clone(), nil
}

// Update merges the patch over the stored record and refreshes UpdatedAt.
// A missing id upserts a new record from the patch alone; the returned
// flag reports whether a record was created rather than patched.
func (s *GeofenceStore) Update(p *geofence.Patch) (*geofence.Geofence, bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[p.ID]; ok {
		existing.ApplyPatch(p, now)

		return existing.Clone(), false
	}

	g := geofence.FromPatch(p, now)
	s.byID[g.ID] = g
	s.order = append(s.order, g.ID)

	return g.Clone(), true
}

// Delete removes the geofence and returns the removed record.
func (s *GeofenceStore) Delete(id string) (*geofence.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.byID[id]
	if !ok {
		return nil, ErrGeofenceNotFound
	}

	delete(s.byID, id)

	for i, storedID := range s.order {
		if storedID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return g, nil
}

// List returns a snapshot of every geofence in creation order.
func (s *GeofenceStore) List() []*geofence.Geofence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*geofence.Geofence, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.byID[id].Clone())
	}

	return result
}

// Len returns the number of stored geofences.
func (s *GeofenceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byID)
}
