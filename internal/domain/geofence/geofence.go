package geofence

import (
	"errors"
	"time"

	"github.com/oshokin/sos-relay/internal/geo"
)

// Kind classifies what a geofence is used for. The set is open: values
// outside the predefined constants are accepted and passed through.
type Kind string

const (
	// KindMonitoring is the default kind for plain observation zones.
	KindMonitoring Kind = "MONITORING"
	// KindSafe marks zones a device is expected to stay inside.
	KindSafe Kind = "SAFE"
	// KindRestricted marks zones a device must not enter.
	KindRestricted Kind = "RESTRICTED"
	// KindEmergency marks zones tied to an active emergency.
	KindEmergency Kind = "EMERGENCY"
)

// ShapeType describes the geometry of a geofence.
type ShapeType string

const (
	// ShapeCircle is a center point plus radius in meters.
	ShapeCircle ShapeType = "circle"
	// ShapePolygon is an ordered list of at least three vertices.
	ShapePolygon ShapeType = "polygon"
)

// Point is a geographic coordinate as it travels on the wire.
type Point struct {
	// Lat is the latitude in decimal degrees.
	Lat float64 `json:"lat"`
	// Lon is the longitude in decimal degrees.
	Lon float64 `json:"lon"`
}

var (
	// ErrIDRequired is returned when a create payload has no id.
	ErrIDRequired = errors.New("geofence id is required")
	// ErrNameRequired is returned when a create payload has no name.
	ErrNameRequired = errors.New("geofence name is required")
	// ErrMalformedShape is returned by containment tests when the stored
	// shape does not satisfy its invariant (circle without center or
	// positive radius, polygon with fewer than three vertices).
	ErrMalformedShape = errors.New("geofence shape is malformed")
)

// Geofence is one geographic boundary definition.
type Geofence struct {
	// ID uniquely identifies the geofence.
	ID string `json:"id"`
	// Name is the human-readable zone name.
	Name string `json:"name"`
	// Kind classifies the zone, KindMonitoring by default.
	Kind Kind `json:"kind"`
	// Active controls whether the zone is monitored, true by default.
	Active bool `json:"active"`
	// ShapeType selects between circle and polygon geometry.
	ShapeType ShapeType `json:"shapeType"`
	// Center is the circle center; nil for polygons.
	Center *Point `json:"center,omitempty"`
	// Radius is the circle radius in meters; zero for polygons.
	Radius float64 `json:"radius,omitempty"`
	// Points are the ordered polygon vertices; empty for circles.
	Points []Point `json:"points,omitempty"`
	// AlertOnEntry fires a violation when a device enters, true by default.
	AlertOnEntry bool `json:"alertOnEntry"`
	// AlertOnExit fires a violation when a device exits, false by default.
	AlertOnExit bool `json:"alertOnExit"`
	// Priority is the caller-defined priority carried into violations.
	Priority string `json:"priority,omitempty"`
	// CreatedAt is when the record was first stored.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is refreshed on every merge-update.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Patch is the wire shape for create and update requests. Pointer fields
// distinguish "absent" from zero values so merges only touch what the
// caller actually sent.
type Patch struct {
	// ID identifies the geofence being created or patched.
	ID string `json:"id"`
	// Name replaces the zone name when present.
	Name string `json:"name,omitempty"`
	// Kind replaces the zone kind when present.
	Kind Kind `json:"kind,omitempty"`
	// Active replaces the active flag when present.
	Active *bool `json:"active,omitempty"`
	// ShapeType replaces the geometry selector when present.
	ShapeType ShapeType `json:"shapeType,omitempty"`
	// Center replaces the circle center when present.
	Center *Point `json:"center,omitempty"`
	// Radius replaces the circle radius when present.
	Radius *float64 `json:"radius,omitempty"`
	// Points replace the polygon vertices when present.
	Points []Point `json:"points,omitempty"`
	// AlertOnEntry replaces the entry alert flag when present.
	AlertOnEntry *bool `json:"alertOnEntry,omitempty"`
	// AlertOnExit replaces the exit alert flag when present.
	AlertOnExit *bool `json:"alertOnExit,omitempty"`
	// Priority replaces the priority when present.
	Priority string `json:"priority,omitempty"`
}

// New builds a geofence from a create payload. It fails when the id or the
// name is missing; everything else falls back to defaults.
func New(p *Patch, now time.Time) (*Geofence, error) {
	if p == nil || p.ID == "" {
		return nil, ErrIDRequired
	}

	if p.Name == "" {
		return nil, ErrNameRequired
	}

	return FromPatch(p, now), nil
}

// FromPatch builds a geofence from a patch alone, applying the same
// defaults as New but without requiring a name. This is the upsert path for
// updates that arrive before their create.
func FromPatch(p *Patch, now time.Time) *Geofence {
	g := &Geofence{
		ID:           p.ID,
		Kind:         KindMonitoring,
		Active:       true,
		AlertOnEntry: true,
		AlertOnExit:  false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	g.applyPatch(p)

	if g.ShapeType == "" {
		g.ShapeType = inferShapeType(g)
	}

	return g
}

// ApplyPatch merges the patch over the geofence: fields present in the
// patch overwrite, everything else is preserved, UpdatedAt is refreshed.
func (g *Geofence) ApplyPatch(p *Patch, now time.Time) {
	g.applyPatch(p)

	if g.ShapeType == "" {
		g.ShapeType = inferShapeType(g)
	}

	g.UpdatedAt = now
}

// applyPatch copies the present patch fields onto the geofence.
func (g *Geofence) applyPatch(p *Patch) {
	if p.Name != "" {
		g.Name = p.Name
	}

	if p.Kind != "" {
		g.Kind = p.Kind
	}

	if p.Active != nil {
		g.Active = *p.Active
	}

	if p.ShapeType != "" {
		g.ShapeType = p.ShapeType
	}

	if p.Center != nil {
		center := *p.Center
		g.Center = &center
	}

	if p.Radius != nil {
		g.Radius = *p.Radius
	}

	if p.Points != nil {
		g.Points = append([]Point(nil), p.Points...)
	}

	if p.AlertOnEntry != nil {
		g.AlertOnEntry = *p.AlertOnEntry
	}

	if p.AlertOnExit != nil {
		g.AlertOnExit = *p.AlertOnExit
	}

	if p.Priority != "" {
		g.Priority = p.Priority
	}
}

// inferShapeType guesses the geometry from which shape data is present:
// a center means circle, anything else polygon.
func inferShapeType(g *Geofence) ShapeType {
	if g.Center != nil {
		return ShapeCircle
	}

	return ShapePolygon
}

// Contains reports whether the coordinate lies inside the geofence.
// A shape violating its invariant yields ErrMalformedShape.
func (g *Geofence) Contains(lat, lon float64) (bool, error) {
	switch g.ShapeType {
	case ShapeCircle:
		if g.Center == nil || g.Radius <= 0 {
			return false, ErrMalformedShape
		}

		distance := geo.DistanceMeters(
			geo.Point{Lat: lat, Lon: lon},
			geo.Point{Lat: g.Center.Lat, Lon: g.Center.Lon},
		)

		return distance <= g.Radius, nil
	case ShapePolygon:
		if len(g.Points) < 3 {
			return false, ErrMalformedShape
		}

		polygon := make([]geo.Point, 0, len(g.Points))
		for _, p := range g.Points {
			polygon = append(polygon, geo.Point{Lat: p.Lat, Lon: p.Lon})
		}

		return geo.PointInPolygon(geo.Point{Lat: lat, Lon: lon}, polygon), nil
	default:
		return false, ErrMalformedShape
	}
}

// Clone returns a deep copy of the geofence to avoid leaking internal references.
func (g *Geofence) Clone() *Geofence {
	if g == nil {
		return nil
	}

	cloned := *g

	if g.Center != nil {
		center := *g.Center
		cloned.Center = &center
	}

	if g.Points != nil {
		cloned.Points = append([]Point(nil), g.Points...)
	}

	return &cloned
}
