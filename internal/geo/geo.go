// Package geo implements the small amount of spherical geometry the
// geofence logic needs: great-circle distance between two coordinates and
// a point-in-polygon containment test over latitude/longitude vertices.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for haversine distances.
const earthRadiusMeters = 6371000.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	// Lat is the latitude in the range [-90, 90].
	Lat float64
	// Lon is the longitude in the range [-180, 180].
	Lon float64
}

// DistanceMeters returns the great-circle distance between two coordinates
// using the haversine formula.
func DistanceMeters(a, b Point) float64 {
	latA := degreesToRadians(a.Lat)
	latB := degreesToRadians(b.Lat)
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLon := degreesToRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat + math.Cos(latA)*math.Cos(latB)*sinLon*sinLon

	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// PointInPolygon reports whether the point lies inside the polygon described
// by the ordered vertex list. It uses the even-odd ray casting rule over
// longitude/latitude, which is accurate for the local-scale polygons
// geofences describe. Polygons with fewer than three vertices contain nothing.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false

	for i, j := 0, len(polygon)-1; i < len(polygon); j, i = i, i+1 {
		vi, vj := polygon[i], polygon[j]

		// Edge crosses the horizontal ray through the point.
		if (vi.Lat > p.Lat) == (vj.Lat > p.Lat) {
			continue
		}

		crossLon := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
		if p.Lon < crossLon {
			inside = !inside
		}
	}

	return inside
}

// degreesToRadians converts decimal degrees to radians.
func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}
