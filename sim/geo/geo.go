// Package geo holds the distance and territory primitives used by crew
// routing: great-circle distance, nearest/optimal home base selection and
// k-means site clustering.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// RoadCircuity converts great-circle distance to road distance. It is a
// placeholder until a road network is available.
const RoadCircuity = 1.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// Pt is a shorthand constructor for Point.
func Pt(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// Planar returns the Euclidean distance between p and q treating
// (Lat, Lon) as plane coordinates.
func Planar(p, q Point) float64 {
	return math.Hypot(p.Lat-q.Lat, p.Lon-q.Lon)
}

// Haversine returns the great-circle distance between p and q in km.
func Haversine(p, q Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (q.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// RoadDistance estimates driving distance in km.
func RoadDistance(p, q Point) float64 {
	return Haversine(p, q) * RoadCircuity
}

// NearestHomeBase returns the index of the home base closest to p and the
// haversine distance to it. Ties are broken by first occurrence in bases.
// Returns (-1, +Inf) when bases is empty.
func NearestHomeBase(p Point, bases []Point) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, b := range bases {
		if d := Haversine(p, b); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// OptimalHomeBase picks the home base minimizing the distance from the
// crew's current position plus the distance to the site it visits next.
// Ties are broken by first occurrence. Returns (-1, +Inf) when bases is empty.
func OptimalHomeBase(current, next Point, bases []Point) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, b := range bases {
		if d := Haversine(current, b) + Haversine(b, next); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Centroid returns the arithmetic mean of pts in degree space.
// Returns the zero Point for an empty slice.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, p := range pts {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(pts))
	return Point{Lat: lat / n, Lon: lon / n}
}
