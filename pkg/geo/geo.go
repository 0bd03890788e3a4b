// Package geo provides great-circle distance math for server selection.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Location is an immutable latitude/longitude pair in decimal degrees.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the great-circle distance between a and b in kilometers
// using the haversine formula. It is symmetric and zero for identical points.
func Distance(a, b Location) float64 {
	lat1 := radians(a.Latitude)
	lon1 := radians(a.Longitude)
	lat2 := radians(b.Latitude)
	lon2 := radians(b.Longitude)

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// DistanceTo returns the distance from l to other in kilometers.
func (l Location) DistanceTo(other Location) float64 {
	return Distance(l, other)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
