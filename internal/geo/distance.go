// Package geo contains pure great-circle helpers shared by the geofence and tracking modules.
package geo

import "math"

const EarthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push a slightly outside [0,1] for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// HaversineMeters is HaversineKm scaled to metres.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineKm(lat1, lng1, lat2, lng2) * 1000
}

// OffsetNorthKm returns the latitude reached by moving distKm due north from lat.
// Used by tests and the seeder to place points at a known distance.
func OffsetNorthKm(lat, distKm float64) float64 {
	return lat + distKm/EarthRadiusKm*180/math.Pi
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
