package geofence

import "math"

// EarthRadiusMeters is the mean Earth radius used by every distance
// calculation in the service.
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle (haversine) distance in meters between
// two coordinates given in decimal degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := toRadians(lat1)
	φ2 := toRadians(lat2)
	dφ := toRadians(lat2 - lat1)
	dλ := toRadians(lon2 - lon1)

	a := math.Sin(dφ/2)*math.Sin(dφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	// rounding can push a slightly above 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }
