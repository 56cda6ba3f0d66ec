// Package geo measures distances between vehicle positions and query points.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371010.0

type Bounds struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether the point lies inside b, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance in meters. Points within about
// 20 km use the equirectangular approximation, which is well under a meter
// off at city scale.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	φ1, φ2 := radians(lat1), radians(lat2)
	Δλ := radians(lon2 - lon1)

	if math.Abs(lat2-lat1) < 0.2 && math.Abs(lon2-lon1) < 0.2 {
		x := Δλ * math.Cos((φ1+φ2)/2)
		y := φ2 - φ1
		return EarthRadiusMeters * math.Hypot(x, y)
	}

	// Vincenty's formula for a sphere stays stable for antipodal points.
	y := math.Hypot(
		math.Cos(φ2)*math.Sin(Δλ),
		math.Cos(φ1)*math.Sin(φ2)-math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ),
	)
	x := math.Sin(φ1)*math.Sin(φ2) + math.Cos(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	return EarthRadiusMeters * math.Atan2(y, x)
}

// BoundsAround returns the box enclosing a circle of radius meters around
// the point. Use it to discard far points before calling Distance.
func BoundsAround(lat, lon, radius float64) Bounds {
	latOffset := degrees(radius / EarthRadiusMeters)
	lonOffset := degrees(radius / (EarthRadiusMeters * math.Cos(radians(lat))))
	return Bounds{
		MinLat: lat - latOffset,
		MaxLat: lat + latOffset,
		MinLon: lon - lonOffset,
		MaxLon: lon + lonOffset,
	}
}
