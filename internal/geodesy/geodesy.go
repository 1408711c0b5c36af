// Package geodesy holds spherical-earth helpers used to locate cells and
// reference heights to the vertical at a fixed point.
package geodesy

import "math"

// EarthRadius is the mean radius of the earth, in metres.
const EarthRadius = 6371000.0

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// LatLong is a position in degrees, latitude +north and longitude +east.
type LatLong struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance returns the great-circle (haversine) distance in metres between
// two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dPhi2 := (lat2 - lat1) / 2 * degToRad
	dLambda2 := (lon2 - lon1) / 2 * degToRad

	a := math.Sin(dPhi2)*math.Sin(dPhi2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLambda2)*math.Sin(dLambda2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// DistanceBetween is Distance for two LatLong values.
func DistanceBetween(a, b LatLong) float64 {
	return Distance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Destination returns the point reached by travelling distance metres from
// (lat, lon) along the initial bearing, in degrees clockwise from north.
func Destination(lat, lon, bearing, distance float64) LatLong {
	delta := distance / EarthRadius
	phi1 := lat * degToRad
	lambda1 := lon * degToRad
	theta := bearing * degToRad

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	return LatLong{Lat: phi2 * radToDeg, Lon: lambda2 * radToDeg}
}

// BearingFromOffsets converts a planar offset (dx east, dy north) into a
// compass bearing in [0, 360). A zero offset has bearing 0; offsets along an
// axis are returned exactly.
func BearingFromOffsets(dx, dy int) float64 {
	switch {
	case dx == 0 && dy == 0:
		return 0
	case dx == 0:
		if dy > 0 {
			return 0
		}
		return 180
	case dy == 0:
		if dx > 0 {
			return 90
		}
		return 270
	}

	b := math.Atan2(float64(dx), float64(dy)) * radToDeg
	if b < 0 {
		b += 360
	}
	return b
}

// CurvatureCorrection is the drop of the earth's surface below the tangent
// plane at the reference point, at surface distance d metres.
func CurvatureCorrection(d float64) float64 {
	return (1 - math.Cos(d/EarthRadius)) * EarthRadius
}

// ReferencedHeight re-expresses a raw elevation sample taken d metres from
// the reference point as a height parallel to the vertical at that point.
func ReferencedHeight(raw, d float64) float64 {
	return raw*math.Cos(d/EarthRadius) - CurvatureCorrection(d)
}
