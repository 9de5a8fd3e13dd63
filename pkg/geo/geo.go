// Package geo provides the spherical geometry kernel used by every
// other component: great-circle distance, bearings, destination-point
// projection, point-to-route distance and circular statistics.
package geo

import "math"

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

func toRad(deg float64) float64 { return deg * (math.Pi / 180.0) }
func toDeg(rad float64) float64 { return rad * (180.0 / math.Pi) }

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := toRad(p2.Lat - p1.Lat)
	dLon := toRad(p2.Lon - p1.Lon)
	lat1 := toRad(p1.Lat)
	lat2 := toRad(p2.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2
// in degrees, normalized to [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := toRad(p1.Lat)
	lat2 := toRad(p2.Lat)
	dLon := toRad(p2.Lon - p1.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return math.Mod(toDeg(math.Atan2(y, x))+360.0, 360.0)
}

// DestinationPoint projects a start point forward by distMeters along the
// given bearing (degrees) on the great circle.
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := toRad(start.Lat)
	lon1 := toRad(start.Lon)
	brng := toRad(bearing)
	ad := distMeters / EarthRadius // angular distance

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ad) +
		math.Cos(lat1)*math.Sin(ad)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(ad)*math.Cos(lat1),
		math.Cos(ad)-math.Sin(lat1)*math.Sin(lat2))

	return Point{Lat: toDeg(lat2), Lon: toDeg(lon2)}
}

// NormalizeAngle normalizes an angle difference to the range [-180, 180].
func NormalizeAngle(angleDeg float64) float64 {
	for angleDeg > 180 {
		angleDeg -= 360
	}
	for angleDeg < -180 {
		angleDeg += 360
	}
	return angleDeg
}
