package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// DistanceToSegment returns the minimum distance in meters from p to the
// segment a-b. The segment is projected onto a local equirectangular plane
// (valid for the sub-kilometer spans route steps have), the closest point
// is found there and the final distance is measured on the sphere.
func DistanceToSegment(p, a, b Point) float64 {
	closest := closestOnSegment(p, a, b)
	return Distance(p, closest)
}

// closestOnSegment projects p onto segment a-b in a plane where longitude
// is scaled by cos(latitude) so both axes are in comparable units.
func closestOnSegment(p, a, b Point) Point {
	scale := math.Cos(toRad(p.Lat))

	ax, ay := a.Lon*scale, a.Lat
	bx, by := b.Lon*scale, b.Lat
	px, py := p.Lon*scale, p.Lat

	dx := bx - ax
	dy := by - ay

	if dx == 0 && dy == 0 {
		return a
	}

	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	switch {
	case t < 0:
		return a
	case t > 1:
		return b
	}

	return Point{
		Lat: ay + t*dy,
		Lon: (ax + t*dx) / scale,
	}
}

// DistanceToPolyline returns the minimum distance in meters from p to the
// route polyline and the index of the nearest segment. A polyline with
// fewer than two points yields (+Inf, -1).
func DistanceToPolyline(p Point, line orb.LineString) (float64, int) {
	minDist := math.Inf(1)
	segment := -1

	for i := 0; i < len(line)-1; i++ {
		// orb points are lon/lat ordered
		a := Point{Lat: line[i][1], Lon: line[i][0]}
		b := Point{Lat: line[i+1][1], Lon: line[i+1][0]}
		if d := DistanceToSegment(p, a, b); d < minDist {
			minDist = d
			segment = i
		}
	}

	return minDist, segment
}
