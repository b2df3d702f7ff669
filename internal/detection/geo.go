// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package detection

import (
	"math"
	"time"
)

const (
	earthRadiusKm = 6371.0

	// CoordinateEpsilon is the tolerance used when comparing a coordinate
	// against the 0/0 "unknown location" placeholder written by scanners.
	CoordinateEpsilon = 1e-7
)

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceM returns the great-circle distance in meters between two sightings.
func DistanceM(a, b *Sighting) float64 {
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon) * 1000
}

// SpeedKmH returns the implied speed between two sightings, or 0 when the
// elapsed time is not positive.
func SpeedKmH(a, b *Sighting) float64 {
	dt := b.Timestamp.Sub(a.Timestamp)
	if dt <= 0 {
		return 0
	}
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon) / dt.Hours()
}

// IsUnknownLocation reports whether lat/lon is the 0/0 placeholder.
func IsUnknownLocation(lat, lon float64) bool {
	return math.Abs(lat) < CoordinateEpsilon && math.Abs(lon) < CoordinateEpsilon
}

// Centroid returns the mean position of points. The timestamp is the
// earliest point's.
func Centroid(points []GeoPoint) (GeoPoint, bool) {
	if len(points) == 0 {
		return GeoPoint{}, false
	}
	var lat, lon float64
	var first time.Time
	for i, p := range points {
		lat += p.Lat
		lon += p.Lon
		if i == 0 || p.Timestamp.Before(first) {
			first = p.Timestamp
		}
	}
	n := float64(len(points))
	return GeoPoint{Lat: lat / n, Lon: lon / n, Timestamp: first}, true
}

// PathLengthKm sums the segment lengths of a time-ordered track.
func PathLengthKm(track []Sighting) float64 {
	var total float64
	for i := 1; i < len(track); i++ {
		total += HaversineKm(track[i-1].Lat, track[i-1].Lon, track[i].Lat, track[i].Lon)
	}
	return total
}

func pointOf(s *Sighting) GeoPoint {
	return GeoPoint{Lat: s.Lat, Lon: s.Lon, Timestamp: s.Timestamp}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
