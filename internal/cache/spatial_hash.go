// ShadowCheck - Wireless Surveillance Threat Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shadowcheck

package cache

import (
	"math"
	"sort"
	"time"
)

const kmPerDegree = 111.0

// SpatialHashGrid buckets points into square cells so that radius queries
// only examine neighboring cells instead of every point.
//
// The grid is not safe for concurrent writers. Detection builds one grid per
// slot or per pass and only reads it afterwards.
type SpatialHashGrid struct {
	cells    map[CellKey][]*SpatialEntry
	entries  map[string]*SpatialEntry
	cellSize float64 // degrees
}

// CellKey identifies a grid cell.
type CellKey struct {
	X, Y int
}

// SpatialEntry is one indexed point.
type SpatialEntry struct {
	ID        string
	Lat       float64
	Lon       float64
	Timestamp time.Time
	Data      any
	cell      CellKey
}

// NewSpatialHashGrid creates a grid with roughly cellSizeKm square cells.
// Picking a cell size close to the typical query radius keeps queries to a
// 3x3 neighborhood.
func NewSpatialHashGrid(cellSizeKm float64) *SpatialHashGrid {
	if cellSizeKm <= 0 {
		cellSizeKm = 1
	}
	return &SpatialHashGrid{
		cells:    make(map[CellKey][]*SpatialEntry),
		entries:  make(map[string]*SpatialEntry),
		cellSize: cellSizeKm / kmPerDegree,
	}
}

func (g *SpatialHashGrid) cellKey(lat, lon float64) CellKey {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return CellKey{X: int(math.Floor(lon / g.cellSize)), Y: int(math.Floor(lat / g.cellSize))}
}

// Insert adds or replaces the entry with the given id.
func (g *SpatialHashGrid) Insert(id string, lat, lon float64, ts time.Time, data any) {
	if old, ok := g.entries[id]; ok {
		g.removeFromCell(old)
	}
	e := &SpatialEntry{ID: id, Lat: lat, Lon: lon, Timestamp: ts, Data: data, cell: g.cellKey(lat, lon)}
	g.cells[e.cell] = append(g.cells[e.cell], e)
	g.entries[id] = e
}

func (g *SpatialHashGrid) removeFromCell(e *SpatialEntry) {
	list := g.cells[e.cell]
	for i, x := range list {
		if x.ID == e.ID {
			list[i] = list[len(list)-1]
			list = list[:len(list)-1]
			break
		}
	}
	if len(list) == 0 {
		delete(g.cells, e.cell)
		return
	}
	g.cells[e.cell] = list
}

// Get returns the entry with the given id.
func (g *SpatialHashGrid) Get(id string) (*SpatialEntry, bool) {
	e, ok := g.entries[id]
	return e, ok
}

// QueryNearby returns entries within radiusKm of (lat, lon), ordered by id
// so callers iterate deterministically.
func (g *SpatialHashGrid) QueryNearby(lat, lon, radiusKm float64) []*SpatialEntry {
	return g.query(lat, lon, radiusKm, func(*SpatialEntry) bool { return true })
}

// QueryNearbyWithin returns entries within radiusKm whose timestamp lies in
// [from, to].
func (g *SpatialHashGrid) QueryNearbyWithin(lat, lon, radiusKm float64, from, to time.Time) []*SpatialEntry {
	return g.query(lat, lon, radiusKm, func(e *SpatialEntry) bool {
		return !e.Timestamp.Before(from) && !e.Timestamp.After(to)
	})
}

func (g *SpatialHashGrid) query(lat, lon, radiusKm float64, keep func(*SpatialEntry) bool) []*SpatialEntry {
	center := g.cellKey(lat, lon)
	dy := int(math.Ceil(radiusKm/kmPerDegree/g.cellSize)) + 1

	// Longitude degrees shrink with latitude.
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	dx := int(math.Ceil(radiusKm/(kmPerDegree*cosLat)/g.cellSize)) + 1

	var out []*SpatialEntry
	for x := center.X - dx; x <= center.X+dx; x++ {
		for y := center.Y - dy; y <= center.Y+dy; y++ {
			for _, e := range g.cells[CellKey{X: x, Y: y}] {
				if !keep(e) {
					continue
				}
				if haversineDistance(lat, lon, e.Lat, e.Lon) <= radiusKm {
					out = append(out, e)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Size returns the number of entries.
func (g *SpatialHashGrid) Size() int {
	return len(g.entries)
}

// NumCells returns the number of non-empty cells.
func (g *SpatialHashGrid) NumCells() int {
	return len(g.cells)
}

// haversineDistance returns the great-circle distance in kilometers.
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
