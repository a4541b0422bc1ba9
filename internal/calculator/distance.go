// Package calculator provides great-circle distance calculations between
// geographic coordinates and summary statistics over distance series.
package calculator

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusKM is the Earth's mean radius in kilometers
	EarthRadiusKM = 6371.0

	// KMPerMile converts statute miles to kilometers
	KMPerMile = 1.609344
)

// Unit is a distance output unit
type Unit string

// Supported units
const (
	Kilometers Unit = "km"
	Miles      Unit = "mi"
)

// ParseUnit parses a unit name such as "km", "mi", "miles" or "kilometers"
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "km", "kilometers", "kilometres":
		return Kilometers, nil
	case "mi", "mile", "miles":
		return Miles, nil
	default:
		return "", fmt.Errorf("unsupported distance unit %q", s)
	}
}

// Label returns a human-readable unit label
func (u Unit) Label() string {
	switch u {
	case Kilometers:
		return "kilometers"
	case Miles:
		return "miles"
	default:
		return string(u)
	}
}

// perKilometer returns how many units make up one kilometer
func (u Unit) perKilometer() float64 {
	if u == Miles {
		return 1 / KMPerMile
	}
	return 1
}

// Coordinate represents a GPS coordinate in decimal degrees
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate lies within latitude/longitude bounds
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180 &&
		!math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude)
}

// Distance calculates the great-circle distance between a and b in the
// requested unit. The angle is computed once on a spherical Earth (s2 uses
// the haversine formulation) and scaled by a fixed per-unit constant.
func Distance(a, b Coordinate, unit Unit) float64 {
	return centralAngle(a, b) * EarthRadiusKM * unit.perKilometer()
}

// centralAngle returns the angle between a and b in radians
func centralAngle(a, b Coordinate) float64 {
	p1 := s2.LatLngFromDegrees(a.Latitude, a.Longitude)
	p2 := s2.LatLngFromDegrees(b.Latitude, b.Longitude)
	return p1.Distance(p2).Radians()
}

// DistanceMetrics holds calculated distance statistics
type DistanceMetrics struct {
	Unit        Unit
	MaxDistance float64
	MinDistance float64
	AvgDistance float64
	TotalDays   int
	DaysAway    int
}

// CalculateMetrics computes statistics for a sequence of daily distances.
// A day counts as away when its distance is greater than zero.
func CalculateMetrics(unit Unit, distances []float64) DistanceMetrics {
	if len(distances) == 0 {
		return DistanceMetrics{Unit: unit}
	}

	metrics := DistanceMetrics{
		Unit:        unit,
		TotalDays:   len(distances),
		MinDistance: math.MaxFloat64,
	}

	var total float64
	for _, d := range distances {
		total += d
		if d > metrics.MaxDistance {
			metrics.MaxDistance = d
		}
		if d < metrics.MinDistance {
			metrics.MinDistance = d
		}
		if d > 0 {
			metrics.DaysAway++
		}
	}
	metrics.AvgDistance = total / float64(len(distances))

	return metrics
}
