// Package ephem loads spacecraft position samples in geodetic coordinates.
package ephem

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Sample is one spacecraft position. Altitude is in km above the reference
// ellipsoid, latitude and longitude in degrees.
type Sample struct {
	Time  time.Time
	AltKm float64
	Lat   float64
	Lon   float64
}

// Source yields an ordered ephemeris.
type Source interface {
	Load(ctx context.Context) ([]Sample, error)
}

// Times returns the timestamps of samples.
func Times(samples []Sample) []time.Time {
	out := make([]time.Time, len(samples))
	for i, s := range samples {
		out[i] = s.Time
	}
	return out
}

// DayOfYearTime converts the POES year / day-of-year / milliseconds-of-day
// triple to a UTC instant. Day 1 is January 1.
func DayOfYearTime(year, day int, msec int64) (time.Time, error) {
	if day < 1 || day > 366 {
		return time.Time{}, fmt.Errorf("day of year %d out of range", day)
	}
	t := time.Date(year, time.January, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year {
		return time.Time{}, fmt.Errorf("day of year %d out of range for %d", day, year)
	}
	return t.Add(time.Duration(msec) * time.Millisecond), nil
}

// MagephemName derives the output file name for an ephemeris file:
// "poes_m01_20180922_raw.nc" becomes "poes_m01_20180922_raw_magephem.csv".
func MagephemName(ephemPath string) string {
	base := filepath.Base(ephemPath)
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base + "_magephem.csv"
}
