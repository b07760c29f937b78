// Package kp parses, stores and queries the planetary Kp index.
//
// Kp is carried on an integer "tenths" scale: the historical NGDC files
// already encode thirds as 0-90 (27 = 3-, 30 = 3o, 33 = 3+), and the SWPC
// near-real-time integer estimates are multiplied by 10 to match. Every
// Sample produced by this package is on that scale.
package kp

import (
	"fmt"
	"strings"
	"time"
)

const (
	// SamplesPerDay is the number of 3-hour intervals in a UTC day.
	SamplesPerDay = 8

	// Interval is the validity window of a single Kp value.
	Interval = 3 * time.Hour

	// RealTimeScale aligns near-real-time estimates with the historical encoding.
	RealTimeScale = 10

	// MissingValue is a real-time "no estimate" (-1) after scaling.
	MissingValue = -1 * RealTimeScale

	// MissingDay is a real-time fully missing day (-99) after scaling.
	MissingDay = -99 * RealTimeScale

	// RealTimeFirstYear is the first year FormatAuto resolves to real-time.
	RealTimeFirstYear = 1997
)

// Sample is one 3-hour Kp value.
type Sample struct {
	Time time.Time
	Kp   int
}

// Missing reports whether the value is a no-data sentinel.
func (s Sample) Missing() bool {
	return s.Kp < 0
}

// Value returns Kp in index units (0.0-9.0).
func (s Sample) Value() float64 {
	return float64(s.Kp) / RealTimeScale
}

// Series is the ordered set of samples for one calendar year.
type Series struct {
	Year    int
	Format  Format
	Samples []Sample
}

// Len returns the number of samples.
func (s *Series) Len() int {
	return len(s.Samples)
}

// Validate checks that timestamps are strictly increasing.
func (s *Series) Validate() error {
	for i := 1; i < len(s.Samples); i++ {
		if !s.Samples[i].Time.After(s.Samples[i-1].Time) {
			return fmt.Errorf("sample %d (%s) does not follow %s",
				i, s.Samples[i].Time.Format(TimeLayout), s.Samples[i-1].Time.Format(TimeLayout))
		}
	}
	return nil
}

// Format selects the parser for a year's source data.
type Format int

const (
	FormatAuto Format = iota
	FormatHistorical
	FormatRealTime
)

func (f Format) String() string {
	switch f {
	case FormatHistorical:
		return "historical"
	case FormatRealTime:
		return "realtime"
	default:
		return "auto"
	}
}

// ParseFormat parses a -format flag value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "historical", "ngdc":
		return FormatHistorical, nil
	case "realtime", "nrt", "dgd":
		return FormatRealTime, nil
	}
	return FormatAuto, fmt.Errorf("unknown format %q (want auto, historical or realtime)", s)
}

// Resolve maps FormatAuto onto a concrete format for year.
func (f Format) Resolve(year int) Format {
	if f != FormatAuto {
		return f
	}
	if year < RealTimeFirstYear {
		return FormatHistorical
	}
	return FormatRealTime
}

// MissingPolicy controls what happens to sentinel samples before storage.
type MissingPolicy int

const (
	KeepMissing MissingPolicy = iota
	DropMissing
)

// Apply returns samples filtered according to p.
func (p MissingPolicy) Apply(samples []Sample) []Sample {
	if p != DropMissing {
		return samples
	}
	out := samples[:0:0]
	for _, s := range samples {
		if !s.Missing() {
			out = append(out, s)
		}
	}
	return out
}

// Clock returns the current time. Injected so quarter selection is testable.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// dayStart builds the UTC midnight for a calendar date, rejecting dates
// that time.Date would silently normalize.
func dayStart(year, month, day int) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return t, nil
}

// expandDay appends the 8 samples of one day to out.
func expandDay(out []Sample, day time.Time, values [SamplesPerDay]int) []Sample {
	for i, v := range values {
		out = append(out, Sample{
			Time: day.Add(time.Duration(i) * Interval),
			Kp:   v,
		})
	}
	return out
}
