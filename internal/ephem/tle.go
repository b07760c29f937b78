package ephem

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/unit"
)

// TLE propagates a two-line element set with SGP4 over [Start, End] at Step,
// for runs that have no recorded ephemeris.
type TLE struct {
	sat   satellite.Satellite
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// NewTLE validates the element set and initializes the propagator.
// go-satellite calls log.Fatal on malformed input, so the lines are checked
// first.
func NewTLE(line1, line2 string, start, end time.Time, step time.Duration) (*TLE, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE: %w", err)
	}
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %v", step)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr)
	}
	return &TLE{sat: sat, Start: start.UTC(), End: end.UTC(), Step: step}, nil
}

// ParseTLE accepts the contents of a .tle file: two element lines,
// optionally preceded by a name line.
func ParseTLE(text string) (line1, line2 string, err error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, "\r ")
		if strings.HasPrefix(l, "1 ") || strings.HasPrefix(l, "2 ") {
			lines = append(lines, l)
		}
	}
	if len(lines) != 2 {
		return "", "", fmt.Errorf("expected 2 element lines, found %d", len(lines))
	}
	return lines[0], lines[1], nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Load propagates every step in the window. Sub-second parts of Start are
// truncated because SGP4 is driven with whole seconds.
func (s *TLE) Load(ctx context.Context) ([]Sample, error) {
	start := s.Start.Truncate(time.Second)
	n := int(s.End.Sub(start)/s.Step) + 1
	samples := make([]Sample, 0, n)

	for t := start; !t.After(s.End); t = t.Add(s.Step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		smp, err := s.At(t)
		if err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, nil
}

// At returns the geodetic position at t.
func (s *TLE) At(t time.Time) (Sample, error) {
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, sec := t.Clock()

	pos, _ := satellite.Propagate(s.sat, y, int(mo), d, h, mi, sec)
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return Sample{}, fmt.Errorf("sgp4 propagation failed at %s: output is NaN/Inf", t.Format(time.RFC3339))
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return Sample{}, fmt.Errorf("sgp4 propagation failed at %s: unreasonable position magnitude %.1f km",
			t.Format(time.RFC3339), mag)
	}

	gmst := satellite.GSTimeFromDate(y, int(mo), d, h, mi, sec)
	alt, _, ll := satellite.ECIToLLA(pos, gmst)

	return Sample{
		Time:  t,
		AltKm: alt,
		Lat:   unit.Angle(ll.Latitude).Deg(),
		Lon:   wrapDeg(unit.Angle(ll.Longitude).Deg()),
	}, nil
}

// wrapDeg maps a longitude into [-180, 180).
func wrapDeg(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
