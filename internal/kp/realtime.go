package kp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// minRealTimeTokens is year, month, day plus the eight planetary estimates.
const minRealTimeTokens = 3 + SamplesPerDay

// RealTimeFiles returns the DGD file names to request for year. For the
// current year only quarters up to and including the current one exist;
// past years have a single consolidated file.
func RealTimeFiles(year int, today time.Time) []string {
	if year != today.Year() {
		return []string{fmt.Sprintf("%d_DGD.txt", year)}
	}
	quarters := (int(today.Month()) + 2) / 3
	files := make([]string, 0, quarters)
	for q := 1; q <= quarters; q++ {
		files = append(files, fmt.Sprintf("%dQ%d_DGD.txt", year, q))
	}
	return files
}

// ParseRealTime parses SWPC Daily Geomagnetic Data lines, possibly several
// quarterly files concatenated in order. Header lines start with '#' or ':'.
// The last eight integers on a row are the planetary Kp estimates, scaled
// by RealTimeScale.
func ParseRealTime(year int, lines []string) (*Series, error) {
	if len(lines) == 0 {
		return nil, &NoDataError{Year: year, Source: "realtime"}
	}

	samples := make([]Sample, 0, SamplesPerDay*len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || line[0] == '#' || line[0] == ':' {
			continue
		}

		fields, err := realTimeFields(line)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: err}
		}
		if len(fields) < minRealTimeTokens {
			return nil, &ParseError{Line: i + 1, Text: line,
				Err: fmt.Errorf("%d fields, need at least %d", len(fields), minRealTimeTokens)}
		}

		day, err := dayStart(fields[0], fields[1], fields[2])
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: err}
		}

		var values [SamplesPerDay]int
		estimates := fields[len(fields)-SamplesPerDay:]
		for block, v := range estimates {
			values[block] = v * RealTimeScale
		}
		samples = expandDay(samples, day, values)
	}

	if len(samples) == 0 {
		return nil, &NoDataError{Year: year, Source: "realtime"}
	}
	return &Series{Year: year, Format: FormatRealTime, Samples: samples}, nil
}

// realTimeFields splits a DGD row into integers. Adjacent negative values
// ("-1-1") are separated by spacing out every minus sign first.
func realTimeFields(line string) ([]int, error) {
	tokens := strings.Fields(strings.ReplaceAll(line, "-", " -"))
	fields := make([]int, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = v
	}
	return fields, nil
}
