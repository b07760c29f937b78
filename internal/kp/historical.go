package kp

import (
	"fmt"
	"strconv"
	"strings"
)

// Column layout of the NGDC yearly KP_AP files (0-based, half open).
const (
	histYearCol  = 0
	histMonthCol = 2
	histDayCol   = 4
	histKpCol    = 12
	histKpWidth  = 2
	histMinLen   = histKpCol + SamplesPerDay*histKpWidth
)

// ResolveCentury expands a two-digit year using the century of the requested
// year. Only requested years 1900-2099 are supported.
func ResolveCentury(requestedYear, yy int) (int, error) {
	if requestedYear < 1900 || requestedYear > 2099 {
		return 0, &UnsupportedYearError{Year: requestedYear}
	}
	if yy < 0 || yy > 99 {
		return 0, fmt.Errorf("two-digit year %d out of range", yy)
	}
	return requestedYear/100*100 + yy, nil
}

// ParseHistorical parses the fixed-width NGDC yearly format. Kp values are
// already in thirds encoding and are stored unscaled. Any error aborts the
// whole year; no partial series is returned.
func ParseHistorical(requestedYear int, lines []string) (*Series, error) {
	if requestedYear < 1900 || requestedYear > 2099 {
		return nil, &UnsupportedYearError{Year: requestedYear}
	}

	samples := make([]Sample, 0, SamplesPerDay*len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < histMinLen {
			return nil, &ParseError{Line: i + 1, Text: line,
				Err: fmt.Errorf("short line: %d columns, need %d", len(line), histMinLen)}
		}

		yy, err := fixedInt(line, histYearCol, 2)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: fmt.Errorf("year: %w", err)}
		}
		month, err := fixedInt(line, histMonthCol, 2)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: fmt.Errorf("month: %w", err)}
		}
		dom, err := fixedInt(line, histDayCol, 2)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: fmt.Errorf("day: %w", err)}
		}

		year, err := ResolveCentury(requestedYear, yy)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: err}
		}
		day, err := dayStart(year, month, dom)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: line, Err: err}
		}

		var values [SamplesPerDay]int
		for block := 0; block < SamplesPerDay; block++ {
			v, err := fixedInt(line, histKpCol+histKpWidth*block, histKpWidth)
			if err != nil {
				return nil, &ParseError{Line: i + 1, Text: line, Err: fmt.Errorf("kp[%d]: %w", block, err)}
			}
			values[block] = v
		}
		samples = expandDay(samples, day, values)
	}

	if len(samples) == 0 {
		return nil, &NoDataError{Year: requestedYear, Source: "historical"}
	}
	return &Series{Year: requestedYear, Format: FormatHistorical, Samples: samples}, nil
}

// fixedInt parses line[col:col+width], tolerating blank padding.
func fixedInt(line string, col, width int) (int, error) {
	field := strings.TrimSpace(line[col : col+width])
	if field == "" {
		return 0, fmt.Errorf("blank field at column %d", col)
	}
	return strconv.Atoi(field)
}
