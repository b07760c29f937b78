package kp

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoData matches any *NoDataError via errors.Is.
var ErrNoData = errors.New("no data")

// NoDataError reports that a source returned nothing to parse. Callers must
// not write an output file.
type NoDataError struct {
	Year   int
	Source string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no Kp data for %d from %s", e.Year, e.Source)
}

func (e *NoDataError) Is(target error) bool {
	return target == ErrNoData
}

// UnsupportedYearError reports a year whose century cannot be resolved.
type UnsupportedYearError struct {
	Year int
}

func (e *UnsupportedYearError) Error() string {
	return fmt.Sprintf("year %d out of range (supported 1900-2099)", e.Year)
}

// StaleDataError reports a lookup with no Kp value valid at Query.
type StaleDataError struct {
	Query   time.Time
	Matched time.Time // zero when no earlier sample exists
	Gap     time.Duration
}

func (e *StaleDataError) Error() string {
	if e.Matched.IsZero() {
		return fmt.Sprintf("no Kp value at or before %s", e.Query.Format(TimeLayout))
	}
	return fmt.Sprintf("unable to find a Kp value within 3 hours of %s (nearest %s, %v earlier)",
		e.Query.Format(TimeLayout), e.Matched.Format(TimeLayout), e.Gap)
}

// ParseError reports a malformed source line.
type ParseError struct {
	Line int // 1-based line number in the fetched content
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
