package kp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// LineFetcher retrieves a remote resource as lines. *fetch.Fetcher
// satisfies it.
type LineFetcher interface {
	Fetch(ctx context.Context, url string) ([]string, error)
}

// Downloader turns a requested year into a Series by fetching and parsing
// the matching source files.
type Downloader struct {
	Fetcher       LineFetcher
	HistoricalURL string
	RealTimeURL   string
	Clock         Clock
	Policy        MissingPolicy
}

// URLs returns the URLs Download would request for year, in fetch order.
func (d *Downloader) URLs(year int, format Format) []string {
	switch format.Resolve(year) {
	case FormatHistorical:
		return []string{joinURL(d.HistoricalURL, fmt.Sprintf("%d", year))}
	default:
		files := RealTimeFiles(year, d.now())
		urls := make([]string, len(files))
		for i, f := range files {
			urls[i] = joinURL(d.RealTimeURL, f)
		}
		return urls
	}
}

// Download fetches and parses one year. Fetch failures are returned as-is
// (a *fetch.ConnectionError once retries are exhausted); parse outcomes are
// the typed errors of this package. Samples are filtered by d.Policy.
func (d *Downloader) Download(ctx context.Context, year int, format Format) (*Series, error) {
	resolved := format.Resolve(year)
	if resolved == FormatHistorical && (year < 1900 || year > 2099) {
		return nil, &UnsupportedYearError{Year: year}
	}

	var lines []string
	for _, u := range d.URLs(year, resolved) {
		part, err := d.Fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", u, err)
		}
		lines = append(lines, part...)
	}

	var (
		series *Series
		err    error
	)
	if resolved == FormatHistorical {
		series, err = ParseHistorical(year, lines)
	} else {
		series, err = ParseRealTime(year, lines)
	}
	if err != nil {
		return nil, err
	}

	series.Samples = d.Policy.Apply(series.Samples)
	if len(series.Samples) == 0 {
		return nil, &NoDataError{Year: year, Source: resolved.String()}
	}
	return series, nil
}

func (d *Downloader) now() time.Time {
	if d.Clock == nil {
		return SystemClock()
	}
	return d.Clock()
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}
