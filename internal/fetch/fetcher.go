// Package fetch retrieves raw text from remote index archives. It is the only
// place in the module that talks to the network.
package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/KI7MT/kp-magephem/internal/metrics"
)

const (
	// DefaultMaxTries is the number of consecutive failures tolerated.
	DefaultMaxTries = 5

	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 64 << 20
	maxLineBytes   = 1 << 20
)

// ConnectionError is returned when every attempt to fetch URL failed.
type ConnectionError struct {
	URL      string
	Attempts int
	Err      error // last failure
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tried to connect to %s %d times, aborting: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	MaxTries   int
	Timeout    time.Duration // per attempt
	RetryDelay time.Duration
	RPS        float64 // 0 disables pacing
	Burst      int
	Client     *http.Client
	Logger     log.Logger
	Metrics    *metrics.Pipeline
}

// Fetcher performs GET requests with a fixed retry budget.
type Fetcher struct {
	maxTries   int
	retryDelay time.Duration
	client     *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
	metrics    *metrics.Pipeline
}

// NewFetcher creates a Fetcher from opts.
func NewFetcher(opts Options) *Fetcher {
	if opts.MaxTries < 1 {
		opts.MaxTries = DefaultMaxTries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	f := &Fetcher{
		maxTries:   opts.MaxTries,
		retryDelay: opts.RetryDelay,
		client:     opts.Client,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return f
}

// Fetch downloads rawURL and returns its content split into lines. Each
// failed attempt is logged; after MaxTries consecutive failures Fetch returns
// a *ConnectionError. Cancelling ctx stops the retry loop.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]string, error) {
	host := hostOf(rawURL)

	var lastErr error
	for attempt := 1; attempt <= f.maxTries; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait canceled: %w", err)
			}
		}

		f.metrics.FetchAttempt(host)
		body, err := f.get(ctx, rawURL)
		if err == nil {
			f.metrics.FetchBytes(len(body))
			level.Debug(f.logger).Log("msg", "fetched", "url", rawURL, "bytes", len(body), "attempt", attempt)
			return SplitLines(body)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetching %s: %w", rawURL, ctx.Err())
		}

		lastErr = err
		f.metrics.FetchFailure(host)
		level.Warn(f.logger).Log("msg", "could not connect, trying again", "url", rawURL,
			"attempt", attempt, "max_tries", f.maxTries, "err", err)

		if f.retryDelay > 0 && attempt < f.maxTries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetching %s: %w", rawURL, ctx.Err())
			case <-time.After(f.retryDelay):
			}
		}
	}

	return nil, &ConnectionError{URL: rawURL, Attempts: f.maxTries, Err: lastErr}
}

// get performs a single attempt and returns the decoded body.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}

	if strings.HasSuffix(pathOf(rawURL), ".gz") {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		defer gz.Close()
		body, err = io.ReadAll(io.LimitReader(gz, maxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		if len(body) > maxBodyBytes {
			return nil, fmt.Errorf("decompressed body exceeds %d byte limit", maxBodyBytes)
		}
	}

	return body, nil
}

// SplitLines splits data on newlines, dropping line terminators. A trailing
// newline does not produce an empty final line.
func SplitLines(data []byte) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("splitting lines: %w", err)
	}
	return lines, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
