// kp-download - Download 3-hourly planetary Kp index tables
//
// Data sources:
//   - NGDC: historical fixed-width yearly files (1932-present)
//   - NOAA SWPC: real-time Daily Geomagnetic Data (DGD) files
//
// Each requested year is written to <dir>/<year>_kp<ext>.
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/kp-download ./cmd/kp-download

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/ClickHouse/ch-go"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/KI7MT/kp-magephem/internal/common"
	"github.com/KI7MT/kp-magephem/internal/fetch"
	"github.com/KI7MT/kp-magephem/internal/kp"
	"github.com/KI7MT/kp-magephem/internal/metrics"
	"github.com/KI7MT/kp-magephem/internal/warehouse"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// countingFetcher adds fetched byte counts to the run statistics.
type countingFetcher struct {
	f     kp.LineFetcher
	stats *common.Stats
}

func (c countingFetcher) Fetch(ctx context.Context, url string) ([]string, error) {
	lines, err := c.f.Fetch(ctx, url)
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	c.stats.AddBytes(n)
	return lines, err
}

// lockedConn serializes inserts from concurrent workers; a ch.Client
// carries one query at a time.
type lockedConn struct {
	mu   sync.Mutex
	conn *ch.Client
}

func (l *lockedConn) Do(ctx context.Context, q ch.Query) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Do(ctx, q)
}

// parseYears expands arguments such as "2019" and "1995-1999". Repeated
// years keep their first position only.
func parseYears(args []string) ([]int, error) {
	var years []int
	seen := make(map[int]bool)
	add := func(y int) {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	for _, arg := range args {
		if from, to, ok := strings.Cut(arg, "-"); ok {
			a, err := strconv.Atoi(from)
			if err != nil {
				return nil, fmt.Errorf("invalid year range %q", arg)
			}
			b, err := strconv.Atoi(to)
			if err != nil || b < a {
				return nil, fmt.Errorf("invalid year range %q", arg)
			}
			for y := a; y <= b; y++ {
				add(y)
			}
			continue
		}
		y, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", arg)
		}
		add(y)
	}
	return years, nil
}

// codecLabel returns the storage suffix of a <year>_kp file, e.g. "csv.zst".
func codecLabel(path string) string {
	base := filepath.Base(path)
	if i := strings.LastIndex(base, "_kp."); i >= 0 {
		return base[i+len("_kp."):]
	}
	return strings.TrimPrefix(filepath.Ext(base), ".")
}

// failureReason labels a per-year failure for metrics.
func failureReason(err error) string {
	var (
		unsupported *kp.UnsupportedYearError
		parseErr    *kp.ParseError
	)
	switch {
	case errors.Is(err, kp.ErrNoData):
		return "no_data"
	case errors.As(err, &unsupported):
		return "unsupported_year"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "write"
	}
}

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	var destDir string
	flag.StringVar(&destDir, "save_directory", cfg.DataDir, "Directory for <year>_kp files")
	flag.StringVar(&destDir, "dir", cfg.DataDir, "Alias for -save_directory")
	formatName := flag.String("format", "auto", "Source format: auto, historical, realtime")
	maxTries := flag.Int("max-tries", cfg.MaxTries, "Connection attempts per file before aborting")
	timeout := flag.Duration("timeout", cfg.Timeout, "HTTP timeout per attempt")
	retryDelay := flag.Duration("retry-delay", cfg.RetryDelay, "Pause between failed attempts")
	rps := flag.Float64("rps", cfg.RPS, "Maximum requests per second (0 = unlimited)")
	workers := flag.Int("workers", 1, "Years downloaded in parallel")
	ext := flag.String("ext", ".csv", "Output extension: .csv, .csv.gz, .csv.zst, .parquet")
	dropMissing := flag.Bool("drop-missing", false, "Omit samples carrying missing-value sentinels")
	metricsFile := flag.String("metrics-textfile", "", "Write Prometheus textfile metrics to this path")
	listOnly := flag.Bool("list", false, "Print the URLs that would be fetched and exit")
	chHost := flag.String("ch-host", "", "Also insert each year into ClickHouse at this host:port")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", "kp_index", "ClickHouse table")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "kp-download v%s - Planetary Kp Index Downloader\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] YEAR [YEAR...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Downloads 3-hourly Kp values and writes one table per year.\n")
		fmt.Fprintf(os.Stderr, "Years may be given as ranges, e.g. 1995-1999.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	years, err := parseYears(flag.Args())
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if len(years) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	format, err := kp.ParseFormat(*formatName)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if *workers < 1 {
		*workers = 1
	}
	cfg.DataDir = destDir

	logger := common.NewLogger(cfg.LogLevel)
	pipeline := metrics.New()
	stats := common.NewStats()

	policy := kp.KeepMissing
	if *dropMissing {
		policy = kp.DropMissing
	}
	fetcher := fetch.NewFetcher(fetch.Options{
		MaxTries:   *maxTries,
		Timeout:    *timeout,
		RetryDelay: *retryDelay,
		RPS:        *rps,
		Logger:     logger,
		Metrics:    pipeline,
	})
	dl := &kp.Downloader{
		Fetcher:       countingFetcher{f: fetcher, stats: stats},
		HistoricalURL: cfg.HistoricalURL,
		RealTimeURL:   cfg.RealTimeURL,
		Policy:        policy,
	}

	if *listOnly {
		for _, y := range years {
			fmt.Printf("%d (%s):\n", y, format.Resolve(y))
			for _, u := range dl.URLs(y, format) {
				fmt.Printf("  %s\n", u)
			}
		}
		return
	}

	log.Println("=========================================================")
	log.Printf("Kp Download v%s", Version)
	log.Println("=========================================================")
	log.Printf("Destination: %s", destDir)
	log.Printf("Format:      %s", format)
	log.Printf("Years:       %d", len(years))
	log.Printf("Extension:   %s", *ext)
	log.Printf("Workers:     %d", *workers)
	log.Printf("Max tries:   %d", *maxTries)
	if *chHost != "" {
		log.Printf("ClickHouse:  %s (%s.%s)", *chHost, *chDB, *chTable)
	}
	log.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nInterrupted, stopping...")
		cancel()
	}()

	var conn *lockedConn
	tableFQN := fmt.Sprintf("%s.%s", *chDB, *chTable)
	if *chHost != "" {
		client, err := warehouse.Dial(ctx, warehouse.Options{
			Host:     *chHost,
			Database: *chDB,
			User:     cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer client.Close()
		conn = &lockedConn{conn: client}
		if err := warehouse.CreateKpTable(ctx, conn, tableFQN); err != nil {
			log.Fatalf("Create table failed: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)

	for _, year := range years {
		year := year // per-iteration copy (module targets Go 1.21 loop semantics)
		g.Go(func() error {
			return downloadYear(gctx, dl, year, format, cfg.KpPath(year, *ext),
				conn, tableFQN, stats, pipeline, logger)
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("ERROR: %v", err)
		stats.FailYear()
	}

	stats.PrintSummary("Download Summary")

	if *metricsFile != "" {
		if err := pipeline.WriteTextfile(*metricsFile); err != nil {
			level.Error(logger).Log("msg", "writing metrics textfile", "path", *metricsFile, "err", err)
		}
	}

	if stats.Failed() {
		os.Exit(1)
	}
}

// downloadYear fetches, writes and optionally ingests one year. It returns an
// error only when the whole run must stop.
func downloadYear(ctx context.Context, dl *kp.Downloader, year int, format kp.Format, path string,
	conn *lockedConn, tableFQN string, stats *common.Stats, pipeline *metrics.Pipeline, logger kitlog.Logger) error {

	log.Printf("[%d] Downloading %s data...", year, format.Resolve(year))

	series, err := dl.Download(ctx, year, format)
	if err != nil {
		var connErr *fetch.ConnectionError
		if errors.As(err, &connErr) || ctx.Err() != nil {
			return fmt.Errorf("[%d] %w", year, err)
		}
		log.Printf("[%d] SKIPPED: %v", year, err)
		stats.FailYear()
		pipeline.YearFailed(failureReason(err))
		return nil
	}

	if err := kp.WriteFile(path, series); err != nil {
		log.Printf("[%d] ERROR: %v", year, err)
		stats.FailYear()
		pipeline.YearFailed(failureReason(err))
		return nil
	}
	stats.AddYear(series.Len())
	pipeline.SamplesWritten(codecLabel(path), series.Len())

	sum := kp.Summarize(series)
	log.Printf("[%d] Wrote %d samples to %s", year, series.Len(), path)
	log.Printf("[%d] Coverage: %s to %s, %d days, %d missing, Kp %.1f-%.1f (mean %.2f)",
		year, sum.First.Format("2006-01-02"), sum.Last.Format("2006-01-02"),
		sum.Days, sum.Missing, sum.Min, sum.Max, sum.Mean)

	if conn != nil {
		n, err := warehouse.InsertSeries(ctx, conn, tableFQN, series, filepath.Base(path))
		if err != nil {
			return fmt.Errorf("[%d] %w", year, err)
		}
		level.Debug(logger).Log("msg", "inserted series", "year", year, "rows", n, "table", tableFQN)
	}
	return nil
}
