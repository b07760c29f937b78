// kp-magephem - Magnetic ephemeris generation
//
// Joins spacecraft positions with the 3-hourly Kp index and evaluates a
// magnetic field model at each sample:
//   - POES NetCDF ephemeris (year, day, msec, alt, lat, lon)
//   - or a two-line element set propagated with SGP4
//
// Output: <ephem>_magephem.csv with dateTime, L_<model>, MLT_<model>.
//
// Build: CGO_ENABLED=1 go build -ldflags="-s -w" -o build/kp-magephem ./cmd/kp-magephem
// (links libnetcdf through internal/ephem/poes; install libnetcdf-dev first)

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
	"syscall"
	"time"

	"github.com/go-kit/log/level"

	"github.com/KI7MT/kp-magephem/internal/common"
	"github.com/KI7MT/kp-magephem/internal/ephem"
	"github.com/KI7MT/kp-magephem/internal/ephem/poes"
	"github.com/KI7MT/kp-magephem/internal/fieldmodel"
	"github.com/KI7MT/kp-magephem/internal/kp"
	"github.com/KI7MT/kp-magephem/internal/magephem"
	"github.com/KI7MT/kp-magephem/internal/metrics"
	"github.com/KI7MT/kp-magephem/internal/warehouse"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// parseTime accepts RFC 3339 timestamps and bare dates.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, kp.TimeLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// openSource selects the ephemeris source from the flags and returns it with
// the path the output name derives from.
func openSource(ephemPath, tlePath, start, end string, step time.Duration) (ephem.Source, string, error) {
	switch {
	case ephemPath != "" && tlePath != "":
		return nil, "", errors.New("-ephem and -tle are mutually exclusive")
	case ephemPath != "":
		return poes.New(ephemPath), ephemPath, nil
	case tlePath != "":
		data, err := os.ReadFile(tlePath)
		if err != nil {
			return nil, "", err
		}
		line1, line2, err := ephem.ParseTLE(string(data))
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", tlePath, err)
		}
		t0, err := parseTime(start)
		if err != nil {
			return nil, "", fmt.Errorf("-start: %w", err)
		}
		t1, err := parseTime(end)
		if err != nil {
			return nil, "", fmt.Errorf("-end: %w", err)
		}
		src, err := ephem.NewTLE(line1, line2, t0, t1, step)
		if err != nil {
			return nil, "", err
		}
		return src, tlePath, nil
	}
	return nil, "", errors.New("one of -ephem or -tle is required")
}

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	ephemPath := flag.String("ephem", "", "POES NetCDF ephemeris file")
	tlePath := flag.String("tle", "", "Two-line element file (instead of -ephem)")
	start := flag.String("start", "", "TLE propagation start (RFC 3339 or YYYY-MM-DD)")
	end := flag.String("end", "", "TLE propagation end (RFC 3339 or YYYY-MM-DD)")
	step := flag.Duration("step", time.Minute, "TLE propagation step")
	modelName := flag.String("model", fieldmodel.NameT89, "Field model: T89, OPQ77, DIPOLE")
	kpDir := flag.String("kp-dir", cfg.DataDir, "Directory holding <year>_kp files")
	kpExt := flag.String("kp-ext", ".csv", "Extension of the stored Kp files")
	outDir := flag.String("out-dir", ".", "Output directory")
	outPath := flag.String("out", "", "Output file (default <ephem>_magephem.csv in -out-dir; .parquet selects Parquet)")
	skipStale := flag.Bool("skip-stale", false, "Drop samples without a Kp value within 3 hours instead of failing")
	validOnly := flag.Bool("valid-only", false, "Drop rows carrying the bad-value sentinel")
	helper := flag.String("helper", cfg.FieldModelHelper, "Field model helper executable for T89 and OPQ77")
	chHost := flag.String("ch-host", "", "Also insert records into ClickHouse at this host:port")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", "magephem", "ClickHouse table")
	metricsFile := flag.String("metrics-textfile", "", "Write Prometheus textfile metrics to this path")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "kp-magephem v%s - Magnetic Ephemeris Generator\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Computes L-shell and MLT along a spacecraft ephemeris.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	logger := common.NewLogger(cfg.LogLevel)
	pipeline := metrics.New()

	src, srcPath, err := openSource(*ephemPath, *tlePath, *start, *end, *step)
	if err != nil {
		flag.Usage()
		log.Fatalf("Error: %v", err)
	}
	model, err := fieldmodel.New(*modelName, fieldmodel.Options{Helper: *helper, Logger: logger})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	out := *outPath
	if out == "" {
		out = filepath.Join(*outDir, ephem.MagephemName(srcPath))
	}

	log.Println("=========================================================")
	log.Printf("Kp Magephem v%s", Version)
	log.Println("=========================================================")
	log.Printf("Ephemeris:   %s", srcPath)
	log.Printf("Model:       %s", model.Name())
	if model.NeedsKp() {
		log.Printf("Kp:          %s (*_kp%s)", *kpDir, *kpExt)
	}
	log.Printf("Output:      %s", out)
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

	stats := common.NewStats()

	samples, err := src.Load(ctx)
	if err != nil {
		log.Fatalf("Loading ephemeris: %v", err)
	}
	log.Printf("Loaded %d ephemeris samples", len(samples))

	var lookup magephem.KpLookup
	if model.NeedsKp() {
		lookup = kp.NewStore(*kpDir, *kpExt)
	}

	res, err := magephem.Build(ctx, samples, lookup, model, magephem.Options{
		SkipStale: *skipStale,
		Logger:    logger,
		Metrics:   pipeline,
	})
	if err != nil {
		log.Fatalf("Building magnetic ephemeris: %v", err)
	}
	for _, s := range res.Skipped {
		level.Debug(logger).Log("msg", "skipped sample", "time", s.Time.Format(magephem.TimeLayout), "err", s.Err)
	}

	records := res.Records
	if *validOnly {
		records = magephem.Valid(records)
	}

	if err := magephem.WriteFile(out, res.Model, records); err != nil {
		log.Fatalf("Writing output: %v", err)
	}
	stats.AddRecords(len(records))
	log.Printf("Wrote %d records to %s (%d skipped)", len(records), out, len(res.Skipped))

	if *chHost != "" {
		conn, err := warehouse.Open(ctx, warehouse.Options{
			Host:     *chHost,
			Database: *chDB,
			User:     cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer conn.Close()

		tableFQN := fmt.Sprintf("%s.%s", *chDB, *chTable)
		n, err := warehouse.InsertMagephem(ctx, conn, tableFQN, res.Model, filepath.Base(srcPath), records)
		if err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("Inserted %d records into %s", n, tableFQN)
	}

	stats.PrintSummary("Magephem Summary")

	if *metricsFile != "" {
		if err := pipeline.WriteTextfile(*metricsFile); err != nil {
			level.Error(logger).Log("msg", "writing metrics textfile", "path", *metricsFile, "err", err)
		}
	}
}
