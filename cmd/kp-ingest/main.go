// kp-ingest - Stored Kp table ingestion into ClickHouse
//
// Reads <year>_kp files written by kp-download in any storage codec:
//   - .csv, .csv.gz, .csv.zst
//   - .parquet
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/kp-ingest ./cmd/kp-ingest

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/KI7MT/kp-magephem/internal/common"
	"github.com/KI7MT/kp-magephem/internal/kp"
	"github.com/KI7MT/kp-magephem/internal/warehouse"
)

// Version can be overridden at build time via -ldflags
var Version = "1.0.0"

// isKpFile reports whether name looks like a stored Kp table.
func isKpFile(name string) bool {
	if strings.HasSuffix(name, ".tmp") {
		return false
	}
	return strings.Contains(name, "_kp.")
}

// discover lists the Kp tables in dir, sorted by name.
func discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isKpFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	chHost := flag.String("ch-host", cfg.ClickHouseHost, "ClickHouse address")
	chDB := flag.String("ch-db", cfg.ClickHouseDatabase, "ClickHouse database")
	chTable := flag.String("ch-table", "kp_index", "ClickHouse table")
	sourceDir := flag.String("source-dir", cfg.DataDir, "Kp table directory")
	truncate := flag.Bool("truncate", false, "Truncate table before insert")
	create := flag.Bool("create", false, "Create the table if it does not exist")
	dryRun := flag.Bool("dry-run", false, "Read and validate files without connecting")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "kp-ingest v%s - Kp Table Ingester\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [FILE...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Loads <year>_kp files into ClickHouse. With no FILE arguments\n")
		fmt.Fprintf(os.Stderr, "every *_kp.* file in -source-dir is ingested.\n\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	log.Println("=========================================================")
	log.Printf("Kp Ingest v%s", Version)
	log.Println("=========================================================")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("\nShutdown requested...")
		cancel()
	}()

	var files []string
	if len(flag.Args()) > 0 {
		files = flag.Args()
	} else {
		files, err = discover(*sourceDir)
		if err != nil {
			log.Fatalf("Cannot read source directory: %v", err)
		}
	}
	if len(files) == 0 {
		log.Fatal("No files to process")
	}
	log.Printf("Found %d file(s)", len(files))

	tableFQN := fmt.Sprintf("%s.%s", *chDB, *chTable)
	var conn warehouse.Executor
	if !*dryRun {
		log.Printf("Connecting to ClickHouse at %s...", *chHost)
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
		conn = client
		log.Printf("Table: %s", tableFQN)

		if *create {
			if err := warehouse.CreateKpTable(ctx, conn, tableFQN); err != nil {
				log.Fatalf("Create table failed: %v", err)
			}
		}
		if *truncate {
			log.Printf("Truncating table %s...", tableFQN)
			if err := warehouse.Truncate(ctx, conn, tableFQN); err != nil {
				log.Printf("Truncate warning: %v", err)
			}
		}
	} else {
		log.Println("Dry run: no rows will be inserted")
	}
	log.Println()

	startTime := time.Now()
	totalRecords := 0
	failed := 0

	for _, filePath := range files {
		if ctx.Err() != nil {
			break
		}
		name := filepath.Base(filePath)

		series, err := kp.ReadFile(filePath)
		if err != nil {
			log.Printf("[%s] Read error: %v", name, err)
			failed++
			continue
		}
		sum := kp.Summarize(series)
		log.Printf("[%s] Read %d samples for %d (%d missing)", name, series.Len(), series.Year, sum.Missing)

		if conn == nil {
			totalRecords += series.Len()
			continue
		}
		n, err := warehouse.InsertSeries(ctx, conn, tableFQN, series, name)
		totalRecords += n
		if err != nil {
			log.Printf("[%s] Insert error: %v", name, err)
			failed++
			continue
		}
		log.Printf("[%s] Inserted %d records", name, n)
	}

	elapsed := time.Since(startTime)

	log.Println()
	log.Println("=========================================================")
	log.Println("Final Statistics")
	log.Println("=========================================================")
	log.Printf("Files:         %d (%d failed)", len(files), failed)
	log.Printf("Total Records: %d", totalRecords)
	log.Printf("Elapsed:       %v", elapsed.Round(time.Millisecond))
	if elapsed.Seconds() > 0 {
		log.Printf("Rate:          %.0f records/sec", float64(totalRecords)/elapsed.Seconds())
	}
	log.Println("=========================================================")

	if failed > 0 {
		os.Exit(1)
	}
}
